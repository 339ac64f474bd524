// Package realtime provides the WebSocket transport used for live interview
// updates. Every process runs one Hub; events emitted on any process reach the
// clients of all processes through a Broker.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"
)

// Transport defaults.
const (
	DefaultPingTimeout  = 60 * time.Second
	DefaultPingInterval = 25 * time.Second
	defaultWriteWait    = 10 * time.Second
	defaultMaxMessage   = 64 * 1024
	sendChannelSize     = 256
)

var (
	// ErrNoHandler is reported to the default error handler for events nobody registered
	ErrNoHandler = errors.New("no handler registered for event")
	// ErrMalformedFrame is reported to the default error handler for frames that are not valid JSON events
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrHubStopped is returned when emitting on a stopped hub
	ErrHubStopped = errors.New("hub stopped")
)

// EventHandler handles one client event. A returned error goes to the OnError handler.
type EventHandler func(ctx context.Context, c *Conn, data json.RawMessage) error

// ConnHandler observes connection lifecycle.
type ConnHandler func(c *Conn)

// ErrorHandler observes errors. It must not panic.
type ErrorHandler func(c *Conn, err error)

// Transport is the real-time messaging surface the application composes.
type Transport interface {
	http.Handler

	OnConnect(h ConnHandler)
	OnDisconnect(h ConnHandler)
	// OnError receives errors returned or raised by event handlers
	OnError(h ErrorHandler)
	// OnDefaultError receives every other error: unknown events, malformed frames
	OnDefaultError(h ErrorHandler)
	On(event string, h EventHandler)

	Emit(ctx context.Context, event string, data interface{}) error
	ClientCount() int
}

// Frame is the JSON shape exchanged with clients.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Options tune the hub.
type Options struct {
	PingTimeout    time.Duration
	PingInterval   time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64
	// AllowedOrigins lists accepted Origin headers; "*" accepts any origin
	AllowedOrigins []string
}

// DefaultOptions returns the production heartbeat settings with any origin allowed.
func DefaultOptions() Options {
	return Options{
		PingTimeout:    DefaultPingTimeout,
		PingInterval:   DefaultPingInterval,
		WriteWait:      defaultWriteWait,
		MaxMessageSize: defaultMaxMessage,
		AllowedOrigins: []string{"*"},
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.PingTimeout <= 0 {
		o.PingTimeout = d.PingTimeout
	}
	if o.PingInterval <= 0 {
		o.PingInterval = d.PingInterval
	}
	if o.WriteWait <= 0 {
		o.WriteWait = d.WriteWait
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = d.MaxMessageSize
	}
	if len(o.AllowedOrigins) == 0 {
		o.AllowedOrigins = d.AllowedOrigins
	}
	return o
}

func (o Options) originAllowed(origin string) bool {
	if origin == "" {
		return true
	}
	for _, allowed := range o.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}
