package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/thuinanutshell/ux-interviewer/metrics"
)

// Hub is the gorilla/websocket implementation of Transport.
// The zero value is not usable; construct with NewHub and call Start.
type Hub struct {
	opts     Options
	broker   Broker
	logger   *zap.SugaredLogger
	upgrader websocket.Upgrader

	handlersMu     sync.RWMutex
	handlers       map[string]EventHandler
	onConnect      ConnHandler
	onDisconnect   ConnHandler
	onError        ErrorHandler
	onDefaultError ErrorHandler

	mu      sync.RWMutex
	clients map[*Conn]struct{}
	stopped bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

var _ Transport = (*Hub)(nil)

// NewHub creates a hub fanning out through broker.
func NewHub(broker Broker, logger *zap.SugaredLogger, opts Options) *Hub {
	opts = opts.withDefaults()
	h := &Hub{
		opts:     opts,
		broker:   broker,
		logger:   logger,
		handlers: make(map[string]EventHandler),
		clients:  make(map[*Conn]struct{}),
		ctx:      context.Background(),
		done:     make(chan struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return opts.originAllowed(r.Header.Get("Origin"))
		},
	}
	return h
}

// Start subscribes to the broker and begins delivering emitted events.
// It must be called exactly once.
func (h *Hub) Start(ctx context.Context) error {
	h.ctx, h.cancel = context.WithCancel(ctx)
	msgs, err := h.broker.Subscribe(h.ctx)
	if err != nil {
		h.cancel()
		close(h.done)
		return fmt.Errorf("failed to subscribe to broker: %w", err)
	}
	go h.run(msgs)
	h.logger.Infow("WebSocket hub started",
		"ping_interval", h.opts.PingInterval,
		"ping_timeout", h.opts.PingTimeout)
	return nil
}

func (h *Hub) run(msgs <-chan []byte) {
	defer close(h.done)
	for {
		select {
		case <-h.ctx.Done():
			return
		case raw, ok := <-msgs:
			if !ok {
				h.logger.Warn("Broker subscription closed")
				return
			}
			env, err := decodeEnvelope(raw)
			if err != nil {
				h.logger.Errorw("Dropping broker message", "error", err)
				continue
			}
			frame, err := env.frame()
			if err != nil {
				h.logger.Errorw("Dropping broker message", "event", env.Event, "error", err)
				continue
			}
			h.broadcast(frame)
		}
	}
}

// Stop cancels the broker subscription and disconnects every client.
func (h *Hub) Stop() {
	h.once.Do(func() {
		if h.cancel != nil {
			h.cancel()
			<-h.done
		}

		h.mu.Lock()
		h.stopped = true
		for c := range h.clients {
			delete(h.clients, c)
			close(c.send)
		}
		h.mu.Unlock()
		h.logger.Info("WebSocket hub stopped")
	})
}

// OnConnect registers the connection handler.
func (h *Hub) OnConnect(fn ConnHandler) {
	h.handlersMu.Lock()
	defer h.handlersMu.Unlock()
	h.onConnect = fn
}

// OnDisconnect registers the disconnection handler.
func (h *Hub) OnDisconnect(fn ConnHandler) {
	h.handlersMu.Lock()
	defer h.handlersMu.Unlock()
	h.onDisconnect = fn
}

// OnError registers the handler for errors raised by event handlers.
func (h *Hub) OnError(fn ErrorHandler) {
	h.handlersMu.Lock()
	defer h.handlersMu.Unlock()
	h.onError = fn
}

// OnDefaultError registers the handler for errors no other handler covers.
func (h *Hub) OnDefaultError(fn ErrorHandler) {
	h.handlersMu.Lock()
	defer h.handlersMu.Unlock()
	h.onDefaultError = fn
}

// On registers the handler for a named client event, replacing any previous one.
func (h *Hub) On(event string, fn EventHandler) {
	h.handlersMu.Lock()
	defer h.handlersMu.Unlock()
	h.handlers[event] = fn
}

// Emit publishes an event to every client of every hub sharing the broker.
func (h *Hub) Emit(ctx context.Context, event string, data interface{}) error {
	h.mu.RLock()
	stopped := h.stopped
	h.mu.RUnlock()
	if stopped {
		return ErrHubStopped
	}

	payload, err := encodeEnvelope(event, data)
	if err != nil {
		return err
	}
	if err := h.broker.Publish(ctx, payload); err != nil {
		metrics.WebSocketEvents.WithLabelValues("outbound", "error").Inc()
		return fmt.Errorf("failed to emit %q: %w", event, err)
	}
	metrics.WebSocketEvents.WithLabelValues("outbound", "ok").Inc()
	return nil
}

// ClientCount returns the number of clients connected to this hub.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and runs the connection until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Errorw("WebSocket upgrade failed", "error", err, "remote_addr", r.RemoteAddr)
		return
	}

	c := &Conn{
		id:         uuid.NewString(),
		hub:        h,
		ws:         ws,
		send:       make(chan []byte, sendChannelSize),
		remoteAddr: r.RemoteAddr,
	}
	if !h.add(c) {
		_ = ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		_ = ws.Close()
		return
	}

	h.connected(c)
	go c.writePump()
	c.readPump()
}

func (h *Hub) add(c *Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return false
	}
	h.clients[c] = struct{}{}
	metrics.WebSocketConnections.Inc()
	return true
}

func (h *Hub) remove(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) broadcast(frame []byte) {
	h.mu.RLock()
	var slow []*Conn
	for c := range h.clients {
		select {
		case c.send <- frame:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warnw("Disconnecting slow WebSocket client", "sid", c.id)
		h.remove(c)
	}
}

// deliver queues frame for one client. It reports false if the client is gone.
func (h *Hub) deliver(c *Conn, frame []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c]; !ok {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (h *Hub) connected(c *Conn) {
	h.handlersMu.RLock()
	fn := h.onConnect
	h.handlersMu.RUnlock()
	if fn != nil {
		fn(c)
	}
}

func (h *Hub) disconnected(c *Conn) {
	metrics.WebSocketConnections.Dec()
	h.handlersMu.RLock()
	fn := h.onDisconnect
	h.handlersMu.RUnlock()
	if fn != nil {
		fn(c)
	}
}

// dispatch routes one inbound frame to its handler.
func (h *Hub) dispatch(c *Conn, raw []byte) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil || frame.Event == "" {
		metrics.WebSocketEvents.WithLabelValues("inbound", "malformed").Inc()
		h.reportDefault(c, fmt.Errorf("%w: %v", ErrMalformedFrame, err))
		return
	}

	h.handlersMu.RLock()
	fn, ok := h.handlers[frame.Event]
	h.handlersMu.RUnlock()
	if !ok {
		metrics.WebSocketEvents.WithLabelValues("inbound", "unhandled").Inc()
		h.reportDefault(c, fmt.Errorf("%w: %s", ErrNoHandler, frame.Event))
		return
	}

	if err := h.invoke(c, fn, frame); err != nil {
		metrics.WebSocketEvents.WithLabelValues("inbound", "error").Inc()
		h.reportError(c, fmt.Errorf("event %s: %w", frame.Event, err))
		return
	}
	metrics.WebSocketEvents.WithLabelValues("inbound", "ok").Inc()
}

func (h *Hub) invoke(c *Conn, fn EventHandler, frame Frame) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return fn(h.ctx, c, frame.Data)
}

func (h *Hub) reportError(c *Conn, err error) {
	h.handlersMu.RLock()
	fn := h.onError
	h.handlersMu.RUnlock()
	if fn == nil {
		h.reportDefault(c, err)
		return
	}
	fn(c, err)
}

func (h *Hub) reportDefault(c *Conn, err error) {
	h.handlersMu.RLock()
	fn := h.onDefaultError
	h.handlersMu.RUnlock()
	if fn == nil {
		h.logger.Errorw("Unhandled WebSocket error", "sid", c.id, "error", err)
		return
	}
	fn(c, err)
}
