package realtime

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is one connected WebSocket client.
type Conn struct {
	id         string
	hub        *Hub
	ws         *websocket.Conn
	send       chan []byte
	remoteAddr string
}

// ID returns the session id assigned at connect time.
func (c *Conn) ID() string { return c.id }

// RemoteAddr returns the peer address of the upgrade request.
func (c *Conn) RemoteAddr() string { return c.remoteAddr }

// Emit sends an event to this client only.
func (c *Conn) Emit(event string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}
	frame, err := json.Marshal(Frame{Event: event, Data: payload})
	if err != nil {
		return err
	}
	if !c.hub.deliver(c, frame) {
		return fmt.Errorf("client %s is not accepting messages", c.id)
	}
	return nil
}

// readPump reads frames until the connection fails. The read deadline allows
// one ping interval plus the ping timeout between client messages or pongs.
func (c *Conn) readPump() {
	defer func() {
		c.hub.remove(c)
		c.ws.Close()
		c.hub.disconnected(c)
	}()

	deadline := c.hub.opts.PingInterval + c.hub.opts.PingTimeout
	c.ws.SetReadLimit(c.hub.opts.MaxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(deadline))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		msgType, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debugw("WebSocket unexpected close", "sid", c.id, "error", err)
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(deadline))
		if msgType != websocket.TextMessage {
			c.hub.reportDefault(c, fmt.Errorf("%w: binary message", ErrMalformedFrame))
			continue
		}
		c.hub.dispatch(c, raw)
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(c.hub.opts.PingInterval)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	writeWait := c.hub.opts.WriteWait
	for {
		select {
		case message, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
