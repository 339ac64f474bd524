package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func newTestHub(t *testing.T, broker Broker) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(broker, zaptest.NewLogger(t).Sugar(), Options{})
	require.NoError(t, hub.Start(context.Background()))
	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		srv.Close()
		hub.Stop()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readFrame(t *testing.T, ws *websocket.Conn) Frame {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, raw, err := ws.ReadMessage()
	require.NoError(t, err)
	var f Frame
	require.NoError(t, json.Unmarshal(raw, &f))
	return f
}

func sendFrame(t *testing.T, ws *websocket.Conn, event string, data interface{}) {
	t.Helper()
	payload, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, ws.WriteJSON(Frame{Event: event, Data: payload}))
}

// errorRecorder collects errors delivered to a hub error handler.
type errorRecorder struct {
	mu   sync.Mutex
	errs []error
}

func (r *errorRecorder) record(_ *Conn, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *errorRecorder) snapshot() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

func TestHub_ConnectDisconnectObservedOnce(t *testing.T) {
	broker := NewLocalBroker()
	hub, srv := newTestHub(t, broker)

	var connects, disconnects atomic.Int32
	hub.OnConnect(func(*Conn) { connects.Add(1) })
	hub.OnDisconnect(func(*Conn) { disconnects.Add(1) })

	ws := dial(t, srv)
	require.Eventually(t, func() bool { return connects.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, hub.ClientCount())

	require.NoError(t, ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")))
	ws.Close()

	require.Eventually(t, func() bool { return disconnects.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), connects.Load())
	assert.Equal(t, int32(1), disconnects.Load())
	assert.Equal(t, 0, hub.ClientCount())
}

func TestHub_DispatchesRegisteredEvent(t *testing.T) {
	hub, srv := newTestHub(t, NewLocalBroker())
	hub.On("echo", func(_ context.Context, c *Conn, data json.RawMessage) error {
		return c.Emit("echo_reply", json.RawMessage(data))
	})

	ws := dial(t, srv)
	sendFrame(t, ws, "echo", map[string]string{"hello": "world"})

	f := readFrame(t, ws)
	assert.Equal(t, "echo_reply", f.Event)
	assert.JSONEq(t, `{"hello":"world"}`, string(f.Data))
}

func TestHub_ErrorRouting(t *testing.T) {
	tests := []struct {
		name        string
		event       string
		raw         string
		wantHandler bool
		wantErr     error
	}{
		{name: "unknown event goes to default handler", event: "nope", wantErr: ErrNoHandler},
		{name: "malformed frame goes to default handler", raw: "{not json", wantErr: ErrMalformedFrame},
		{name: "handler error goes to error handler", event: "fail", wantHandler: true},
		{name: "handler panic goes to error handler", event: "panic", wantHandler: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hub, srv := newTestHub(t, NewLocalBroker())
			handlerErrs := &errorRecorder{}
			defaultErrs := &errorRecorder{}
			hub.OnError(handlerErrs.record)
			hub.OnDefaultError(defaultErrs.record)
			hub.On("fail", func(context.Context, *Conn, json.RawMessage) error {
				return errors.New("boom")
			})
			hub.On("panic", func(context.Context, *Conn, json.RawMessage) error {
				panic("kaboom")
			})

			ws := dial(t, srv)
			if tt.raw != "" {
				require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(tt.raw)))
			} else {
				sendFrame(t, ws, tt.event, nil)
			}

			if tt.wantHandler {
				require.Eventually(t, func() bool { return len(handlerErrs.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)
				assert.Empty(t, defaultErrs.snapshot())
				return
			}
			require.Eventually(t, func() bool { return len(defaultErrs.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)
			assert.ErrorIs(t, defaultErrs.snapshot()[0], tt.wantErr)
			assert.Empty(t, handlerErrs.snapshot())
		})
	}
}

func TestHub_ErrorsDoNotCloseConnection(t *testing.T) {
	hub, srv := newTestHub(t, NewLocalBroker())
	hub.OnDefaultError(func(*Conn, error) {})
	hub.On("ping", func(_ context.Context, c *Conn, _ json.RawMessage) error {
		return c.Emit("pong", nil)
	})

	ws := dial(t, srv)
	sendFrame(t, ws, "unknown", nil)
	sendFrame(t, ws, "ping", nil)

	assert.Equal(t, "pong", readFrame(t, ws).Event)
}

func TestHub_EmitReachesLocalClients(t *testing.T) {
	hub, srv := newTestHub(t, NewLocalBroker())
	connected := make(chan struct{}, 1)
	hub.OnConnect(func(*Conn) { connected <- struct{}{} })

	ws := dial(t, srv)
	<-connected

	require.NoError(t, hub.Emit(context.Background(), "interview_updated", map[string]int{"id": 7}))

	f := readFrame(t, ws)
	assert.Equal(t, "interview_updated", f.Event)
	assert.JSONEq(t, `{"id":7}`, string(f.Data))
}

func TestHub_FanOutAcrossHubsThroughRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	logger := zap.NewNop().Sugar()

	newBroker := func() *RedisBroker {
		b, err := NewRedisBroker("redis://"+mr.Addr(), "", logger)
		require.NoError(t, err)
		require.NoError(t, b.Ping(context.Background()))
		t.Cleanup(func() { b.Close() })
		return b
	}

	publisher, _ := newTestHub(t, newBroker())
	receiver, srv := newTestHub(t, newBroker())
	connected := make(chan struct{}, 1)
	receiver.OnConnect(func(*Conn) { connected <- struct{}{} })

	ws := dial(t, srv)
	<-connected

	require.NoError(t, publisher.Emit(context.Background(), "analytics_ready", map[string]string{"product": "p1"}))

	f := readFrame(t, ws)
	assert.Equal(t, "analytics_ready", f.Event)
	assert.JSONEq(t, `{"product":"p1"}`, string(f.Data))
}

func TestHub_StopDisconnectsClients(t *testing.T) {
	broker := NewLocalBroker()
	hub := NewHub(broker, zap.NewNop().Sugar(), Options{})
	require.NoError(t, hub.Start(context.Background()))
	srv := httptest.NewServer(hub)
	defer srv.Close()

	var disconnects atomic.Int32
	connected := make(chan struct{}, 1)
	hub.OnConnect(func(*Conn) { connected <- struct{}{} })
	hub.OnDisconnect(func(*Conn) { disconnects.Add(1) })

	ws := dial(t, srv)
	<-connected

	hub.Stop()
	hub.Stop()

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := ws.ReadMessage()
	assert.Error(t, err)
	require.Eventually(t, func() bool { return disconnects.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.ErrorIs(t, hub.Emit(context.Background(), "late", nil), ErrHubStopped)
}

func TestRedisBroker_InvalidURL(t *testing.T) {
	_, err := NewRedisBroker("not-a-url", "", zap.NewNop().Sugar())
	assert.Error(t, err)
}

func TestLocalBroker_CloseEndsSubscriptions(t *testing.T) {
	b := NewLocalBroker()
	ch, err := b.Subscribe(context.Background())
	require.NoError(t, err)

	require.NoError(t, b.Close())
	_, ok := <-ch
	assert.False(t, ok)

	_, err = b.Subscribe(context.Background())
	assert.ErrorIs(t, err, ErrHubStopped)
}

func TestEnvelope_Decode(t *testing.T) {
	raw, err := encodeEnvelope("evt", []int{1, 2})
	require.NoError(t, err)

	env, err := decodeEnvelope(raw)
	require.NoError(t, err)
	assert.Equal(t, "evt", env.Event)
	assert.NotEmpty(t, env.ID)

	frame, err := env.frame()
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"evt","data":[1,2]}`, string(frame))

	_, err = decodeEnvelope([]byte("garbage"))
	assert.Error(t, err)
}

func TestOptions_OriginAllowed(t *testing.T) {
	open := DefaultOptions()
	assert.True(t, open.originAllowed("https://evil.example"))
	assert.True(t, open.originAllowed(""))

	strict := Options{AllowedOrigins: []string{"https://app.example"}}.withDefaults()
	assert.True(t, strict.originAllowed("https://app.example"))
	assert.False(t, strict.originAllowed("https://other.example"))

	d := DefaultOptions()
	assert.Equal(t, 60*time.Second, d.PingTimeout)
	assert.Equal(t, 25*time.Second, d.PingInterval)
}
