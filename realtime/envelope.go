package realtime

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

// envelope is what travels over the broker between processes.
type envelope struct {
	ID    string `msgpack:"id"`
	Event string `msgpack:"event"`
	Data  []byte `msgpack:"data"`
	Time  int64  `msgpack:"time"`
}

func encodeEnvelope(event string, data interface{}) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event data: %w", err)
	}
	return msgpack.Marshal(&envelope{
		ID:    uuid.NewString(),
		Event: event,
		Data:  payload,
		Time:  time.Now().UnixMilli(),
	})
}

func decodeEnvelope(raw []byte) (*envelope, error) {
	var env envelope
	if err := msgpack.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("failed to decode envelope: %w", err)
	}
	if env.Event == "" {
		return nil, fmt.Errorf("envelope %s has no event", env.ID)
	}
	return &env, nil
}

// frame renders the client-facing JSON for an envelope.
func (e *envelope) frame() ([]byte, error) {
	return json.Marshal(Frame{Event: e.Event, Data: json.RawMessage(e.Data)})
}
