package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"billbook/internal/core"
)

// ChangeMessage is the wire form of a core.ChangeEvent. It names the record
// only; the worker reads the current state back from storage.
type ChangeMessage struct {
	Collection string        `json:"collection"`
	ID         string        `json:"id,omitempty"`
	Op         core.ChangeOp `json:"op"`
	Timestamp  time.Time     `json:"timestamp"`
}

func NewChangeMessage(ev core.ChangeEvent) *ChangeMessage {
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return &ChangeMessage{
		Collection: ev.Collection,
		ID:         ev.ID,
		Op:         ev.Op,
		Timestamp:  ts,
	}
}

func (m *ChangeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func (m *ChangeMessage) Event() core.ChangeEvent {
	return core.ChangeEvent{Collection: m.Collection, ID: m.ID, Op: m.Op, Timestamp: m.Timestamp}
}

// ChangeMessageFromJSON decodes a message and rejects ones without a collection.
func ChangeMessageFromJSON(data []byte) (*ChangeMessage, error) {
	var msg ChangeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Collection == "" {
		return nil, errors.New("change message without collection")
	}
	return &msg, nil
}
