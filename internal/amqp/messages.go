package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"saman/internal/ledger"
)

// ChangeMessage announces a committed ledger mutation. It carries no record
// data; consumers reload the snapshot from storage.
type ChangeMessage struct {
	Kind      string    `json:"kind"`
	Key       string    `json:"key"`
	ID        string    `json:"id"`
	Revision  uint64    `json:"revision"`
	Timestamp time.Time `json:"timestamp"`
}

// NewChangeMessage converts a ledger change into its wire form.
func NewChangeMessage(c ledger.Change) *ChangeMessage {
	ts := c.At
	if ts.IsZero() {
		ts = time.Now()
	}
	return &ChangeMessage{
		Kind:      string(c.Kind),
		Key:       c.Key,
		ID:        c.ID,
		Revision:  c.Revision,
		Timestamp: ts.UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ChangeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ChangeMessageFromJSON decodes a message and rejects ones without a kind.
func ChangeMessageFromJSON(data []byte) (*ChangeMessage, error) {
	var msg ChangeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Kind == "" {
		return nil, fmt.Errorf("change message without kind")
	}
	return &msg, nil
}
