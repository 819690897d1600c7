package dashboard

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType names the payload carried by a Message.
type MessageType string

const (
	// MessageTypeStatus carries a reconcile.Status snapshot.
	MessageTypeStatus MessageType = "sync_status"

	// MessageTypeEvidence carries an evidence record without images.
	MessageTypeEvidence MessageType = "evidence_recorded"

	// MessageTypeWorker carries an added or renamed worker.
	MessageTypeWorker MessageType = "worker_update"
)

// Message is one frame sent to WebSocket clients.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage builds a message with data marshaled to JSON.
func NewMessage(typ MessageType, data any) (Message, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Message{}, fmt.Errorf("failed to marshal %s message: %w", typ, err)
	}
	return Message{Type: typ, Timestamp: time.Now().UTC(), Data: raw}, nil
}

// Broadcaster delivers messages to every connected client.
type Broadcaster interface {
	Broadcast(msg Message)
}
