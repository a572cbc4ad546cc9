package queue

import (
	"encoding/json"
	"time"
)

// MessageVersion is the current payload version.
const MessageVersion = 1

// Message asks a worker to run (or resume) reconciliation for a batch.
type Message struct {
	BatchID    string `json:"batchId"`
	RequestID  string `json:"requestId"`
	EnqueuedAt string `json:"enqueuedAt"`
	Version    int    `json:"version"`
}

// NewReconcileMessage builds a message stamped with the current time.
func NewReconcileMessage(batchID, requestID string, now time.Time) Message {
	return Message{
		BatchID:    batchID,
		RequestID:  requestID,
		EnqueuedAt: now.UTC().Format(time.RFC3339),
		Version:    MessageVersion,
	}
}

// EncodeMessage returns the JSON representation of a message.
func EncodeMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeMessage parses a JSON payload into a Message.
func DecodeMessage(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}
