package amqp

import (
	"encoding/json"
	"time"
)

// Reasons a sync request is published.
const (
	ReasonMutation = "mutation"
	ReasonPeriodic = "periodic"
	ReasonManual   = "manual"
)

// SyncRequestMessage asks a worker to run a sync pass for one owner.
// It carries no record data; the worker reads pending records from the
// local store, so a duplicated or stale message is harmless.
type SyncRequestMessage struct {
	OwnerID   string    `json:"ownerId"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// NewSyncRequestMessage creates a sync request for the given owner
func NewSyncRequestMessage(ownerID, reason string) *SyncRequestMessage {
	return &SyncRequestMessage{
		OwnerID:   ownerID,
		Reason:    reason,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *SyncRequestMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// SyncRequestMessageFromJSON creates a message from JSON bytes
func SyncRequestMessageFromJSON(data []byte) (*SyncRequestMessage, error) {
	var msg SyncRequestMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
