package amqp

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"ledgerbook/internal/core"
)

// ChangeMessage announces a ledger write. It carries only identifiers; the
// consumer reads current state from the store.
type ChangeMessage struct {
	MessageID     string        `json:"messageId"`
	Op            core.ChangeOp `json:"op"`
	TransactionID int64         `json:"transactionId"`
	SubType       core.SubType  `json:"subType"`
	OccurredAt    time.Time     `json:"occurredAt"`
	Timestamp     time.Time     `json:"timestamp"`
}

func NewChangeMessage(ev core.ChangeEvent) *ChangeMessage {
	return &ChangeMessage{
		MessageID:     uuid.NewString(),
		Op:            ev.Op,
		TransactionID: ev.TransactionID,
		SubType:       ev.SubType,
		OccurredAt:    ev.OccurredAt,
		Timestamp:     time.Now(),
	}
}

// Event converts the message back into a domain event.
func (m *ChangeMessage) Event() core.ChangeEvent {
	return core.ChangeEvent{
		Op:            m.Op,
		TransactionID: m.TransactionID,
		SubType:       m.SubType,
		OccurredAt:    m.OccurredAt,
	}
}

func (m *ChangeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ChangeMessageFromJSON(data []byte) (*ChangeMessage, error) {
	var msg ChangeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
