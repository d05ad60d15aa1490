package core

import "time"

type ChangeOp string

const (
	ChangeCreated ChangeOp = "created"
	ChangeUpdated ChangeOp = "updated"
	ChangeDeleted ChangeOp = "deleted"
)

// ChangeEvent describes one successful ledger write. It carries ids only;
// consumers reload the record from the store.
type ChangeEvent struct {
	Op            ChangeOp  `json:"op"`
	TransactionID int64     `json:"transactionId"`
	SubType       SubType   `json:"subType,omitempty"`
	OccurredAt    time.Time `json:"occurredAt"`
}
