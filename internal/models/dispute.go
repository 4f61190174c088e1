package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type DisputeStatus string

const (
	DisputeStatusOpen       DisputeStatus = "OPEN"
	DisputeStatusInProgress DisputeStatus = "IN_PROGRESS"
	DisputeStatusResolved   DisputeStatus = "RESOLVED"
	DisputeStatusClosed     DisputeStatus = "CLOSED"
)

// IsFinal reports whether the dispute can no longer be mutated.
func (s DisputeStatus) IsFinal() bool {
	return s == DisputeStatusResolved || s == DisputeStatusClosed
}

type ResolutionType string

const (
	ResolutionFullRefund        ResolutionType = "FULL_REFUND"
	ResolutionPartialRefund     ResolutionType = "PARTIAL_REFUND"
	ResolutionNoRefund          ResolutionType = "NO_REFUND"
	ResolutionPartialCompletion ResolutionType = "PARTIAL_COMPLETION"
)

func (t ResolutionType) IsValid() bool {
	switch t {
	case ResolutionFullRefund, ResolutionPartialRefund, ResolutionNoRefund, ResolutionPartialCompletion:
		return true
	}
	return false
}

// RequiresRefund reports whether this resolution moves money back to the customer.
func (t ResolutionType) RequiresRefund() bool {
	return t == ResolutionFullRefund || t == ResolutionPartialRefund
}

// Dispute is raised by either order participant and resolved by an admin.
// At most one OPEN/IN_PROGRESS dispute may exist per order.
type Dispute struct {
	ID             uuid.UUID        `db:"id" json:"id"`
	OrderID        uuid.UUID        `db:"order_id" json:"order_id"`
	RaisedBy       uuid.UUID        `db:"raised_by" json:"raised_by"`
	Reason         string           `db:"reason" json:"reason"`
	Status         DisputeStatus    `db:"status" json:"status"`
	ResolutionType *ResolutionType  `db:"resolution_type" json:"resolution_type,omitempty"`
	RefundAmount   *decimal.Decimal `db:"refund_amount" json:"refund_amount,omitempty"`
	ReasonCode     *string          `db:"reason_code" json:"reason_code,omitempty"`
	AdminNotes     *string          `db:"admin_notes" json:"admin_notes,omitempty"`
	ResolvedBy     *uuid.UUID       `db:"resolved_by" json:"resolved_by,omitempty"`
	ResolvedAt     *time.Time       `db:"resolved_at" json:"resolved_at,omitempty"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
}
