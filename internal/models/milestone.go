package models

import (
	"time"

	"github.com/google/uuid"
)

// ApprovalStatus of a production milestone. PENDING is the only non-terminal
// state; once decided a milestone is immutable.
type ApprovalStatus string

const (
	ApprovalPending      ApprovalStatus = "PENDING"
	ApprovalApproved     ApprovalStatus = "APPROVED"
	ApprovalRejected     ApprovalStatus = "REJECTED"
	ApprovalAutoApproved ApprovalStatus = "AUTO_APPROVED"
)

func (s ApprovalStatus) IsTerminal() bool {
	return s == ApprovalApproved || s == ApprovalRejected || s == ApprovalAutoApproved
}

// Milestone is one production checkpoint of an order. The tailor creates it
// when work for a stage is done; the customer (or the auto-approval job)
// decides it exactly once.
type Milestone struct {
	ID                   uuid.UUID      `db:"id" json:"id"`
	OrderID              uuid.UUID      `db:"order_id" json:"order_id"`
	Stage                EscrowStage    `db:"stage" json:"stage"`
	ApprovalStatus       ApprovalStatus `db:"approval_status" json:"approval_status"`
	AutoApprovalDeadline time.Time      `db:"auto_approval_deadline" json:"auto_approval_deadline"`
	DisputeEligible      bool           `db:"dispute_eligible" json:"dispute_eligible"`
	DecidedBy            *uuid.UUID     `db:"decided_by" json:"decided_by,omitempty"`
	DecidedAt            *time.Time     `db:"decided_at" json:"decided_at,omitempty"`
	CompletedAt          *time.Time     `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt            time.Time      `db:"created_at" json:"created_at"`
}
