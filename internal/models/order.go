package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStage is the escrow payment stage of a commissioned garment order.
type OrderStage string

const (
	StageDraft           OrderStage = "DRAFT"
	StagePending         OrderStage = "PENDING"
	StageDepositPaid     OrderStage = "DEPOSIT_PAID"
	StageInProduction    OrderStage = "IN_PRODUCTION"
	StageReadyForFitting OrderStage = "READY_FOR_FITTING"
	StageFittingPaid     OrderStage = "FITTING_PAID"
	StageCompleted       OrderStage = "COMPLETED"
	StageCancelled       OrderStage = "CANCELLED"
)

func (s OrderStage) IsValid() bool {
	switch s {
	case StageDraft, StagePending, StageDepositPaid, StageInProduction,
		StageReadyForFitting, StageFittingPaid, StageCompleted, StageCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is legal from s.
func (s OrderStage) IsTerminal() bool {
	return s == StageCompleted || s == StageCancelled
}

// stageTransitions is the fixed transition table. Stages advance one step at
// a time; CANCELLED is reachable from every non-terminal stage.
var stageTransitions = map[OrderStage][]OrderStage{
	StageDraft:           {StagePending, StageCancelled},
	StagePending:         {StageDepositPaid, StageCancelled},
	StageDepositPaid:     {StageInProduction, StageCancelled},
	StageInProduction:    {StageReadyForFitting, StageCancelled},
	StageReadyForFitting: {StageFittingPaid, StageCancelled},
	StageFittingPaid:     {StageCompleted, StageCancelled},
	StageCompleted:       {},
	StageCancelled:       {},
}

func (s OrderStage) CanTransitionTo(target OrderStage) bool {
	allowed, ok := stageTransitions[s]
	if !ok {
		return false
	}
	for _, stage := range allowed {
		if stage == target {
			return true
		}
	}
	return false
}

// Order is a commissioned garment between a customer and a tailor.
type Order struct {
	ID              uuid.UUID       `db:"id" json:"id"`
	CustomerID      uuid.UUID       `db:"customer_id" json:"customer_id"`
	TailorID        uuid.UUID       `db:"tailor_id" json:"tailor_id"`
	TotalAmount     decimal.Decimal `db:"total_amount" json:"total_amount"`
	CurrentStage    OrderStage      `db:"current_stage" json:"current_stage"`
	PaymentIntentID *string         `db:"payment_intent_id" json:"payment_intent_id,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// IsParticipant reports whether userID is the customer or the tailor.
func (o *Order) IsParticipant(userID uuid.UUID) bool {
	return o.CustomerID == userID || o.TailorID == userID
}
