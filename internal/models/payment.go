package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EscrowStage names one of the three escrow tranches of an order.
type EscrowStage string

const (
	EscrowStageDeposit  EscrowStage = "DEPOSIT"
	EscrowStageFitting  EscrowStage = "FITTING"
	EscrowStageFinal    EscrowStage = "FINAL"
	EscrowStageReleased EscrowStage = "RELEASED"
)

func (s EscrowStage) IsValid() bool {
	switch s {
	case EscrowStageDeposit, EscrowStageFitting, EscrowStageFinal, EscrowStageReleased:
		return true
	}
	return false
}

// EscrowBreakdown is the derived split of an order total into its tranches.
// Invariant: DepositAmount + FittingAmount + FinalAmount == TotalAmount exactly.
type EscrowBreakdown struct {
	DepositAmount decimal.Decimal `json:"deposit_amount"`
	FittingAmount decimal.Decimal `json:"fitting_amount"`
	FinalAmount   decimal.Decimal `json:"final_amount"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
}

// CommissionCalculation splits a gross amount into the platform commission
// and the tailor's net earnings. Invariant: CommissionAmount + NetAmount ==
// GrossAmount exactly.
type CommissionCalculation struct {
	GrossAmount      decimal.Decimal `json:"gross_amount"`
	CommissionRate   decimal.Decimal `json:"commission_rate"`
	CommissionAmount decimal.Decimal `json:"commission_amount"`
	NetAmount        decimal.Decimal `json:"net_amount"`
}

// CommissionRecord is the persisted commission split of a completed order.
type CommissionRecord struct {
	OrderID          uuid.UUID       `db:"order_id" json:"order_id"`
	GrossAmount      decimal.Decimal `db:"gross_amount" json:"gross_amount"`
	CommissionRate   decimal.Decimal `db:"commission_rate" json:"commission_rate"`
	CommissionAmount decimal.Decimal `db:"commission_amount" json:"commission_amount"`
	NetAmount        decimal.Decimal `db:"net_amount" json:"net_amount"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
}

// Escrow transaction types.
const (
	EscrowTxRelease = "escrow_release"
	EscrowTxRefund  = "escrow_refund"
)

// EscrowTransaction is one ledger entry of money leaving escrow.
type EscrowTransaction struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	OrderID     uuid.UUID       `db:"order_id" json:"order_id"`
	MilestoneID *uuid.UUID      `db:"milestone_id" json:"milestone_id,omitempty"`
	Type        string          `db:"type" json:"type"`
	Stage       EscrowStage     `db:"stage" json:"stage"`
	Amount      decimal.Decimal `db:"amount" json:"amount"`
	RecipientID uuid.UUID       `db:"recipient_id" json:"recipient_id"`
	Reference   string          `db:"reference" json:"reference"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}
