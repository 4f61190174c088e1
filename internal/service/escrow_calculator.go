package service

import (
	"github.com/shopspring/decimal"

	"github.com/tailorlink/tailorlink-backend/internal/models"
	"github.com/tailorlink/tailorlink-backend/internal/pkg/apperror"
)

// Escrow tranche shares. Deposit and fitting are percentages of the total;
// the final tranche is always the remainder so the three sum exactly.
var (
	depositShare = decimal.NewFromFloat(0.25)
	fittingShare = decimal.NewFromFloat(0.50)
)

// EscrowCalculator splits an order total into deposit, fitting and final
// tranches. All arithmetic is fixed-point decimal; nothing here touches
// binary floating point.
type EscrowCalculator struct {
	minAmount decimal.Decimal
	maxAmount decimal.Decimal
}

func NewEscrowCalculator(minAmount, maxAmount decimal.Decimal) *EscrowCalculator {
	return &EscrowCalculator{minAmount: minAmount, maxAmount: maxAmount}
}

// Bounds returns the configured [min, max] order total.
func (c *EscrowCalculator) Bounds() (decimal.Decimal, decimal.Decimal) {
	return c.minAmount, c.maxAmount
}

// Breakdown splits totalAmount into the three tranches. Deposit and fitting
// are rounded to 2 decimal places; the final tranche is derived by
// subtraction and never rounded independently, which guarantees
// deposit + fitting + final == total for every valid input.
func (c *EscrowCalculator) Breakdown(totalAmount decimal.Decimal) (*models.EscrowBreakdown, error) {
	if err := c.checkAmount(totalAmount); err != nil {
		return nil, err
	}

	deposit := totalAmount.Mul(depositShare).Round(2)
	fitting := totalAmount.Mul(fittingShare).Round(2)
	final := totalAmount.Sub(deposit).Sub(fitting)

	return &models.EscrowBreakdown{
		DepositAmount: deposit,
		FittingAmount: fitting,
		FinalAmount:   final,
		TotalAmount:   totalAmount,
	}, nil
}

// StageAmount returns the tranche amount a given escrow stage releases.
// RELEASED maps to zero: there is nothing left to pay out.
func (c *EscrowCalculator) StageAmount(totalAmount decimal.Decimal, stage models.EscrowStage) (decimal.Decimal, error) {
	if stage == models.EscrowStageReleased {
		return decimal.Zero, nil
	}

	breakdown, err := c.Breakdown(totalAmount)
	if err != nil {
		return decimal.Zero, err
	}

	switch stage {
	case models.EscrowStageDeposit:
		return breakdown.DepositAmount, nil
	case models.EscrowStageFitting:
		return breakdown.FittingAmount, nil
	case models.EscrowStageFinal:
		return breakdown.FinalAmount, nil
	default:
		return decimal.Zero, apperror.New(apperror.ErrCodeValidation, "unknown escrow stage")
	}
}

// Validate re-checks the sum invariant of a breakdown before it is trusted
// for persistence or release.
func (c *EscrowCalculator) Validate(b *models.EscrowBreakdown) error {
	if b == nil {
		return apperror.New(apperror.ErrCodeValidation, "escrow breakdown is required")
	}
	if b.DepositAmount.IsNegative() || b.FittingAmount.IsNegative() || b.FinalAmount.IsNegative() {
		return apperror.New(apperror.ErrCodeValidation, "escrow breakdown has a negative component")
	}
	sum := b.DepositAmount.Add(b.FittingAmount).Add(b.FinalAmount)
	if !sum.Equal(b.TotalAmount) {
		return apperror.New(apperror.ErrCodeValidation, "escrow breakdown does not sum to the total amount")
	}
	return nil
}

func (c *EscrowCalculator) checkAmount(totalAmount decimal.Decimal) error {
	if !totalAmount.IsPositive() {
		return apperror.New(apperror.ErrCodeValidation, "invalid amount: total must be positive")
	}
	// Amounts are currency values with at most 2 decimal places.
	if !totalAmount.Equal(totalAmount.Round(2)) {
		return apperror.New(apperror.ErrCodeValidation, "invalid amount: more than 2 decimal places")
	}
	if totalAmount.LessThan(c.minAmount) || totalAmount.GreaterThan(c.maxAmount) {
		return apperror.New(apperror.ErrCodeValidation,
			"invalid amount: total must be between "+c.minAmount.StringFixed(2)+" and "+c.maxAmount.StringFixed(2))
	}
	return nil
}
