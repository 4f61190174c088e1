package service

import (
	"github.com/shopspring/decimal"

	"github.com/tailorlink/tailorlink-backend/internal/models"
	"github.com/tailorlink/tailorlink-backend/internal/pkg/apperror"
)

var decimalOne = decimal.NewFromInt(1)

// CommissionCalculator splits a gross amount into the platform commission
// and the tailor's net earnings.
type CommissionCalculator struct {
	defaultRate decimal.Decimal
}

func NewCommissionCalculator(defaultRate decimal.Decimal) *CommissionCalculator {
	return &CommissionCalculator{defaultRate: defaultRate}
}

// Calculate applies the configured platform rate.
func (c *CommissionCalculator) Calculate(grossAmount decimal.Decimal) (*models.CommissionCalculation, error) {
	return c.CalculateWithRate(grossAmount, c.defaultRate)
}

// CalculateWithRate rounds the commission to 2 decimal places and derives the
// net amount by subtraction, so commission + net == gross exactly.
func (c *CommissionCalculator) CalculateWithRate(grossAmount, rate decimal.Decimal) (*models.CommissionCalculation, error) {
	if grossAmount.IsNegative() {
		return nil, apperror.New(apperror.ErrCodeValidation, "invalid amount: gross must not be negative")
	}
	if rate.IsNegative() || rate.GreaterThan(decimalOne) {
		return nil, apperror.New(apperror.ErrCodeValidation, "invalid rate: must be within [0,1]")
	}

	commission := grossAmount.Mul(rate).Round(2)
	net := grossAmount.Sub(commission)

	return &models.CommissionCalculation{
		GrossAmount:      grossAmount,
		CommissionRate:   rate,
		CommissionAmount: commission,
		NetAmount:        net,
	}, nil
}
