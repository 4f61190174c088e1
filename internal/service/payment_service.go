package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tailorlink/tailorlink-backend/internal/models"
	"github.com/tailorlink/tailorlink-backend/internal/pkg/apperror"
	"github.com/tailorlink/tailorlink-backend/internal/repository"
)

// EscrowInitiation is what the customer needs to start paying the deposit.
type EscrowInitiation struct {
	PaymentIntentID string                  `json:"payment_intent_id"`
	DepositAmount   decimal.Decimal         `json:"deposit_amount"`
	PaymentURL      string                  `json:"payment_url"`
	OrderStatus     models.OrderStage       `json:"order_status"`
	Breakdown       *models.EscrowBreakdown `json:"breakdown"`
}

// ActivityLogger records order audit trail entries.
type ActivityLogger interface {
	Add(ctx context.Context, orderID uuid.UUID, actorID *uuid.UUID, action string, oldValue, newValue interface{}) error
}

// PaymentService starts the escrow flow for an order: it validates the
// amount against the order, opens a payment intent with the gateway and
// moves the order into PENDING.
type PaymentService struct {
	orders    OrderStageRepository
	lifecycle *OrderPaymentLifecycle
	escrow    *EscrowCalculator
	gateway   PaymentGateway
	activity  ActivityLogger
}

func NewPaymentService(orders OrderStageRepository, lifecycle *OrderPaymentLifecycle, escrow *EscrowCalculator, gateway PaymentGateway, activity ActivityLogger) *PaymentService {
	return &PaymentService{
		orders:    orders,
		lifecycle: lifecycle,
		escrow:    escrow,
		gateway:   gateway,
		activity:  activity,
	}
}

// InitiateEscrow validates and starts escrow payment for the order.
func (s *PaymentService) InitiateEscrow(ctx context.Context, orderID, userID uuid.UUID, totalAmount decimal.Decimal, customerPhone string) (*EscrowInitiation, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if errors.Is(err, repository.ErrOrderNotFound) {
		return nil, apperror.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	if !o.IsParticipant(userID) {
		return nil, apperror.ErrForbidden
	}
	if !totalAmount.Equal(o.TotalAmount) {
		return nil, apperror.New(apperror.ErrCodeValidation, "invalid amount: total does not match the order")
	}

	breakdown, err := s.escrow.Breakdown(totalAmount)
	if err != nil {
		return nil, err
	}

	if o.CurrentStage != models.StageDraft && o.CurrentStage != models.StagePending {
		return nil, apperror.New(apperror.ErrCodeConflict, "order stage does not permit escrow initiation")
	}

	intent, err := s.gateway.CreateIntent(ctx, o.ID, breakdown.DepositAmount, customerPhone)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeExternalService, "payment provider rejected the intent")
	}

	if err := s.lifecycle.Initiate(ctx, o, intent.ID); err != nil {
		return nil, err
	}

	if s.activity != nil {
		if err := s.activity.Add(ctx, o.ID, &userID, "escrow_initiated",
			map[string]interface{}{"stage": o.CurrentStage},
			map[string]interface{}{"stage": models.StagePending, "payment_intent_id": intent.ID},
		); err != nil {
			log().WithField("order_id", o.ID).WithError(err).Warn("failed to record escrow initiation activity")
		}
	}

	return &EscrowInitiation{
		PaymentIntentID: intent.ID,
		DepositAmount:   breakdown.DepositAmount,
		PaymentURL:      intent.PaymentURL,
		OrderStatus:     models.StagePending,
		Breakdown:       breakdown,
	}, nil
}
