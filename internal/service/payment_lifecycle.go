package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tailorlink/tailorlink-backend/internal/logger"
	"github.com/tailorlink/tailorlink-backend/internal/models"
	"github.com/tailorlink/tailorlink-backend/internal/pkg/apperror"
	"github.com/tailorlink/tailorlink-backend/internal/repository"
)

// OrderStageRepository is the persistence the lifecycle needs: reads plus the
// two conditional stage writes.
type OrderStageRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	AdvanceStage(ctx context.Context, orderID uuid.UUID, expected, target models.OrderStage) error
	InitiateEscrow(ctx context.Context, orderID uuid.UUID, expected models.OrderStage, intentID string) error
}

// stagePair is one escrow release expressed as an order-stage transition.
type stagePair struct {
	From models.OrderStage
	To   models.OrderStage
}

// escrowStageTransitions maps a milestone's escrow stage to the order-stage
// transition its approval performs. The conditional write on From is what
// makes a release happen at most once.
var escrowStageTransitions = map[models.EscrowStage]stagePair{
	models.EscrowStageDeposit: {From: models.StageDepositPaid, To: models.StageInProduction},
	models.EscrowStageFitting: {From: models.StageReadyForFitting, To: models.StageFittingPaid},
	models.EscrowStageFinal:   {From: models.StageFittingPaid, To: models.StageCompleted},
}

// OrderPaymentLifecycle guards every order-stage mutation with the fixed
// transition table and conditional writes.
type OrderPaymentLifecycle struct {
	orders OrderStageRepository
}

func NewOrderPaymentLifecycle(orders OrderStageRepository) *OrderPaymentLifecycle {
	return &OrderPaymentLifecycle{orders: orders}
}

// TransitionForEscrowStage resolves which order-stage transition releases the
// given escrow stage.
func (l *OrderPaymentLifecycle) TransitionForEscrowStage(stage models.EscrowStage) (stagePair, error) {
	pair, ok := escrowStageTransitions[stage]
	if !ok {
		return stagePair{}, apperror.New(apperror.ErrCodeValidation, "no order transition for escrow stage "+string(stage))
	}
	return pair, nil
}

// Initiate moves an order into PENDING and records the payment intent.
// Only legal while the order is still DRAFT or PENDING.
func (l *OrderPaymentLifecycle) Initiate(ctx context.Context, order *models.Order, intentID string) error {
	if order.CurrentStage != models.StageDraft && order.CurrentStage != models.StagePending {
		return apperror.New(apperror.ErrCodeConflict, "order stage does not permit escrow initiation")
	}

	err := l.orders.InitiateEscrow(ctx, order.ID, order.CurrentStage, intentID)
	if errors.Is(err, repository.ErrStageConflict) {
		return apperror.Wrap(err, apperror.ErrCodeStaleState, "order stage changed while initiating escrow")
	}
	return err
}

// Advance performs the conditional transition expected -> target. When the
// conditional write loses the race it re-reads once: if the persisted stage
// still equals expected the write is re-attempted a single time, otherwise
// the loss is surfaced as stale state. Never more than one retry per call.
func (l *OrderPaymentLifecycle) Advance(ctx context.Context, orderID uuid.UUID, expected, target models.OrderStage) error {
	if !expected.CanTransitionTo(target) {
		return apperror.New(apperror.ErrCodeValidation,
			"illegal order transition "+string(expected)+" -> "+string(target))
	}

	err := l.orders.AdvanceStage(ctx, orderID, expected, target)
	if !errors.Is(err, repository.ErrStageConflict) {
		return err
	}

	current, readErr := l.orders.GetByID(ctx, orderID)
	if readErr != nil {
		return readErr
	}
	if current.CurrentStage != expected {
		log().WithFields(logrus.Fields{
			"order_id": orderID,
			"expected": expected,
			"actual":   current.CurrentStage,
			"target":   target,
		}).Warn("order stage advance lost to a concurrent writer")
		return apperror.Wrap(err, apperror.ErrCodeStaleState, "order stage was advanced by another actor")
	}

	// The row still shows the expected stage; the lost write was transient.
	err = l.orders.AdvanceStage(ctx, orderID, expected, target)
	if errors.Is(err, repository.ErrStageConflict) {
		return apperror.Wrap(err, apperror.ErrCodeStaleState, "order stage was advanced by another actor")
	}
	return err
}

// log returns the shared logger, initializing a default one when the process
// (usually a test binary) has not configured logging.
func log() *logrus.Logger {
	if logger.Log == nil {
		logger.Init("info")
	}
	return logger.Log
}
