package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/tailorlink/tailorlink-backend/internal/models"
	"github.com/tailorlink/tailorlink-backend/internal/pkg/apperror"
	"github.com/tailorlink/tailorlink-backend/internal/repository"
)

// DisputeStore is the persistence the resolution engine needs. Resolve must
// apply the whole resolution in one transaction.
type DisputeStore interface {
	Create(ctx context.Context, d *models.Dispute) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error)
	GetActiveByOrder(ctx context.Context, orderID uuid.UUID) (*models.Dispute, error)
	Resolve(ctx context.Context, p repository.ResolutionParams) (*models.Dispute, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Dispute, error)
}

// ResolveInput is the validated admin resolution request.
type ResolveInput struct {
	ResolutionType models.ResolutionType
	RefundAmount   *decimal.Decimal
	ReasonCode     string
	AdminNotes     *string
}

// DisputeService handles raising and resolving disputes. Resolution is the
// admin-side short circuit of the order state machine: it is mutually
// exclusive with the normal approval flow through the same conditional
// writes.
type DisputeService struct {
	disputes DisputeStore
	orders   OrderStageRepository
	gateway  PaymentGateway
	notifier Notifier
}

func NewDisputeService(disputes DisputeStore, orders OrderStageRepository, gateway PaymentGateway, notifier Notifier) *DisputeService {
	return &DisputeService{disputes: disputes, orders: orders, gateway: gateway, notifier: notifier}
}

// Create raises a dispute for an order. Only a participant may raise one and
// only one active dispute may exist per order at a time.
func (s *DisputeService) Create(ctx context.Context, orderID, userID uuid.UUID, reason string) (*models.Dispute, error) {
	if reason == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "dispute reason is required")
	}

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
	if o.CurrentStage.IsTerminal() {
		return nil, apperror.New(apperror.ErrCodeConflict, "cannot dispute an order in a terminal stage")
	}

	d := &models.Dispute{
		OrderID:  orderID,
		RaisedBy: userID,
		Reason:   reason,
		Status:   models.DisputeStatusOpen,
	}
	err = s.disputes.Create(ctx, d)
	if errors.Is(err, repository.ErrDisputeExists) {
		return nil, apperror.Wrap(err, apperror.ErrCodeConflict, "an active dispute already exists for this order")
	}
	if err != nil {
		return nil, err
	}

	s.notifyParties(ctx, o, models.EventDisputeOpened, d)
	return d, nil
}

// Get returns a dispute to an admin or an order participant.
func (s *DisputeService) Get(ctx context.Context, disputeID, userID uuid.UUID, role string) (*models.Dispute, error) {
	d, err := s.disputes.GetByID(ctx, disputeID)
	if errors.Is(err, repository.ErrDisputeNotFound) {
		return nil, apperror.ErrDisputeNotFound
	}
	if err != nil {
		return nil, err
	}

	if role == models.RoleAdmin {
		return d, nil
	}
	o, err := s.orders.GetByID(ctx, d.OrderID)
	if err != nil {
		return nil, err
	}
	if !o.IsParticipant(userID) {
		return nil, apperror.ErrForbidden
	}
	return d, nil
}

// Resolve applies an admin resolution. The dispute row, the order's escrow
// stage, the refund ledger entry and the activity log mutate in one store
// transaction; if the store rejects any part nothing changes. A refund
// payout failure after the commit is surfaced so the admin can retry it,
// but the resolution itself stands.
func (s *DisputeService) Resolve(ctx context.Context, disputeID, adminID uuid.UUID, role string, in ResolveInput) (*models.Dispute, error) {
	if role != models.RoleAdmin {
		return nil, apperror.ErrForbidden
	}
	if !in.ResolutionType.IsValid() {
		return nil, apperror.New(apperror.ErrCodeValidation, "unknown resolution type")
	}
	if in.ReasonCode == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "reason code is required")
	}

	d, err := s.disputes.GetByID(ctx, disputeID)
	if errors.Is(err, repository.ErrDisputeNotFound) {
		return nil, apperror.ErrDisputeNotFound
	}
	if err != nil {
		return nil, err
	}
	if d.Status.IsFinal() {
		return nil, apperror.New(apperror.ErrCodeConflict, "dispute already resolved")
	}

	o, err := s.orders.GetByID(ctx, d.OrderID)
	if errors.Is(err, repository.ErrOrderNotFound) {
		return nil, apperror.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := validateRefund(in, o.TotalAmount); err != nil {
		return nil, err
	}

	// Refund resolutions cancel the order; the rest close it as completed.
	target := models.StageCompleted
	if in.ResolutionType.RequiresRefund() {
		target = models.StageCancelled
	}

	resolved, err := s.disputes.Resolve(ctx, repository.ResolutionParams{
		DisputeID:      d.ID,
		OrderID:        o.ID,
		AdminID:        adminID,
		ResolutionType: in.ResolutionType,
		RefundAmount:   in.RefundAmount,
		RefundTo:       o.CustomerID,
		ReasonCode:     in.ReasonCode,
		AdminNotes:     in.AdminNotes,
		OrderTarget:    target,
		ActivityOld:    map[string]interface{}{"dispute_status": d.Status, "order_stage": o.CurrentStage},
		ActivityNew:    map[string]interface{}{"dispute_status": models.DisputeStatusResolved, "order_stage": target, "resolution_type": in.ResolutionType},
	})
	if errors.Is(err, repository.ErrDisputeFinal) {
		return nil, apperror.Wrap(err, apperror.ErrCodeConflict, "dispute already resolved")
	}
	if errors.Is(err, repository.ErrOrderTerminal) {
		return nil, apperror.Wrap(err, apperror.ErrCodeConflict, "order already reached a terminal stage")
	}
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeResolutionFailed, "resolution could not be applied")
	}

	s.notifyParties(ctx, o, models.EventDisputeResolved, resolved)

	if in.ResolutionType.RequiresRefund() {
		reference := "dispute:" + d.ID.String()
		if err := s.gateway.Refund(ctx, o.CustomerID, *in.RefundAmount, reference); err != nil {
			log().WithFields(logrus.Fields{
				"dispute_id": d.ID,
				"order_id":   o.ID,
				"amount":     in.RefundAmount.StringFixed(2),
			}).WithError(err).Error("refund payout failed after resolution commit")
			return resolved, apperror.Wrap(err, apperror.ErrCodeExternalService, "refund payout failed")
		}
	}
	return resolved, nil
}

func (s *DisputeService) ListUserDisputes(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Dispute, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.disputes.ListByUser(ctx, userID, limit, offset)
}

// validateRefund enforces the refund-amount rules per resolution type.
func validateRefund(in ResolveInput, orderTotal decimal.Decimal) error {
	if !in.ResolutionType.RequiresRefund() {
		if in.RefundAmount != nil {
			return apperror.New(apperror.ErrCodeValidation, "refund amount is only valid for refund resolutions")
		}
		return nil
	}
	if in.RefundAmount == nil {
		return apperror.New(apperror.ErrCodeValidation, "invalid amount: refund amount is required")
	}
	if !in.RefundAmount.IsPositive() {
		return apperror.New(apperror.ErrCodeValidation, "invalid amount: refund must be positive")
	}
	if !in.RefundAmount.Equal(in.RefundAmount.Round(2)) {
		return apperror.New(apperror.ErrCodeValidation, "invalid amount: more than 2 decimal places")
	}
	if in.RefundAmount.GreaterThan(orderTotal) {
		return apperror.New(apperror.ErrCodeValidation, "invalid amount: refund exceeds the order total")
	}
	return nil
}

func (s *DisputeService) notifyParties(ctx context.Context, o *models.Order, event string, data interface{}) {
	if s.notifier == nil {
		return
	}
	for _, userID := range []uuid.UUID{o.CustomerID, o.TailorID} {
		if err := s.notifier.Notify(ctx, userID, event, data); err != nil {
			log().WithFields(logrus.Fields{
				"user_id": userID,
				"event":   event,
			}).WithError(err).Warn("notification delivery failed")
		}
	}
}
