package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/tailorlink/tailorlink-backend/internal/models"
	"github.com/tailorlink/tailorlink-backend/internal/payout"
	"github.com/tailorlink/tailorlink-backend/internal/pkg/apperror"
	"github.com/tailorlink/tailorlink-backend/internal/repository"
)

// MilestoneStore is the persistence the approval engine needs.
type MilestoneStore interface {
	Create(ctx context.Context, m *models.Milestone) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Milestone, error)
	Decide(ctx context.Context, id uuid.UUID, status models.ApprovalStatus, decidedBy *uuid.UUID) error
	MarkDisputeEligible(ctx context.Context, id uuid.UUID) error
}

// PaymentGateway is the external disbursement collaborator.
type PaymentGateway interface {
	CreateIntent(ctx context.Context, orderID uuid.UUID, amount decimal.Decimal, customerPhone string) (*payout.Intent, error)
	Disburse(ctx context.Context, tailorID uuid.UUID, amount decimal.Decimal, reference string) error
	Refund(ctx context.Context, customerID uuid.UUID, amount decimal.Decimal, reference string) error
}

// Notifier delivers in-app events. Always best-effort for the engines.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, event string, data interface{}) error
}

// EscrowLedger records released money and commission splits.
type EscrowLedger interface {
	AddTransaction(ctx context.Context, t *models.EscrowTransaction) error
	CreateCommissionRecord(ctx context.Context, rec *models.CommissionRecord) error
}

// MilestoneService is the customer-facing approval engine for production
// milestones. Approval releases the milestone's escrow tranche through the
// order lifecycle; rejection moves no money.
type MilestoneService struct {
	milestones     MilestoneStore
	orders         OrderStageRepository
	lifecycle      *OrderPaymentLifecycle
	escrow         *EscrowCalculator
	commission     *CommissionCalculator
	ledger         EscrowLedger
	gateway        PaymentGateway
	notifier       Notifier
	approvalWindow time.Duration
}

func NewMilestoneService(
	milestones MilestoneStore,
	orders OrderStageRepository,
	lifecycle *OrderPaymentLifecycle,
	escrow *EscrowCalculator,
	commission *CommissionCalculator,
	ledger EscrowLedger,
	gateway PaymentGateway,
	notifier Notifier,
	approvalWindow time.Duration,
) *MilestoneService {
	return &MilestoneService{
		milestones:     milestones,
		orders:         orders,
		lifecycle:      lifecycle,
		escrow:         escrow,
		commission:     commission,
		ledger:         ledger,
		gateway:        gateway,
		notifier:       notifier,
		approvalWindow: approvalWindow,
	}
}

// Submit records that the tailor finished the work behind an escrow stage.
// The milestone starts PENDING with the auto-approval clock running; the
// FITTING submission also moves the order from IN_PRODUCTION to
// READY_FOR_FITTING since the submission itself is what marks the garment
// ready.
func (s *MilestoneService) Submit(ctx context.Context, orderID, tailorID uuid.UUID, stage models.EscrowStage) (*models.Milestone, error) {
	if _, ok := escrowStageTransitions[stage]; !ok {
		return nil, apperror.New(apperror.ErrCodeValidation, "stage must be DEPOSIT, FITTING or FINAL")
	}

	o, err := s.orders.GetByID(ctx, orderID)
	if errors.Is(err, repository.ErrOrderNotFound) {
		return nil, apperror.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	if o.TailorID != tailorID {
		return nil, apperror.ErrForbidden
	}

	switch stage {
	case models.EscrowStageDeposit:
		if o.CurrentStage != models.StageDepositPaid {
			return nil, apperror.New(apperror.ErrCodeConflict, "order is not in the deposit stage")
		}
	case models.EscrowStageFitting:
		// A retried submission may find the order already advanced.
		if o.CurrentStage == models.StageInProduction {
			if err := s.lifecycle.Advance(ctx, o.ID, models.StageInProduction, models.StageReadyForFitting); err != nil {
				return nil, err
			}
		} else if o.CurrentStage != models.StageReadyForFitting {
			return nil, apperror.New(apperror.ErrCodeConflict, "order is not in production")
		}
	case models.EscrowStageFinal:
		if o.CurrentStage != models.StageFittingPaid {
			return nil, apperror.New(apperror.ErrCodeConflict, "order is not in the final stage")
		}
	}

	now := time.Now()
	m := &models.Milestone{
		OrderID:              o.ID,
		Stage:                stage,
		ApprovalStatus:       models.ApprovalPending,
		AutoApprovalDeadline: now.Add(s.approvalWindow),
		CompletedAt:          &now,
	}
	if err := s.milestones.Create(ctx, m); err != nil {
		if errors.Is(err, repository.ErrMilestoneExists) {
			return nil, apperror.Wrap(err, apperror.ErrCodeConflict, "milestone already submitted for this stage")
		}
		return nil, err
	}

	s.notifyParties(ctx, o, models.EventMilestoneSubmitted, m)
	return m, nil
}

// Approve lets the order's customer decide a PENDING milestone. On APPROVED
// the escrow tranche is released and a disbursement failure is surfaced to
// the caller (the approval itself stays committed, the payout can be
// retried). On REJECTED no money moves and the milestone becomes
// dispute-eligible.
func (s *MilestoneService) Approve(ctx context.Context, milestoneID, customerID uuid.UUID, action models.ApprovalStatus) (*models.Milestone, error) {
	if action != models.ApprovalApproved && action != models.ApprovalRejected {
		return nil, apperror.New(apperror.ErrCodeValidation, "action must be APPROVED or REJECTED")
	}

	m, err := s.milestones.GetByID(ctx, milestoneID)
	if errors.Is(err, repository.ErrMilestoneNotFound) {
		return nil, apperror.ErrMilestoneNotFound
	}
	if err != nil {
		return nil, err
	}

	o, err := s.orders.GetByID(ctx, m.OrderID)
	if errors.Is(err, repository.ErrOrderNotFound) {
		return nil, apperror.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	if o.CustomerID != customerID {
		return nil, apperror.ErrForbidden
	}
	if m.ApprovalStatus != models.ApprovalPending {
		return nil, apperror.New(apperror.ErrCodeConflict, "milestone already decided")
	}

	if action == models.ApprovalRejected {
		if err := s.decide(ctx, m, models.ApprovalRejected, &customerID); err != nil {
			return nil, err
		}
		if err := s.milestones.MarkDisputeEligible(ctx, m.ID); err != nil {
			log().WithField("milestone_id", m.ID).WithError(err).Error("failed to flag rejected milestone as dispute-eligible")
		} else {
			m.DisputeEligible = true
		}
		s.notifyParties(ctx, o, models.EventMilestoneRejected, m)
		return m, nil
	}

	if err := s.decide(ctx, m, models.ApprovalApproved, &customerID); err != nil {
		return nil, err
	}
	releaseErr := s.releaseStage(ctx, m, o)
	s.notifyParties(ctx, o, models.EventMilestoneApproved, m)
	if releaseErr != nil {
		return m, releaseErr
	}
	return m, nil
}

// AutoApprove decides an overdue milestone on behalf of the scheduler. A
// disbursement failure is returned as an external-service error but the
// approval is never reverted; the batch records it and moves on.
func (s *MilestoneService) AutoApprove(ctx context.Context, m models.Milestone) error {
	if m.ApprovalStatus != models.ApprovalPending {
		return apperror.New(apperror.ErrCodeConflict, "milestone already decided")
	}

	o, err := s.orders.GetByID(ctx, m.OrderID)
	if errors.Is(err, repository.ErrOrderNotFound) {
		return apperror.ErrOrderNotFound
	}
	if err != nil {
		return err
	}

	if err := s.decide(ctx, &m, models.ApprovalAutoApproved, nil); err != nil {
		return err
	}
	releaseErr := s.releaseStage(ctx, &m, o)
	s.notifyParties(ctx, o, models.EventMilestoneAutoApproved, &m)
	return releaseErr
}

// decide performs the single-shot PENDING -> terminal transition.
func (s *MilestoneService) decide(ctx context.Context, m *models.Milestone, status models.ApprovalStatus, decidedBy *uuid.UUID) error {
	err := s.milestones.Decide(ctx, m.ID, status, decidedBy)
	if errors.Is(err, repository.ErrMilestoneDecided) {
		return apperror.Wrap(err, apperror.ErrCodeConflict, "milestone already decided")
	}
	if err != nil {
		return err
	}

	now := time.Now()
	m.ApprovalStatus = status
	m.DecidedBy = decidedBy
	m.DecidedAt = &now
	return nil
}

// releaseStage advances the order stage through the conditional write and
// pays the tranche out. Ledger and commission failures after a committed
// release are logged, not surfaced: the release already happened.
func (s *MilestoneService) releaseStage(ctx context.Context, m *models.Milestone, o *models.Order) error {
	pair, err := s.lifecycle.TransitionForEscrowStage(m.Stage)
	if err != nil {
		return err
	}
	if err := s.lifecycle.Advance(ctx, o.ID, pair.From, pair.To); err != nil {
		return err
	}

	amount, err := s.escrow.StageAmount(o.TotalAmount, m.Stage)
	if err != nil {
		return err
	}

	reference := "milestone:" + m.ID.String()
	entry := &models.EscrowTransaction{
		OrderID:     o.ID,
		MilestoneID: &m.ID,
		Type:        models.EscrowTxRelease,
		Stage:       m.Stage,
		Amount:      amount,
		RecipientID: o.TailorID,
		Reference:   reference,
	}
	if err := s.ledger.AddTransaction(ctx, entry); err != nil {
		log().WithFields(logrus.Fields{
			"order_id":     o.ID,
			"milestone_id": m.ID,
			"stage":        m.Stage,
		}).WithError(err).Error("failed to record escrow release in ledger")
	}

	if pair.To == models.StageCompleted {
		s.recordCommission(ctx, o)
	}

	if err := s.gateway.Disburse(ctx, o.TailorID, amount, reference); err != nil {
		log().WithFields(logrus.Fields{
			"order_id":     o.ID,
			"milestone_id": m.ID,
			"amount":       amount.StringFixed(2),
		}).WithError(err).Error("payment disbursement failed after escrow release")
		return apperror.Wrap(err, apperror.ErrCodeExternalService, "payment disbursement failed")
	}
	return nil
}

func (s *MilestoneService) recordCommission(ctx context.Context, o *models.Order) {
	calc, err := s.commission.Calculate(o.TotalAmount)
	if err != nil {
		log().WithField("order_id", o.ID).WithError(err).Error("commission calculation failed on completed order")
		return
	}
	rec := &models.CommissionRecord{
		OrderID:          o.ID,
		GrossAmount:      calc.GrossAmount,
		CommissionRate:   calc.CommissionRate,
		CommissionAmount: calc.CommissionAmount,
		NetAmount:        calc.NetAmount,
	}
	if err := s.ledger.CreateCommissionRecord(ctx, rec); err != nil {
		log().WithField("order_id", o.ID).WithError(err).Error("failed to persist commission record")
	}
}

// notifyParties pushes an event to both order participants. Notifications
// are best-effort and never block money-moving logic.
func (s *MilestoneService) notifyParties(ctx context.Context, o *models.Order, event string, data interface{}) {
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
