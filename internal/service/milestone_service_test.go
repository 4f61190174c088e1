package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/tailorlink/tailorlink-backend/internal/models"
	"github.com/tailorlink/tailorlink-backend/internal/payout"
	"github.com/tailorlink/tailorlink-backend/internal/pkg/apperror"
	"github.com/tailorlink/tailorlink-backend/internal/repository"
)

type mockMilestoneStore struct {
	mock.Mock
}

func (m *mockMilestoneStore) Create(ctx context.Context, milestone *models.Milestone) error {
	args := m.Called(ctx, milestone)
	return args.Error(0)
}

func (m *mockMilestoneStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Milestone, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Milestone), args.Error(1)
}

func (m *mockMilestoneStore) Decide(ctx context.Context, id uuid.UUID, status models.ApprovalStatus, decidedBy *uuid.UUID) error {
	args := m.Called(ctx, id, status, decidedBy)
	return args.Error(0)
}

func (m *mockMilestoneStore) MarkDisputeEligible(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) CreateIntent(ctx context.Context, orderID uuid.UUID, amount decimal.Decimal, customerPhone string) (*payout.Intent, error) {
	args := m.Called(ctx, orderID, amount, customerPhone)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payout.Intent), args.Error(1)
}

func (m *mockGateway) Disburse(ctx context.Context, tailorID uuid.UUID, amount decimal.Decimal, reference string) error {
	args := m.Called(ctx, tailorID, amount, reference)
	return args.Error(0)
}

func (m *mockGateway) Refund(ctx context.Context, customerID uuid.UUID, amount decimal.Decimal, reference string) error {
	args := m.Called(ctx, customerID, amount, reference)
	return args.Error(0)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Notify(ctx context.Context, userID uuid.UUID, event string, data interface{}) error {
	args := m.Called(ctx, userID, event, data)
	return args.Error(0)
}

type mockLedger struct {
	mock.Mock
}

func (m *mockLedger) AddTransaction(ctx context.Context, t *models.EscrowTransaction) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *mockLedger) CreateCommissionRecord(ctx context.Context, rec *models.CommissionRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

type milestoneFixture struct {
	milestones *mockMilestoneStore
	orders     *mockOrderRepo
	gateway    *mockGateway
	notifier   *mockNotifier
	ledger     *mockLedger
	svc        *MilestoneService
}

func newMilestoneFixture() *milestoneFixture {
	f := &milestoneFixture{
		milestones: new(mockMilestoneStore),
		orders:     new(mockOrderRepo),
		gateway:    new(mockGateway),
		notifier:   new(mockNotifier),
		ledger:     new(mockLedger),
	}
	lifecycle := NewOrderPaymentLifecycle(f.orders)
	escrow := NewEscrowCalculator(decimal.NewFromFloat(10.00), decimal.NewFromFloat(10000.00))
	commission := NewCommissionCalculator(decimal.NewFromFloat(0.20))
	f.svc = NewMilestoneService(f.milestones, f.orders, lifecycle, escrow, commission, f.ledger, f.gateway, f.notifier, 48*time.Hour)
	return f
}

func pendingMilestone(orderID uuid.UUID, stage models.EscrowStage) *models.Milestone {
	return &models.Milestone{
		ID:                   uuid.New(),
		OrderID:              orderID,
		Stage:                stage,
		ApprovalStatus:       models.ApprovalPending,
		AutoApprovalDeadline: time.Now().Add(-time.Hour),
	}
}

func (f *milestoneFixture) expectNotifications(o *models.Order) {
	f.notifier.On("Notify", mock.Anything, o.CustomerID, mock.Anything, mock.Anything).Return(nil)
	f.notifier.On("Notify", mock.Anything, o.TailorID, mock.Anything, mock.Anything).Return(nil)
}

func TestMilestoneService_Submit_CreatesPendingMilestone(t *testing.T) {
	f := newMilestoneFixture()
	ctx := context.Background()

	o := testOrder(models.StageDepositPaid)
	f.orders.On("GetByID", ctx, o.ID).Return(o, nil)
	f.milestones.On("Create", ctx, mock.MatchedBy(func(m *models.Milestone) bool {
		return m.OrderID == o.ID &&
			m.Stage == models.EscrowStageDeposit &&
			m.ApprovalStatus == models.ApprovalPending &&
			m.AutoApprovalDeadline.After(time.Now().Add(47*time.Hour))
	})).Return(nil)
	f.expectNotifications(o)

	m, err := f.svc.Submit(ctx, o.ID, o.TailorID, models.EscrowStageDeposit)
	assert.NoError(t, err)
	assert.Equal(t, models.ApprovalPending, m.ApprovalStatus)
	assert.NotNil(t, m.CompletedAt)
	f.milestones.AssertExpectations(t)
}

func TestMilestoneService_Submit_FittingMarksOrderReady(t *testing.T) {
	f := newMilestoneFixture()
	ctx := context.Background()

	o := testOrder(models.StageInProduction)
	f.orders.On("GetByID", ctx, o.ID).Return(o, nil)
	f.orders.On("AdvanceStage", ctx, o.ID, models.StageInProduction, models.StageReadyForFitting).Return(nil)
	f.milestones.On("Create", ctx, mock.Anything).Return(nil)
	f.expectNotifications(o)

	_, err := f.svc.Submit(ctx, o.ID, o.TailorID, models.EscrowStageFitting)
	assert.NoError(t, err)
	f.orders.AssertExpectations(t)
}

func TestMilestoneService_Submit_ForbiddenForNonTailor(t *testing.T) {
	f := newMilestoneFixture()
	ctx := context.Background()

	o := testOrder(models.StageDepositPaid)
	f.orders.On("GetByID", ctx, o.ID).Return(o, nil)

	_, err := f.svc.Submit(ctx, o.ID, o.CustomerID, models.EscrowStageDeposit)
	assert.True(t, apperror.IsForbidden(err))
	f.milestones.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestMilestoneService_Submit_WrongStage(t *testing.T) {
	f := newMilestoneFixture()
	ctx := context.Background()

	o := testOrder(models.StagePending)
	f.orders.On("GetByID", ctx, o.ID).Return(o, nil)

	_, err := f.svc.Submit(ctx, o.ID, o.TailorID, models.EscrowStageDeposit)
	assert.True(t, apperror.IsConflict(err))
}

func TestMilestoneService_Submit_RejectsReleasedStage(t *testing.T) {
	f := newMilestoneFixture()

	_, err := f.svc.Submit(context.Background(), uuid.New(), uuid.New(), models.EscrowStageReleased)
	assert.True(t, apperror.IsValidation(err))
}

func TestMilestoneService_Submit_DuplicateStage(t *testing.T) {
	f := newMilestoneFixture()
	ctx := context.Background()

	o := testOrder(models.StageDepositPaid)
	f.orders.On("GetByID", ctx, o.ID).Return(o, nil)
	f.milestones.On("Create", ctx, mock.Anything).Return(repository.ErrMilestoneExists)

	_, err := f.svc.Submit(ctx, o.ID, o.TailorID, models.EscrowStageDeposit)
	assert.True(t, apperror.IsConflict(err))
}

func TestMilestoneService_Approve_InvalidAction(t *testing.T) {
	f := newMilestoneFixture()

	_, err := f.svc.Approve(context.Background(), uuid.New(), uuid.New(), models.ApprovalAutoApproved)
	assert.True(t, apperror.IsValidation(err))
}

func TestMilestoneService_Approve_NotFound(t *testing.T) {
	f := newMilestoneFixture()
	ctx := context.Background()
	id := uuid.New()

	f.milestones.On("GetByID", ctx, id).Return(nil, repository.ErrMilestoneNotFound)

	_, err := f.svc.Approve(ctx, id, uuid.New(), models.ApprovalApproved)
	assert.True(t, apperror.IsNotFound(err))
}

func TestMilestoneService_Approve_Forbidden(t *testing.T) {
	f := newMilestoneFixture()
	ctx := context.Background()

	o := testOrder(models.StageDepositPaid)
	m := pendingMilestone(o.ID, models.EscrowStageDeposit)
	f.milestones.On("GetByID", ctx, m.ID).Return(m, nil)
	f.orders.On("GetByID", ctx, o.ID).Return(o, nil)

	stranger := uuid.New()
	_, err := f.svc.Approve(ctx, m.ID, stranger, models.ApprovalApproved)
	assert.True(t, apperror.IsForbidden(err))
	f.gateway.AssertNotCalled(t, "Disburse", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestMilestoneService_Approve_AlreadyDecided(t *testing.T) {
	f := newMilestoneFixture()
	ctx := context.Background()

	o := testOrder(models.StageInProduction)
	m := pendingMilestone(o.ID, models.EscrowStageDeposit)
	m.ApprovalStatus = models.ApprovalApproved
	f.milestones.On("GetByID", ctx, m.ID).Return(m, nil)
	f.orders.On("GetByID", ctx, o.ID).Return(o, nil)

	_, err := f.svc.Approve(ctx, m.ID, o.CustomerID, models.ApprovalApproved)
	assert.True(t, apperror.IsConflict(err))
}

func TestMilestoneService_Approve_Rejected_MovesNoMoney(t *testing.T) {
	f := newMilestoneFixture()
	ctx := context.Background()

	o := testOrder(models.StageDepositPaid)
	m := pendingMilestone(o.ID, models.EscrowStageDeposit)
	f.milestones.On("GetByID", ctx, m.ID).Return(m, nil)
	f.orders.On("GetByID", ctx, o.ID).Return(o, nil)
	f.milestones.On("Decide", ctx, m.ID, models.ApprovalRejected, &o.CustomerID).Return(nil)
	f.milestones.On("MarkDisputeEligible", ctx, m.ID).Return(nil)
	f.expectNotifications(o)

	decided, err := f.svc.Approve(ctx, m.ID, o.CustomerID, models.ApprovalRejected)
	assert.NoError(t, err)
	assert.Equal(t, models.ApprovalRejected, decided.ApprovalStatus)
	assert.True(t, decided.DisputeEligible)

	f.orders.AssertNotCalled(t, "AdvanceStage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.gateway.AssertNotCalled(t, "Disburse", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.ledger.AssertNotCalled(t, "AddTransaction", mock.Anything, mock.Anything)
}

func TestMilestoneService_Approve_Deposit_ReleasesTranche(t *testing.T) {
	f := newMilestoneFixture()
	ctx := context.Background()

	o := testOrder(models.StageDepositPaid)
	m := pendingMilestone(o.ID, models.EscrowStageDeposit)
	f.milestones.On("GetByID", ctx, m.ID).Return(m, nil)
	f.orders.On("GetByID", ctx, o.ID).Return(o, nil)
	f.milestones.On("Decide", ctx, m.ID, models.ApprovalApproved, &o.CustomerID).Return(nil)
	f.orders.On("AdvanceStage", ctx, o.ID, models.StageDepositPaid, models.StageInProduction).Return(nil)
	f.ledger.On("AddTransaction", ctx, mock.MatchedBy(func(tx *models.EscrowTransaction) bool {
		return tx.Amount.Equal(decimal.NewFromFloat(25.00)) && tx.Type == models.EscrowTxRelease
	})).Return(nil)
	f.gateway.On("Disburse", ctx, o.TailorID, mock.MatchedBy(func(a decimal.Decimal) bool {
		return a.Equal(decimal.NewFromFloat(25.00))
	}), "milestone:"+m.ID.String()).Return(nil)
	f.expectNotifications(o)

	decided, err := f.svc.Approve(ctx, m.ID, o.CustomerID, models.ApprovalApproved)
	assert.NoError(t, err)
	assert.Equal(t, models.ApprovalApproved, decided.ApprovalStatus)
	f.milestones.AssertExpectations(t)
	f.orders.AssertExpectations(t)
	f.gateway.AssertExpectations(t)
	// No commission before the final stage.
	f.ledger.AssertNotCalled(t, "CreateCommissionRecord", mock.Anything, mock.Anything)
}

func TestMilestoneService_Approve_Final_RecordsCommission(t *testing.T) {
	f := newMilestoneFixture()
	ctx := context.Background()

	o := testOrder(models.StageFittingPaid)
	m := pendingMilestone(o.ID, models.EscrowStageFinal)
	f.milestones.On("GetByID", ctx, m.ID).Return(m, nil)
	f.orders.On("GetByID", ctx, o.ID).Return(o, nil)
	f.milestones.On("Decide", ctx, m.ID, models.ApprovalApproved, &o.CustomerID).Return(nil)
	f.orders.On("AdvanceStage", ctx, o.ID, models.StageFittingPaid, models.StageCompleted).Return(nil)
	f.ledger.On("AddTransaction", ctx, mock.Anything).Return(nil)
	f.ledger.On("CreateCommissionRecord", ctx, mock.MatchedBy(func(rec *models.CommissionRecord) bool {
		return rec.CommissionAmount.Equal(decimal.NewFromFloat(20.00)) &&
			rec.NetAmount.Equal(decimal.NewFromFloat(80.00))
	})).Return(nil)
	f.gateway.On("Disburse", ctx, o.TailorID, mock.Anything, mock.Anything).Return(nil)
	f.expectNotifications(o)

	_, err := f.svc.Approve(ctx, m.ID, o.CustomerID, models.ApprovalApproved)
	assert.NoError(t, err)
	f.ledger.AssertExpectations(t)
}

func TestMilestoneService_Approve_DisbursementFailureSurfaced(t *testing.T) {
	f := newMilestoneFixture()
	ctx := context.Background()

	o := testOrder(models.StageDepositPaid)
	m := pendingMilestone(o.ID, models.EscrowStageDeposit)
	f.milestones.On("GetByID", ctx, m.ID).Return(m, nil)
	f.orders.On("GetByID", ctx, o.ID).Return(o, nil)
	f.milestones.On("Decide", ctx, m.ID, models.ApprovalApproved, &o.CustomerID).Return(nil)
	f.orders.On("AdvanceStage", ctx, o.ID, models.StageDepositPaid, models.StageInProduction).Return(nil)
	f.ledger.On("AddTransaction", ctx, mock.Anything).Return(nil)
	f.gateway.On("Disburse", ctx, o.TailorID, mock.Anything, mock.Anything).
		Return(errors.New("provider timeout"))
	f.expectNotifications(o)

	decided, err := f.svc.Approve(ctx, m.ID, o.CustomerID, models.ApprovalApproved)
	assert.True(t, apperror.IsExternalService(err))
	// The approval itself is committed and returned alongside the error.
	assert.NotNil(t, decided)
	assert.Equal(t, models.ApprovalApproved, decided.ApprovalStatus)
}

func TestMilestoneService_Approve_RaceLosesToConflict(t *testing.T) {
	f := newMilestoneFixture()
	ctx := context.Background()

	o := testOrder(models.StageDepositPaid)
	m := pendingMilestone(o.ID, models.EscrowStageDeposit)
	f.milestones.On("GetByID", ctx, m.ID).Return(m, nil)
	f.orders.On("GetByID", ctx, o.ID).Return(o, nil)
	// The scheduler decided it between our read and our write.
	f.milestones.On("Decide", ctx, m.ID, models.ApprovalApproved, &o.CustomerID).
		Return(repository.ErrMilestoneDecided)

	_, err := f.svc.Approve(ctx, m.ID, o.CustomerID, models.ApprovalApproved)
	assert.True(t, apperror.IsConflict(err))
	f.orders.AssertNotCalled(t, "AdvanceStage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.gateway.AssertNotCalled(t, "Disburse", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestMilestoneService_AutoApprove_Success(t *testing.T) {
	f := newMilestoneFixture()
	ctx := context.Background()

	o := testOrder(models.StageReadyForFitting)
	m := pendingMilestone(o.ID, models.EscrowStageFitting)
	f.orders.On("GetByID", ctx, o.ID).Return(o, nil)
	f.milestones.On("Decide", ctx, m.ID, models.ApprovalAutoApproved, (*uuid.UUID)(nil)).Return(nil)
	f.orders.On("AdvanceStage", ctx, o.ID, models.StageReadyForFitting, models.StageFittingPaid).Return(nil)
	f.ledger.On("AddTransaction", ctx, mock.Anything).Return(nil)
	f.gateway.On("Disburse", ctx, o.TailorID, mock.MatchedBy(func(a decimal.Decimal) bool {
		return a.Equal(decimal.NewFromFloat(50.00))
	}), mock.Anything).Return(nil)
	f.expectNotifications(o)

	err := f.svc.AutoApprove(ctx, *m)
	assert.NoError(t, err)
	f.milestones.AssertExpectations(t)
}

func TestMilestoneService_AutoApprove_AlreadyDecided(t *testing.T) {
	f := newMilestoneFixture()

	o := testOrder(models.StageInProduction)
	m := pendingMilestone(o.ID, models.EscrowStageDeposit)
	m.ApprovalStatus = models.ApprovalRejected

	err := f.svc.AutoApprove(context.Background(), *m)
	assert.True(t, apperror.IsConflict(err))
	f.milestones.AssertNotCalled(t, "Decide", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
