package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/tailorlink/tailorlink-backend/internal/models"
	"github.com/tailorlink/tailorlink-backend/internal/pkg/apperror"
)

type mockOverdueLister struct {
	mock.Mock
}

func (m *mockOverdueLister) ListOverdue(ctx context.Context, now time.Time, limit int) ([]models.Milestone, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Milestone), args.Error(1)
}

type mockAutoApprover struct {
	mock.Mock
}

func (m *mockAutoApprover) AutoApprove(ctx context.Context, ms models.Milestone) error {
	args := m.Called(ctx, ms)
	return args.Error(0)
}

func overdueMilestone(now time.Time) models.Milestone {
	return models.Milestone{
		ID:                   uuid.New(),
		OrderID:              uuid.New(),
		Stage:                models.EscrowStageFitting,
		ApprovalStatus:       models.ApprovalPending,
		AutoApprovalDeadline: now.Add(-2 * time.Hour),
	}
}

func TestAutoApproval_RunBatch_Empty(t *testing.T) {
	lister := new(mockOverdueLister)
	approver := new(mockAutoApprover)
	svc := NewAutoApprovalService(lister, approver, nil, 100)
	ctx := context.Background()
	now := time.Now()

	lister.On("ListOverdue", ctx, now, 100).Return([]models.Milestone{}, nil)

	summary, err := svc.RunBatch(ctx, now)
	assert.NoError(t, err)
	assert.Equal(t, 0, summary.Processed)
	assert.Equal(t, 0, summary.AutoApproved)
	assert.Equal(t, 0, summary.Failed)
	assert.Empty(t, summary.Errors)
}

func TestAutoApproval_RunBatch_AllApproved(t *testing.T) {
	lister := new(mockOverdueLister)
	approver := new(mockAutoApprover)
	svc := NewAutoApprovalService(lister, approver, nil, 100)
	ctx := context.Background()
	now := time.Now()

	overdue := []models.Milestone{overdueMilestone(now), overdueMilestone(now), overdueMilestone(now)}
	lister.On("ListOverdue", ctx, now, 100).Return(overdue, nil)
	for _, m := range overdue {
		approver.On("AutoApprove", ctx, m).Return(nil)
	}

	summary, err := svc.RunBatch(ctx, now)
	assert.NoError(t, err)
	assert.Equal(t, 3, summary.Processed)
	assert.Equal(t, 3, summary.AutoApproved)
	assert.Equal(t, 0, summary.Failed)
	approver.AssertNumberOfCalls(t, "AutoApprove", 3)
}

func TestAutoApproval_RunBatch_ItemFailureDoesNotAbort(t *testing.T) {
	lister := new(mockOverdueLister)
	approver := new(mockAutoApprover)
	svc := NewAutoApprovalService(lister, approver, nil, 100)
	ctx := context.Background()
	now := time.Now()

	failing := overdueMilestone(now)
	overdue := []models.Milestone{overdueMilestone(now), failing, overdueMilestone(now)}
	lister.On("ListOverdue", ctx, now, 100).Return(overdue, nil)
	approver.On("AutoApprove", ctx, overdue[0]).Return(nil)
	approver.On("AutoApprove", ctx, failing).Return(errors.New("db write failed"))
	approver.On("AutoApprove", ctx, overdue[2]).Return(nil)

	summary, err := svc.RunBatch(ctx, now)
	assert.NoError(t, err)
	assert.Equal(t, 3, summary.Processed)
	assert.Equal(t, 2, summary.AutoApproved)
	assert.Equal(t, 1, summary.Failed)
	assert.Len(t, summary.Errors, 1)
	assert.Equal(t, failing.ID, summary.Errors[0].MilestoneID)
	// Every item after the failure is still processed.
	approver.AssertNumberOfCalls(t, "AutoApprove", 3)
}

func TestAutoApproval_RunBatch_DisbursementFailureIsNotBatchFailure(t *testing.T) {
	lister := new(mockOverdueLister)
	approver := new(mockAutoApprover)
	svc := NewAutoApprovalService(lister, approver, nil, 100)
	ctx := context.Background()
	now := time.Now()

	payoutFailed := overdueMilestone(now)
	overdue := []models.Milestone{overdueMilestone(now), payoutFailed, overdueMilestone(now)}
	lister.On("ListOverdue", ctx, now, 100).Return(overdue, nil)
	approver.On("AutoApprove", ctx, overdue[0]).Return(nil)
	approver.On("AutoApprove", ctx, payoutFailed).
		Return(apperror.New(apperror.ErrCodeExternalService, "payment disbursement failed"))
	approver.On("AutoApprove", ctx, overdue[2]).Return(nil)

	summary, err := svc.RunBatch(ctx, now)
	assert.NoError(t, err)
	// The approval committed, so the item counts as approved.
	assert.Equal(t, 3, summary.Processed)
	assert.Equal(t, 3, summary.AutoApproved)
	assert.Equal(t, 0, summary.Failed)
	assert.Len(t, summary.DisbursementErrors, 1)
	assert.Equal(t, payoutFailed.ID, summary.DisbursementErrors[0].MilestoneID)
}

func TestAutoApproval_RunBatch_ConflictIsBenign(t *testing.T) {
	lister := new(mockOverdueLister)
	approver := new(mockAutoApprover)
	svc := NewAutoApprovalService(lister, approver, nil, 100)
	ctx := context.Background()
	now := time.Now()

	raced := overdueMilestone(now)
	lister.On("ListOverdue", ctx, now, 100).Return([]models.Milestone{raced}, nil)
	// A customer decided the milestone between the query and our write.
	approver.On("AutoApprove", ctx, raced).
		Return(apperror.New(apperror.ErrCodeConflict, "milestone already decided"))

	summary, err := svc.RunBatch(ctx, now)
	assert.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 0, summary.AutoApproved)
	assert.Equal(t, 0, summary.Failed)
	assert.Empty(t, summary.Errors)
}

func TestAutoApproval_RunBatch_SkipsNotYetOverdue(t *testing.T) {
	lister := new(mockOverdueLister)
	approver := new(mockAutoApprover)
	svc := NewAutoApprovalService(lister, approver, nil, 100)
	ctx := context.Background()
	now := time.Now()

	future := overdueMilestone(now)
	future.AutoApprovalDeadline = now.Add(time.Hour)
	lister.On("ListOverdue", ctx, now, 100).Return([]models.Milestone{future}, nil)

	summary, err := svc.RunBatch(ctx, now)
	assert.NoError(t, err)
	assert.Equal(t, 0, summary.Processed)
	approver.AssertNotCalled(t, "AutoApprove", mock.Anything, mock.Anything)
}

func TestAutoApproval_RunBatch_ListFailure(t *testing.T) {
	lister := new(mockOverdueLister)
	approver := new(mockAutoApprover)
	svc := NewAutoApprovalService(lister, approver, nil, 100)
	ctx := context.Background()
	now := time.Now()

	lister.On("ListOverdue", ctx, now, 100).Return(nil, errors.New("db down"))

	_, err := svc.RunBatch(ctx, now)
	assert.Error(t, err)
}

func TestAutoApproval_DefaultBatchLimit(t *testing.T) {
	lister := new(mockOverdueLister)
	approver := new(mockAutoApprover)
	svc := NewAutoApprovalService(lister, approver, nil, 0)
	ctx := context.Background()
	now := time.Now()

	lister.On("ListOverdue", ctx, now, 100).Return([]models.Milestone{}, nil)

	_, err := svc.RunBatch(ctx, now)
	assert.NoError(t, err)
	lister.AssertExpectations(t)
}
