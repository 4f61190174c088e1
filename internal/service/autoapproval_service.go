package service

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tailorlink/tailorlink-backend/internal/models"
	"github.com/tailorlink/tailorlink-backend/internal/pkg/apperror"
)

// autoApprovalLockKey single-flights scheduler ticks across processes.
const autoApprovalLockKey = "cron:auto-approve-milestones"

// OverdueLister finds PENDING milestones whose deadline has passed.
type OverdueLister interface {
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]models.Milestone, error)
}

// MilestoneAutoApprover decides one overdue milestone.
type MilestoneAutoApprover interface {
	AutoApprove(ctx context.Context, m models.Milestone) error
}

// BatchError describes one milestone the batch could not process.
type BatchError struct {
	MilestoneID uuid.UUID `json:"milestone_id"`
	OrderID     uuid.UUID `json:"order_id"`
	Error       string    `json:"error"`
}

// BatchSummary is the result of one scheduler tick.
type BatchSummary struct {
	Processed    int          `json:"processed"`
	AutoApproved int          `json:"autoApproved"`
	Failed       int          `json:"failed"`
	Errors       []BatchError `json:"errors"`
	// Disbursement failures after a committed approval. They are not
	// counted as Failed: the approval stands and the payout is retried
	// out of band.
	DisbursementErrors []BatchError `json:"disbursementErrors,omitempty"`
}

// AutoApprovalService runs the periodic auto-approval job. It holds no state
// between ticks: every run is a single bounded batch driven by the deadline
// stored on each milestone, so missed ticks heal themselves on the next run.
type AutoApprovalService struct {
	milestones OverdueLister
	approver   MilestoneAutoApprover
	locker     *redislock.Client
	batchLimit int
}

func NewAutoApprovalService(milestones OverdueLister, approver MilestoneAutoApprover, locker *redislock.Client, batchLimit int) *AutoApprovalService {
	if batchLimit <= 0 {
		batchLimit = 100
	}
	return &AutoApprovalService{
		milestones: milestones,
		approver:   approver,
		locker:     locker,
		batchLimit: batchLimit,
	}
}

// RunBatch processes every overdue PENDING milestone visible at now, oldest
// deadline first. Each milestone is handled independently: a failure is
// recorded and the batch continues, never aborting early.
func (s *AutoApprovalService) RunBatch(ctx context.Context, now time.Time) (*BatchSummary, error) {
	if s.locker != nil {
		lock, err := s.locker.Obtain(ctx, autoApprovalLockKey, 2*time.Minute, nil)
		if errors.Is(err, redislock.ErrNotObtained) {
			return nil, apperror.New(apperror.ErrCodeConflict, "another auto-approval run is in progress")
		}
		if err != nil {
			// A broken lock backend must not stop the job; the conditional
			// milestone update already guarantees at-most-once approval.
			log().WithError(err).Warn("auto-approval lock unavailable, continuing without it")
		} else {
			defer func() {
				if releaseErr := lock.Release(ctx); releaseErr != nil {
					log().WithError(releaseErr).Warn("failed to release auto-approval lock")
				}
			}()
		}
	}

	overdue, err := s.milestones.ListOverdue(ctx, now, s.batchLimit)
	if err != nil {
		return nil, err
	}

	summary := &BatchSummary{Errors: []BatchError{}}
	for _, m := range overdue {
		// The query already filters, but a tick can race milestone creation
		// updates; never touch a milestone that is not actually overdue.
		if !m.AutoApprovalDeadline.Before(now) {
			continue
		}
		summary.Processed++

		err := s.approver.AutoApprove(ctx, m)
		switch {
		case err == nil:
			summary.AutoApproved++
		case apperror.IsExternalService(err):
			// Approval committed, payout did not. Intentionally not a
			// batch failure and never rolled back.
			summary.AutoApproved++
			summary.DisbursementErrors = append(summary.DisbursementErrors, BatchError{
				MilestoneID: m.ID,
				OrderID:     m.OrderID,
				Error:       err.Error(),
			})
		case apperror.IsConflict(err):
			// A customer decided it between the query and our write.
			// Exactly-once held, nothing to record as a failure.
			log().WithFields(logrus.Fields{
				"milestone_id": m.ID,
				"order_id":     m.OrderID,
			}).Info("milestone decided by another actor before auto-approval")
		default:
			summary.Failed++
			summary.Errors = append(summary.Errors, BatchError{
				MilestoneID: m.ID,
				OrderID:     m.OrderID,
				Error:       err.Error(),
			})
			log().WithFields(logrus.Fields{
				"milestone_id": m.ID,
				"order_id":     m.OrderID,
			}).WithError(err).Error("auto-approval failed for milestone")
		}
	}

	log().WithFields(logrus.Fields{
		"processed":     summary.Processed,
		"auto_approved": summary.AutoApproved,
		"failed":        summary.Failed,
	}).Info("auto-approval batch finished")
	return summary, nil
}
