package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/tailorlink/tailorlink-backend/internal/models"
)

var (
	ErrMilestoneNotFound = errors.New("milestone not found")

	// ErrMilestoneDecided means the conditional update found the milestone
	// no longer PENDING: someone else decided it first.
	ErrMilestoneDecided = errors.New("milestone already decided")

	// ErrMilestoneExists means a milestone for this order stage was already
	// submitted (unique constraint violation).
	ErrMilestoneExists = errors.New("milestone already exists for this stage")
)

type MilestoneRepository struct {
	db *sqlx.DB
}

func NewMilestoneRepository(db *sqlx.DB) *MilestoneRepository {
	return &MilestoneRepository{db: db}
}

func (r *MilestoneRepository) Create(ctx context.Context, m *models.Milestone) error {
	query := `
		INSERT INTO milestones (order_id, stage, approval_status, auto_approval_deadline, completed_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query, m.OrderID, m.Stage, m.ApprovalStatus, m.AutoApprovalDeadline, m.CompletedAt).
		Scan(&m.ID, &m.CreatedAt)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return ErrMilestoneExists
	}
	return err
}

func (r *MilestoneRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Milestone, error) {
	var m models.Milestone
	err := r.db.GetContext(ctx, &m, `SELECT * FROM milestones WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMilestoneNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Decide moves a PENDING milestone into a terminal status. The status guard
// in the WHERE clause makes the decision happen at most once no matter how
// many actors race for it.
func (r *MilestoneRepository) Decide(ctx context.Context, id uuid.UUID, status models.ApprovalStatus, decidedBy *uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE milestones SET approval_status = $2, decided_by = $3, decided_at = NOW()
		WHERE id = $1 AND approval_status = $4
	`, id, status, decidedBy, models.ApprovalPending)
	if err != nil {
		return fmt.Errorf("milestone repository: decide: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrMilestoneDecided
	}
	return nil
}

// MarkDisputeEligible flags a rejected milestone for the dispute flow.
func (r *MilestoneRepository) MarkDisputeEligible(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `UPDATE milestones SET dispute_eligible = TRUE WHERE id = $1`, id)
	return err
}

// ListOverdue returns PENDING milestones whose deadline passed before now,
// oldest deadline first so the backlog drains in order.
func (r *MilestoneRepository) ListOverdue(ctx context.Context, now time.Time, limit int) ([]models.Milestone, error) {
	var milestones []models.Milestone
	err := r.db.SelectContext(ctx, &milestones, `
		SELECT * FROM milestones
		WHERE approval_status = $1 AND auto_approval_deadline < $2
		ORDER BY auto_approval_deadline ASC
		LIMIT $3
	`, models.ApprovalPending, now, limit)
	return milestones, err
}

func (r *MilestoneRepository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Milestone, error) {
	var milestones []models.Milestone
	err := r.db.SelectContext(ctx, &milestones, `
		SELECT * FROM milestones WHERE order_id = $1 ORDER BY created_at ASC
	`, orderID)
	return milestones, err
}
