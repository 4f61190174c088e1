package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/tailorlink/tailorlink-backend/internal/models"
)

var (
	ErrDisputeNotFound = errors.New("dispute not found")

	// ErrDisputeFinal means the conditional update found the dispute already
	// RESOLVED or CLOSED.
	ErrDisputeFinal = errors.New("dispute already resolved")

	// ErrDisputeExists means an OPEN/IN_PROGRESS dispute already exists for
	// the order (partial unique index violation).
	ErrDisputeExists = errors.New("an active dispute already exists for this order")

	// ErrOrderTerminal means the order reached a terminal stage before the
	// resolution could be applied.
	ErrOrderTerminal = errors.New("order is already in a terminal stage")
)

type DisputeRepository struct {
	db *sqlx.DB
}

func NewDisputeRepository(db *sqlx.DB) *DisputeRepository {
	return &DisputeRepository{db: db}
}

func (r *DisputeRepository) Create(ctx context.Context, d *models.Dispute) error {
	query := `
		INSERT INTO disputes (order_id, raised_by, reason, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query, d.OrderID, d.RaisedBy, d.Reason, d.Status).
		Scan(&d.ID, &d.CreatedAt)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return ErrDisputeExists
	}
	return err
}

func (r *DisputeRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	var d models.Dispute
	err := r.db.GetContext(ctx, &d, `SELECT * FROM disputes WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDisputeNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *DisputeRepository) GetActiveByOrder(ctx context.Context, orderID uuid.UUID) (*models.Dispute, error) {
	var d models.Dispute
	err := r.db.GetContext(ctx, &d, `
		SELECT * FROM disputes WHERE order_id = $1 AND status IN ($2, $3)
	`, orderID, models.DisputeStatusOpen, models.DisputeStatusInProgress)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDisputeNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ResolutionParams is everything a resolution mutates in one transaction.
type ResolutionParams struct {
	DisputeID      uuid.UUID
	OrderID        uuid.UUID
	AdminID        uuid.UUID
	ResolutionType models.ResolutionType
	RefundAmount   *decimal.Decimal
	RefundTo       uuid.UUID
	ReasonCode     string
	AdminNotes     *string
	OrderTarget    models.OrderStage
	ActivityOld    interface{}
	ActivityNew    interface{}
}

// Resolve applies a dispute resolution atomically: the dispute row, the
// order's escrow stage, the refund ledger entry and the activity log commit
// together or not at all. The dispute update is conditional on the dispute
// still being active, and the order update on the order not being terminal.
func (r *DisputeRepository) Resolve(ctx context.Context, p ResolutionParams) (*models.Dispute, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var d models.Dispute
	err = tx.GetContext(ctx, &d, `
		UPDATE disputes
		SET status = $2, resolution_type = $3, refund_amount = $4, reason_code = $5,
		    admin_notes = $6, resolved_by = $7, resolved_at = NOW()
		WHERE id = $1 AND status IN ($8, $9)
		RETURNING *
	`, p.DisputeID, models.DisputeStatusResolved, p.ResolutionType, p.RefundAmount,
		p.ReasonCode, p.AdminNotes, p.AdminID, models.DisputeStatusOpen, models.DisputeStatusInProgress)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDisputeFinal
	}
	if err != nil {
		return nil, fmt.Errorf("dispute repository: resolve dispute row: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE orders SET current_stage = $2, updated_at = NOW()
		WHERE id = $1 AND current_stage NOT IN ($3, $4)
	`, p.OrderID, p.OrderTarget, models.StageCompleted, models.StageCancelled)
	if err != nil {
		return nil, fmt.Errorf("dispute repository: resolve order stage: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, ErrOrderTerminal
	}

	if p.RefundAmount != nil {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO escrow_transactions (order_id, type, stage, amount, recipient_id, reference)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, p.OrderID, models.EscrowTxRefund, models.EscrowStageReleased, p.RefundAmount,
			p.RefundTo, fmt.Sprintf("dispute:%s", p.DisputeID))
		if err != nil {
			return nil, fmt.Errorf("dispute repository: resolve refund ledger: %w", err)
		}
	}

	oldJSON, _ := json.Marshal(p.ActivityOld)
	newJSON, _ := json.Marshal(p.ActivityNew)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO activity_log (order_id, dispute_id, actor_id, action, old_value, new_value)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, p.OrderID, p.DisputeID, p.AdminID, "dispute_resolved", oldJSON, newJSON)
	if err != nil {
		return nil, fmt.Errorf("dispute repository: resolve activity log: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("dispute repository: resolve commit: %w", err)
	}
	return &d, nil
}

func (r *DisputeRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Dispute, error) {
	var disputes []models.Dispute
	err := r.db.SelectContext(ctx, &disputes, `
		SELECT d.* FROM disputes d
		JOIN orders o ON d.order_id = o.id
		WHERE o.customer_id = $1 OR o.tailor_id = $1
		ORDER BY d.created_at DESC LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	return disputes, err
}
