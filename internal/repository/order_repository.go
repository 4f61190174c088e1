package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/tailorlink/tailorlink-backend/internal/models"
)

var (
	ErrOrderNotFound = errors.New("order not found")

	// ErrStageConflict means the conditional stage update matched no row:
	// another actor already moved the order past the expected stage.
	ErrStageConflict = errors.New("order stage changed concurrently")
)

type OrderRepository struct {
	db *sqlx.DB
}

func NewOrderRepository(db *sqlx.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) Create(ctx context.Context, o *models.Order) error {
	query := `
		INSERT INTO orders (customer_id, tailor_id, total_amount, current_stage)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`
	return r.db.QueryRowContext(ctx, query, o.CustomerID, o.TailorID, o.TotalAmount, o.CurrentStage).
		Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
}

func (r *OrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var o models.Order
	err := r.db.GetContext(ctx, &o, `SELECT * FROM orders WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// AdvanceStage performs the conditional stage transition. The WHERE clause on
// the expected stage is the sole concurrency guard against double release: a
// stale writer matches zero rows and gets ErrStageConflict, never a second
// successful write.
func (r *OrderRepository) AdvanceStage(ctx context.Context, orderID uuid.UUID, expected, target models.OrderStage) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE orders SET current_stage = $3, updated_at = NOW()
		WHERE id = $1 AND current_stage = $2
	`, orderID, expected, target)
	if err != nil {
		return fmt.Errorf("order repository: advance stage: %w", err)
	}
	return rowsOrStageConflict(res)
}

// InitiateEscrow stamps the payment intent and moves the order into PENDING
// in one conditional write.
func (r *OrderRepository) InitiateEscrow(ctx context.Context, orderID uuid.UUID, expected models.OrderStage, intentID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE orders SET current_stage = $3, payment_intent_id = $4, updated_at = NOW()
		WHERE id = $1 AND current_stage = $2
	`, orderID, expected, models.StagePending, intentID)
	if err != nil {
		return fmt.Errorf("order repository: initiate escrow: %w", err)
	}
	return rowsOrStageConflict(res)
}

func rowsOrStageConflict(res sql.Result) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrStageConflict
	}
	return nil
}
