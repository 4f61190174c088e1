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

var ErrCommissionNotFound = errors.New("commission record not found")

type PaymentRepository struct {
	db *sqlx.DB
}

func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// AddTransaction appends one escrow ledger entry.
func (r *PaymentRepository) AddTransaction(ctx context.Context, t *models.EscrowTransaction) error {
	query := `
		INSERT INTO escrow_transactions (order_id, milestone_id, type, stage, amount, recipient_id, reference)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query, t.OrderID, t.MilestoneID, t.Type, t.Stage, t.Amount, t.RecipientID, t.Reference).
		Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return fmt.Errorf("payment repository: add transaction: %w", err)
	}
	return nil
}

// CreateCommissionRecord persists the commission split of a completed order.
// An order has exactly one record; a repeat insert is a no-op.
func (r *PaymentRepository) CreateCommissionRecord(ctx context.Context, rec *models.CommissionRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO commission_records (order_id, gross_amount, commission_rate, commission_amount, net_amount)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (order_id) DO NOTHING
	`, rec.OrderID, rec.GrossAmount, rec.CommissionRate, rec.CommissionAmount, rec.NetAmount)
	if err != nil {
		return fmt.Errorf("payment repository: create commission record: %w", err)
	}
	return nil
}

func (r *PaymentRepository) GetCommissionByOrder(ctx context.Context, orderID uuid.UUID) (*models.CommissionRecord, error) {
	var rec models.CommissionRecord
	err := r.db.GetContext(ctx, &rec, `SELECT * FROM commission_records WHERE order_id = $1`, orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCommissionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *PaymentRepository) ListTransactionsByOrder(ctx context.Context, orderID uuid.UUID) ([]models.EscrowTransaction, error) {
	var transactions []models.EscrowTransaction
	err := r.db.SelectContext(ctx, &transactions, `
		SELECT * FROM escrow_transactions WHERE order_id = $1 ORDER BY created_at ASC
	`, orderID)
	return transactions, err
}
