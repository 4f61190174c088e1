package repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/tailorlink/tailorlink-backend/internal/models"
)

type ActivityRepository struct {
	db *sqlx.DB
}

func NewActivityRepository(db *sqlx.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

func (r *ActivityRepository) Add(ctx context.Context, orderID uuid.UUID, actorID *uuid.UUID, action string, oldValue, newValue interface{}) error {
	oldJSON, _ := json.Marshal(oldValue)
	newJSON, _ := json.Marshal(newValue)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO activity_log (order_id, actor_id, action, old_value, new_value)
		VALUES ($1, $2, $3, $4, $5)
	`, orderID, actorID, action, oldJSON, newJSON)
	return err
}

func (r *ActivityRepository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.ActivityLog, error) {
	var entries []models.ActivityLog
	err := r.db.SelectContext(ctx, &entries, `
		SELECT * FROM activity_log WHERE order_id = $1 ORDER BY created_at ASC
	`, orderID)
	return entries, err
}
