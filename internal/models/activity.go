package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ActivityLog records who changed what on an order or dispute.
type ActivityLog struct {
	ID        uuid.UUID       `db:"id" json:"id"`
	OrderID   uuid.UUID       `db:"order_id" json:"order_id"`
	DisputeID *uuid.UUID      `db:"dispute_id" json:"dispute_id,omitempty"`
	ActorID   *uuid.UUID      `db:"actor_id" json:"actor_id,omitempty"`
	Action    string          `db:"action" json:"action"`
	OldValue  json.RawMessage `db:"old_value" json:"old_value,omitempty"`
	NewValue  json.RawMessage `db:"new_value" json:"new_value,omitempty"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}
