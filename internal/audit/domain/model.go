// Package domain contains the audit/sync collaborator's event model. The
// ledger core treats this sink as best-effort: events are recorded after
// successful mutations and failures never block the mutation itself.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// ChangeEvent is a structured notification about a successful create/update,
// carrying before/after snapshots for cross-session propagation.
type ChangeEvent struct {
	ID          snowflake.ID      `gorm:"primaryKey" json:"id"`
	EntityType  string            `gorm:"type:text;not null;index" json:"entity_type"`
	EntityID    string            `gorm:"type:text;not null;index" json:"entity_id"`
	Before      datatypes.JSONMap `gorm:"type:jsonb" json:"before"`
	After       datatypes.JSONMap `gorm:"type:jsonb" json:"after"`
	Description string            `gorm:"type:text" json:"description"`
	CreatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (ChangeEvent) TableName() string { return "audit_logs" }

type Service interface {
	// Record persists the event best-effort; errors are logged, never returned.
	Record(ctx context.Context, entityType, entityID string, before, after map[string]any, description string)
}
