package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Entry is an immutable record of a financial mutation.
type Entry struct {
	ID        snowflake.ID      `json:"id" gorm:"primaryKey"`
	Entity    string            `json:"entity" gorm:"index:idx_audit_entity"`
	EntityID  string            `json:"entity_id" gorm:"index:idx_audit_entity"`
	Action    string            `json:"action"`
	ActorID   *snowflake.ID     `json:"actor_id,omitempty"`
	Metadata  datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

func (Entry) TableName() string { return "audit_logs" }
