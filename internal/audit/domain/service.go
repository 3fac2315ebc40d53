package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// Record describes one mutation to append to the audit trail.
type Record struct {
	Entity   string
	EntityID string
	Action   string
	ActorID  *snowflake.ID
	Metadata map[string]interface{}
}

// Service appends audit entries. Failures are logged, never propagated:
// the audit trail must not block the financial mutation it describes.
type Service interface {
	Record(ctx context.Context, rec Record)
	List(ctx context.Context, entity, entityID string) ([]Entry, error)
}
