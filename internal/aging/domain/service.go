package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Request selects the aging computation inputs. ClearedOnly defaults to
// true: pending payments do not reduce an outstanding balance until they
// clear.
type Request struct {
	ClientID    *snowflake.ID
	AsOf        *time.Time
	ClearedOnly *bool
}

type Service interface {
	Aging(ctx context.Context, req Request) (Report, error)
	AgingByClient(ctx context.Context, req Request) ([]ClientReport, error)
}
