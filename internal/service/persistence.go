package service

import (
	"context"

	"go.uber.org/zap"
)

// BestEffortPersist is the durable-write policy for every entity: writes
// mirror in-memory state for history and audit, they are never the source
// of truth for control decisions. A write failure is logged and swallowed;
// it must not block or reverse an in-memory state transition.
type BestEffortPersist struct {
	logger *zap.Logger
}

func NewBestEffortPersist(logger *zap.Logger) *BestEffortPersist {
	return &BestEffortPersist{logger: logger}
}

// Do runs one durable write, logging any failure instead of returning it.
// A nil fn (no store configured) is a no-op.
func (p *BestEffortPersist) Do(ctx context.Context, op string, fn func(context.Context) error) {
	if fn == nil {
		return
	}
	if err := fn(ctx); err != nil {
		p.logger.Warn("persistence write failed",
			zap.String("op", op),
			zap.Error(err))
	}
}
