package sync

import (
	"context"

	"go.uber.org/zap"

	"github.com/matheus3301/outpost/internal/store"
)

// Reconciler manages per-conversation sync checkpoints kept in the store's
// metadata partition.
type Reconciler struct {
	store  store.Store
	logger *zap.Logger
}

// NewReconciler creates a new reconciler.
func NewReconciler(st store.Store, logger *zap.Logger) *Reconciler {
	return &Reconciler{store: st, logger: logger}
}

// Checkpoint returns the newest server timestamp cached for the
// conversation, 0 if nothing was pulled.
func (r *Reconciler) Checkpoint(ctx context.Context, conversationID string) (int64, error) {
	return r.store.GetCheckpoint(ctx, conversationID)
}

// Advance moves the checkpoint forward. Older timestamps are ignored.
func (r *Reconciler) Advance(ctx context.Context, conversationID string, ts int64) error {
	cur, err := r.store.GetCheckpoint(ctx, conversationID)
	if err != nil {
		return err
	}
	if ts <= cur {
		return nil
	}
	r.logger.Debug("checkpoint advanced", zap.String("conversation_id", conversationID), zap.Int64("from", cur), zap.Int64("to", ts))
	return r.store.SetCheckpoint(ctx, conversationID, ts)
}
