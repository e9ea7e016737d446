package repository

import (
	"context"
	"time"

	"github.com/and161185/prompt-enhancer/internal/model"
	"github.com/gofrs/uuid/v5"
)

// EnhancementRepository stores enhancement history.
type EnhancementRepository interface {
	// Create persists a record.
	Create(ctx context.Context, r *model.EnhancementRecord) error
	// List returns one page of records, newest first, and the total match count.
	List(ctx context.Context, userID uuid.UUID, f model.HistoryFilter) ([]model.EnhancementRecord, int, error)
	// Stats aggregates all of a user's records.
	Stats(ctx context.Context, userID uuid.UUID) (model.HistoryStats, error)
	// UsageSplit counts records by billing class since the given day and month starts.
	UsageSplit(ctx context.Context, userID uuid.UUID, dayStart, monthStart time.Time) (model.UsageSplit, error)
	// Delete removes one record owned by userID.
	Delete(ctx context.Context, userID, id uuid.UUID) error
	// DeleteAll removes every record owned by userID.
	DeleteAll(ctx context.Context, userID uuid.UUID) (int64, error)
}
