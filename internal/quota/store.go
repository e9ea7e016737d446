// Package quota implements the per-user daily/monthly usage ledger for shared-key AI requests.
package quota

import (
	"context"

	"github.com/and161185/prompt-enhancer/internal/model"
	"github.com/gofrs/uuid/v5"
)

// Store persists ledger rows. Implementations must make Reserve an atomic
// increment-with-ceiling so concurrent callers cannot both take the last slot.
type Store interface {
	// Ensure returns the (user, day) row, creating it with zero daily usage and the month's
	// running total when absent. A concurrent creation resolves to the existing row.
	Ensure(ctx context.Context, userID uuid.UUID, day, month string) (model.UsageLedgerEntry, error)
	// Reserve increments both counters if both are below their limits (limits at or above
	// model.UnlimitedSentinel never block). ok=false means nothing was changed.
	Reserve(ctx context.Context, ledgerID uuid.UUID, dailyLimit, monthlyLimit int) (entry model.UsageLedgerEntry, ok bool, err error)
	// Append records a concluded request; release=true also returns one reserved slot.
	Append(ctx context.Context, ledgerID uuid.UUID, req model.UsageRequest, release bool) error
	// Requests lists the requests recorded against a ledger row, oldest first.
	Requests(ctx context.Context, ledgerID uuid.UUID) ([]model.UsageRequest, error)
}
