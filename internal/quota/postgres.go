package quota

import (
	"context"
	"errors"

	"github.com/and161185/prompt-enhancer/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PG is a PostgreSQL-backed ledger store.
type PG struct {
	pool pgxQuerier
}

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPG constructs a PostgreSQL-backed ledger store over a pool or any pgx querier.
func NewPG(q pgxQuerier) *PG {
	return &PG{pool: q}
}

// Ensure inserts the day row if missing and returns the current row.
// monthly_used of a new row is carried from the latest earlier day of the same month.
func (s *PG) Ensure(ctx context.Context, userID uuid.UUID, day, month string) (model.UsageLedgerEntry, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return model.UsageLedgerEntry{}, err
	}
	const ins = `
INSERT INTO usage_ledger (id, user_id, day, month, daily_used, monthly_used)
VALUES ($1, $2, $3, $4, 0, COALESCE((
  SELECT monthly_used FROM usage_ledger
  WHERE user_id=$2 AND month=$4 AND day < $3
  ORDER BY day DESC LIMIT 1), 0))
ON CONFLICT (user_id, day) DO NOTHING`
	if _, err := s.pool.Exec(ctx, ins, id, userID, day, month); err != nil {
		return model.UsageLedgerEntry{}, err
	}

	const sel = `SELECT id, daily_used, monthly_used FROM usage_ledger WHERE user_id=$1 AND day=$2`
	e := model.UsageLedgerEntry{UserID: userID, Day: day, Month: month}
	if err := s.pool.QueryRow(ctx, sel, userID, day).Scan(&e.ID, &e.DailyUsed, &e.MonthlyUsed); err != nil {
		return model.UsageLedgerEntry{}, err
	}
	return e, nil
}

// Reserve performs the conditional increment in a single statement.
func (s *PG) Reserve(ctx context.Context, ledgerID uuid.UUID, dailyLimit, monthlyLimit int) (model.UsageLedgerEntry, bool, error) {
	const q = `
UPDATE usage_ledger
SET daily_used = daily_used + 1, monthly_used = monthly_used + 1, updated_at = now()
WHERE id = $1
  AND ($2::int >= $4::int OR daily_used < $2::int)
  AND ($3::int >= $4::int OR monthly_used < $3::int)
RETURNING user_id, day, month, daily_used, monthly_used`
	e := model.UsageLedgerEntry{ID: ledgerID}
	err := s.pool.QueryRow(ctx, q, ledgerID, dailyLimit, monthlyLimit, model.UnlimitedSentinel).
		Scan(&e.UserID, &e.Day, &e.Month, &e.DailyUsed, &e.MonthlyUsed)
	switch {
	case err == nil:
		return e, true, nil
	case errors.Is(err, pgx.ErrNoRows):
		return model.UsageLedgerEntry{}, false, nil
	default:
		return model.UsageLedgerEntry{}, false, err
	}
}

// Append inserts a request row and, when release is set, gives back one reserved slot
// in the same statement. The monthly slot is also returned on any later day of the same
// month that already carried it forward.
func (s *PG) Append(ctx context.Context, ledgerID uuid.UUID, req model.UsageRequest, release bool) error {
	const q = `
WITH src AS (
  SELECT user_id, day, month FROM usage_ledger WHERE id = $1
), released AS (
  UPDATE usage_ledger l
  SET daily_used = CASE WHEN l.id = $1 THEN GREATEST(l.daily_used - 1, 0) ELSE l.daily_used END,
      monthly_used = GREATEST(l.monthly_used - 1, 0),
      updated_at = now()
  FROM src
  WHERE $8::bool AND l.user_id = src.user_id AND l.month = src.month AND l.day >= src.day
)
INSERT INTO usage_requests (ledger_id, at, provider, tokens, cost, success, error_message)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := s.pool.Exec(ctx, q, ledgerID, req.At, string(req.Provider), req.Tokens, req.Cost, req.Success, req.ErrorMessage, release)
	return err
}

// Requests lists the ledger's request rows.
func (s *PG) Requests(ctx context.Context, ledgerID uuid.UUID) ([]model.UsageRequest, error) {
	const q = `
SELECT at, provider, tokens, cost, success, error_message
FROM usage_requests WHERE ledger_id=$1 ORDER BY at, id`
	rows, err := s.pool.Query(ctx, q, ledgerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.UsageRequest
	for rows.Next() {
		var (
			r        model.UsageRequest
			provider string
		)
		if err := rows.Scan(&r.At, &provider, &r.Tokens, &r.Cost, &r.Success, &r.ErrorMessage); err != nil {
			return nil, err
		}
		r.Provider = model.Provider(provider)
		out = append(out, r)
	}
	return out, rows.Err()
}
