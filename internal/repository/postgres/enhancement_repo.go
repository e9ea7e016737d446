package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/and161185/prompt-enhancer/internal/errs"
	"github.com/and161185/prompt-enhancer/internal/model"
	"github.com/gofrs/uuid/v5"
)

// EnhancementRepo implements EnhancementRepository using PostgreSQL.
type EnhancementRepo struct{ db *DB }

// NewEnhancementRepo constructs an enhancement history repository.
func NewEnhancementRepo(db *DB) *EnhancementRepo { return &EnhancementRepo{db: db} }

// Create inserts a record.
func (r *EnhancementRepo) Create(ctx context.Context, rec *model.EnhancementRecord) error {
	settings, err := json.Marshal(rec.Settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	const q = `
INSERT INTO enhancements (id, user_id, original_text, enhanced_text, provider, model, site, settings, context,
  method, tokens, input_tokens, output_tokens, cost_usd, processing_ms, request_type, key_source, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`
	_, err = r.db.Pool.Exec(ctx, q,
		rec.ID, rec.UserID, rec.OriginalText, rec.EnhancedText, string(rec.Provider), rec.Model, rec.Site, settings, rec.Context,
		string(rec.Method), rec.Tokens, rec.Cost.InputTokens, rec.Cost.OutputTokens, rec.Cost.TotalCostUSD,
		rec.ProcessingTime.Milliseconds(), string(rec.RequestType), string(rec.KeySource), rec.CreatedAt,
	)
	return err
}

// historyWhere builds the WHERE clause shared by List's count and page queries.
func historyWhere(userID uuid.UUID, f model.HistoryFilter) (string, []any) {
	conds := []string{"user_id=$1"}
	args := []any{userID}
	if f.Site != "" {
		args = append(args, f.Site)
		conds = append(conds, fmt.Sprintf("site=$%d", len(args)))
	}
	if f.Provider != "" {
		args = append(args, string(f.Provider))
		conds = append(conds, fmt.Sprintf("provider=$%d", len(args)))
	}
	if f.Search != "" {
		args = append(args, likeEscaper.Replace(f.Search))
		n := len(args)
		conds = append(conds, fmt.Sprintf("(original_text ILIKE '%%' || $%d || '%%' OR enhanced_text ILIKE '%%' || $%d || '%%')", n, n))
	}
	return strings.Join(conds, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// List returns one page of records, newest first, with the total match count.
func (r *EnhancementRepo) List(ctx context.Context, userID uuid.UUID, f model.HistoryFilter) ([]model.EnhancementRecord, int, error) {
	where, args := historyWhere(userID, f)

	var total int
	if err := r.db.Pool.QueryRow(ctx, `SELECT count(*) FROM enhancements WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page, limit := f.Page, f.Limit
	if page < 1 {
		page = 1
	}
	args = append(args, limit, (page-1)*limit)
	q := fmt.Sprintf(`
SELECT id, user_id, original_text, enhanced_text, provider, model, site, settings, context,
  method, tokens, input_tokens, output_tokens, cost_usd, processing_ms, request_type, key_source, created_at
FROM enhancements WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args))

	rows, err := r.db.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]model.EnhancementRecord, 0, limit)
	for rows.Next() {
		var (
			rec                               model.EnhancementRecord
			settings                          []byte
			provider, method, reqType, keySrc string
			ms                                int64
		)
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.OriginalText, &rec.EnhancedText, &provider, &rec.Model, &rec.Site,
			&settings, &rec.Context, &method, &rec.Tokens, &rec.Cost.InputTokens, &rec.Cost.OutputTokens,
			&rec.Cost.TotalCostUSD, &ms, &reqType, &keySrc, &rec.CreatedAt); err != nil {
			return nil, 0, err
		}
		if len(settings) > 0 {
			if err := json.Unmarshal(settings, &rec.Settings); err != nil {
				return nil, 0, fmt.Errorf("unmarshal settings: %w", err)
			}
		}
		rec.Provider = model.Provider(provider)
		rec.Method = model.Method(method)
		rec.RequestType = model.RequestType(reqType)
		rec.KeySource = model.KeySource(keySrc)
		rec.ProcessingTime = time.Duration(ms) * time.Millisecond
		out = append(out, rec)
	}
	return out, total, rows.Err()
}

// Stats aggregates a user's history.
func (r *EnhancementRepo) Stats(ctx context.Context, userID uuid.UUID) (model.HistoryStats, error) {
	const q = `
SELECT count(*), COALESCE(sum(tokens), 0), COALESCE(avg(processing_ms), 0), COALESCE(sum(cost_usd), 0)
FROM enhancements WHERE user_id=$1`
	var s model.HistoryStats
	err := r.db.Pool.QueryRow(ctx, q, userID).Scan(&s.TotalPrompts, &s.TotalTokens, &s.AvgProcessingTime, &s.TotalCostUSD)
	return s, err
}

// UsageSplit counts free and personal requests since the given boundaries.
func (r *EnhancementRepo) UsageSplit(ctx context.Context, userID uuid.UUID, dayStart, monthStart time.Time) (model.UsageSplit, error) {
	const q = `
SELECT
  count(*) FILTER (WHERE request_type='free' AND created_at >= $2),
  count(*) FILTER (WHERE request_type='free'),
  count(*) FILTER (WHERE request_type='personal' AND created_at >= $2),
  count(*) FILTER (WHERE request_type='personal'),
  COALESCE(sum(cost_usd) FILTER (WHERE request_type='personal'), 0)
FROM enhancements WHERE user_id=$1 AND created_at >= $3`
	var s model.UsageSplit
	err := r.db.Pool.QueryRow(ctx, q, userID, dayStart, monthStart).
		Scan(&s.FreeDaily, &s.FreeMonthly, &s.PersonalDaily, &s.PersonalMonthly, &s.PersonalCostMonth)
	return s, err
}

// Delete removes one record owned by userID.
func (r *EnhancementRepo) Delete(ctx context.Context, userID, id uuid.UUID) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM enhancements WHERE id=$1 AND user_id=$2`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// DeleteAll removes every record owned by userID and reports how many were deleted.
func (r *EnhancementRepo) DeleteAll(ctx context.Context, userID uuid.UUID) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM enhancements WHERE user_id=$1`, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
