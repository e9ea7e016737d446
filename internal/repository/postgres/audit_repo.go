package postgres

import (
	"context"

	"github.com/and161185/prompt-enhancer/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// AuditRepo implements AuditRepository using PostgreSQL.
type AuditRepo struct{ db *DB }

// NewAuditRepo constructs an audit repository.
func NewAuditRepo(db *DB) *AuditRepo { return &AuditRepo{db: db} }

// Append inserts an entry and drops the user's oldest entries beyond the cap.
func (r *AuditRepo) Append(ctx context.Context, e model.CredentialAuditEntry) error {
	const ins = `
INSERT INTO credential_audit (id, user_id, action, provider, at, ip, user_agent, success, error)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	const prune = `
DELETE FROM credential_audit
WHERE user_id=$1 AND id IN (
  SELECT id FROM credential_audit WHERE user_id=$1 ORDER BY at DESC, id DESC OFFSET $2
)`
	return r.db.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, ins, e.ID, e.UserID, string(e.Action), string(e.Provider), e.At,
			e.IP, e.UserAgent, e.Success, e.Error); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, prune, e.UserID, model.MaxAuditEntries)
		return err
	})
}

// List returns the newest entries first.
func (r *AuditRepo) List(ctx context.Context, userID uuid.UUID, limit int) ([]model.CredentialAuditEntry, error) {
	if limit <= 0 || limit > model.MaxAuditEntries {
		limit = model.MaxAuditEntries
	}
	const q = `
SELECT id, user_id, action, provider, at, ip, user_agent, success, error
FROM credential_audit WHERE user_id=$1 ORDER BY at DESC, id DESC LIMIT $2`
	rows, err := r.db.Pool.Query(ctx, q, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.CredentialAuditEntry, 0, limit)
	for rows.Next() {
		var (
			e                model.CredentialAuditEntry
			action, provider string
		)
		if err := rows.Scan(&e.ID, &e.UserID, &action, &provider, &e.At, &e.IP, &e.UserAgent, &e.Success, &e.Error); err != nil {
			return nil, err
		}
		e.Action = model.AuditAction(action)
		e.Provider = model.Provider(provider)
		out = append(out, e)
	}
	return out, rows.Err()
}
