package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/and161185/prompt-enhancer/internal/errs"
	"github.com/and161185/prompt-enhancer/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// UserRepo implements UserRepository using PostgreSQL.
type UserRepo struct{ db *DB }

// NewUserRepo constructs a user repository.
func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

const userColumns = `id, external_id, email, first_name, last_name, plan_id, settings,
openai_ciphertext, openai_iv, openai_tag, openai_updated_at, openai_valid,
anthropic_ciphertext, anthropic_iv, anthropic_tag, anthropic_updated_at, anthropic_valid,
last_active, created_at, updated_at`

// Create inserts a new user row.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	settings, err := json.Marshal(u.Settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	const q = `
INSERT INTO users (id, external_id, email, first_name, last_name, plan_id, settings)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err = r.db.Pool.Exec(ctx, q, u.ID, u.ExternalID, u.Email, u.FirstName, u.LastName, u.PlanID, settings)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// GetByID selects a user by ID.
func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE id=$1`
	return scanUser(r.db.Pool.QueryRow(ctx, q, id))
}

// GetByExternalID selects a user by identity provider subject.
func (r *UserRepo) GetByExternalID(ctx context.Context, externalID string) (*model.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE external_id=$1`
	return scanUser(r.db.Pool.QueryRow(ctx, q, externalID))
}

func scanUser(row pgx.Row) (*model.User, error) {
	var (
		u        model.User
		settings []byte
	)
	err := row.Scan(
		&u.ID, &u.ExternalID, &u.Email, &u.FirstName, &u.LastName, &u.PlanID, &settings,
		&u.OpenAI.Ciphertext, &u.OpenAI.IV, &u.OpenAI.AuthTag, &u.OpenAI.LastUpdated, &u.OpenAI.IsValid,
		&u.Anthropic.Ciphertext, &u.Anthropic.IV, &u.Anthropic.AuthTag, &u.Anthropic.LastUpdated, &u.Anthropic.IsValid,
		&u.LastActive, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	u.Settings = model.DefaultSettings()
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &u.Settings); err != nil {
			return nil, fmt.Errorf("unmarshal settings: %w", err)
		}
	}
	return &u, nil
}

// UpdateSettings replaces the settings document.
func (r *UserRepo) UpdateSettings(ctx context.Context, id uuid.UUID, s model.Settings) error {
	settings, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	const q = `UPDATE users SET settings=$2, updated_at=now() WHERE id=$1`
	return r.execOne(ctx, q, id, settings)
}

// PutCredential overwrites one provider slot.
func (r *UserRepo) PutCredential(ctx context.Context, id uuid.UUID, p model.Provider, c model.EncryptedCredential) error {
	const qOpenAI = `
UPDATE users
SET openai_ciphertext=$2, openai_iv=$3, openai_tag=$4, openai_updated_at=$5, openai_valid=$6, updated_at=now()
WHERE id=$1`
	const qAnthropic = `
UPDATE users
SET anthropic_ciphertext=$2, anthropic_iv=$3, anthropic_tag=$4, anthropic_updated_at=$5, anthropic_valid=$6, updated_at=now()
WHERE id=$1`
	var q string
	switch p {
	case model.ProviderOpenAI:
		q = qOpenAI
	case model.ProviderAnthropic:
		q = qAnthropic
	default:
		return fmt.Errorf("unknown provider %q", p)
	}
	return r.execOne(ctx, q, id, c.Ciphertext, c.IV, c.AuthTag, c.LastUpdated, c.IsValid)
}

// Touch updates last_active.
func (r *UserRepo) Touch(ctx context.Context, id uuid.UUID, at time.Time) error {
	const q = `UPDATE users SET last_active=$2 WHERE id=$1`
	return r.execOne(ctx, q, id, at)
}

// Delete removes the user row; owned rows go with it via ON DELETE CASCADE.
func (r *UserRepo) Delete(ctx context.Context, id uuid.UUID) error {
	const q = `DELETE FROM users WHERE id=$1`
	return r.execOne(ctx, q, id)
}

func (r *UserRepo) execOne(ctx context.Context, q string, args ...any) error {
	tag, err := r.db.Pool.Exec(ctx, q, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}
