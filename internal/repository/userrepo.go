// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"
	"time"

	"github.com/and161185/prompt-enhancer/internal/model"
	"github.com/gofrs/uuid/v5"
)

// UserRepository provides access to accounts, their settings and credential slots.
type UserRepository interface {
	// Create inserts a new user.
	Create(ctx context.Context, u *model.User) error
	// GetByID loads a user by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	// GetByExternalID loads a user by identity provider subject.
	GetByExternalID(ctx context.Context, externalID string) (*model.User, error)
	// UpdateSettings replaces the settings document.
	UpdateSettings(ctx context.Context, id uuid.UUID, s model.Settings) error
	// PutCredential overwrites one provider credential slot.
	PutCredential(ctx context.Context, id uuid.UUID, p model.Provider, c model.EncryptedCredential) error
	// Touch records user activity.
	Touch(ctx context.Context, id uuid.UUID, at time.Time) error
	// Delete removes the user and, by cascade, everything it owns.
	Delete(ctx context.Context, id uuid.UUID) error
}

// AuditRepository stores the append-only credential audit log.
type AuditRepository interface {
	// Append inserts an entry and prunes the user's log to model.MaxAuditEntries.
	Append(ctx context.Context, e model.CredentialAuditEntry) error
	// List returns the newest entries first.
	List(ctx context.Context, userID uuid.UUID, limit int) ([]model.CredentialAuditEntry, error)
}

// PlanRepository reads the plan catalog.
type PlanRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Plan, error)
	GetByName(ctx context.Context, name string) (*model.Plan, error)
	ListActive(ctx context.Context) ([]model.Plan, error)
}
