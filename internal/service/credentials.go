package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/and161185/prompt-enhancer/internal/errs"
	"github.com/and161185/prompt-enhancer/internal/model"
	"github.com/and161185/prompt-enhancer/internal/repository"
	"github.com/and161185/prompt-enhancer/internal/vault"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

const decryptionFailed = "Decryption failed"

// Sealer encrypts and decrypts credential material.
type Sealer interface {
	Encrypt(plaintext string) (vault.Sealed, error)
	Decrypt(s vault.Sealed) (string, error)
}

// CredentialView describes a provider slot without exposing the key.
type CredentialView struct {
	Provider    model.Provider `json:"provider"`
	HasKey      bool           `json:"hasKey"`
	MaskedKey   string         `json:"maskedKey,omitempty"`
	IsValid     bool           `json:"isValid"`
	LastUpdated *time.Time     `json:"lastUpdated,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// CredentialService manages encrypted per-user provider keys.
type CredentialService interface {
	// GetActiveKey returns the user's personal key for p when one is stored and decryptable.
	GetActiveKey(ctx context.Context, u *model.User, p model.Provider, req model.Requester) (string, bool)
	// Put stores key for p. An empty key removes the slot.
	Put(ctx context.Context, u *model.User, p model.Provider, key string, req model.Requester) (model.AuditAction, error)
	// SoftDelete clears the slot for p; repeating it is harmless.
	SoftDelete(ctx context.Context, u *model.User, p model.Provider, req model.Requester) error
	// List reports every provider slot with masked keys.
	List(ctx context.Context, u *model.User, req model.Requester) []CredentialView
	// Reveal returns the plaintext key for p.
	Reveal(ctx context.Context, u *model.User, p model.Provider, req model.Requester) (string, error)
	// Audit returns the newest audit entries.
	Audit(ctx context.Context, userID uuid.UUID, limit int) ([]model.CredentialAuditEntry, error)
}

type CredentialServiceImpl struct {
	users  repository.UserRepository
	audit  repository.AuditRepository
	sealer Sealer
	log    *zap.Logger
	now    func() time.Time
}

// NewCredentialService constructs CredentialService.
func NewCredentialService(users repository.UserRepository, audit repository.AuditRepository, sealer Sealer, log *zap.Logger) *CredentialServiceImpl {
	return &CredentialServiceImpl{users: users, audit: audit, sealer: sealer, log: log, now: time.Now}
}

// GetActiveKey returns the decrypted personal key. Every decrypt attempt is audited.
func (s *CredentialServiceImpl) GetActiveKey(ctx context.Context, u *model.User, p model.Provider, req model.Requester) (string, bool) {
	slot := u.Credential(p)
	if !slot.Configured() || !slot.IsValid {
		return "", false
	}
	key, err := s.sealer.Decrypt(vault.SealedFrom(slot))
	if err != nil {
		s.log.Warn("stored credential unreadable", zap.String("user", u.ID.String()), zap.String("provider", string(p)))
		s.record(ctx, u.ID, model.AuditAccessed, p, req, decryptionFailed)
		return "", false
	}
	s.record(ctx, u.ID, model.AuditAccessed, p, req, "")
	return key, true
}

func (s *CredentialServiceImpl) Put(ctx context.Context, u *model.User, p model.Provider, key string, req model.Requester) (model.AuditAction, error) {
	if !p.Valid() {
		return "", errs.Validationf("unsupported provider %q", p)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return model.AuditDeleted, s.SoftDelete(ctx, u, p, req)
	}
	if !vault.ValidateFormat(p, key) {
		return "", errs.Validationf("Invalid %s API key format", providerName(p))
	}

	action := model.AuditCreated
	if prev := u.Credential(p); prev.Configured() {
		action = model.AuditRotated
		if old, err := s.sealer.Decrypt(vault.SealedFrom(prev)); err == nil && vault.Equal(old, key) {
			action = model.AuditUpdated
		}
	}

	sealed, err := s.sealer.Encrypt(key)
	if err != nil {
		s.record(ctx, u.ID, action, p, req, err.Error())
		return "", fmt.Errorf("encrypt credential: %w", err)
	}
	slot := model.EncryptedCredential{
		Ciphertext:  sealed.Ciphertext,
		IV:          sealed.IV,
		AuthTag:     sealed.AuthTag,
		LastUpdated: s.now().UTC(),
		IsValid:     true,
	}
	if err := s.users.PutCredential(ctx, u.ID, p, slot); err != nil {
		s.record(ctx, u.ID, action, p, req, err.Error())
		return "", err
	}
	u.SetCredential(p, slot)
	s.record(ctx, u.ID, action, p, req, "")
	return action, nil
}

func (s *CredentialServiceImpl) SoftDelete(ctx context.Context, u *model.User, p model.Provider, req model.Requester) error {
	if !p.Valid() {
		return errs.Validationf("unsupported provider %q", p)
	}
	slot := model.EncryptedCredential{LastUpdated: s.now().UTC(), IsValid: false}
	if err := s.users.PutCredential(ctx, u.ID, p, slot); err != nil {
		s.record(ctx, u.ID, model.AuditDeleted, p, req, err.Error())
		return err
	}
	u.SetCredential(p, slot)
	s.record(ctx, u.ID, model.AuditDeleted, p, req, "")
	return nil
}

// List decrypts each stored key to build its mask. Unreadable keys are reported, not returned as errors.
func (s *CredentialServiceImpl) List(ctx context.Context, u *model.User, req model.Requester) []CredentialView {
	out := make([]CredentialView, 0, len(model.Providers))
	for _, p := range model.Providers {
		slot := u.Credential(p)
		v := CredentialView{Provider: p}
		if !slot.Configured() {
			out = append(out, v)
			continue
		}
		v.HasKey = true
		if !slot.LastUpdated.IsZero() {
			lu := slot.LastUpdated
			v.LastUpdated = &lu
		}
		key, err := s.sealer.Decrypt(vault.SealedFrom(slot))
		if err != nil {
			v.MaskedKey = vault.InvalidMask(p)
			v.Error = decryptionFailed
			s.record(ctx, u.ID, model.AuditAccessed, p, req, v.Error)
		} else {
			v.MaskedKey = vault.Mask(p, key)
			v.IsValid = slot.IsValid
			s.record(ctx, u.ID, model.AuditAccessed, p, req, "")
		}
		out = append(out, v)
	}
	return out
}

func (s *CredentialServiceImpl) Reveal(ctx context.Context, u *model.User, p model.Provider, req model.Requester) (string, error) {
	if !p.Valid() {
		return "", errs.Validationf("unsupported provider %q", p)
	}
	slot := u.Credential(p)
	if !slot.Configured() {
		return "", errs.ErrNotFound
	}
	key, err := s.sealer.Decrypt(vault.SealedFrom(slot))
	if err != nil {
		s.record(ctx, u.ID, model.AuditAccessed, p, req, decryptionFailed)
		return "", err
	}
	s.record(ctx, u.ID, model.AuditAccessed, p, req, "")
	return key, nil
}

func (s *CredentialServiceImpl) Audit(ctx context.Context, userID uuid.UUID, limit int) ([]model.CredentialAuditEntry, error) {
	if limit <= 0 || limit > model.MaxAuditEntries {
		limit = model.MaxAuditEntries
	}
	return s.audit.List(ctx, userID, limit)
}

// record appends an audit entry; failure is non-empty for unsuccessful operations.
// Append errors are logged and never abort the caller.
func (s *CredentialServiceImpl) record(ctx context.Context, userID uuid.UUID, action model.AuditAction, p model.Provider, req model.Requester, failure string) {
	id, err := uuid.NewV4()
	if err != nil {
		s.log.Warn("audit id", zap.Error(err))
		return
	}
	e := model.CredentialAuditEntry{
		ID:        id,
		UserID:    userID,
		Action:    action,
		Provider:  p,
		At:        s.now().UTC(),
		IP:        req.IP,
		UserAgent: req.UserAgent,
		Success:   failure == "",
		Error:     failure,
	}
	if err := s.audit.Append(ctx, e); err != nil {
		s.log.Warn("audit append failed", zap.String("user", userID.String()), zap.String("action", string(action)), zap.Error(err))
	}
}

func providerName(p model.Provider) string {
	switch p {
	case model.ProviderOpenAI:
		return "OpenAI"
	case model.ProviderAnthropic:
		return "Anthropic"
	default:
		return string(p)
	}
}
