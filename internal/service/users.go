package service

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/and161185/prompt-enhancer/internal/errs"
	"github.com/and161185/prompt-enhancer/internal/model"
	"github.com/and161185/prompt-enhancer/internal/repository"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

// Identity is the verified caller as reported by the identity provider.
type Identity struct {
	Subject   string
	Email     string
	FirstName string
	LastName  string
}

// Profile is a user with its plan.
type Profile struct {
	User *model.User
	Plan *model.Plan
}

// UserService manages accounts, plans and settings.
type UserService interface {
	// Resolve loads the account for a verified subject; ErrNotFound when none exists.
	Resolve(ctx context.Context, subject string) (*model.User, error)
	// Profile returns the caller's account, creating it on the free plan on first use.
	Profile(ctx context.Context, id Identity) (Profile, error)
	// Plan loads a user's plan.
	Plan(ctx context.Context, u *model.User) (*model.Plan, error)
	// Plans lists active plans.
	Plans(ctx context.Context) ([]model.Plan, error)
	// UpdateSettings validates and applies a partial settings change.
	UpdateSettings(ctx context.Context, u *model.User, patch SettingsPatch) (model.Settings, error)
	// Delete removes the account and everything it owns.
	Delete(ctx context.Context, u *model.User) error
}

type UserServiceImpl struct {
	users repository.UserRepository
	plans repository.PlanRepository
	log   *zap.Logger
	now   func() time.Time
}

// NewUserService constructs UserService.
func NewUserService(users repository.UserRepository, plans repository.PlanRepository, log *zap.Logger) *UserServiceImpl {
	return &UserServiceImpl{users: users, plans: plans, log: log, now: time.Now}
}

func (s *UserServiceImpl) Resolve(ctx context.Context, subject string) (*model.User, error) {
	if subject == "" {
		return nil, errs.ErrUnauthorized
	}
	return s.users.GetByExternalID(ctx, subject)
}

func (s *UserServiceImpl) Profile(ctx context.Context, id Identity) (Profile, error) {
	u, err := s.Resolve(ctx, id.Subject)
	switch {
	case err == nil:
		if terr := s.users.Touch(ctx, u.ID, s.now().UTC()); terr != nil {
			s.log.Warn("touch user", zap.String("user", u.ID.String()), zap.Error(terr))
		}
	case errors.Is(err, errs.ErrNotFound):
		u, err = s.create(ctx, id)
		if err != nil {
			return Profile{}, err
		}
	default:
		return Profile{}, err
	}

	p, err := s.Plan(ctx, u)
	if err != nil {
		return Profile{}, err
	}
	return Profile{User: u, Plan: p}, nil
}

func (s *UserServiceImpl) create(ctx context.Context, id Identity) (*model.User, error) {
	free, err := s.plans.GetByName(ctx, model.DefaultPlanName)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, errs.Configurationf("Free plan not found. Please contact support.")
		}
		return nil, err
	}
	uid, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	u := &model.User{
		ID:         uid,
		ExternalID: id.Subject,
		Email:      id.Email,
		FirstName:  id.FirstName,
		LastName:   id.LastName,
		PlanID:     free.ID,
		Settings:   model.DefaultSettings(),
		LastActive: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, errs.ErrAlreadyExists) {
			// concurrent first fetch created it
			return s.users.GetByExternalID(ctx, id.Subject)
		}
		return nil, err
	}
	s.log.Info("user created", zap.String("user", uid.String()))
	return u, nil
}

func (s *UserServiceImpl) Plan(ctx context.Context, u *model.User) (*model.Plan, error) {
	return s.plans.GetByID(ctx, u.PlanID)
}

func (s *UserServiceImpl) Plans(ctx context.Context) ([]model.Plan, error) {
	return s.plans.ListActive(ctx)
}

func (s *UserServiceImpl) UpdateSettings(ctx context.Context, u *model.User, patch SettingsPatch) (model.Settings, error) {
	next, err := patch.Apply(u.Settings)
	if err != nil {
		return model.Settings{}, err
	}
	if err := s.users.UpdateSettings(ctx, u.ID, next); err != nil {
		return model.Settings{}, err
	}
	u.Settings = next
	return next, nil
}

func (s *UserServiceImpl) Delete(ctx context.Context, u *model.User) error {
	if err := s.users.Delete(ctx, u.ID); err != nil {
		return err
	}
	s.log.Info("user deleted", zap.String("user", u.ID.String()))
	return nil
}

// SettingsPatch carries the settings fields present in an update request.
type SettingsPatch struct {
	Enabled        *bool   `json:"enabled"`
	Provider       *string `json:"provider"`
	OpenAIModel    *string `json:"openaiModel"`
	AnthropicModel *string `json:"anthropicModel"`
	Tone           *string `json:"tone"`
	Detail         *string `json:"detail"`
	Audience       *string `json:"audience"`
}

// Apply validates the patch and returns base with the present fields replaced.
func (p SettingsPatch) Apply(base model.Settings) (model.Settings, error) {
	out := base
	if p.Enabled != nil {
		out.Enabled = *p.Enabled
	}
	if p.Provider != nil {
		prov := model.Provider(*p.Provider)
		if !prov.Valid() {
			return base, errs.Validationf("provider must be one of: %s", joinProviders())
		}
		out.Provider = prov
	}
	if p.OpenAIModel != nil {
		m := strings.TrimSpace(*p.OpenAIModel)
		if m == "" {
			return base, errs.Validationf("openaiModel must be a non-empty string")
		}
		out.OpenAIModel = m
	}
	if p.AnthropicModel != nil {
		m := strings.TrimSpace(*p.AnthropicModel)
		if m == "" {
			return base, errs.Validationf("anthropicModel must be a non-empty string")
		}
		out.AnthropicModel = m
	}
	if p.Tone != nil {
		if !slices.Contains(model.Tones, *p.Tone) {
			return base, errs.Validationf("tone must be one of: %s", strings.Join(model.Tones, ", "))
		}
		out.Tone = *p.Tone
	}
	if p.Detail != nil {
		if !slices.Contains(model.Details, *p.Detail) {
			return base, errs.Validationf("detail must be one of: %s", strings.Join(model.Details, ", "))
		}
		out.Detail = *p.Detail
	}
	if p.Audience != nil {
		out.Audience = strings.TrimSpace(*p.Audience)
	}
	return out, nil
}

func joinProviders() string {
	names := make([]string, len(model.Providers))
	for i, p := range model.Providers {
		names[i] = string(p)
	}
	return strings.Join(names, ", ")
}
