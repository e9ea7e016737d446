// Package service contains application services: prompt enhancement, credentials, accounts,
// history and quota reporting.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/and161185/prompt-enhancer/internal/errs"
	"github.com/and161185/prompt-enhancer/internal/gateway"
	"github.com/and161185/prompt-enhancer/internal/metrics"
	"github.com/and161185/prompt-enhancer/internal/model"
	"github.com/and161185/prompt-enhancer/internal/quota"
	"github.com/and161185/prompt-enhancer/internal/repository"
	"github.com/and161185/prompt-enhancer/internal/template"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

// EnhanceRequest is one prompt to rewrite on behalf of a verified caller.
type EnhanceRequest struct {
	Subject      string
	OriginalText string
	Context      string
	Site         string
	Requester    model.Requester
}

// EnhanceResult is returned to the client.
type EnhanceResult struct {
	EnhancedText string          `json:"enhancedText"`
	PromptID     uuid.UUID       `json:"promptId"`
	Method       model.Method    `json:"method"`
	TokensUsed   int             `json:"tokensUsed"`
	Cost         model.Cost      `json:"cost"`
	QuotaInfo    model.QuotaInfo `json:"quotaInfo"`
	// Warning carries the upstream failure message when a fallback was served.
	Warning string `json:"warning,omitempty"`
}

// EnhanceService rewrites prompts.
type EnhanceService interface {
	Enhance(ctx context.Context, req EnhanceRequest) (EnhanceResult, error)
}

// EnhanceOptions tunes the pipeline.
type EnhanceOptions struct {
	// SharedKeys are the service-operated credentials, metered against plan quotas.
	SharedKeys map[model.Provider]string
	// FallbackOnUpstreamError serves a local rewrite instead of failing when the provider call fails.
	FallbackOnUpstreamError bool
	ContextBudget           int
	GatewayTimeout          time.Duration
}

type EnhanceServiceImpl struct {
	users   repository.UserRepository
	plans   repository.PlanRepository
	records repository.EnhancementRepository
	creds   CredentialService
	ledger  *quota.Ledger
	gw      gateway.Gateway
	opts    EnhanceOptions
	log     *zap.Logger
	now     func() time.Time
}

// NewEnhanceService constructs EnhanceService.
func NewEnhanceService(
	users repository.UserRepository,
	plans repository.PlanRepository,
	records repository.EnhancementRepository,
	creds CredentialService,
	ledger *quota.Ledger,
	gw gateway.Gateway,
	opts EnhanceOptions,
	log *zap.Logger,
) *EnhanceServiceImpl {
	if opts.ContextBudget <= 0 {
		opts.ContextBudget = DefaultContextBudget
	}
	if opts.GatewayTimeout <= 0 {
		opts.GatewayTimeout = 30 * time.Second
	}
	return &EnhanceServiceImpl{
		users: users, plans: plans, records: records, creds: creds,
		ledger: ledger, gw: gw, opts: opts, log: log, now: time.Now,
	}
}

type credential struct {
	key      string
	personal bool
}

func (c credential) requestType() model.RequestType {
	if c.personal {
		return model.RequestPersonal
	}
	return model.RequestFree
}

func (c credential) source() model.KeySource {
	if c.personal {
		return model.KeyUser
	}
	return model.KeyShared
}

// Enhance runs the pipeline:
// validate, load user and plan, resolve credential, try templates, reserve quota (shared key only),
// call the provider, fall back on provider failure, persist the record.
func (s *EnhanceServiceImpl) Enhance(ctx context.Context, req EnhanceRequest) (EnhanceResult, error) {
	start := s.now()

	if req.Subject == "" {
		return EnhanceResult{}, errs.ErrUnauthorized
	}
	if strings.TrimSpace(req.OriginalText) == "" || req.Site == "" {
		return EnhanceResult{}, errs.Validationf("Missing required fields: originalText, site")
	}
	if !model.ValidSite(req.Site) {
		return EnhanceResult{}, errs.Validationf("site must be one of: %s, %s", model.SiteChatGPT, model.SiteClaude)
	}

	u, err := s.users.GetByExternalID(ctx, req.Subject)
	if err != nil {
		return EnhanceResult{}, err
	}
	plan, err := s.plans.GetByID(ctx, u.PlanID)
	if err != nil {
		return EnhanceResult{}, fmt.Errorf("load plan: %w", err)
	}

	settings := u.Settings
	provider := settings.Provider
	if !provider.Valid() {
		provider = model.ProviderOpenAI
	}
	cred, err := s.resolveCredential(ctx, u, provider, req.Requester)
	if err != nil {
		return EnhanceResult{}, err
	}

	trimmed := TrimContext(req.Context, s.opts.ContextBudget)
	rec := &model.EnhancementRecord{
		UserID:       u.ID,
		OriginalText: req.OriginalText,
		Provider:     provider,
		Model:        settings.ModelFor(provider),
		Site:         req.Site,
		Settings:     settings,
		Context:      trimmed,
		RequestType:  cred.requestType(),
		KeySource:    cred.source(),
	}

	if template.ShouldAttempt(req.OriginalText) {
		if out, ok := template.TryEnhance(req.OriginalText, trimmed); ok {
			rec.EnhancedText = out
			rec.Method = model.MethodTemplate
			return s.finish(ctx, start, rec, u, plan, cred, "")
		}
	}

	var reservation quota.Reservation
	if !cred.personal {
		reservation, err = s.ledger.Reserve(ctx, u.ID, *plan)
		if err != nil {
			var qe *errs.QuotaExceededError
			if errors.As(err, &qe) {
				metrics.RecordQuotaRejection(string(qe.Window))
				s.log.Info("quota exceeded", zap.String("user", u.ID.String()), zap.String("window", string(qe.Window)))
			}
			return EnhanceResult{}, err
		}
	}

	res, gerr := s.invoke(ctx, gateway.Request{
		Provider: provider,
		APIKey:   cred.key,
		Model:    rec.Model,
		System:   SystemPrompt(settings),
		User:     UserPayload(req.Site, req.OriginalText, trimmed),
	})

	if gerr == nil {
		cost := gateway.CalculateCost(provider, rec.Model, res.InputTokens, res.OutputTokens)
		if !cred.personal {
			s.settle(ctx, reservation, model.UsageRequest{
				Provider: provider,
				Tokens:   res.InputTokens + res.OutputTokens,
				Cost:     cost,
				Success:  true,
			})
		}
		rec.EnhancedText = res.Text
		rec.Method = model.MethodAI
		rec.Tokens = res.InputTokens + res.OutputTokens
		rec.Cost = model.Cost{InputTokens: res.InputTokens, OutputTokens: res.OutputTokens, TotalCostUSD: cost}
		return s.finish(ctx, start, rec, u, plan, cred, "")
	}

	if !cred.personal {
		s.settle(ctx, reservation, model.UsageRequest{
			Provider:     provider,
			Success:      false,
			ErrorMessage: gerr.Error(),
		})
	}
	s.log.Warn("upstream enhancement failed",
		zap.String("user", u.ID.String()),
		zap.String("provider", string(provider)),
		zap.String("model", rec.Model),
		zap.Bool("personal", cred.personal),
		zap.Error(gerr))

	warning := gerr.Error()
	if !cred.personal {
		warning += " You can add your personal API key in settings for better reliability."
	}
	if !s.opts.FallbackOnUpstreamError {
		rec.Method = model.MethodFailed
		if err := s.persist(ctx, start, rec); err != nil {
			s.log.Error("save failed enhancement", zap.String("user", u.ID.String()), zap.Error(err))
		}
		return EnhanceResult{}, gerr
	}
	rec.EnhancedText = Fallback(req.OriginalText, trimmed)
	rec.Method = model.MethodFallback
	return s.finish(ctx, start, rec, u, plan, cred, warning)
}

// resolveCredential prefers the user's own key, then the shared key for the provider.
func (s *EnhanceServiceImpl) resolveCredential(ctx context.Context, u *model.User, p model.Provider, req model.Requester) (credential, error) {
	if key, ok := s.creds.GetActiveKey(ctx, u, p, req); ok {
		return credential{key: key, personal: true}, nil
	}
	if key := s.opts.SharedKeys[p]; key != "" {
		return credential{key: key}, nil
	}
	return credential{}, errs.Configurationf(
		"No %s API key available. Please add your personal API key in settings for unlimited usage, or contact support.", p)
}

func (s *EnhanceServiceImpl) invoke(ctx context.Context, req gateway.Request) (gateway.Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.opts.GatewayTimeout)
	defer cancel()

	began := s.now()
	res, err := s.gw.Invoke(callCtx, req)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		var ue *errs.UpstreamError
		if errors.As(err, &ue) {
			outcome = string(ue.Kind)
		}
	}
	metrics.RecordUpstreamCall(string(req.Provider), outcome, s.now().Sub(began).Seconds(), res.InputTokens, res.OutputTokens)
	return res, err
}

// persistTimeout bounds the bookkeeping writes that run after the provider call.
const persistTimeout = 5 * time.Second

// detached keeps ctx values and drops its cancellation.
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
}

// settle concludes a shared-key reservation. A ledger write failure is logged; the caller's
// result does not depend on it.
func (s *EnhanceServiceImpl) settle(ctx context.Context, r quota.Reservation, req model.UsageRequest) {
	ctx, cancel := detached(ctx)
	defer cancel()
	if err := s.ledger.RecordRequest(ctx, r, req); err != nil {
		s.log.Error("record usage", zap.String("user", r.UserID.String()), zap.Bool("success", req.Success), zap.Error(err))
	}
}

// persist stamps and stores rec.
func (s *EnhanceServiceImpl) persist(ctx context.Context, start time.Time, rec *model.EnhancementRecord) error {
	id, err := uuid.NewV4()
	if err != nil {
		return err
	}
	now := s.now()
	rec.ID = id
	rec.CreatedAt = now.UTC()
	rec.ProcessingTime = now.Sub(start)

	ctx, cancel := detached(ctx)
	defer cancel()
	if err := s.records.Create(ctx, rec); err != nil {
		return fmt.Errorf("save enhancement: %w", err)
	}
	return nil
}

// finish persists the record and builds the response.
func (s *EnhanceServiceImpl) finish(ctx context.Context, start time.Time, rec *model.EnhancementRecord, u *model.User, plan *model.Plan, cred credential, warning string) (EnhanceResult, error) {
	if err := s.persist(ctx, start, rec); err != nil {
		return EnhanceResult{}, err
	}

	info := quota.PersonalInfo()
	if !cred.personal {
		var err error
		infoCtx, cancel := detached(ctx)
		info, err = s.ledger.Info(infoCtx, u.ID, *plan, false)
		cancel()
		if err != nil {
			s.log.Warn("quota info", zap.String("user", u.ID.String()), zap.Error(err))
			info = model.QuotaInfo{PlanName: plan.DisplayName}
		}
	}

	metrics.RecordEnhancement(string(rec.Method), string(rec.RequestType), string(rec.Provider), string(rec.KeySource), rec.Cost.TotalCostUSD)
	s.log.Info("enhancement served",
		zap.String("user", u.ID.String()),
		zap.String("method", string(rec.Method)),
		zap.String("provider", string(rec.Provider)),
		zap.String("request_type", string(rec.RequestType)),
		zap.Int("tokens", rec.Tokens),
		zap.Duration("elapsed", rec.ProcessingTime))

	return EnhanceResult{
		EnhancedText: rec.EnhancedText,
		PromptID:     rec.ID,
		Method:       rec.Method,
		TokensUsed:   rec.Tokens,
		Cost:         rec.Cost,
		QuotaInfo:    info,
		Warning:      warning,
	}, nil
}
