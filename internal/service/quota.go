package service

import (
	"context"
	"time"

	"github.com/and161185/prompt-enhancer/internal/model"
	"github.com/and161185/prompt-enhancer/internal/quota"
	"github.com/and161185/prompt-enhancer/internal/repository"
)

// QuotaView is the caller's usage against their plan, split by billing class.
type QuotaView struct {
	model.QuotaInfo
	Usage              model.UsageSplit `json:"usage"`
	HasPersonalAPIKeys bool             `json:"hasPersonalApiKeys"`
}

// QuotaService reports usage.
type QuotaService interface {
	View(ctx context.Context, u *model.User, plan model.Plan) (QuotaView, error)
}

type QuotaServiceImpl struct {
	ledger  *quota.Ledger
	history repository.EnhancementRepository
	now     func() time.Time
}

// NewQuotaService constructs QuotaService.
func NewQuotaService(ledger *quota.Ledger, history repository.EnhancementRepository) *QuotaServiceImpl {
	return &QuotaServiceImpl{ledger: ledger, history: history, now: time.Now}
}

// View reports shared-key quota. Personal keys do not change the reported limits here; the
// split shows how much traffic they carried.
func (s *QuotaServiceImpl) View(ctx context.Context, u *model.User, plan model.Plan) (QuotaView, error) {
	info, err := s.ledger.Info(ctx, u.ID, plan, false)
	if err != nil {
		return QuotaView{}, err
	}
	now := s.now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	split, err := s.history.UsageSplit(ctx, u.ID, dayStart, monthStart)
	if err != nil {
		return QuotaView{}, err
	}
	return QuotaView{
		QuotaInfo:          info,
		Usage:              split,
		HasPersonalAPIKeys: hasPersonalKey(u),
	}, nil
}

func hasPersonalKey(u *model.User) bool {
	for _, p := range model.Providers {
		if c := u.Credential(p); c.Configured() && c.IsValid {
			return true
		}
	}
	return false
}
