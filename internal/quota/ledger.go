package quota

import (
	"context"
	"time"

	"github.com/and161185/prompt-enhancer/internal/errs"
	"github.com/and161185/prompt-enhancer/internal/model"
	"github.com/gofrs/uuid/v5"
)

// Decision is the outcome of a quota check.
type Decision int

const (
	Allowed Decision = iota
	DailyExceeded
	MonthlyExceeded
)

func (d Decision) String() string {
	switch d {
	case DailyExceeded:
		return "daily_exceeded"
	case MonthlyExceeded:
		return "monthly_exceeded"
	default:
		return "allowed"
	}
}

// CheckAllowed decides whether one more shared-key request fits the plan.
func CheckAllowed(e model.UsageLedgerEntry, p model.Plan) Decision {
	if !p.UnlimitedDaily() && e.DailyUsed >= p.DailyLimit {
		return DailyExceeded
	}
	if !p.UnlimitedMonthly() && e.MonthlyUsed >= p.MonthlyLimit {
		return MonthlyExceeded
	}
	return Allowed
}

// Reservation is a slot taken by Reserve, settled by RecordRequest.
type Reservation struct {
	LedgerID uuid.UUID
	UserID   uuid.UUID
	Entry    model.UsageLedgerEntry
}

// Ledger applies quota rules on top of a Store.
type Ledger struct {
	store Store
	now   func() time.Time
}

// NewLedger constructs a ledger. now may be nil to use the wall clock.
func NewLedger(store Store, now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{store: store, now: now}
}

// DayKey and MonthKey return the UTC calendar keys for t.
func DayKey(t time.Time) string   { return t.UTC().Format("2006-01-02") }
func MonthKey(t time.Time) string { return t.UTC().Format("2006-01") }

// GetOrCreateToday returns today's ledger row for userID.
func (l *Ledger) GetOrCreateToday(ctx context.Context, userID uuid.UUID) (model.UsageLedgerEntry, error) {
	now := l.now()
	return l.store.Ensure(ctx, userID, DayKey(now), MonthKey(now))
}

// Reserve atomically takes one slot of the plan's quota for a shared-key AI request.
// It returns *errs.QuotaExceededError when the daily or monthly ceiling is reached.
func (l *Ledger) Reserve(ctx context.Context, userID uuid.UUID, plan model.Plan) (Reservation, error) {
	entry, err := l.GetOrCreateToday(ctx, userID)
	if err != nil {
		return Reservation{}, err
	}
	if d := CheckAllowed(entry, plan); d != Allowed {
		return Reservation{}, exceeded(d, plan)
	}

	updated, ok, err := l.store.Reserve(ctx, entry.ID, plan.DailyLimit, plan.MonthlyLimit)
	if err != nil {
		return Reservation{}, err
	}
	if !ok {
		// Lost a race for the last slot: classify from fresh counters.
		fresh, err := l.GetOrCreateToday(ctx, userID)
		if err != nil {
			return Reservation{}, err
		}
		d := CheckAllowed(fresh, plan)
		if d == Allowed {
			d = DailyExceeded
		}
		return Reservation{}, exceeded(d, plan)
	}
	return Reservation{LedgerID: entry.ID, UserID: userID, Entry: updated}, nil
}

// RecordRequest settles a reservation. The reserved slot is kept only when req.Success is true,
// so counters reflect successful requests alone.
func (l *Ledger) RecordRequest(ctx context.Context, r Reservation, req model.UsageRequest) error {
	if req.At.IsZero() {
		req.At = l.now()
	}
	return l.store.Append(ctx, r.LedgerID, req, !req.Success)
}

// Requests returns today's recorded requests for userID.
func (l *Ledger) Requests(ctx context.Context, userID uuid.UUID) ([]model.UsageRequest, error) {
	entry, err := l.GetOrCreateToday(ctx, userID)
	if err != nil {
		return nil, err
	}
	return l.store.Requests(ctx, entry.ID)
}

// Info reports usage against plan; personal-key callers are shown as unlimited.
func (l *Ledger) Info(ctx context.Context, userID uuid.UUID, plan model.Plan, personal bool) (model.QuotaInfo, error) {
	if personal {
		return PersonalInfo(), nil
	}
	entry, err := l.GetOrCreateToday(ctx, userID)
	if err != nil {
		return model.QuotaInfo{}, err
	}
	return BuildInfo(entry, plan), nil
}

// PersonalInfo is the quota view for requests served by the caller's own key.
func PersonalInfo() model.QuotaInfo {
	return model.QuotaInfo{
		DailyLimit:       -1,
		DailyRemaining:   -1,
		MonthlyLimit:     -1,
		MonthlyRemaining: -1,
		PlanName:         "Personal API Key",
		IsUnlimited:      true,
	}
}

// BuildInfo converts counters and plan limits into the client view.
func BuildInfo(e model.UsageLedgerEntry, p model.Plan) model.QuotaInfo {
	info := model.QuotaInfo{
		DailyUsed:   e.DailyUsed,
		MonthlyUsed: e.MonthlyUsed,
		PlanName:    p.DisplayName,
		IsUnlimited: p.UnlimitedDaily() && p.UnlimitedMonthly(),
	}
	if p.UnlimitedDaily() {
		info.DailyLimit, info.DailyRemaining = -1, -1
	} else {
		info.DailyLimit, info.DailyRemaining = p.DailyLimit, max(0, p.DailyLimit-e.DailyUsed)
	}
	if p.UnlimitedMonthly() {
		info.MonthlyLimit, info.MonthlyRemaining = -1, -1
	} else {
		info.MonthlyLimit, info.MonthlyRemaining = p.MonthlyLimit, max(0, p.MonthlyLimit-e.MonthlyUsed)
	}
	return info
}

func exceeded(d Decision, p model.Plan) error {
	if d == MonthlyExceeded {
		return &errs.QuotaExceededError{Window: errs.WindowMonthly, Limit: p.MonthlyLimit}
	}
	return &errs.QuotaExceededError{Window: errs.WindowDaily, Limit: p.DailyLimit}
}
