package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/and161185/prompt-enhancer/internal/errs"
	"github.com/and161185/prompt-enhancer/internal/gateway"
	"github.com/and161185/prompt-enhancer/internal/model"
	"github.com/and161185/prompt-enhancer/internal/quota"
	"github.com/and161185/prompt-enhancer/internal/repository"
	"github.com/and161185/prompt-enhancer/internal/vault"
	"github.com/gofrs/uuid/v5"
)

/************ users ************/
type fakeUsers struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*model.User

	createErr error
	putErr    error
	creates   int
}

var _ repository.UserRepository = (*fakeUsers)(nil)

func newFakeUsers(us ...*model.User) *fakeUsers {
	f := &fakeUsers{byID: map[uuid.UUID]*model.User{}}
	for _, u := range us {
		c := *u
		f.byID[u.ID] = &c
	}
	return f
}

func (f *fakeUsers) Create(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.createErr != nil {
		return f.createErr
	}
	for _, x := range f.byID {
		if x.ExternalID == u.ExternalID {
			return errs.ErrAlreadyExists
		}
	}
	c := *u
	f.byID[u.ID] = &c
	return nil
}

func (f *fakeUsers) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (f *fakeUsers) GetByExternalID(_ context.Context, ext string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if u.ExternalID == ext {
			c := *u
			return &c, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (f *fakeUsers) UpdateSettings(_ context.Context, id uuid.UUID, s model.Settings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return errs.ErrNotFound
	}
	u.Settings = s
	return nil
}

func (f *fakeUsers) PutCredential(_ context.Context, id uuid.UUID, p model.Provider, c model.EncryptedCredential) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return f.putErr
	}
	u, ok := f.byID[id]
	if !ok {
		return errs.ErrNotFound
	}
	u.SetCredential(p, c)
	return nil
}

func (f *fakeUsers) Touch(_ context.Context, id uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.byID[id]; ok {
		u.LastActive = at
	}
	return nil
}

func (f *fakeUsers) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[id]; !ok {
		return errs.ErrNotFound
	}
	delete(f.byID, id)
	return nil
}

/************ plans ************/
type fakePlans struct {
	plans []model.Plan
}

var _ repository.PlanRepository = (*fakePlans)(nil)

func (f *fakePlans) GetByID(_ context.Context, id uuid.UUID) (*model.Plan, error) {
	for i := range f.plans {
		if f.plans[i].ID == id {
			p := f.plans[i]
			return &p, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (f *fakePlans) GetByName(_ context.Context, name string) (*model.Plan, error) {
	for i := range f.plans {
		if f.plans[i].Name == name && f.plans[i].IsActive {
			p := f.plans[i]
			return &p, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (f *fakePlans) ListActive(_ context.Context) ([]model.Plan, error) {
	var out []model.Plan
	for _, p := range f.plans {
		if p.IsActive {
			out = append(out, p)
		}
	}
	return out, nil
}

var (
	freePlanID       = uuid.Must(uuid.FromString("00000000-0000-4000-8000-000000000001"))
	enterprisePlanID = uuid.Must(uuid.FromString("00000000-0000-4000-8000-000000000004"))
)

func catalog() *fakePlans {
	return &fakePlans{plans: []model.Plan{
		{ID: freePlanID, Name: "free", DisplayName: "Free", DailyLimit: 10, MonthlyLimit: 200, IsActive: true},
		{ID: enterprisePlanID, Name: "enterprise", DisplayName: "Enterprise", DailyLimit: model.UnlimitedSentinel, MonthlyLimit: model.UnlimitedSentinel, IsActive: true},
	}}
}

/************ audit ************/
type fakeAudit struct {
	mu        sync.Mutex
	entries   []model.CredentialAuditEntry
	appendErr error
}

var _ repository.AuditRepository = (*fakeAudit)(nil)

func (f *fakeAudit) Append(_ context.Context, e model.CredentialAuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeAudit) List(_ context.Context, userID uuid.UUID, limit int) ([]model.CredentialAuditEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.CredentialAuditEntry
	for i := len(f.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if f.entries[i].UserID == userID {
			out = append(out, f.entries[i])
		}
	}
	return out, nil
}

func (f *fakeAudit) actions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.entries))
	for _, e := range f.entries {
		s := string(e.Action) + ":" + string(e.Provider)
		if !e.Success {
			s += ":fail"
		}
		out = append(out, s)
	}
	return out
}

/************ enhancement records ************/
type fakeRecords struct {
	mu        sync.Mutex
	recs      []model.EnhancementRecord
	createErr error
}

var _ repository.EnhancementRepository = (*fakeRecords)(nil)

func (f *fakeRecords) Create(ctx context.Context, r *model.EnhancementRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.recs = append(f.recs, *r)
	return nil
}

func (f *fakeRecords) List(_ context.Context, userID uuid.UUID, flt model.HistoryFilter) ([]model.EnhancementRecord, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var match []model.EnhancementRecord
	for _, r := range f.recs {
		if r.UserID != userID {
			continue
		}
		if flt.Site != "" && r.Site != flt.Site {
			continue
		}
		if flt.Provider != "" && r.Provider != flt.Provider {
			continue
		}
		if flt.Search != "" {
			q := strings.ToLower(flt.Search)
			if !strings.Contains(strings.ToLower(r.OriginalText), q) && !strings.Contains(strings.ToLower(r.EnhancedText), q) {
				continue
			}
		}
		match = append(match, r)
	}
	sort.SliceStable(match, func(i, j int) bool { return match[i].CreatedAt.After(match[j].CreatedAt) })
	from := (flt.Page - 1) * flt.Limit
	if from > len(match) {
		from = len(match)
	}
	to := min(from+flt.Limit, len(match))
	return match[from:to], len(match), nil
}

func (f *fakeRecords) Stats(_ context.Context, userID uuid.UUID) (model.HistoryStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var st model.HistoryStats
	var ms float64
	for _, r := range f.recs {
		if r.UserID != userID {
			continue
		}
		st.TotalPrompts++
		st.TotalTokens += r.Tokens
		st.TotalCostUSD += r.Cost.TotalCostUSD
		ms += float64(r.ProcessingTime.Milliseconds())
	}
	if st.TotalPrompts > 0 {
		st.AvgProcessingTime = ms / float64(st.TotalPrompts)
	}
	return st, nil
}

func (f *fakeRecords) UsageSplit(_ context.Context, userID uuid.UUID, dayStart, monthStart time.Time) (model.UsageSplit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var s model.UsageSplit
	for _, r := range f.recs {
		if r.UserID != userID || r.CreatedAt.Before(monthStart) {
			continue
		}
		today := !r.CreatedAt.Before(dayStart)
		if r.RequestType == model.RequestPersonal {
			s.PersonalMonthly++
			s.PersonalCostMonth += r.Cost.TotalCostUSD
			if today {
				s.PersonalDaily++
			}
		} else {
			s.FreeMonthly++
			if today {
				s.FreeDaily++
			}
		}
	}
	return s, nil
}

func (f *fakeRecords) Delete(_ context.Context, userID, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, r := range f.recs {
		if r.ID == id && r.UserID == userID {
			f.recs = append(f.recs[:i], f.recs[i+1:]...)
			return nil
		}
	}
	return errs.ErrNotFound
}

func (f *fakeRecords) DeleteAll(_ context.Context, userID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.recs[:0]
	var n int64
	for _, r := range f.recs {
		if r.UserID == userID {
			n++
			continue
		}
		kept = append(kept, r)
	}
	f.recs = kept
	return n, nil
}

func (f *fakeRecords) all() []model.EnhancementRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.EnhancementRecord(nil), f.recs...)
}

/************ quota store ************/
type memLedger struct {
	mu       sync.Mutex
	rows     map[string]*model.UsageLedgerEntry
	requests map[uuid.UUID][]model.UsageRequest
}

var _ quota.Store = (*memLedger)(nil)

func newMemLedger() *memLedger {
	return &memLedger{rows: map[string]*model.UsageLedgerEntry{}, requests: map[uuid.UUID][]model.UsageRequest{}}
}

func (m *memLedger) Ensure(ctx context.Context, userID uuid.UUID, day, month string) (model.UsageLedgerEntry, error) {
	if err := ctx.Err(); err != nil {
		return model.UsageLedgerEntry{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := userID.String() + "|" + day
	if e, ok := m.rows[key]; ok {
		return *e, nil
	}
	e := &model.UsageLedgerEntry{ID: uuid.Must(uuid.NewV4()), UserID: userID, Day: day, Month: month}
	m.rows[key] = e
	return *e, nil
}

func (m *memLedger) find(id uuid.UUID) *model.UsageLedgerEntry {
	for _, e := range m.rows {
		if e.ID == id {
			return e
		}
	}
	return nil
}

func (m *memLedger) Reserve(ctx context.Context, id uuid.UUID, dl, ml int) (model.UsageLedgerEntry, bool, error) {
	if err := ctx.Err(); err != nil {
		return model.UsageLedgerEntry{}, false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.find(id)
	if e == nil {
		return model.UsageLedgerEntry{}, false, errs.ErrNotFound
	}
	if (dl < model.UnlimitedSentinel && e.DailyUsed >= dl) || (ml < model.UnlimitedSentinel && e.MonthlyUsed >= ml) {
		return model.UsageLedgerEntry{}, false, nil
	}
	e.DailyUsed++
	e.MonthlyUsed++
	return *e, true, nil
}

func (m *memLedger) Append(ctx context.Context, id uuid.UUID, req model.UsageRequest, release bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.find(id)
	if e == nil {
		return errs.ErrNotFound
	}
	if release {
		e.DailyUsed = max(0, e.DailyUsed-1)
		e.MonthlyUsed = max(0, e.MonthlyUsed-1)
	}
	m.requests[id] = append(m.requests[id], req)
	return nil
}

func (m *memLedger) Requests(_ context.Context, id uuid.UUID) ([]model.UsageRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.UsageRequest(nil), m.requests[id]...), nil
}

// seed sets today's counters for userID.
func (m *memLedger) seed(userID uuid.UUID, day, month string, daily, monthly int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[userID.String()+"|"+day] = &model.UsageLedgerEntry{
		ID: uuid.Must(uuid.NewV4()), UserID: userID, Day: day, Month: month, DailyUsed: daily, MonthlyUsed: monthly,
	}
}

/************ gateway ************/
type fakeGateway struct {
	mu    sync.Mutex
	calls int
	last  gateway.Request
	res   gateway.Result
	err   error
	// during runs while the call is in flight.
	during func()
}

var _ gateway.Gateway = (*fakeGateway)(nil)

func (f *fakeGateway) Invoke(_ context.Context, req gateway.Request) (gateway.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.last = req
	if f.during != nil {
		f.during()
	}
	return f.res, f.err
}

func (f *fakeGateway) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

/************ helpers ************/
const testMasterKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func newCipher(t *testing.T) *vault.Cipher {
	t.Helper()
	c, err := vault.New(testMasterKey)
	if err != nil {
		t.Fatalf("vault: %v", err)
	}
	return c
}

func newUser(ext string, planID uuid.UUID) *model.User {
	return &model.User{
		ID:         uuid.Must(uuid.NewV4()),
		ExternalID: ext,
		PlanID:     planID,
		Settings:   model.DefaultSettings(),
	}
}

// sealFor stores key in u's slot for p.
func sealFor(t *testing.T, c *vault.Cipher, u *model.User, p model.Provider, key string) {
	t.Helper()
	s, err := c.Encrypt(key)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	u.SetCredential(p, model.EncryptedCredential{Ciphertext: s.Ciphertext, IV: s.IV, AuthTag: s.AuthTag, IsValid: true, LastUpdated: time.Now()})
}

var errBoom = errors.New("boom")
