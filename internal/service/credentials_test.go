package service

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/and161185/prompt-enhancer/internal/errs"
	"github.com/and161185/prompt-enhancer/internal/model"
	"go.uber.org/zap"
)

const anthropicKey = "sk-ant-REDACTED"

func newCredEnv(t *testing.T) (*CredentialServiceImpl, *fakeUsers, *fakeAudit, *model.User) {
	t.Helper()
	u := newUser("sub-c", freePlanID)
	users := newFakeUsers(u)
	audit := &fakeAudit{}
	return NewCredentialService(users, audit, newCipher(t), zap.NewNop()), users, audit, u
}

func TestPut_CreatedUpdatedRotated(t *testing.T) {
	t.Parallel()

	s, users, audit, u := newCredEnv(t)
	ctx := context.Background()
	req := model.Requester{IP: "10.0.0.1", UserAgent: "ext/1.0"}

	act, err := s.Put(ctx, u, model.ProviderOpenAI, "  "+personalOpenAIKey+"\n", req)
	if err != nil || act != model.AuditCreated {
		t.Fatalf("first put: act=%v err=%v", act, err)
	}
	act, err = s.Put(ctx, u, model.ProviderOpenAI, personalOpenAIKey, req)
	if err != nil || act != model.AuditUpdated {
		t.Fatalf("same key: act=%v err=%v", act, err)
	}
	other := "sk-" + strings.Repeat("Z", 48)
	act, err = s.Put(ctx, u, model.ProviderOpenAI, other, req)
	if err != nil || act != model.AuditRotated {
		t.Fatalf("new key: act=%v err=%v", act, err)
	}

	stored, _ := users.GetByID(ctx, u.ID)
	slot := stored.Credential(model.ProviderOpenAI)
	if !slot.Configured() || !slot.IsValid || strings.Contains(slot.Ciphertext, "ZZZZ") {
		t.Fatalf("slot not sealed: %+v", slot)
	}

	want := []string{"created:openai", "updated:openai", "rotated:openai"}
	if got := audit.actions(); !reflect.DeepEqual(got, want) {
		t.Fatalf("audit: want %v, got %v", want, got)
	}
	if audit.entries[0].IP != "10.0.0.1" || audit.entries[0].UserAgent != "ext/1.0" {
		t.Fatalf("requester not recorded: %+v", audit.entries[0])
	}
}

func TestPut_RejectsBadFormat(t *testing.T) {
	t.Parallel()

	s, users, audit, u := newCredEnv(t)
	_, err := s.Put(context.Background(), u, model.ProviderAnthropic, "sk-not-anthropic", model.Requester{})
	if !errors.Is(err, errs.ErrValidation) || err.Error() != "Invalid Anthropic API key format" {
		t.Fatalf("want validation error, got %v", err)
	}
	if stored, _ := users.GetByID(context.Background(), u.ID); stored.Anthropic.Configured() {
		t.Fatalf("invalid key stored")
	}
	if len(audit.actions()) != 0 {
		t.Fatalf("validation failures are not audited")
	}

	if _, err := s.Put(context.Background(), u, "gemini", anthropicKey, model.Requester{}); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("unknown provider: %v", err)
	}
}

func TestPut_EmptyKeyDeletes(t *testing.T) {
	t.Parallel()

	s, _, audit, u := newCredEnv(t)
	ctx := context.Background()
	if _, err := s.Put(ctx, u, model.ProviderAnthropic, anthropicKey, model.Requester{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	act, err := s.Put(ctx, u, model.ProviderAnthropic, "   ", model.Requester{})
	if err != nil || act != model.AuditDeleted {
		t.Fatalf("empty put: act=%v err=%v", act, err)
	}
	if u.Anthropic.Configured() {
		t.Fatalf("slot still configured")
	}
	if got := audit.actions(); got[len(got)-1] != "deleted:anthropic" {
		t.Fatalf("audit: %v", got)
	}
}

func TestPut_StoreFailureAudited(t *testing.T) {
	t.Parallel()

	s, users, audit, u := newCredEnv(t)
	users.putErr = errBoom
	if _, err := s.Put(context.Background(), u, model.ProviderOpenAI, personalOpenAIKey, model.Requester{}); !errors.Is(err, errBoom) {
		t.Fatalf("want store error, got %v", err)
	}
	if got := audit.actions(); len(got) != 1 || got[0] != "created:openai:fail" {
		t.Fatalf("audit: %v", got)
	}
	if u.OpenAI.Configured() {
		t.Fatalf("in-memory user changed after failed write")
	}
}

func TestSoftDelete_Idempotent(t *testing.T) {
	t.Parallel()

	s, _, audit, u := newCredEnv(t)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := s.SoftDelete(ctx, u, model.ProviderOpenAI, model.Requester{}); err != nil {
			t.Fatalf("delete %d: %v", i, err)
		}
	}
	if len(audit.actions()) != 2 {
		t.Fatalf("each delete is audited: %v", audit.actions())
	}
}

func TestGetActiveKey(t *testing.T) {
	t.Parallel()

	s, _, audit, u := newCredEnv(t)
	ctx := context.Background()

	if _, ok := s.GetActiveKey(ctx, u, model.ProviderOpenAI, model.Requester{}); ok {
		t.Fatalf("empty slot must not yield a key")
	}
	if n := len(audit.actions()); n != 0 {
		t.Fatalf("empty slot is not a read: %v", audit.actions())
	}

	if _, err := s.Put(ctx, u, model.ProviderOpenAI, personalOpenAIKey, model.Requester{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	before := len(audit.actions())
	key, ok := s.GetActiveKey(ctx, u, model.ProviderOpenAI, model.Requester{IP: "10.0.0.9"})
	if !ok || key != personalOpenAIKey {
		t.Fatalf("active key: %q %v", key, ok)
	}
	got := audit.actions()
	if len(got) != before+1 || got[len(got)-1] != "accessed:openai" {
		t.Fatalf("successful read must be audited: %v", got)
	}
	if audit.entries[len(audit.entries)-1].IP != "10.0.0.9" {
		t.Fatalf("requester not recorded on read")
	}
	before = len(got)

	// Corrupt the stored tag: the key is treated as absent and the failure audited.
	slot := u.OpenAI
	slot.AuthTag = strings.Repeat("00", 16)
	u.OpenAI = slot
	if _, ok := s.GetActiveKey(ctx, u, model.ProviderOpenAI, model.Requester{}); ok {
		t.Fatalf("tampered key must not be returned")
	}
	got = audit.actions()
	if len(got) != before+1 || got[len(got)-1] != "accessed:openai:fail" {
		t.Fatalf("audit: %v", got)
	}
}

func TestList_MasksAndReportsBrokenSlots(t *testing.T) {
	t.Parallel()

	s, _, _, u := newCredEnv(t)
	ctx := context.Background()
	if _, err := s.Put(ctx, u, model.ProviderOpenAI, personalOpenAIKey, model.Requester{}); err != nil {
		t.Fatalf("put openai: %v", err)
	}
	if _, err := s.Put(ctx, u, model.ProviderAnthropic, anthropicKey, model.Requester{}); err != nil {
		t.Fatalf("put anthropic: %v", err)
	}
	slot := u.Anthropic
	slot.Ciphertext = "zz"
	u.Anthropic = slot

	views := s.List(ctx, u, model.Requester{})
	if len(views) != 2 {
		t.Fatalf("want both providers, got %d", len(views))
	}
	oa, an := views[0], views[1]
	if !oa.HasKey || !oa.IsValid || oa.MaskedKey != "sk-...stuv" || oa.LastUpdated == nil {
		t.Fatalf("openai view: %+v", oa)
	}
	if !an.HasKey || an.IsValid || an.MaskedKey != "sk-ant-...Invalid" || an.Error != "Decryption failed" {
		t.Fatalf("anthropic view: %+v", an)
	}
}

func TestReveal(t *testing.T) {
	t.Parallel()

	s, _, audit, u := newCredEnv(t)
	ctx := context.Background()

	if _, err := s.Reveal(ctx, u, model.ProviderAnthropic, model.Requester{}); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want not found, got %v", err)
	}
	if _, err := s.Put(ctx, u, model.ProviderAnthropic, anthropicKey, model.Requester{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	key, err := s.Reveal(ctx, u, model.ProviderAnthropic, model.Requester{})
	if err != nil || key != anthropicKey {
		t.Fatalf("reveal: %q %v", key, err)
	}
	if got := audit.actions(); got[len(got)-1] != "accessed:anthropic" {
		t.Fatalf("reveal must be audited: %v", got)
	}
}

func TestAudit_LimitAndAppendFailure(t *testing.T) {
	t.Parallel()

	s, _, audit, u := newCredEnv(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_ = s.SoftDelete(ctx, u, model.ProviderOpenAI, model.Requester{})
	}
	got, err := s.Audit(ctx, u.ID, 2)
	if err != nil || len(got) != 2 {
		t.Fatalf("audit: %d %v", len(got), err)
	}

	audit.appendErr = errBoom
	if err := s.SoftDelete(ctx, u, model.ProviderOpenAI, model.Requester{}); err != nil {
		t.Fatalf("audit failure must not fail the operation: %v", err)
	}
}
