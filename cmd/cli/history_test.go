package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func testStore(t *testing.T, maxBytes int) *historyStore {
	t.Helper()
	s := newHistoryStore(filepath.Join(t.TempDir(), "pe", "history.json"))
	s.maxBytes = maxBytes
	s.now = func() time.Time { return time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC) }
	return s
}

func Test_history_EmptyWhenMissing(t *testing.T) {
	t.Parallel()

	items, err := testStore(t, historyMaxBytes).Load()
	if err != nil || items == nil || len(items) != 0 {
		t.Fatalf("want empty history, got %v %v", items, err)
	}
}

func Test_history_NewestFirstAndCapped(t *testing.T) {
	t.Parallel()

	s := testStore(t, 1<<20)
	for i := 0; i < maxHistoryItems+3; i++ {
		if err := s.Add("Claude", strings.Repeat("a", i+1), "b"); err != nil {
			t.Fatalf("Add %d: %v", i, err)
		}
	}
	items, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(items) != maxHistoryItems {
		t.Fatalf("len=%d, want %d", len(items), maxHistoryItems)
	}
	if len(items[0].InputPreview) != maxHistoryItems+3 {
		t.Fatalf("newest item must be first: %q", items[0].InputPreview)
	}
	if items[0].ID == "" || items[0].ID == items[1].ID || items[0].Site != "Claude" {
		t.Fatalf("item fields unexpected: %+v", items[0])
	}
}

func Test_history_PreviewsTruncatedByRune(t *testing.T) {
	t.Parallel()

	s := testStore(t, 1<<20)
	if err := s.Add("Claude", strings.Repeat("é", 300), strings.Repeat("x", 250)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	items, _ := s.Load()
	if n := utf8.RuneCountInString(items[0].InputPreview); n != previewLen {
		t.Fatalf("input preview runes=%d", n)
	}
	if len(items[0].ImprovedPreview) != previewLen {
		t.Fatalf("improved preview len=%d", len(items[0].ImprovedPreview))
	}
}

func Test_history_RetryOnceWithSmallerPreview(t *testing.T) {
	t.Parallel()

	// room for one short item only
	s := testStore(t, 500)
	long := strings.Repeat("z", 400)
	for i := 0; i < 2; i++ {
		if err := s.Add("ChatGPT", long, long); err != nil {
			t.Fatalf("Add %d: %v", i, err)
		}
	}
	items, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("retry must replace history with the new item, got %d", len(items))
	}
	if len(items[0].InputPreview) != retryPreviewLen || len(items[0].ImprovedPreview) != retryPreviewLen {
		t.Fatalf("retry previews not shortened: %d/%d", len(items[0].InputPreview), len(items[0].ImprovedPreview))
	}
}

func Test_history_RetryFailsAtMostOnce(t *testing.T) {
	t.Parallel()

	s := testStore(t, 50)
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(s.path, []byte(`[]`), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := s.Add("ChatGPT", "text", "text"); err != errStoreFull {
		t.Fatalf("want errStoreFull after one retry, got %v", err)
	}
	if _, err := os.Stat(s.path); !os.IsNotExist(err) {
		t.Fatalf("history should have been cleared before the retry")
	}
}

func Test_history_CorruptFile(t *testing.T) {
	t.Parallel()

	s := testStore(t, historyMaxBytes)
	_ = os.MkdirAll(filepath.Dir(s.path), 0o700)
	_ = os.WriteFile(s.path, []byte("{broken"), 0o600)
	if _, err := s.Load(); err == nil {
		t.Fatalf("want decode error")
	}
	if err := s.Add("Claude", "in", "out"); err != nil {
		t.Fatalf("Add over corrupt file: %v", err)
	}
	items, err := s.Load()
	if err != nil || len(items) != 1 {
		t.Fatalf("corrupt history should be replaced: %v %v", items, err)
	}
}
