package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/uuid/v5"
)

const (
	previewLen      = 200
	retryPreviewLen = 100
	maxHistoryItems = 10
	// historyMaxBytes matches the per-item limit of browser sync storage.
	historyMaxBytes = 8192
)

var errStoreFull = errors.New("local history: size limit exceeded")

type historyItem struct {
	ID              string    `json:"id"`
	TS              time.Time `json:"ts"`
	Site            string    `json:"site"`
	InputPreview    string    `json:"inputPreview"`
	ImprovedPreview string    `json:"improvedPreview"`
}

// historyStore keeps recent enhancements in a small JSON file.
//
// Add writes at most twice: once with full previews, and once more after clearing
// the file with shorter previews if the first write hits the size limit.
type historyStore struct {
	path     string
	maxItems int
	maxBytes int
	now      func() time.Time
}

func newHistoryStore(path string) *historyStore {
	return &historyStore{path: path, maxItems: maxHistoryItems, maxBytes: historyMaxBytes, now: time.Now}
}

// Load returns stored items, newest first. A missing file is an empty history.
func (s *historyStore) Load() ([]historyItem, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return []historyItem{}, nil
	}
	if err != nil {
		return nil, err
	}
	var items []historyItem
	if err := json.Unmarshal(b, &items); err != nil {
		return nil, fmt.Errorf("local history: %w", err)
	}
	return items, nil
}

func (s *historyStore) Add(site, input, improved string) error {
	items, err := s.Load()
	if err != nil {
		items = nil
	}
	list := append([]historyItem{s.item(site, input, improved, previewLen)}, items...)
	if len(list) > s.maxItems {
		list = list[:s.maxItems]
	}
	err = s.write(list)
	if !errors.Is(err, errStoreFull) {
		return err
	}

	if err := s.clear(); err != nil {
		return err
	}
	return s.write([]historyItem{s.item(site, input, improved, retryPreviewLen)})
}

func (s *historyStore) item(site, input, improved string, n int) historyItem {
	id, _ := uuid.NewV4()
	return historyItem{
		ID:              id.String(),
		TS:              s.now().UTC(),
		Site:            site,
		InputPreview:    preview(input, n),
		ImprovedPreview: preview(improved, n),
	}
}

func (s *historyStore) write(items []historyItem) error {
	b, err := json.Marshal(items)
	if err != nil {
		return err
	}
	if len(b) > s.maxBytes {
		return errStoreFull
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(s.path, b, 0o600)
}

func (s *historyStore) clear() error {
	err := os.Remove(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
