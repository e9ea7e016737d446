package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/and161185/prompt-enhancer/internal/errs"
	"github.com/and161185/prompt-enhancer/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func seedRecords(repo *fakeRecords, userID uuid.UUID, n int, at time.Time) {
	for i := 0; i < n; i++ {
		site := model.SiteChatGPT
		if i%2 == 1 {
			site = model.SiteClaude
		}
		repo.recs = append(repo.recs, model.EnhancementRecord{
			ID:             uuid.Must(uuid.NewV4()),
			UserID:         userID,
			OriginalText:   "prompt about redis",
			EnhancedText:   "A longer prompt about redis caching",
			Provider:       model.ProviderOpenAI,
			Site:           site,
			Method:         model.MethodAI,
			Tokens:         10,
			ProcessingTime: 200 * time.Millisecond,
			RequestType:    model.RequestFree,
			CreatedAt:      at.Add(time.Duration(i) * time.Minute),
		})
	}
}

func TestHistory_ListPaginates(t *testing.T) {
	t.Parallel()

	repo := &fakeRecords{}
	user := uuid.Must(uuid.NewV4())
	seedRecords(repo, user, 45, time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC))
	seedRecords(repo, uuid.Must(uuid.NewV4()), 5, time.Now())

	s := NewHistoryService(repo, zap.NewNop())
	page, err := s.List(context.Background(), user, model.HistoryFilter{Page: 3})
	require.NoError(t, err)

	assert.Len(t, page.Items, 5)
	assert.Equal(t, Pagination{Page: 3, Limit: 20, TotalCount: 45, TotalPages: 3, HasNext: false, HasPrev: true}, page.Pagination)
	assert.Equal(t, 45, page.Stats.TotalPrompts)
	assert.InDelta(t, 200.0, page.Stats.AvgProcessingTime, 1e-9)

	first, err := s.List(context.Background(), user, model.HistoryFilter{Limit: 500, Site: model.SiteClaude})
	require.NoError(t, err)
	assert.Equal(t, MaxHistoryLimit, first.Pagination.Limit)
	assert.Equal(t, 22, first.Pagination.TotalCount)
	assert.False(t, first.Pagination.HasPrev)
	assert.True(t, first.Items[0].CreatedAt.After(first.Items[1].CreatedAt), "newest first")
}

func TestHistory_InvalidProvider(t *testing.T) {
	t.Parallel()

	s := NewHistoryService(&fakeRecords{}, zap.NewNop())
	_, err := s.List(context.Background(), uuid.Must(uuid.NewV4()), model.HistoryFilter{Provider: "gemini"})
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestHistory_DeleteAndClear(t *testing.T) {
	t.Parallel()

	repo := &fakeRecords{}
	user := uuid.Must(uuid.NewV4())
	seedRecords(repo, user, 3, time.Now())
	s := NewHistoryService(repo, zap.NewNop())
	ctx := context.Background()

	assert.ErrorIs(t, s.Delete(ctx, user, uuid.Nil), errs.ErrValidation)
	assert.ErrorIs(t, s.Delete(ctx, uuid.Must(uuid.NewV4()), repo.recs[0].ID), errs.ErrNotFound)
	require.NoError(t, s.Delete(ctx, user, repo.recs[0].ID))

	n, err := s.Clear(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Empty(t, repo.all())
}

func TestToHistoryItem(t *testing.T) {
	t.Parallel()

	r := &model.EnhancementRecord{
		OriginalText:   "abcd",
		EnhancedText:   strings.Repeat("é", 150),
		ProcessingTime: 1500 * time.Millisecond,
	}
	it := toHistoryItem(r)
	assert.Equal(t, int64(1500), it.ProcessingTimeMS)
	assert.InDelta(t, 37.5, it.ImprovementRatio, 1e-9)
	assert.Equal(t, "abcd", it.OriginalPreview)
	assert.Equal(t, strings.Repeat("é", 100), it.EnhancedPreview)

	assert.Zero(t, toHistoryItem(&model.EnhancementRecord{EnhancedText: "x"}).ImprovementRatio)
}
