package service

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/and161185/prompt-enhancer/internal/errs"
	"github.com/and161185/prompt-enhancer/internal/model"
	"github.com/and161185/prompt-enhancer/internal/repository"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

// History paging bounds.
const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 50
	previewLen          = 100
)

// HistoryItem is one record as shown to clients.
type HistoryItem struct {
	ID               uuid.UUID         `json:"id"`
	OriginalText     string            `json:"originalText"`
	EnhancedText     string            `json:"enhancedText"`
	Provider         model.Provider    `json:"provider"`
	Model            string            `json:"model"`
	Site             string            `json:"site"`
	Settings         model.Settings    `json:"settings"`
	Method           model.Method      `json:"method"`
	Tokens           int               `json:"tokens"`
	ProcessingTimeMS int64             `json:"processingTime"`
	RequestType      model.RequestType `json:"requestType"`
	Cost             model.Cost        `json:"cost"`
	CreatedAt        time.Time         `json:"createdAt"`
	ImprovementRatio float64           `json:"improvementRatio"`
	OriginalPreview  string            `json:"originalPreview"`
	EnhancedPreview  string            `json:"enhancedPreview"`
}

// Pagination describes the returned page.
type Pagination struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	TotalCount int  `json:"totalCount"`
	TotalPages int  `json:"totalPages"`
	HasNext    bool `json:"hasNext"`
	HasPrev    bool `json:"hasPrev"`
}

// HistoryPage is a filtered page of history plus overall stats.
type HistoryPage struct {
	Items      []HistoryItem      `json:"history"`
	Pagination Pagination         `json:"pagination"`
	Stats      model.HistoryStats `json:"stats"`
}

// HistoryService reads and prunes enhancement history.
type HistoryService interface {
	List(ctx context.Context, userID uuid.UUID, f model.HistoryFilter) (HistoryPage, error)
	Delete(ctx context.Context, userID, id uuid.UUID) error
	Clear(ctx context.Context, userID uuid.UUID) (int64, error)
}

type HistoryServiceImpl struct {
	repo repository.EnhancementRepository
	log  *zap.Logger
}

// NewHistoryService constructs HistoryService.
func NewHistoryService(repo repository.EnhancementRepository, log *zap.Logger) *HistoryServiceImpl {
	return &HistoryServiceImpl{repo: repo, log: log}
}

// NormalizeFilter applies paging defaults and bounds.
func NormalizeFilter(f model.HistoryFilter) (model.HistoryFilter, error) {
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = DefaultHistoryLimit
	}
	if f.Limit > MaxHistoryLimit {
		f.Limit = MaxHistoryLimit
	}
	if f.Provider != "" && !f.Provider.Valid() {
		return f, errs.Validationf("provider must be one of: %s", joinProviders())
	}
	return f, nil
}

func (s *HistoryServiceImpl) List(ctx context.Context, userID uuid.UUID, f model.HistoryFilter) (HistoryPage, error) {
	f, err := NormalizeFilter(f)
	if err != nil {
		return HistoryPage{}, err
	}
	recs, total, err := s.repo.List(ctx, userID, f)
	if err != nil {
		return HistoryPage{}, err
	}
	stats, err := s.repo.Stats(ctx, userID)
	if err != nil {
		return HistoryPage{}, err
	}

	items := make([]HistoryItem, 0, len(recs))
	for i := range recs {
		items = append(items, toHistoryItem(&recs[i]))
	}
	pages := (total + f.Limit - 1) / f.Limit
	return HistoryPage{
		Items: items,
		Pagination: Pagination{
			Page:       f.Page,
			Limit:      f.Limit,
			TotalCount: total,
			TotalPages: pages,
			HasNext:    f.Page < pages,
			HasPrev:    f.Page > 1,
		},
		Stats: stats,
	}, nil
}

func (s *HistoryServiceImpl) Delete(ctx context.Context, userID, id uuid.UUID) error {
	if id == uuid.Nil {
		return errs.Validationf("Prompt ID is required")
	}
	return s.repo.Delete(ctx, userID, id)
}

func (s *HistoryServiceImpl) Clear(ctx context.Context, userID uuid.UUID) (int64, error) {
	n, err := s.repo.DeleteAll(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.log.Info("history cleared", zap.String("user", userID.String()), zap.Int64("deleted", n))
	return n, nil
}

func toHistoryItem(r *model.EnhancementRecord) HistoryItem {
	it := HistoryItem{
		ID:               r.ID,
		OriginalText:     r.OriginalText,
		EnhancedText:     r.EnhancedText,
		Provider:         r.Provider,
		Model:            r.Model,
		Site:             r.Site,
		Settings:         r.Settings,
		Method:           r.Method,
		Tokens:           r.Tokens,
		ProcessingTimeMS: r.ProcessingTime.Milliseconds(),
		RequestType:      r.RequestType,
		Cost:             r.Cost,
		CreatedAt:        r.CreatedAt,
		OriginalPreview:  truncateRunes(r.OriginalText, previewLen),
		EnhancedPreview:  truncateRunes(r.EnhancedText, previewLen),
	}
	if n := utf8.RuneCountInString(r.OriginalText); n > 0 {
		it.ImprovementRatio = float64(utf8.RuneCountInString(r.EnhancedText)) / float64(n)
	}
	return it
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
