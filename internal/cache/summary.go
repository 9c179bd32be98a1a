package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"document-processor/internal/domain"
	"document-processor/internal/services/pipeline"
)

type kv interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// SummaryStore keeps successful summaries so identical uploads skip the LLM
type SummaryStore struct {
	store kv
	ttl   time.Duration
}

func NewSummaryStore(store kv, ttl time.Duration) *SummaryStore {
	if ttl <= 0 {
		ttl = SummaryTTL
	}
	return &SummaryStore{store: store, ttl: ttl}
}

// GetSummary implements pipeline.SummaryCache
func (s *SummaryStore) GetSummary(ctx context.Context, digest string) (*domain.SummarizationResult, error) {
	data, err := s.store.Get(ctx, SummaryKey(digest))
	if errors.Is(err, ErrKeyNotFound) {
		return nil, pipeline.ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}

	var res domain.SummarizationResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("failed to decode cached summary: %w", err)
	}
	return &res, nil
}

// PutSummary implements pipeline.SummaryCache
func (s *SummaryStore) PutSummary(ctx context.Context, digest string, res domain.SummarizationResult) error {
	return s.store.Set(ctx, SummaryKey(digest), res, s.ttl)
}
