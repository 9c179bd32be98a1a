package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"document-processor/internal/domain"
	"document-processor/internal/services/pipeline"
)

type mapKV struct {
	data map[string][]byte
	ttls map[string]time.Duration
	err  error
}

func newMapKV() *mapKV {
	return &mapKV{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *mapKV) Get(ctx context.Context, key string) ([]byte, error) {
	if m.err != nil {
		return nil, m.err
	}
	v, ok := m.data[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return v, nil
}

func (m *mapKV) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := encode(value)
	if err != nil {
		return err
	}
	m.data[key] = data
	m.ttls[key] = ttl
	return nil
}

func TestSummaryStoreRoundTrip(t *testing.T) {
	kv := newMapKV()
	s := NewSummaryStore(kv, 0)
	ctx := context.Background()

	_, err := s.GetSummary(ctx, "abc")
	assert.ErrorIs(t, err, pipeline.ErrCacheMiss)

	res := domain.SummarizationResult{Status: domain.StatusSuccess, SummaryText: "pitch", Model: "gpt-4o-mini", Diagnostics: []domain.Diagnostic{}}
	require.NoError(t, s.PutSummary(ctx, "abc", res))
	assert.Equal(t, SummaryTTL, kv.ttls[SummaryKey("abc")])

	got, err := s.GetSummary(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, res, *got)
}

func TestSummaryStoreErrors(t *testing.T) {
	kv := newMapKV()
	s := NewSummaryStore(kv, time.Hour)

	kv.data[SummaryKey("bad")] = []byte("{not json")
	_, err := s.GetSummary(context.Background(), "bad")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, pipeline.ErrCacheMiss)

	kv.err = errors.New("connection reset")
	_, err = s.GetSummary(context.Background(), "x")
	assert.EqualError(t, err, "connection reset")
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "docproc:summary:v1:ff00", SummaryKey("ff00"))
	assert.Equal(t, "docproc:ratelimit:ip:10.0.0.1", RateLimitKey("10.0.0.1"))
}
