package prompt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"document-processor/internal/domain"
)

type fakeSource struct {
	calls   atomic.Int32
	release chan struct{}
	err     error
	version atomic.Int32
}

func (f *fakeSource) Fetch(ctx context.Context, name, version string) (*domain.PromptTemplate, error) {
	f.calls.Add(1)
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	v := version
	if v == "" {
		v = fmt.Sprint(f.version.Load())
	}
	return &domain.PromptTemplate{Name: name, Version: v, Body: "body " + v}, nil
}

func TestResolveCachesAfterFirstFetch(t *testing.T) {
	src := &fakeSource{}
	src.version.Store(3)
	r := NewResolver(src, DefaultFallbacks(), Config{})

	first, err := r.Resolve(context.Background(), "paper_pitch", "")
	require.NoError(t, err)
	assert.Equal(t, OriginRemote, first.Origin)
	assert.Equal(t, "3", first.Template.Version)

	second, err := r.Resolve(context.Background(), "paper_pitch", "")
	require.NoError(t, err)
	assert.Equal(t, OriginCache, second.Origin)
	assert.Same(t, first.Template, second.Template)
	assert.EqualValues(t, 1, src.calls.Load())
}

func TestResolveExplicitVersion(t *testing.T) {
	src := &fakeSource{}
	src.version.Store(3)
	r := NewResolver(src, nil, Config{})
	ctx := context.Background()

	_, err := r.Resolve(ctx, "p", "")
	require.NoError(t, err)

	res, err := r.Resolve(ctx, "p", "3")
	require.NoError(t, err)
	assert.Equal(t, OriginCache, res.Origin, "requested version is already cached")

	res, err = r.Resolve(ctx, "p", "4")
	require.NoError(t, err)
	assert.Equal(t, OriginRemote, res.Origin)
	assert.Equal(t, "4", res.Template.Version)
	assert.EqualValues(t, 2, src.calls.Load())

	res, err = r.Resolve(ctx, "p", "")
	require.NoError(t, err)
	assert.Equal(t, "3", res.Template.Version, "pinned fetch must not replace the latest entry")
}

func TestResolveDeduplicatesConcurrentMisses(t *testing.T) {
	src := &fakeSource{release: make(chan struct{})}
	r := NewResolver(src, nil, Config{})

	const n = 50
	var started, done sync.WaitGroup
	started.Add(n)
	done.Add(n)
	results := make([]*domain.PromptTemplate, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer done.Done()
			started.Done()
			res, err := r.Resolve(context.Background(), "shared", "")
			if err == nil {
				results[i] = res.Template
			}
		}(i)
	}
	started.Wait()
	time.Sleep(20 * time.Millisecond)
	close(src.release)
	done.Wait()

	assert.EqualValues(t, 1, src.calls.Load())
	for i := range results {
		require.NotNil(t, results[i])
		assert.Same(t, results[0], results[i])
	}
}

func TestResolveServesStaleOnFailure(t *testing.T) {
	src := &fakeSource{}
	r := NewResolver(src, nil, Config{CacheTTL: time.Minute})
	now := time.Now()
	r.now = func() time.Time { return now }

	good, err := r.Resolve(context.Background(), "p", "")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	src.err = errors.New("connection refused")

	res, err := r.Resolve(context.Background(), "p", "")
	require.NoError(t, err)
	assert.Equal(t, OriginStale, res.Origin)
	assert.Same(t, good.Template, res.Template)
	assert.Error(t, res.FetchErr)
	assert.EqualValues(t, 2, src.calls.Load())
}

func TestResolvePinnedVersionFailureServesOtherVersionDegraded(t *testing.T) {
	src := &fakeSource{}
	src.version.Store(3)
	r := NewResolver(src, DefaultFallbacks(), Config{})
	ctx := context.Background()

	latest, err := r.Resolve(ctx, "p", "")
	require.NoError(t, err)
	assert.False(t, latest.Degraded())

	src.err = errors.New("connection refused")
	res, err := r.Resolve(ctx, "p", "5")
	require.NoError(t, err)
	assert.Equal(t, OriginStale, res.Origin)
	assert.Equal(t, "3", res.Template.Version)
	assert.True(t, res.Degraded())
	assert.Contains(t, res.Reason(), "version 5 unavailable, used cached version 3")

	pinned, err := r.Resolve(ctx, "p", "3")
	require.NoError(t, err)
	assert.Equal(t, OriginCache, pinned.Origin)
	assert.False(t, pinned.Degraded(), "the cached entry is the requested version")
}

func TestResolveRefreshesAfterTTL(t *testing.T) {
	src := &fakeSource{}
	src.version.Store(1)
	r := NewResolver(src, nil, Config{CacheTTL: time.Minute})
	now := time.Now()
	r.now = func() time.Time { return now }

	_, err := r.Resolve(context.Background(), "p", "")
	require.NoError(t, err)

	src.version.Store(2)
	now = now.Add(30 * time.Second)
	res, _ := r.Resolve(context.Background(), "p", "")
	assert.Equal(t, "1", res.Template.Version)

	now = now.Add(time.Minute)
	res, _ = r.Resolve(context.Background(), "p", "")
	assert.Equal(t, OriginRemote, res.Origin)
	assert.Equal(t, "2", res.Template.Version)
}

func TestResolveFallsBackToDefault(t *testing.T) {
	src := &fakeSource{err: ErrNotFound}
	r := NewResolver(src, DefaultFallbacks(), Config{})

	res, err := r.Resolve(context.Background(), "missing", "")
	require.NoError(t, err)
	assert.Equal(t, OriginFallback, res.Origin)
	assert.True(t, res.Degraded())
	assert.Equal(t, DefaultTemplate.Body, res.Template.Body)
	assert.ErrorIs(t, res.FetchErr, ErrNotFound)
}

func TestResolveUnavailableWithoutFallbacks(t *testing.T) {
	r := NewResolver(&fakeSource{err: errors.New("down")}, nil, Config{})

	_, err := r.Resolve(context.Background(), "p", "")
	require.Error(t, err)
	assert.Equal(t, domain.KindPromptUnavailable, domain.KindOf(err))

	r = NewResolver(nil, nil, Config{})
	_, err = r.Resolve(context.Background(), "p", "")
	assert.Equal(t, domain.KindPromptUnavailable, domain.KindOf(err))
}

func TestResolveTimesOutSlowSource(t *testing.T) {
	src := &fakeSource{release: make(chan struct{})}
	defer close(src.release)
	r := NewResolver(src, DefaultFallbacks(), Config{FetchTimeout: 20 * time.Millisecond})

	res, err := r.Resolve(context.Background(), "p", "")
	require.NoError(t, err)
	assert.Equal(t, OriginFallback, res.Origin)
	assert.ErrorIs(t, res.FetchErr, context.DeadlineExceeded)
}

func TestResolveCallerCancellation(t *testing.T) {
	src := &fakeSource{release: make(chan struct{})}
	defer close(src.release)
	r := NewResolver(src, DefaultFallbacks(), Config{FetchTimeout: time.Minute})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := r.Resolve(ctx, "p", "")
	assert.Equal(t, domain.KindCanceled, domain.KindOf(err))
}

func TestInvalidate(t *testing.T) {
	src := &fakeSource{}
	r := NewResolver(src, nil, Config{})
	ctx := context.Background()

	_, _ = r.Resolve(ctx, "a", "")
	_, _ = r.Resolve(ctx, "a", "7")
	_, _ = r.Resolve(ctx, "ab", "")
	require.Equal(t, 5, r.Len())

	r.Invalidate("a")
	assert.Equal(t, 2, r.Len())

	_, _ = r.Resolve(ctx, "a", "")
	assert.EqualValues(t, 4, src.calls.Load())

	r.InvalidateAll()
	assert.Equal(t, 0, r.Len())
}
