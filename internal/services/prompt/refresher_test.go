package prompt

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefreshAllReplacesCachedTemplate(t *testing.T) {
	src := &fakeSource{}
	src.version.Store(1)
	r := NewResolver(src, nil, Config{})
	ctx := context.Background()

	_, err := r.Resolve(ctx, "paper_pitch", "")
	require.NoError(t, err)

	src.version.Store(2)
	rf := NewRefresher(r, Target{Name: "paper_pitch"})
	assert.Equal(t, 1, rf.refreshAll(ctx))

	res, err := r.Resolve(ctx, "paper_pitch", "")
	require.NoError(t, err)
	assert.Equal(t, OriginCache, res.Origin)
	assert.Equal(t, "2", res.Template.Version)
}

func TestRefreshFailureKeepsCache(t *testing.T) {
	src := &fakeSource{}
	src.version.Store(1)
	r := NewResolver(src, nil, Config{})
	ctx := context.Background()

	_, err := r.Resolve(ctx, "paper_pitch", "")
	require.NoError(t, err)

	src.err = errors.New("langfuse down")
	rf := NewRefresher(r, Target{Name: "paper_pitch"}, Target{Name: "other", Version: "4"})
	assert.Equal(t, 0, rf.refreshAll(ctx))

	res, err := r.Resolve(ctx, "paper_pitch", "")
	require.NoError(t, err)
	assert.Equal(t, "1", res.Template.Version)
}

func TestRefresherStartStop(t *testing.T) {
	src := &fakeSource{}
	r := NewResolver(src, nil, Config{})
	rf := NewRefresher(r, Target{Name: "paper_pitch"})

	rf.Start(context.Background(), 10*time.Millisecond)
	assert.Eventually(t, func() bool { return src.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)

	rf.Stop()
	rf.Stop()
	calls := src.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, src.calls.Load())
}
