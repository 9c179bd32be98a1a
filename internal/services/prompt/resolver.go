// Package prompt resolves named prompt templates from the prompt service,
// keeping the last known good version available when the service is down.
package prompt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"document-processor/internal/domain"
)

// DefaultFetchTimeout bounds a single remote fetch
const DefaultFetchTimeout = 5 * time.Second

var (
	ErrNotFound       = errors.New("prompt not found")
	errSourceDisabled = errors.New("prompt service not configured")
)

// Source fetches a template by name and optional version
type Source interface {
	Fetch(ctx context.Context, name, version string) (*domain.PromptTemplate, error)
}

// Origin tells where a resolved template came from
type Origin string

const (
	OriginRemote   Origin = "remote"
	OriginCache    Origin = "cache"
	OriginStale    Origin = "stale_cache"
	OriginFallback Origin = "fallback"
)

// Resolution is the outcome of Resolve
type Resolution struct {
	Template *domain.PromptTemplate
	Origin   Origin
	// Requested is the explicit version asked for, empty for the label
	Requested string
	// FetchErr is set when a remote fetch was attempted and failed
	FetchErr error
}

// Degraded reports whether the served template is not the one asked for:
// a local default, or another version of a pinned prompt.
func (r Resolution) Degraded() bool {
	if r.Origin == OriginFallback {
		return true
	}
	return r.Requested != "" && r.Template != nil && r.Template.Version != r.Requested
}

// Reason describes a degraded resolution
func (r Resolution) Reason() string {
	if r.Origin == OriginFallback {
		return "prompt service unavailable, used local template " + r.Template.Name
	}
	return fmt.Sprintf("prompt %s version %s unavailable, used cached version %s",
		r.Template.Name, r.Requested, r.Template.Version)
}

// Config for the resolver
type Config struct {
	FetchTimeout time.Duration
	// CacheTTL of zero keeps entries until invalidated
	CacheTTL time.Duration
}

type entry struct {
	tpl      *domain.PromptTemplate
	storedAt time.Time
}

// Resolver owns the process-wide prompt cache.
// Reads never block; writes copy the map and swap the pointer.
type Resolver struct {
	source    Source
	fallbacks Fallbacks
	cfg       Config

	entries atomic.Pointer[map[string]entry]
	mu      sync.Mutex
	group   singleflight.Group

	now func() time.Time
}

// NewResolver creates a resolver. source may be nil, in which case only
// cached and fallback templates are served.
func NewResolver(source Source, fallbacks Fallbacks, cfg Config) *Resolver {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	r := &Resolver{
		source:    source,
		fallbacks: fallbacks,
		cfg:       cfg,
		now:       time.Now,
	}
	empty := map[string]entry{}
	r.entries.Store(&empty)
	return r
}

// Resolve returns the template for name. An empty version means the label
// configured on the source (production by default).
func (r *Resolver) Resolve(ctx context.Context, name, version string) (Resolution, error) {
	if strings.TrimSpace(name) == "" {
		return Resolution{}, domain.PromptUnavailable("prompt name is empty", nil)
	}

	if e, ok := r.lookup(name, version); ok && r.fresh(e) {
		return Resolution{Template: e.tpl, Origin: OriginCache, Requested: version}, nil
	}

	tpl, err := r.fetch(ctx, name, version)
	if err == nil {
		return Resolution{Template: tpl, Origin: OriginRemote, Requested: version}, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Resolution{}, domain.Canceled(domain.StagePromptResolution, ctxErr)
	}

	logger := log.Ctx(ctx).Warn().Err(err).Str("prompt", name).Str("version", version)

	if e, ok := r.lastKnownGood(name, version); ok {
		logger.Str("served_version", e.tpl.Version).Msg("Prompt fetch failed, serving cached template")
		return Resolution{Template: e.tpl, Origin: OriginStale, Requested: version, FetchErr: err}, nil
	}
	if fb, ok := r.fallbacks.Lookup(name); ok {
		logger.Str("fallback", fb.Name).Msg("Prompt fetch failed, serving fallback template")
		return Resolution{Template: fb, Origin: OriginFallback, Requested: version, FetchErr: err}, nil
	}

	return Resolution{}, domain.PromptUnavailable(fmt.Sprintf("prompt %q unavailable and no fallback exists", name), err)
}

// Invalidate drops every cached version of name
func (r *Resolver) Invalidate(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	old := *r.entries.Load()
	next := make(map[string]entry, len(old))
	for k, v := range old {
		if k == name || strings.HasPrefix(k, name+"@") {
			continue
		}
		next[k] = v
	}
	r.entries.Store(&next)
}

// InvalidateAll empties the cache
func (r *Resolver) InvalidateAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	empty := map[string]entry{}
	r.entries.Store(&empty)
}

// Refresh fetches name from the source and replaces the cached entry.
// The cache is left untouched when the fetch fails.
func (r *Resolver) Refresh(ctx context.Context, name, version string) (*domain.PromptTemplate, error) {
	return r.fetch(ctx, name, version)
}

// Len returns the number of cached entries
func (r *Resolver) Len() int {
	return len(*r.entries.Load())
}

func (r *Resolver) fetch(ctx context.Context, name, version string) (*domain.PromptTemplate, error) {
	if r.source == nil {
		return nil, errSourceDisabled
	}

	key := cacheKey(name, version)
	ch := r.group.DoChan(key, func() (interface{}, error) {
		// Shared by every waiter, so one caller's cancellation must not abort it
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.FetchTimeout)
		defer cancel()

		tpl, err := r.source.Fetch(fctx, name, version)
		if err != nil {
			return nil, err
		}
		r.store(name, version, tpl)
		log.Ctx(ctx).Info().
			Str("prompt", tpl.Name).
			Str("version", tpl.Version).
			Msg("Prompt template fetched")
		return tpl, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*domain.PromptTemplate), nil
	}
}

func (r *Resolver) store(name, version string, tpl *domain.PromptTemplate) {
	r.mu.Lock()
	defer r.mu.Unlock()

	old := *r.entries.Load()
	next := make(map[string]entry, len(old)+2)
	for k, v := range old {
		next[k] = v
	}
	e := entry{tpl: tpl, storedAt: r.now()}
	next[cacheKey(name, tpl.Version)] = e
	if version == "" {
		next[name] = e
	} else {
		next[cacheKey(name, version)] = e
	}
	r.entries.Store(&next)
}

func (r *Resolver) lookup(name, version string) (entry, bool) {
	m := *r.entries.Load()
	if version == "" {
		e, ok := m[name]
		return e, ok
	}
	if e, ok := m[cacheKey(name, version)]; ok {
		return e, true
	}
	if e, ok := m[name]; ok && e.tpl.Version == version {
		return e, true
	}
	return entry{}, false
}

// lastKnownGood ignores TTL and falls back to any cached version of name
func (r *Resolver) lastKnownGood(name, version string) (entry, bool) {
	if e, ok := r.lookup(name, version); ok {
		return e, true
	}
	e, ok := (*r.entries.Load())[name]
	return e, ok
}

func (r *Resolver) fresh(e entry) bool {
	return r.cfg.CacheTTL <= 0 || r.now().Sub(e.storedAt) < r.cfg.CacheTTL
}

func cacheKey(name, version string) string {
	if version == "" {
		return name
	}
	return name + "@" + version
}
