package application

import (
	"context"
	"encoding/json"
	"time"

	"github.com/felixgeelhaar/threadgate/domain/cache"
	"github.com/felixgeelhaar/threadgate/domain/gate"
	"github.com/felixgeelhaar/threadgate/infrastructure/logging"
	"github.com/felixgeelhaar/threadgate/infrastructure/store"
)

// View is everything a post view needs to show and edit its policy.
type View struct {
	Post         string           `json:"post"`
	AuthorHandle string           `json:"authorHandle,omitempty"`
	Found        bool             `json:"found"`
	Policy       gate.Policy      `json:"policy"`
	Lists        []gate.ListView  `json:"lists,omitempty"`
	Description  gate.Description `json:"description"`
	Summary      string           `json:"summary"`
	Icon         gate.Icon        `json:"icon"`
	// QuoteNotice is empty when quoting is open.
	QuoteNotice string `json:"quoteNotice,omitempty"`
}

// DescribeContext returns the data needed to describe the view's rules.
func (v *View) DescribeContext() gate.DescribeContext {
	return gate.DescribeContext{AuthorHandle: v.AuthorHandle, Lists: v.Lists}
}

// Loader reads the policy of a post for display, through an optional
// cache.
type Loader struct {
	store PolicyStore
	cache cache.Cache
	ttl   time.Duration
	log   logging.Logger
}

// LoaderOption configures the loader.
type LoaderOption func(*Loader)

// WithViewCache caches loaded snapshots for ttl. A zero ttl never expires.
func WithViewCache(c cache.Cache, ttl time.Duration) LoaderOption {
	return func(l *Loader) {
		l.cache = c
		l.ttl = ttl
	}
}

// WithLoaderLogger sets the logger.
func WithLoaderLogger(log logging.Logger) LoaderOption {
	return func(l *Loader) {
		l.log = log
	}
}

// NewLoader creates a loader.
func NewLoader(ps PolicyStore, opts ...LoaderOption) *Loader {
	l := &Loader{store: ps}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load returns the view of a post.
func (l *Loader) Load(ctx context.Context, post gate.PostRef) (*View, error) {
	snap, err := l.snapshot(ctx, post)
	if err != nil {
		return nil, err
	}
	embedding, err := l.quotePolicy(ctx, post)
	if err != nil {
		return nil, err
	}

	v := &View{
		Post:         post.URI(),
		AuthorHandle: snap.AuthorHandle,
		Found:        snap.Found,
		Policy:       gate.Policy{Allow: snap.Allow, Embedding: embedding}.Canonical(),
		Lists:        snap.Lists,
	}
	v.Description = gate.Describe(v.Policy.Allow, v.DescribeContext())
	v.Summary = gate.Summary(v.Policy.Allow)
	v.Icon = gate.GetIcon(v.Policy.Allow)
	v.QuoteNotice = gate.DescribeEmbedding(v.Policy.Embedding)
	return v, nil
}

func (l *Loader) snapshot(ctx context.Context, post gate.PostRef) (*store.PostSnapshot, error) {
	key := cache.Key(cache.ScopePostThread, post.URI())
	var snap store.PostSnapshot
	if l.cached(ctx, key, &snap) {
		return &snap, nil
	}

	fresh, err := l.store.ReadPostView(ctx, post)
	if err != nil {
		return nil, err
	}
	l.put(ctx, key, fresh)
	return fresh, nil
}

func (l *Loader) quotePolicy(ctx context.Context, post gate.PostRef) (gate.EmbeddingPolicy, error) {
	key := cache.Key(cache.ScopePostgateRecord, post.URI())
	var p gate.EmbeddingPolicy
	if l.cached(ctx, key, &p) {
		return p, nil
	}

	p, err := l.store.ReadQuotePolicy(ctx, post)
	if err != nil {
		return gate.EmbeddingOpen, err
	}
	l.put(ctx, key, p)
	return p, nil
}

// cached decodes the entry under key into v. Cache failures count as a miss.
func (l *Loader) cached(ctx context.Context, key string, v any) bool {
	if l.cache == nil {
		return false
	}
	data, ok, err := l.cache.Get(ctx, key)
	if err != nil {
		l.log.Warn().Add(logging.Str("key", key)).Add(logging.ErrorField(err)).Msg("view cache read failed")
		return false
	}
	if !ok {
		return false
	}
	return json.Unmarshal(data, v) == nil
}

func (l *Loader) put(ctx context.Context, key string, v any) {
	if l.cache == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := l.cache.Set(ctx, key, data, cache.SetOptions{TTL: l.ttl}); err != nil {
		l.log.Warn().Add(logging.Str("key", key)).Add(logging.ErrorField(err)).Msg("view cache write failed")
	}
}
