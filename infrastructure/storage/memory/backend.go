package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/felixgeelhaar/threadgate/domain/gate"
	"github.com/felixgeelhaar/threadgate/infrastructure/store"
)

const notFoundPostType = "app.bsky.feed.defs#notFoundPost"

// pendingView is a threadgate write not yet visible on the read path.
type pendingView struct {
	record    json.RawMessage
	remaining int
}

type author struct {
	did    string
	handle string
}

// Backend is an in-process implementation of store.RPC. The write path is
// consistent immediately; the read path (GetPostThread) reflects a
// threadgate write only after a configurable number of lagging reads.
type Backend struct {
	mu sync.Mutex

	records map[string]json.RawMessage
	visible map[string]json.RawMessage
	pending map[string]*pendingView
	posts   map[string]author
	lists   map[string]string

	lag        int
	putErrs    map[string]error
	getErr     error
	threadErr  error
	puts       map[string]int
	threadHits map[string]int
}

// BackendOption configures the backend.
type BackendOption func(*Backend)

// WithReadLag sets how many reads still see the previous reply policy after
// a threadgate write.
func WithReadLag(reads int) BackendOption {
	return func(b *Backend) {
		b.lag = reads
	}
}

// NewBackend creates an empty backend.
func NewBackend(opts ...BackendOption) *Backend {
	b := &Backend{
		records:    make(map[string]json.RawMessage),
		visible:    make(map[string]json.RawMessage),
		pending:    make(map[string]*pendingView),
		posts:      make(map[string]author),
		lists:      make(map[string]string),
		putErrs:    make(map[string]error),
		puts:       make(map[string]int),
		threadHits: make(map[string]int),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// AddPost registers a post so the read path can resolve it.
func (b *Backend) AddPost(post gate.PostRef, handle string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.posts[post.URI()] = author{did: post.Repo, handle: handle}
}

// AddList registers a list for display-name resolution.
func (b *Backend) AddList(uri, name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lists[uri] = name
}

// SetReadLag changes the read lag applied to subsequent writes.
func (b *Backend) SetReadLag(reads int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lag = reads
}

// FailPuts makes PutRecord fail for the given collection. A nil error
// clears the failure.
func (b *Backend) FailPuts(collection string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.putErrs, collection)
		return
	}
	b.putErrs[collection] = err
}

// FailGets makes GetRecord fail. A nil error clears the failure.
func (b *Backend) FailGets(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.getErr = err
}

// FailThreadReads makes GetPostThread fail. A nil error clears the failure.
func (b *Backend) FailThreadReads(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.threadErr = err
}

// Puts returns how many successful writes targeted the collection.
func (b *Backend) Puts(collection string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.puts[collection]
}

// ThreadReads returns how many times the thread of uri was read.
func (b *Backend) ThreadReads(uri string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.threadHits[uri]
}

// Record returns the stored record at ref from the write path.
func (b *Backend) Record(ref gate.RecordRef) (json.RawMessage, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	raw, ok := b.records[ref.String()]
	return raw, ok
}

// PutRaw stores a record verbatim on both paths, bypassing lag.
func (b *Backend) PutRaw(ref gate.RecordRef, raw json.RawMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := ref.String()
	b.records[key] = raw
	if ref.Collection == gate.ThreadgateCollection {
		b.visible[key] = raw
		delete(b.pending, key)
	}
}

// GetRecord implements store.RPC.
func (b *Backend) GetRecord(ctx context.Context, ref gate.RecordRef) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.getErr != nil {
		return nil, b.getErr
	}
	raw, ok := b.records[ref.String()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrRecordNotFound, ref)
	}
	return append(json.RawMessage(nil), raw...), nil
}

// PutRecord implements store.RPC.
func (b *Backend) PutRecord(ctx context.Context, ref gate.RecordRef, record any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.putErrs[ref.Collection]; err != nil {
		return err
	}

	key := ref.String()
	b.records[key] = raw
	b.puts[ref.Collection]++

	if ref.Collection != gate.ThreadgateCollection {
		return nil
	}
	if b.lag <= 0 {
		b.visible[key] = raw
		delete(b.pending, key)
		return nil
	}
	b.pending[key] = &pendingView{record: raw, remaining: b.lag}
	return nil
}

// GetPostThread implements store.RPC.
func (b *Backend) GetPostThread(ctx context.Context, uri string, _ int) (*store.ThreadView, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.threadHits[uri]++
	if b.threadErr != nil {
		return nil, b.threadErr
	}

	a, ok := b.posts[uri]
	if !ok {
		return &store.ThreadView{Type: notFoundPostType}, nil
	}
	post, err := gate.ParsePostURI(uri)
	if err != nil {
		return &store.ThreadView{Type: notFoundPostType}, nil
	}

	key := post.Threadgate().String()
	if p, ok := b.pending[key]; ok {
		if p.remaining == 0 {
			b.visible[key] = p.record
			delete(b.pending, key)
		} else {
			p.remaining--
		}
	}

	view := &store.PostView{
		URI:    uri,
		Author: store.ProfileView{DID: a.did, Handle: a.handle},
	}
	if raw, ok := b.visible[key]; ok {
		view.Threadgate = &store.ThreadgateView{
			URI:    key,
			Record: append(json.RawMessage(nil), raw...),
			Lists:  b.resolveLists(raw),
		}
	}
	return &store.ThreadView{Type: store.ThreadViewPostType, Post: view}, nil
}

// resolveLists returns the list views referenced by a threadgate record.
// Must be called with lock held.
func (b *Backend) resolveLists(raw json.RawMessage) []gate.ListView {
	var lists []gate.ListView
	for _, r := range gate.DecodeAllowRules(raw) {
		if r.Type != gate.RuleList {
			continue
		}
		if name, ok := b.lists[r.List]; ok {
			lists = append(lists, gate.ListView{URI: r.List, Name: name})
		}
	}
	return lists
}

var _ store.RPC = (*Backend)(nil)
