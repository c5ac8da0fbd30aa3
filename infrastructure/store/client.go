package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/threadgate/domain/gate"
)

// Client reads and writes the interaction-policy records of posts.
//
// The reply-policy and quote-policy records are independent: the backend
// offers no transaction across them, so each write succeeds or fails alone.
type Client struct {
	rpc RPC
	now func() time.Time
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithClock sets the clock used to stamp new records.
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) {
		c.now = now
	}
}

// NewClient creates a client over the given RPC transport.
func NewClient(rpc RPC, opts ...ClientOption) *Client {
	c := &Client{
		rpc: rpc,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) timestamp() string {
	return c.now().UTC().Format("2006-01-02T15:04:05.000Z")
}

// WriteReplyPolicy persists the reply policy of a post. Hidden replies and
// the creation time of an existing record are carried forward.
func (c *Client) WriteReplyPolicy(ctx context.Context, post gate.PostRef, rules []gate.AllowRule) error {
	ref := post.Threadgate()

	createdAt := c.timestamp()
	var hidden []string
	raw, err := c.rpc.GetRecord(ctx, ref)
	switch {
	case err == nil:
		if existing, ok := gate.ParseThreadgate(raw); ok {
			hidden = existing.HiddenReplies
			if existing.CreatedAt != "" {
				createdAt = existing.CreatedAt
			}
		}
	case errors.Is(err, ErrRecordNotFound):
	default:
		return &WriteError{Stage: StageReply, Post: post, Err: fmt.Errorf("read existing threadgate: %w", err)}
	}

	record := gate.EncodeAllowRules(rules, post.URI(), createdAt)
	record.HiddenReplies = hidden

	if err := c.rpc.PutRecord(ctx, ref, record); err != nil {
		return &WriteError{Stage: StageReply, Post: post, Err: err}
	}
	return nil
}

// WriteQuotePolicy persists the quote policy of a post. Detached embedding
// URIs and the creation time of an existing record are carried forward.
func (c *Client) WriteQuotePolicy(ctx context.Context, post gate.PostRef, policy gate.EmbeddingPolicy) error {
	ref := post.Postgate()

	createdAt := c.timestamp()
	var detached []string
	raw, err := c.rpc.GetRecord(ctx, ref)
	switch {
	case err == nil:
		if existing, ok := gate.ParsePostgate(raw); ok {
			detached = existing.DetachedEmbeddingURIs
			if existing.CreatedAt != "" {
				createdAt = existing.CreatedAt
			}
		}
	case errors.Is(err, ErrRecordNotFound):
	default:
		return &WriteError{Stage: StageQuote, Post: post, Err: fmt.Errorf("read existing postgate: %w", err)}
	}

	record := gate.EncodeEmbeddingPolicy(policy, post.URI(), createdAt)
	record.DetachedEmbeddingURIs = detached

	if err := c.rpc.PutRecord(ctx, ref, record); err != nil {
		return &WriteError{Stage: StageQuote, Post: post, Err: err}
	}
	return nil
}

// ReadPostView reads the reply policy currently visible on the read path.
func (c *Client) ReadPostView(ctx context.Context, post gate.PostRef) (*PostSnapshot, error) {
	thread, err := c.rpc.GetPostThread(ctx, post.URI(), 0)
	if err != nil {
		return nil, &ReadError{Post: post, Err: err}
	}
	return snapshotFromThread(post.URI(), thread), nil
}

// ReadQuotePolicy reads the post's quote-policy record. A missing record
// means quoting is open.
func (c *Client) ReadQuotePolicy(ctx context.Context, post gate.PostRef) (gate.EmbeddingPolicy, error) {
	raw, err := c.rpc.GetRecord(ctx, post.Postgate())
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return gate.EmbeddingOpen, nil
		}
		return gate.EmbeddingOpen, &ReadError{Post: post, Err: err}
	}
	return gate.DecodeEmbeddingPolicy(raw), nil
}
