// Package store provides the policy store client: independent writes of
// the reply-policy and quote-policy records and reads of the post view used
// to observe their propagation.
package store

import (
	"context"
	"encoding/json"

	"github.com/felixgeelhaar/threadgate/domain/gate"
)

// RPC is the wire client used to reach the backend.
type RPC interface {
	// GetRecord returns the raw record, or ErrRecordNotFound.
	GetRecord(ctx context.Context, ref gate.RecordRef) (json.RawMessage, error)

	// PutRecord creates or replaces a record.
	PutRecord(ctx context.Context, ref gate.RecordRef, record any) error

	// GetPostThread reads a post's thread from the read path.
	GetPostThread(ctx context.Context, uri string, depth int) (*ThreadView, error)
}

// ThreadViewPostType marks a thread that resolved to a visible post.
const ThreadViewPostType = "app.bsky.feed.defs#threadViewPost"

// ThreadView is the root of a getPostThread response.
type ThreadView struct {
	Type string    `json:"$type"`
	Post *PostView `json:"post,omitempty"`
}

// PostView is the read-path view of a post.
type PostView struct {
	URI        string          `json:"uri"`
	Author     ProfileView     `json:"author"`
	Threadgate *ThreadgateView `json:"threadgate,omitempty"`
}

// ProfileView is the minimal author view.
type ProfileView struct {
	DID    string `json:"did"`
	Handle string `json:"handle"`
}

// ThreadgateView is the read-path view of a threadgate record.
type ThreadgateView struct {
	URI    string          `json:"uri,omitempty"`
	Record json.RawMessage `json:"record,omitempty"`
	Lists  []gate.ListView `json:"lists,omitempty"`
}

// PostSnapshot is the reply policy currently visible on the read path.
type PostSnapshot struct {
	URI          string
	AuthorDID    string
	AuthorHandle string
	// Found is false when the thread did not resolve to a visible post.
	Found bool
	Allow []gate.AllowRule
	Lists []gate.ListView
}

// DescribeContext returns the data needed to describe the snapshot's rules.
func (s *PostSnapshot) DescribeContext() gate.DescribeContext {
	return gate.DescribeContext{
		AuthorHandle: s.AuthorHandle,
		Lists:        s.Lists,
	}
}

// snapshotFromThread decodes the reply policy from a thread view.
func snapshotFromThread(uri string, thread *ThreadView) *PostSnapshot {
	snap := &PostSnapshot{
		URI:   uri,
		Allow: []gate.AllowRule{gate.Everybody()},
	}
	if thread == nil || thread.Type != ThreadViewPostType || thread.Post == nil {
		return snap
	}

	post := thread.Post
	snap.Found = true
	snap.AuthorDID = post.Author.DID
	snap.AuthorHandle = post.Author.Handle
	if post.Threadgate != nil {
		snap.Allow = gate.DecodeAllowRules(post.Threadgate.Record)
		snap.Lists = post.Threadgate.Lists
	}
	return snap
}
