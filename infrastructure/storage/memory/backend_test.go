package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/felixgeelhaar/threadgate/domain/gate"
	"github.com/felixgeelhaar/threadgate/infrastructure/store"
)

func TestBackend_ReadLag(t *testing.T) {
	t.Parallel()

	post, _ := gate.ParsePostURI("at://did:plc:a/app.bsky.feed.post/1")
	b := NewBackend(WithReadLag(2))
	b.AddPost(post, "a.test")
	ctx := context.Background()

	record := gate.EncodeAllowRules([]gate.AllowRule{gate.Nobody()}, post.URI(), "2024-01-01T00:00:00.000Z")
	if err := b.PutRecord(ctx, post.Threadgate(), record); err != nil {
		t.Fatalf("PutRecord() error = %v", err)
	}

	// The write path is consistent immediately.
	if _, err := b.GetRecord(ctx, post.Threadgate()); err != nil {
		t.Fatalf("GetRecord() error = %v", err)
	}

	for read := 1; read <= 3; read++ {
		thread, err := b.GetPostThread(ctx, post.URI(), 0)
		if err != nil {
			t.Fatalf("GetPostThread() error = %v", err)
		}
		visible := thread.Post.Threadgate != nil
		if want := read == 3; visible != want {
			t.Errorf("read %d: threadgate visible = %v, want %v", read, visible, want)
		}
	}
	if got := b.ThreadReads(post.URI()); got != 3 {
		t.Errorf("ThreadReads() = %d, want 3", got)
	}
}

func TestBackend_GetRecordNotFound(t *testing.T) {
	t.Parallel()

	post, _ := gate.ParsePostURI("at://did:plc:a/app.bsky.feed.post/1")
	b := NewBackend()
	_, err := b.GetRecord(context.Background(), post.Postgate())
	if !errors.Is(err, store.ErrRecordNotFound) {
		t.Errorf("GetRecord() error = %v, want ErrRecordNotFound", err)
	}
}

func TestBackend_FailPuts(t *testing.T) {
	t.Parallel()

	post, _ := gate.ParsePostURI("at://did:plc:a/app.bsky.feed.post/1")
	b := NewBackend()
	boom := errors.New("rejected")
	b.FailPuts(gate.PostgateCollection, boom)
	ctx := context.Background()

	if err := b.PutRecord(ctx, post.Postgate(), struct{}{}); !errors.Is(err, boom) {
		t.Errorf("PutRecord(postgate) error = %v, want injected failure", err)
	}
	if err := b.PutRecord(ctx, post.Threadgate(), struct{}{}); err != nil {
		t.Errorf("PutRecord(threadgate) error = %v", err)
	}
	b.FailPuts(gate.PostgateCollection, nil)
	if err := b.PutRecord(ctx, post.Postgate(), struct{}{}); err != nil {
		t.Errorf("PutRecord after clearing failure error = %v", err)
	}
	if got := b.Puts(gate.PostgateCollection); got != 1 {
		t.Errorf("Puts(postgate) = %d, want 1", got)
	}
}
