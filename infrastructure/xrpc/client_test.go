package xrpc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/felixgeelhaar/threadgate/domain/gate"
	"github.com/felixgeelhaar/threadgate/infrastructure/store"
)

const testPost = "at://did:plc:author/app.bsky.feed.post/3kpost"

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *atomic.Int32) {
	t.Helper()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(Config{
		ServiceURL:              srv.URL,
		AccessToken:             "token-123",
		MaxRetries:              3,
		RetryDelay:              time.Millisecond,
		CircuitBreakerThreshold: 2,
		CircuitBreakerTimeout:   time.Minute,
	})
	t.Cleanup(func() { _ = c.Close() })
	return c, &hits
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func mustPost(t *testing.T) gate.PostRef {
	t.Helper()
	post, err := gate.ParsePostURI(testPost)
	if err != nil {
		t.Fatalf("ParsePostURI() error = %v", err)
	}
	return post
}

func TestClient_GetRecord(t *testing.T) {
	t.Parallel()

	c, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/xrpc/"+MethodGetRecord {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer token-123" {
			t.Errorf("Authorization = %q", got)
		}
		q := r.URL.Query()
		if q.Get("repo") != "did:plc:author" || q.Get("collection") != gate.ThreadgateCollection || q.Get("rkey") != "3kpost" {
			t.Errorf("query = %v", q)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"uri":   "at://did:plc:author/app.bsky.feed.threadgate/3kpost",
			"value": map[string]any{"$type": gate.ThreadgateCollection, "allow": []any{}},
		})
	})

	raw, err := c.GetRecord(context.Background(), mustPost(t).Threadgate())
	if err != nil {
		t.Fatalf("GetRecord() error = %v", err)
	}
	if got := gate.DecodeAllowRules(raw); !gate.Equal(got, []gate.AllowRule{gate.Nobody()}) {
		t.Errorf("decoded rules = %v, want [nobody]", got)
	}
	if hits.Load() != 1 {
		t.Errorf("hits = %d, want 1", hits.Load())
	}
}

func TestClient_GetRecord_NotFound(t *testing.T) {
	t.Parallel()

	c, hits := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":   "RecordNotFound",
			"message": "Could not locate record",
		})
	})

	_, err := c.GetRecord(context.Background(), mustPost(t).Postgate())
	if !errors.Is(err, store.ErrRecordNotFound) {
		t.Fatalf("GetRecord() error = %v, want ErrRecordNotFound", err)
	}
	if hits.Load() != 1 {
		t.Errorf("hits = %d, rejected requests must not be retried", hits.Load())
	}
}

func TestClient_PutRecord(t *testing.T) {
	t.Parallel()

	var got struct {
		Repo       string          `json:"repo"`
		Collection string          `json:"collection"`
		RKey       string          `json:"rkey"`
		Record     json.RawMessage `json:"record"`
	}
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/xrpc/"+MethodPutRecord {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		writeJSON(w, http.StatusOK, map[string]string{"uri": "x", "cid": "y"})
	})

	post := mustPost(t)
	record := gate.EncodeEmbeddingPolicy(gate.EmbeddingDisabled, post.URI(), "2024-08-01T12:00:00.000Z")
	if err := c.PutRecord(context.Background(), post.Postgate(), record); err != nil {
		t.Fatalf("PutRecord() error = %v", err)
	}
	if got.Repo != "did:plc:author" || got.Collection != gate.PostgateCollection || got.RKey != "3kpost" {
		t.Errorf("input = %+v", got)
	}
	if gate.DecodeEmbeddingPolicy(got.Record) != gate.EmbeddingDisabled {
		t.Errorf("record = %s, want disabled postgate", got.Record)
	}
}

func TestClient_RetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	c, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": "UpstreamFailure"})
			return
		}
		// The body must be resent on every attempt.
		body, _ := io.ReadAll(r.Body)
		if len(body) == 0 {
			t.Error("retried request has an empty body")
		}
		writeJSON(w, http.StatusOK, map[string]string{"uri": "x"})
	})

	post := mustPost(t)
	if err := c.PutRecord(context.Background(), post.Threadgate(), gate.EncodeAllowRules(nil, post.URI(), "")); err != nil {
		t.Fatalf("PutRecord() error = %v", err)
	}
	if hits.Load() != 2 {
		t.Errorf("hits = %d, want 2", hits.Load())
	}
}

func TestClient_RejectedRequest(t *testing.T) {
	t.Parallel()

	c, hits := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"error":   "ExpiredToken",
			"message": "Token has expired",
		})
	})

	post := mustPost(t)
	err := c.PutRecord(context.Background(), post.Threadgate(), gate.EncodeAllowRules(nil, post.URI(), ""))
	if !errors.Is(err, ErrRequestRejected) {
		t.Fatalf("PutRecord() error = %v, want ErrRequestRejected", err)
	}
	var xerr *Error
	if !errors.As(err, &xerr) {
		t.Fatalf("PutRecord() error = %v, want *Error", err)
	}
	if xerr.Status != http.StatusUnauthorized || xerr.Name != "ExpiredToken" || xerr.Method != MethodPutRecord {
		t.Errorf("Error = %+v", xerr)
	}
	if hits.Load() != 1 {
		t.Errorf("hits = %d, want 1", hits.Load())
	}

	// Rejections do not open the circuit.
	for i := 0; i < 3; i++ {
		_ = c.PutRecord(context.Background(), post.Threadgate(), gate.EncodeAllowRules(nil, post.URI(), ""))
	}
	if hits.Load() != 4 {
		t.Errorf("hits = %d, want 4", hits.Load())
	}
}

func TestClient_CircuitOpensOnServerErrors(t *testing.T) {
	t.Parallel()

	c, hits := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	for i := 0; i < 2; i++ {
		if _, err := c.GetPostThread(context.Background(), testPost, 0); err == nil {
			t.Fatal("GetPostThread() should fail on 503")
		}
	}
	before := hits.Load()

	if _, err := c.GetPostThread(context.Background(), testPost, 0); err == nil {
		t.Fatal("GetPostThread() should fail with the circuit open")
	}
	if hits.Load() != before {
		t.Errorf("hits = %d, want %d: open circuit must not reach the server", hits.Load(), before)
	}
}

func TestClient_GetPostThread(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("uri") != testPost || r.URL.Query().Get("depth") != "0" {
			t.Errorf("query = %v", r.URL.Query())
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"thread": map[string]any{
				"$type": store.ThreadViewPostType,
				"post": map[string]any{
					"uri":    testPost,
					"author": map[string]string{"did": "did:plc:author", "handle": "alice.test"},
					"threadgate": map[string]any{
						"uri": "at://did:plc:author/app.bsky.feed.threadgate/3kpost",
						"record": map[string]any{
							"$type": gate.ThreadgateCollection,
							"allow": []any{map[string]string{"$type": "app.bsky.feed.threadgate#mentionRule"}},
						},
					},
				},
			},
		})
	})

	thread, err := c.GetPostThread(context.Background(), testPost, 0)
	if err != nil {
		t.Fatalf("GetPostThread() error = %v", err)
	}
	if thread.Type != store.ThreadViewPostType || thread.Post == nil {
		t.Fatalf("thread = %+v", thread)
	}
	if thread.Post.Author.Handle != "alice.test" {
		t.Errorf("handle = %q", thread.Post.Author.Handle)
	}
	if got := gate.DecodeAllowRules(thread.Post.Threadgate.Record); !gate.Equal(got, []gate.AllowRule{gate.Mention()}) {
		t.Errorf("rules = %v, want [mention]", got)
	}
}

func TestClient_GetPostThread_NotFound(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "NotFound", "message": "Post not found"})
	})

	thread, err := c.GetPostThread(context.Background(), testPost, 0)
	if err != nil {
		t.Fatalf("GetPostThread() error = %v", err)
	}
	if thread.Type == store.ThreadViewPostType {
		t.Errorf("thread type = %q, want not found", thread.Type)
	}
}

func TestClient_WithStoreClient(t *testing.T) {
	t.Parallel()

	records := map[string]json.RawMessage{}
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/xrpc/" + MethodGetRecord:
			key := r.URL.Query().Get("collection")
			raw, ok := records[key]
			if !ok {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "RecordNotFound"})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"value": raw})
		case "/xrpc/" + MethodPutRecord:
			var in struct {
				Collection string          `json:"collection"`
				Record     json.RawMessage `json:"record"`
			}
			_ = json.NewDecoder(r.Body).Decode(&in)
			records[in.Collection] = in.Record
			writeJSON(w, http.StatusOK, map[string]string{})
		}
	})

	sc := store.NewClient(c)
	post := mustPost(t)
	if err := sc.WriteQuotePolicy(context.Background(), post, gate.EmbeddingDisabled); err != nil {
		t.Fatalf("WriteQuotePolicy() error = %v", err)
	}
	got, err := sc.ReadQuotePolicy(context.Background(), post)
	if err != nil || got != gate.EmbeddingDisabled {
		t.Errorf("ReadQuotePolicy() = %s, %v", got, err)
	}
}

func TestClient_QueuesOverConcurrencyLimit(t *testing.T) {
	t.Parallel()

	var (
		mu       sync.Mutex
		inFlight int
		peak     int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		inFlight++
		peak = max(peak, inFlight)
		mu.Unlock()

		time.Sleep(20 * time.Millisecond)

		mu.Lock()
		inFlight--
		mu.Unlock()

		if r.URL.Path == "/xrpc/"+MethodGetRecord {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "RecordNotFound"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{})
	}))
	t.Cleanup(srv.Close)

	c := NewClient(Config{ServiceURL: srv.URL, MaxConcurrent: 1, RetryDelay: time.Millisecond})
	t.Cleanup(func() { _ = c.Close() })

	// A save writes both records at once, each with a read then a put.
	sc := store.NewClient(c)
	post := mustPost(t)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		errs[0] = sc.WriteReplyPolicy(context.Background(), post, []gate.AllowRule{gate.Mention()})
	}()
	go func() {
		defer wg.Done()
		errs[1] = sc.WriteQuotePolicy(context.Background(), post, gate.EmbeddingDisabled)
	}()
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("write %d error = %v, want queued call to succeed", i, err)
		}
	}
	if peak != 1 {
		t.Errorf("peak in-flight = %d, want 1", peak)
	}
}

func TestError(t *testing.T) {
	t.Parallel()

	e := &Error{Method: MethodGetRecord, Status: 400, Name: "InvalidRequest", Message: "bad"}
	if e.Error() != "com.atproto.repo.getRecord: status 400: InvalidRequest: bad" {
		t.Errorf("Error() = %q", e.Error())
	}
	if !errors.Is(e, ErrRequestRejected) || errors.Is(e, ErrServiceUnavailable) {
		t.Error("400 should be a rejection")
	}
	if !errors.Is(&Error{Status: 502}, ErrServiceUnavailable) {
		t.Error("502 should be unavailable")
	}
}
