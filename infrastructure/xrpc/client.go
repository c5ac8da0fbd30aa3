package xrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/felixgeelhaar/fortify/bulkhead"
	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/retry"

	"github.com/felixgeelhaar/threadgate/domain/gate"
	"github.com/felixgeelhaar/threadgate/infrastructure/logging"
	"github.com/felixgeelhaar/threadgate/infrastructure/store"
)

// XRPC methods.
const (
	MethodGetRecord     = "com.atproto.repo.getRecord"
	MethodPutRecord     = "com.atproto.repo.putRecord"
	MethodGetPostThread = "app.bsky.feed.getPostThread"
)

// Error names that map to absent data rather than failures.
const (
	errNameRecordNotFound = "RecordNotFound"
	errNameNotFound       = "NotFound"
)

const notFoundPostType = "app.bsky.feed.defs#notFoundPost"

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 4096

// Client is an XRPC implementation of store.RPC.
//
// Every call passes through a bulkhead and a circuit breaker. Calls over the
// concurrency limit wait in the bulkhead's queue. Attempts that fail at the
// transport level or with a 5xx are retried; rejected requests are returned
// at once and do not count against the breaker.
type Client struct {
	config   Config
	http     *http.Client
	bulkhead bulkhead.Bulkhead[[]byte]
	breaker  circuitbreaker.CircuitBreaker[[]byte]
	retrier  retry.Retry[[]byte]
	log      logging.Logger
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(c *Client) {
		c.log = l
	}
}

// NewClient creates an XRPC client.
func NewClient(config Config, opts ...Option) *Client {
	config = config.withDefaults()
	threshold := config.CircuitBreakerThreshold
	maxConcurrent := config.MaxConcurrent

	c := &Client{
		config: config,
		http:   &http.Client{Timeout: config.Timeout},
		bulkhead: bulkhead.New[[]byte](bulkhead.Config{
			MaxConcurrent: maxConcurrent,
			MaxQueue:      config.MaxQueue,
			QueueTimeout:  config.QueueTimeout,
		}),
		breaker: circuitbreaker.New[[]byte](circuitbreaker.Config{
			MaxRequests: uint32(maxConcurrent), // #nosec G115 -- defaulted to a positive value
			Interval:    config.CircuitBreakerTimeout,
			Timeout:     config.CircuitBreakerTimeout,
			ReadyToTrip: func(counts circuitbreaker.Counts) bool {
				return counts.ConsecutiveFailures >= uint32(threshold) // #nosec G115 -- defaulted to a positive value
			},
		}),
		retrier: retry.New[[]byte](retry.Config{
			MaxAttempts:        config.MaxRetries,
			InitialDelay:       config.RetryDelay,
			BackoffPolicy:      retry.BackoffExponential,
			Multiplier:         2.0,
			NonRetryableErrors: []error{ErrRequestRejected, context.Canceled, context.DeadlineExceeded},
		}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Close stops the bulkhead's queue worker. Calls made after Close fail.
func (c *Client) Close() error {
	return c.bulkhead.Close()
}

// GetRecord implements store.RPC.
func (c *Client) GetRecord(ctx context.Context, ref gate.RecordRef) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("repo", ref.Repo)
	q.Set("collection", ref.Collection)
	q.Set("rkey", ref.RKey)

	body, err := c.call(ctx, http.MethodGet, c.config.ServiceURL, MethodGetRecord, q, nil)
	if err != nil {
		var xerr *Error
		if errors.As(err, &xerr) && xerr.Name == errNameRecordNotFound {
			return nil, fmt.Errorf("%w: %w", store.ErrRecordNotFound, err)
		}
		return nil, err
	}

	var out struct {
		URI   string          `json:"uri"`
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidResponse, MethodGetRecord, err)
	}
	if len(out.Value) == 0 {
		return nil, fmt.Errorf("%w: %s", store.ErrRecordNotFound, ref)
	}
	return out.Value, nil
}

// PutRecord implements store.RPC.
func (c *Client) PutRecord(ctx context.Context, ref gate.RecordRef, record any) error {
	input := struct {
		Repo       string `json:"repo"`
		Collection string `json:"collection"`
		RKey       string `json:"rkey"`
		Record     any    `json:"record"`
	}{
		Repo:       ref.Repo,
		Collection: ref.Collection,
		RKey:       ref.RKey,
		Record:     record,
	}
	payload, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("encode %s input: %w", MethodPutRecord, err)
	}

	_, err = c.call(ctx, http.MethodPost, c.config.ServiceURL, MethodPutRecord, nil, payload)
	return err
}

// GetPostThread implements store.RPC. A post the service cannot find is
// returned as a not-found thread rather than an error.
func (c *Client) GetPostThread(ctx context.Context, uri string, depth int) (*store.ThreadView, error) {
	q := url.Values{}
	q.Set("uri", uri)
	q.Set("depth", strconv.Itoa(depth))

	body, err := c.call(ctx, http.MethodGet, c.config.AppViewURL, MethodGetPostThread, q, nil)
	if err != nil {
		var xerr *Error
		if errors.As(err, &xerr) && xerr.Name == errNameNotFound {
			return &store.ThreadView{Type: notFoundPostType}, nil
		}
		return nil, err
	}

	var out struct {
		Thread store.ThreadView `json:"thread"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidResponse, MethodGetPostThread, err)
	}
	return &out.Thread, nil
}

// call performs one XRPC method call with the resilience stack applied.
func (c *Client) call(ctx context.Context, httpMethod, baseURL, method string, query url.Values, payload []byte) ([]byte, error) {
	endpoint := strings.TrimRight(baseURL, "/") + "/xrpc/" + method
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	// A rejected request means the service is healthy; keep it out of the
	// breaker's failure counts.
	var rejected error
	body, err := c.bulkhead.Execute(ctx, func(ctx context.Context) ([]byte, error) {
		return c.breaker.Execute(ctx, func(ctx context.Context) ([]byte, error) {
			var last error
			body, err := c.retrier.Do(ctx, func(ctx context.Context) ([]byte, error) {
				body, err := c.attempt(ctx, httpMethod, endpoint, method, payload)
				last = err
				return body, err
			})
			if err != nil {
				// Report the final attempt's own error.
				if ctxErr := ctx.Err(); ctxErr != nil {
					err = ctxErr
				} else if last != nil {
					err = last
				}
			}
			if errors.Is(err, ErrRequestRejected) {
				rejected = err
				return nil, nil
			}
			return body, err
		})
	})
	if rejected != nil {
		return nil, rejected
	}
	if err != nil {
		c.log.Debug().
			Add(logging.Component("xrpc")).
			Add(logging.Str("method", method)).
			Add(logging.ErrorField(err)).
			Msg("xrpc call failed")
		return nil, err
	}
	return body, nil
}

func (c *Client) attempt(ctx context.Context, httpMethod, endpoint, method string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, httpMethod, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", method, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)
	if c.config.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.AccessToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrServiceUnavailable, method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: read %s response: %w", ErrServiceUnavailable, method, err)
		}
		return body, nil
	}

	xerr := &Error{Method: method, Status: resp.StatusCode}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if json.Unmarshal(body, xerr) != nil || xerr.Name == "" {
		xerr.Name = http.StatusText(resp.StatusCode)
	}
	return nil, xerr
}

var _ store.RPC = (*Client)(nil)
