package observability

import (
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// transport traces and times outgoing XRPC requests.
type transport struct {
	next       http.RoundTripper
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
	requests   metric.Int64Counter
	duration   metric.Float64Histogram
}

// InstrumentTransport wraps next so that every request gets a client span,
// carries the trace context and is counted. A nil next uses
// http.DefaultTransport.
func InstrumentTransport(next http.RoundTripper, p *Provider) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	meter := p.Meter()
	// Instrument creation only fails for invalid names; the noop
	// instruments returned alongside the error are still usable.
	requests, _ := meter.Int64Counter("xrpc.requests",
		metric.WithDescription("Outgoing XRPC requests"),
		metric.WithUnit("{request}"),
	)
	duration, _ := meter.Float64Histogram("xrpc.request_duration",
		metric.WithDescription("Duration of outgoing XRPC requests"),
		metric.WithUnit("s"),
	)
	return &transport{
		next:       next,
		tracer:     p.Tracer(),
		propagator: p.Propagator(),
		requests:   requests,
		duration:   duration,
	}
}

// RoundTrip implements http.RoundTripper.
func (t *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	method := xrpcMethod(req)
	ctx, span := t.tracer.Start(req.Context(), "xrpc "+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("xrpc.method", method),
			attribute.String("http.request.method", req.Method),
			attribute.String("server.address", req.URL.Host),
		),
	)
	defer span.End()

	req = req.Clone(ctx)
	t.propagator.Inject(ctx, propagation.HeaderCarrier(req.Header))

	start := time.Now()
	resp, err := t.next.RoundTrip(req)
	elapsed := time.Since(start).Seconds()

	status := "error"
	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case resp.StatusCode >= 400:
		span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
		status = "rejected"
		if resp.StatusCode >= 500 {
			status = "unavailable"
		}
	default:
		span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
		span.SetStatus(codes.Ok, "")
		status = "ok"
	}

	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("status", status),
	)
	t.requests.Add(ctx, 1, attrs)
	t.duration.Record(ctx, elapsed, attrs)
	return resp, err
}

// xrpcMethod returns the NSID of an XRPC request path.
func xrpcMethod(req *http.Request) string {
	if _, method, ok := strings.Cut(req.URL.Path, "/xrpc/"); ok {
		return method
	}
	return req.URL.Path
}
