package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/felixgeelhaar/threadgate"
	"github.com/felixgeelhaar/threadgate/application"
	"github.com/felixgeelhaar/threadgate/domain/cache"
	domainconfig "github.com/felixgeelhaar/threadgate/domain/config"
	"github.com/felixgeelhaar/threadgate/domain/gate"
	"github.com/felixgeelhaar/threadgate/infrastructure/config"
	"github.com/felixgeelhaar/threadgate/infrastructure/logging"
	"github.com/felixgeelhaar/threadgate/infrastructure/observability"
	"github.com/felixgeelhaar/threadgate/infrastructure/storage/memory"
	"github.com/felixgeelhaar/threadgate/infrastructure/store"
	"github.com/felixgeelhaar/threadgate/infrastructure/xrpc"
)

// memoryReadLag is how many reads the memory backend's read path trails a
// write by.
const memoryReadLag = 1

// demoHandle is the author handle of posts registered with the memory
// backend.
const demoHandle = "author.test"

// runtime holds the components a command works with.
type runtime struct {
	config    *domainconfig.Config
	log       logging.Logger
	telemetry *observability.Provider
	cache     cache.Cache
	loader    *application.Loader
	orch      *application.Orchestrator
	closers   []func() error
}

// consoleNotifier prints save results.
type consoleNotifier struct {
	out io.Writer
	err io.Writer
}

func (n consoleNotifier) Success(msg string) { fmt.Fprintf(n.out, "✓ %s\n", msg) }
func (n consoleNotifier) Error(msg string)   { fmt.Fprintf(n.err, "✗ %s\n", msg) }

// loadConfig reads the configuration file, or returns the defaults when no
// file was given.
func (a *App) loadConfig() (*domainconfig.Config, error) {
	if a.opts.configPath == "" {
		return domainconfig.Default(), nil
	}
	cfg, err := config.NewLoader().LoadFile(a.opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	return cfg, nil
}

// telemetryOptions maps the --trace flag to provider options.
func (a *App) telemetryOptions() ([]observability.Option, error) {
	opts := []observability.Option{
		observability.WithServiceName("gatectl"),
		observability.WithServiceVersion(threadgate.GetVersion()),
	}
	switch a.opts.trace {
	case "", "none":
	case string(observability.ExporterStdout):
		opts = append(opts, observability.WithTracing(observability.ExporterStdout, ""))
	case string(observability.ExporterOTLP):
		opts = append(opts,
			observability.WithTracing(observability.ExporterOTLP, a.opts.otlpEndpoint),
			observability.WithTracingInsecure(),
		)
	default:
		return nil, fmt.Errorf("unknown trace exporter %q", a.opts.trace)
	}
	return opts, nil
}

// setup builds the components for one command working on post.
func (a *App) setup(post gate.PostRef) (*runtime, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}
	if a.opts.logLevel != "" {
		cfg.Logging.Level = a.opts.logLevel
	}

	builder := config.NewBuilder(cfg)
	log := logging.From(logging.New(builder.LoggingConfig(a.stderr)))
	rt := &runtime{config: cfg, log: log}

	telemetryOpts, err := a.telemetryOptions()
	if err != nil {
		return nil, err
	}
	rt.telemetry, err = observability.New(telemetryOpts...)
	if err != nil {
		return nil, fmt.Errorf("set up telemetry: %w", err)
	}
	rt.closers = append(rt.closers, func() error {
		return rt.telemetry.Shutdown(context.Background())
	})

	rpc, err := a.backend(builder, rt, post)
	if err != nil {
		rt.close()
		return nil, err
	}
	client := store.NewClient(rpc)

	c, closeCache, err := builder.BuildCache()
	if err != nil {
		rt.close()
		return nil, fmt.Errorf("set up cache: %w", err)
	}
	rt.cache = c
	rt.closers = append(rt.closers, closeCache)

	metrics, err := observability.NewSaveMetrics(rt.telemetry.Meter())
	if err != nil {
		rt.close()
		return nil, fmt.Errorf("set up metrics: %w", err)
	}

	orchOpts := []application.Option{
		application.WithPollConfig(builder.PollConfig()),
		application.WithNotifier(consoleNotifier{out: a.stdout, err: a.stderr}),
		application.WithMetrics(metrics),
		application.WithTracer(rt.telemetry.Tracer()),
		application.WithLogger(log),
	}
	loaderOpts := []application.LoaderOption{application.WithLoaderLogger(log)}
	if c != nil {
		orchOpts = append(orchOpts, application.WithCache(c))
		loaderOpts = append(loaderOpts, application.WithViewCache(c, builder.CacheTTL()))
	}

	rt.orch, err = application.NewOrchestrator(client, orchOpts...)
	if err != nil {
		rt.close()
		return nil, err
	}
	rt.loader = application.NewLoader(client, loaderOpts...)
	return rt, nil
}

// backend creates the record transport selected with --backend.
func (a *App) backend(builder *config.Builder, rt *runtime, post gate.PostRef) (store.RPC, error) {
	switch a.opts.backend {
	case BackendXRPC:
		xcfg := builder.XRPCConfig()
		if xcfg.Timeout <= 0 {
			xcfg.Timeout = xrpc.DefaultConfig().Timeout
		}
		hc := &http.Client{
			Timeout:   xcfg.Timeout,
			Transport: observability.InstrumentTransport(nil, rt.telemetry),
		}
		c := xrpc.NewClient(xcfg, xrpc.WithHTTPClient(hc), xrpc.WithLogger(rt.log))
		rt.closers = append(rt.closers, c.Close)
		return c, nil
	case BackendMemory:
		b := memory.NewBackend(memory.WithReadLag(memoryReadLag))
		b.AddPost(post, demoHandle)
		return b, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", a.opts.backend)
	}
}

func (rt *runtime) close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}
