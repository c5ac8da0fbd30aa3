// Package cli provides the gatectl command-line interface for viewing and
// changing who may reply to and quote a post.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/threadgate"
)

// Version information set at build time.
var (
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Backends selectable with --backend.
const (
	BackendXRPC   = "xrpc"
	BackendMemory = "memory"
)

// globalOptions holds the persistent flags.
type globalOptions struct {
	configPath   string
	backend      string
	logLevel     string
	trace        string
	otlpEndpoint string
}

// App represents the CLI application.
type App struct {
	root   *cobra.Command
	stdout io.Writer
	stderr io.Writer
	opts   globalOptions
}

// New creates a new CLI application.
func New() *App {
	app := &App{
		stdout: os.Stdout,
		stderr: os.Stderr,
	}

	app.root = &cobra.Command{
		Use:   "gatectl",
		Short: "Manage who can reply to and quote a post",
		Long: `gatectl reads and updates the interaction policy of a post: the
threadgate record deciding who may reply and the postgate record deciding
whether the post may be quoted.

A save writes both records, then waits until the read path reflects the
new reply rules before reporting success.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := app.root.PersistentFlags()
	flags.StringVarP(&app.opts.configPath, "config", "c", "", "Path to configuration file")
	flags.StringVar(&app.opts.backend, "backend", BackendXRPC, "Record backend: xrpc or memory")
	flags.StringVar(&app.opts.logLevel, "log-level", "", "Override the configured log level")
	flags.StringVar(&app.opts.trace, "trace", "none", "Trace exporter: none, stdout or otlp")
	flags.StringVar(&app.opts.otlpEndpoint, "otlp-endpoint", "localhost:4317", "OTLP collector endpoint for --trace otlp")

	app.root.AddCommand(
		app.newVersionCmd(),
		app.newShowCmd(),
		app.newSetCmd(),
		app.newValidateCmd(),
		app.newExportSchemaCmd(),
	)

	return app
}

// WithOutput sets custom output writers.
func (a *App) WithOutput(stdout, stderr io.Writer) *App {
	a.stdout = stdout
	a.stderr = stderr
	a.root.SetOut(stdout)
	a.root.SetErr(stderr)
	return a
}

// Execute runs the CLI application.
func (a *App) Execute(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return a.root.ExecuteContext(ctx)
}

// ExecuteWithArgs runs the CLI with specific arguments (useful for testing).
func (a *App) ExecuteWithArgs(ctx context.Context, args []string) error {
	a.root.SetArgs(args)
	return a.Execute(ctx)
}

// newVersionCmd creates the version command.
func (a *App) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(a.stdout, "gatectl version %s\n", threadgate.GetVersion())
			fmt.Fprintf(a.stdout, "  Git commit: %s\n", GitCommit)
			fmt.Fprintf(a.stdout, "  Build date: %s\n", BuildDate)
		},
	}
}
