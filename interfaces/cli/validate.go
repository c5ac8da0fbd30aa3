package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/threadgate/infrastructure/config"
)

// validateOptions holds options for the validate command.
type validateOptions struct {
	strict     bool
	showSchema bool
}

// newValidateCmd creates the validate command.
func (a *App) newValidateCmd() *cobra.Command {
	opts := &validateOptions{}

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration file",
		Long: `Validate a gatectl configuration file.

This command checks:
  - File format (YAML or JSON)
  - Service URLs
  - Poll, cache, resilience and logging settings
  - Environment variable references (in strict mode)

Examples:
  # Validate a configuration file
  gatectl validate -c gatectl.yaml

  # Strict validation (fail on missing env vars)
  gatectl validate -c gatectl.yaml --strict

  # Show the JSON schema for configuration
  gatectl validate --schema`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.showSchema {
				return a.showConfigSchema()
			}
			return a.validateConfig(opts)
		},
	}

	cmd.Flags().BoolVar(&opts.strict, "strict", false, "Enable strict validation (fail on missing env vars)")
	cmd.Flags().BoolVar(&opts.showSchema, "schema", false, "Show JSON schema for configuration")

	return cmd
}

// validateConfig validates the configuration file.
func (a *App) validateConfig(opts *validateOptions) error {
	if a.opts.configPath == "" {
		return fmt.Errorf("configuration file path is required (-c flag)")
	}

	cfg, err := config.NewLoader(config.WithStrictEnv(opts.strict)).LoadFile(a.opts.configPath)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	fmt.Fprintf(a.stdout, "✓ Configuration is valid\n")
	fmt.Fprintf(a.stdout, "  Service: %s\n", cfg.Service.PDSURL)
	if cfg.Service.AppViewURL != "" {
		fmt.Fprintf(a.stdout, "  Read path: %s\n", cfg.Service.AppViewURL)
	}
	if cfg.Service.Identifier != "" {
		fmt.Fprintf(a.stdout, "  Account: %s\n", cfg.Service.Identifier)
	}

	fmt.Fprintf(a.stdout, "\nConfiguration summary:\n")
	fmt.Fprintf(a.stdout, "  Reconcile: %d attempts, %s apart\n", cfg.Poll.MaxAttempts, cfg.Poll.Delay.Duration())
	fmt.Fprintf(a.stdout, "  Cache: %s", cfg.Cache.Backend)
	if cfg.Cache.Backend == "redis" {
		fmt.Fprintf(a.stdout, " (%s)", cfg.Cache.Redis.Address)
	}
	fmt.Fprintln(a.stdout)
	fmt.Fprintf(a.stdout, "  Retries: %d, circuit breaker after %d failures\n",
		cfg.Resilience.Retry.MaxAttempts, cfg.Resilience.CircuitBreaker.Threshold)

	return nil
}

// showConfigSchema displays the JSON schema for configuration.
func (a *App) showConfigSchema() error {
	schemaJSON, err := config.SchemaJSON()
	if err != nil {
		return fmt.Errorf("failed to generate schema: %w", err)
	}

	fmt.Fprintln(a.stdout, schemaJSON)
	return nil
}
