package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/threadgate/infrastructure/config"
)

func (a *App) newExportSchemaCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export-schema [file]",
		Short: "Write the JSON schema of the gatectl config file",
		Long: `Write the JSON schema describing a gatectl config file.

The schema covers the service endpoints and access token, the read-path
poll bound, the view cache backend (none, memory, redis or badger), the
XRPC retry and circuit breaker settings, and logging.

Without a file the schema is printed to stdout.

Examples:
  gatectl export-schema
  gatectl export-schema gatectl.schema.json
  gatectl export-schema -o gatectl.schema.json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := output
			if len(args) == 1 {
				if path != "" && path != args[0] {
					return errors.New("give the output file either as an argument or with --output")
				}
				path = args[0]
			}
			return a.exportSchema(path)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "file to write the schema to")
	return cmd
}

func (a *App) exportSchema(path string) error {
	schema, err := config.SchemaJSON()
	if err != nil {
		return fmt.Errorf("generate schema: %w", err)
	}

	if path == "" {
		_, _ = fmt.Fprintln(a.stdout, schema)
		return nil
	}
	if err := os.WriteFile(path, []byte(schema), 0o600); err != nil {
		return fmt.Errorf("write schema: %w", err)
	}
	_, _ = fmt.Fprintf(a.stdout, "Schema exported to %s\n", path)
	return nil
}
