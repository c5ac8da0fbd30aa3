package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/threadgate/application"
	"github.com/felixgeelhaar/threadgate/domain/gate"
)

// showOptions holds options for the show command.
type showOptions struct {
	json bool
}

// newShowCmd creates the show command.
func (a *App) newShowCmd() *cobra.Command {
	opts := &showOptions{}

	cmd := &cobra.Command{
		Use:   "show <post-uri>",
		Short: "Show who can reply to and quote a post",
		Long: `Show the interaction policy of a post.

Examples:
  # Describe the policy
  gatectl show at://did:plc:abc/app.bsky.feed.post/3kxyz

  # Print the full view as JSON
  gatectl show at://did:plc:abc/app.bsky.feed.post/3kxyz --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			post, err := gate.ParsePostURI(args[0])
			if err != nil {
				return err
			}
			rt, err := a.setup(post)
			if err != nil {
				return err
			}
			defer rt.close()

			view, err := rt.loader.Load(cmd.Context(), post)
			if err != nil {
				return fmt.Errorf("load post: %w", err)
			}
			if opts.json {
				return a.printJSON(view)
			}
			a.printView(view)
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.json, "json", false, "Print the view as JSON")

	return cmd
}

func (a *App) printJSON(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *App) printView(v *application.View) {
	if !v.Found {
		fmt.Fprintf(a.stdout, "Post not found: %s\n", v.Post)
		return
	}
	fmt.Fprintf(a.stdout, "%s (%s)\n", v.Summary, v.Icon)
	fmt.Fprintf(a.stdout, "  %s\n", v.Description)
	if v.QuoteNotice != "" {
		fmt.Fprintf(a.stdout, "  %s\n", v.QuoteNotice)
	}
	fmt.Fprintf(a.stdout, "  Rules: %s\n", formatRules(v.Policy.Allow))
}

// formatRules renders rules in the syntax accepted by set --allow.
func formatRules(rules []gate.AllowRule) string {
	parts := make([]string, len(rules))
	for i, r := range rules {
		if r.Type == gate.RuleList {
			parts[i] = "list=" + r.List
			continue
		}
		parts[i] = string(r.Type)
	}
	return strings.Join(parts, ",")
}
