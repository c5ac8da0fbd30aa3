package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/threadgate/application"
	"github.com/felixgeelhaar/threadgate/domain/gate"
	"github.com/felixgeelhaar/threadgate/infrastructure/store"
)

// ErrSaveFailed is returned when a record write of a save failed.
var ErrSaveFailed = errors.New("save failed")

// setOptions holds options for the set command.
type setOptions struct {
	everybody     bool
	nobody        bool
	allow         []string
	disableQuotes bool
	enableQuotes  bool
}

// newSetCmd creates the set command.
func (a *App) newSetCmd() *cobra.Command {
	opts := &setOptions{}

	cmd := &cobra.Command{
		Use:   "set <post-uri>",
		Short: "Change who can reply to and quote a post",
		Long: `Change the interaction policy of a post.

Unchanged halves of the policy are kept: --disable-quotes alone leaves the
reply rules as they are.

Rules for --allow:
  mention          accounts mentioned in the post
  following        accounts the author follows
  list=<list-uri>  members of a list

Examples:
  # Only mentioned users and followed accounts can reply
  gatectl set at://did:plc:abc/app.bsky.feed.post/3kxyz --allow mention,following

  # Disable replies and quotes
  gatectl set at://did:plc:abc/app.bsky.feed.post/3kxyz --nobody --disable-quotes`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			post, err := gate.ParsePostURI(args[0])
			if err != nil {
				return err
			}
			edit, err := opts.edit(cmd)
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

			session := application.NewSession(rt.orch, post, view.Policy)
			session.Edit(edit)
			out, err := session.Save(cmd.Context())
			if err != nil {
				return err
			}
			a.printOutcome(out)
			if !out.OK() {
				return fmt.Errorf("%w: %w", ErrSaveFailed, out.Err())
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&opts.everybody, "everybody", false, "Let anybody reply")
	flags.BoolVar(&opts.nobody, "nobody", false, "Disable replies")
	flags.StringSliceVar(&opts.allow, "allow", nil, "Comma separated reply rules (mention, following, list=<uri>)")
	flags.BoolVar(&opts.disableQuotes, "disable-quotes", false, "Prevent others from quoting the post")
	flags.BoolVar(&opts.enableQuotes, "enable-quotes", false, "Let others quote the post")
	cmd.MarkFlagsMutuallyExclusive("everybody", "nobody", "allow")
	cmd.MarkFlagsMutuallyExclusive("disable-quotes", "enable-quotes")
	cmd.MarkFlagsOneRequired("everybody", "nobody", "allow", "disable-quotes", "enable-quotes")

	return cmd
}

// edit returns the change the flags describe.
func (o *setOptions) edit(cmd *cobra.Command) (func(*gate.PendingPolicy), error) {
	var rules []gate.AllowRule
	switch {
	case o.everybody:
		rules = []gate.AllowRule{gate.Everybody()}
	case o.nobody:
		rules = []gate.AllowRule{gate.Nobody()}
	case cmd.Flags().Changed("allow"):
		parsed, err := parseRules(o.allow)
		if err != nil {
			return nil, err
		}
		rules = parsed
	}

	var embedding gate.EmbeddingPolicy
	switch {
	case o.disableQuotes:
		embedding = gate.EmbeddingDisabled
	case o.enableQuotes:
		embedding = gate.EmbeddingOpen
	}

	return func(p *gate.PendingPolicy) {
		if rules != nil {
			p.SetAllow(rules)
		}
		if embedding != "" {
			p.SetEmbedding(embedding)
		}
	}, nil
}

// parseRules parses the --allow syntax.
func parseRules(values []string) ([]gate.AllowRule, error) {
	if len(values) == 0 {
		return nil, errors.New("--allow needs at least one rule")
	}
	rules := make([]gate.AllowRule, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		switch {
		case v == string(gate.RuleMention):
			rules = append(rules, gate.Mention())
		case v == string(gate.RuleFollowing):
			rules = append(rules, gate.Following())
		case strings.HasPrefix(v, "list="):
			uri := strings.TrimPrefix(v, "list=")
			if _, err := gate.ParseATURI(uri); err != nil {
				return nil, fmt.Errorf("invalid list rule: %w", err)
			}
			rules = append(rules, gate.ListMember(uri))
		default:
			return nil, fmt.Errorf("unknown reply rule %q", v)
		}
	}
	return rules, nil
}

func (a *App) printOutcome(out application.Outcome) {
	if out.Stage() == store.StageReply {
		return
	}
	switch {
	case out.ReconcileErr != nil:
		fmt.Fprintf(a.stdout, "  Saved; could not confirm on the read path: %v\n", out.ReconcileErr)
	case !out.Reconcile.Converged:
		fmt.Fprintf(a.stdout, "  Saved; the read path had not caught up after %d checks\n", out.Reconcile.Attempts)
	default:
		fmt.Fprintf(a.stdout, "  Confirmed on the read path after %d check(s)\n", out.Reconcile.Attempts)
	}
}
