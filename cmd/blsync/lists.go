package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/JohanCodinha/blsync/internal/blacklist"
	"github.com/JohanCodinha/blsync/internal/sync"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	labelStyle = lipgloss.NewStyle().Width(20).Foreground(lipgloss.Color("8"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
)

func (c *cli) publishCmd() *cobra.Command {
	var name, description string
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish the personal blacklist to the list service",
		Long: `Create a shared list from the personal blacklist and link this device
to it. The write secret is shown once: keep it to link other devices.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withEnv(func(ctx context.Context, e *env) error {
				created, err := e.engine.Publish(ctx, name, description)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "published list %s\n", created.ID)
				fmt.Fprintf(out, "write secret: %s\n", created.WriteSecret)
				fmt.Fprintln(out, warnStyle.Render("store the write secret safely, it cannot be recovered"))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "list name")
	cmd.Flags().StringVar(&description, "description", "", "list description")
	return cmd
}

func (c *cli) linkCmd() *cobra.Command {
	var writeSecret string
	cmd := &cobra.Command{
		Use:   "link <list-id>",
		Short: "Link this device to an existing published list",
		Long: `Link this device to a list published from another device. The next
sync merges local entries with the shared list. The write secret is read
from the terminal when --secret is not given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if writeSecret == "" {
				s, err := readSecret(cmd.InOrStdin(), cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				writeSecret = s
			}
			if writeSecret == "" {
				return fmt.Errorf("write secret cannot be empty")
			}

			return c.withEnv(func(ctx context.Context, e *env) error {
				if err := e.engine.Link(ctx, args[0], writeSecret); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "linked to list %s, run 'blsync sync' to merge\n", args[0])
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&writeSecret, "secret", "", "write secret of the list")
	return cmd
}

// readSecret prompts without echo on a terminal and reads one line otherwise.
func readSecret(in io.Reader, prompt io.Writer) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(prompt, "write secret: ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("failed to read secret: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read secret: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func (c *cli) unlinkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unlink",
		Short: "Stop syncing the personal list",
		Long:  `Forget the published list credentials. Local entries are kept.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withEnv(func(ctx context.Context, e *env) error {
				if err := e.engine.Unlink(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "unlinked, local entries kept")
				return nil
			})
		},
	}
}

func (c *cli) subscribeCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "subscribe <list-id>",
		Short: "Subscribe to someone else's list",
		Long: `Subscribe to a published list. Its entries are checked alongside the
personal list but never copied into it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withEnv(func(ctx context.Context, e *env) error {
				sub, err := e.subs.Subscribe(ctx, args[0], name)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "subscribed to %s (%s)\n", sub.ID, displayName(sub))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "local name for the subscription (default remote name)")
	return cmd
}

func (c *cli) unsubscribeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unsubscribe <list-id>",
		Short: "Remove a subscription",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withEnv(func(ctx context.Context, e *env) error {
				if err := e.subs.Unsubscribe(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "unsubscribed from %s\n", args[0])
				return nil
			})
		},
	}
}

func (c *cli) subscriptionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "subscriptions",
		Aliases: []string{"subs"},
		Short:   "List subscriptions",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withEnv(func(ctx context.Context, e *env) error {
				subs, err := e.db.Subscriptions(ctx)
				if err != nil {
					return err
				}
				printSubscriptions(cmd.OutOrStdout(), subs)
				return nil
			})
		},
	}
	cmd.AddCommand(c.setEnabledCmd("enable", true), c.setEnabledCmd("disable", false))
	return cmd
}

func (c *cli) setEnabledCmd(use string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <list-id>",
		Short: strings.ToUpper(use[:1]) + use[1:] + " a subscription",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withEnv(func(ctx context.Context, e *env) error {
				if err := e.subs.SetEnabled(ctx, args[0], enabled); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%sd %s\n", use, args[0])
				return nil
			})
		},
	}
}

func printSubscriptions(w io.Writer, subs []blacklist.Subscription) {
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("subscriptions (%d)", len(subs))))
	if len(subs) == 0 {
		fmt.Fprintln(w, dimStyle.Render("  none"))
		return
	}
	for _, s := range subs {
		state := okStyle.Render("enabled")
		if !s.Enabled {
			state = dimStyle.Render("disabled")
		}
		fmt.Fprintf(w, "  %s %s %s %s\n", idStyle.Render(s.ID), displayName(s), state, dimStyle.Render("synced "+relTime(s.LastSynced)))
	}
}

func displayName(s blacklist.Subscription) string {
	if s.Name == "" {
		return "unnamed"
	}
	return s.Name
}

// relTime renders a millisecond timestamp relative to now.
func relTime(ms *int64) string {
	if ms == nil {
		return "never"
	}
	return humanize.Time(time.UnixMilli(*ms))
}

func (c *cli) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show sync status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withEnv(func(ctx context.Context, e *env) error {
				st, err := sync.ReadStatus(ctx, e.db)
				if err != nil {
					return err
				}
				printStatus(cmd.OutOrStdout(), st, c.cfg.Remote.BaseURL)
				return nil
			})
		},
	}
}

func printStatus(w io.Writer, st sync.Status, baseURL string) {
	row := func(label, value string) {
		fmt.Fprintf(w, "%s %s\n", labelStyle.Render(label), value)
	}

	fmt.Fprintln(w, headerStyle.Render("blsync status"))
	row("service", baseURL)
	if st.ListID == "" {
		row("published list", dimStyle.Render("not published"))
	} else {
		row("published list", st.ListID)
	}
	row("subjects", humanize.Comma(int64(st.Subjects)))
	row("items", humanize.Comma(int64(st.Items)))
	row("last local change", relTime(st.LastLocalChange))
	row("last sync", relTime(st.LastSuccessfulSync))
	if st.Pending {
		row("state", warnStyle.Render("changes pending"))
	} else {
		row("state", okStyle.Render("up to date"))
	}

	enabled := 0
	for _, s := range st.Subscriptions {
		if s.Enabled {
			enabled++
		}
	}
	row("subscriptions", fmt.Sprintf("%d (%d enabled)", len(st.Subscriptions), enabled))
}
