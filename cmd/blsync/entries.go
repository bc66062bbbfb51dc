package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/JohanCodinha/blsync/internal/blacklist"
	"github.com/JohanCodinha/blsync/internal/sync"
	"github.com/JohanCodinha/blsync/internal/transfer"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	idStyle     = lipgloss.NewStyle().Width(40)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func (c *cli) addCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <subjects|items> <id>...",
		Short: "Blacklist sellers or listings",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := blacklist.ParsePartition(args[0])
			if err != nil {
				return err
			}
			return c.withEnv(func(ctx context.Context, e *env) error {
				for _, id := range args[1:] {
					entry, err := e.db.Add(ctx, p, id)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "added %s %s\n", singular(p), entry.ID)
				}
				return nil
			})
		},
	}
}

func (c *cli) removeCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "remove <subjects|items> <id>...",
		Aliases: []string{"rm"},
		Short:   "Remove sellers or listings from the blacklist",
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := blacklist.ParsePartition(args[0])
			if err != nil {
				return err
			}
			return c.withEnv(func(ctx context.Context, e *env) error {
				for _, id := range args[1:] {
					removed, err := e.db.Remove(ctx, p, id)
					if err != nil {
						return err
					}
					if removed {
						fmt.Fprintf(cmd.OutOrStdout(), "removed %s %s\n", singular(p), id)
					} else {
						fmt.Fprintf(cmd.OutOrStdout(), "%s %s was not blacklisted\n", singular(p), id)
					}
				}
				return nil
			})
		},
	}
}

func (c *cli) listCmd() *cobra.Command {
	var since string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list [subjects|items]",
		Short: "Show blacklisted entries",
		Long: `Show the personal blacklist, newest first.

--since accepts a date (2024-05-01) or natural language such as
"3 days ago" or "last week".`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			partitions := blacklist.Partitions
			if len(args) == 1 {
				p, err := blacklist.ParsePartition(args[0])
				if err != nil {
					return err
				}
				partitions = []blacklist.Partition{p}
			}

			var cutoff int64
			if since != "" {
				t, err := parseSince(since, time.Now())
				if err != nil {
					return err
				}
				cutoff = t.UnixMilli()
			}

			return c.withEnv(func(ctx context.Context, e *env) error {
				var lists blacklist.Lists
				for _, p := range partitions {
					entries, err := e.db.GetAllWithTimestamps(ctx, p)
					if err != nil {
						return err
					}
					lists.Set(p, filterSince(entries, cutoff))
				}

				if asJSON {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(lists)
				}
				for _, p := range partitions {
					printEntries(cmd.OutOrStdout(), p, lists.Get(p))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&since, "since", "", "only entries added after this time")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

// parseSince accepts an ISO date or a natural-language time relative to now.
func parseSince(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.ParseInLocation("2006-01-02", s, now.Location()); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	r, err := w.Parse(s, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse --since %q: %w", s, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("could not understand --since %q", s)
	}
	return r.Time, nil
}

// filterSince keeps entries added at or after cutoff, newest first.
func filterSince(entries []blacklist.Entry, cutoff int64) []blacklist.Entry {
	out := make([]blacklist.Entry, 0, len(entries))
	for _, e := range entries {
		if e.AddedAt >= cutoff {
			out = append(out, e)
		}
	}
	sortNewestFirst(out)
	return out
}

func sortNewestFirst(entries []blacklist.Entry) {
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].AddedAt > entries[j].AddedAt })
}

func printEntries(w io.Writer, p blacklist.Partition, entries []blacklist.Entry) {
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%s (%s)", p, humanize.Comma(int64(len(entries))))))
	if len(entries) == 0 {
		fmt.Fprintln(w, dimStyle.Render("  none"))
		return
	}
	for _, e := range entries {
		fmt.Fprintf(w, "  %s %s\n", idStyle.Render(e.ID), dimStyle.Render(humanize.Time(time.UnixMilli(e.AddedAt))))
	}
}

func (c *cli) checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <subjects|items> <id>",
		Short: "Check whether a seller or listing is blocked",
		Long:  `Check an id against the personal list and all enabled subscriptions.`,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := blacklist.ParsePartition(args[0])
			if err != nil {
				return err
			}
			return c.withEnv(func(ctx context.Context, e *env) error {
				if err := sync.LoadLookup(ctx, e.db, e.lookup); err != nil {
					return err
				}
				if e.lookup.Has(p, args[1]) {
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s is blocked\n", singular(p), args[1])
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s is not blocked\n", singular(p), args[1])
				}
				return nil
			})
		},
	}
}

func (c *cli) exportCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "export <file|->",
		Short: "Export the personal blacklist",
		Long:  `Export the personal blacklist as JSON, YAML or TOML. Use - for stdout.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := resolveFormat(args[0], format)
			if err != nil {
				return err
			}
			return c.withEnv(func(ctx context.Context, e *env) error {
				lists, err := e.db.Lists(ctx)
				if err != nil {
					return err
				}

				if args[0] == "-" {
					return transfer.Export(cmd.OutOrStdout(), f, lists, time.Now().UnixMilli())
				}
				out, err := os.Create(args[0])
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", args[0], err)
				}
				if err := transfer.Export(out, f, lists, time.Now().UnixMilli()); err != nil {
					out.Close()
					return err
				}
				if err := out.Close(); err != nil {
					return fmt.Errorf("failed to write %s: %w", args[0], err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "exported %d subjects, %d items to %s\n", len(lists.Subjects), len(lists.Items), args[0])
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "", "json, yaml or toml (default from file extension)")
	return cmd
}

func (c *cli) importCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "import <file|->",
		Short: "Import entries into the personal blacklist",
		Long: `Import entries from a JSON, YAML or TOML export. Imported entries are
added to the existing list; entries without a timestamp are stamped now.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := resolveFormat(args[0], format)
			if err != nil {
				return err
			}

			var in io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				file, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("failed to open %s: %w", args[0], err)
				}
				defer file.Close()
				in = file
			}

			lists, err := transfer.Import(in, f)
			if err != nil {
				return err
			}

			return c.withEnv(func(ctx context.Context, e *env) error {
				for _, p := range blacklist.Partitions {
					n, err := e.db.Import(ctx, p, lists.Get(p))
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "imported %d %s\n", n, p)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "", "json, yaml or toml (default from file extension)")
	return cmd
}

// resolveFormat prefers an explicit --format, then the file extension.
// Stdin and stdout default to JSON.
func resolveFormat(path, flag string) (transfer.Format, error) {
	if flag != "" {
		return transfer.ParseFormat(flag)
	}
	if path == "-" {
		return transfer.JSON, nil
	}
	return transfer.FormatFromPath(path)
}

func singular(p blacklist.Partition) string {
	if p == blacklist.Items {
		return "item"
	}
	return "subject"
}
