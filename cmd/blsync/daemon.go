package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/JohanCodinha/blsync/internal/listsvc"
	"github.com/JohanCodinha/blsync/internal/logger"
	"github.com/JohanCodinha/blsync/internal/store"
	"github.com/JohanCodinha/blsync/internal/sync"
	"github.com/spf13/cobra"
)

const finalSyncTimeout = 30 * time.Second

func (c *cli) daemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the background sync scheduler",
		Long: `Run the sync scheduler in the foreground.

A cycle runs at startup and then periodically. Local changes, including
those made by other blsync commands, trigger a debounced sync. On
interrupt a final sync flushes pending changes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return c.runDaemon(ctx, cmd)
		},
	}
}

func (c *cli) runDaemon(ctx context.Context, cmd *cobra.Command) error {
	e, err := c.openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	if err := sync.LoadLookup(ctx, e.db, e.lookup); err != nil {
		return fmt.Errorf("failed to load blacklist: %w", err)
	}

	coord := sync.NewCoordinator(e.db, e.engine, e.subs, sync.NewFileGate(c.cfg.LockPath), c.syncOptions())
	e.db.SetChangeListener(coord.NotifyLocalChange)

	watchErr := make(chan error, 1)
	go func() {
		watchErr <- store.WatchLocalChanges(ctx, e.db, func(at int64) {
			coord.TriggerAutoSync()
		})
	}()

	coord.Start()
	fmt.Fprintf(cmd.OutOrStdout(), "blsync daemon running (data %s), press Ctrl+C to stop\n", c.cfg.DataDir)

	select {
	case <-ctx.Done():
	case err := <-watchErr:
		if err != nil {
			logger.Error("daemon: change watcher stopped: %v", err)
		}
		<-ctx.Done()
	}

	fmt.Fprintln(cmd.OutOrStdout(), "stopping, flushing pending changes...")
	flushCtx, cancel := context.WithTimeout(context.Background(), finalSyncTimeout)
	defer cancel()
	if result, err := coord.ForceSyncNow(flushCtx); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: final sync failed: %v\n", err)
	} else if result.Skipped {
		fmt.Fprintln(cmd.ErrOrStderr(), "warning: final sync skipped, another sync is running")
	}

	coord.Stop()
	return nil
}

func (c *cli) serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the list service",
		Long: `Run the HTTP list service that stores published blacklists.

Storage is selected by server.storage: sqlite (default), postgres or s3.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if addr == "" {
				addr = c.cfg.Server.Addr
			}
			if c.cfg.Server.Storage == "sqlite" {
				if err := os.MkdirAll(c.cfg.DataDir, 0755); err != nil {
					return fmt.Errorf("failed to create data directory: %w", err)
				}
			}

			repo, err := listsvc.OpenRepository(ctx, c.storage())
			if err != nil {
				return fmt.Errorf("failed to open list storage: %w", err)
			}
			defer repo.Close()

			app := listsvc.NewApp(listsvc.NewService(repo))
			fmt.Fprintf(cmd.OutOrStdout(), "serving lists on %s (%s storage)\n", addr, c.cfg.Server.Storage)
			return listsvc.Serve(ctx, app, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default server.addr)")
	return cmd
}

func (c *cli) storage() listsvc.Storage {
	s := c.cfg.Server
	return listsvc.Storage{
		Backend: s.Storage,
		DSN:     s.DSN,
		S3: listsvc.S3Options{
			Bucket:       s.S3.Bucket,
			Prefix:       s.S3.Prefix,
			Region:       s.S3.Region,
			Endpoint:     s.S3.Endpoint,
			AccessKey:    s.S3.AccessKey,
			SecretKey:    s.S3.SecretKey,
			UsePathStyle: s.S3.UsePathStyle,
		},
	}
}

func (c *cli) syncCmd() *cobra.Command {
	var subscriptionsOnly bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Synchronise now",
		Long: `Run one sync cycle: the personal list if published, then enabled
subscriptions. Does nothing if the daemon is already syncing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withEnv(func(ctx context.Context, e *env) error {
				coord := sync.NewCoordinator(e.db, e.engine, e.subs, sync.NewFileGate(c.cfg.LockPath), c.syncOptions())
				defer coord.Stop()
				out := cmd.OutOrStdout()

				if subscriptionsOnly {
					result, err := coord.SyncSubscriptions(ctx)
					if result.Skipped {
						fmt.Fprintln(out, "sync already in progress, skipped")
						return nil
					}
					fmt.Fprintf(out, "subscriptions: %d synced, %d failed (%d subjects, %d items)\n",
						result.Synced, result.Failed, result.Subjects, result.Items)
					return err
				}

				result, err := coord.ForceSyncNow(ctx)
				if result.Skipped {
					fmt.Fprintln(out, "sync already in progress, skipped")
					return nil
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "synced: %s (%d subjects, %d items)\n", describeDirection(result.Direction), result.Subjects, result.Items)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&subscriptionsOnly, "subscriptions", false, "only refresh subscribed lists")
	return cmd
}

func describeDirection(d sync.Direction) string {
	switch d {
	case sync.DirectionMerge:
		return "merged local and remote changes"
	case sync.DirectionDownload:
		return "downloaded remote changes"
	case sync.DirectionUpload:
		return "uploaded local changes"
	case sync.DirectionNone:
		return "already up to date"
	default:
		return "local only, no published list"
	}
}
