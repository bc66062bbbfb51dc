// Package main provides the CLI entrypoint for blsync.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/JohanCodinha/blsync/internal/blacklist"
	"github.com/JohanCodinha/blsync/internal/config"
	"github.com/JohanCodinha/blsync/internal/logger"
	"github.com/JohanCodinha/blsync/internal/remote"
	"github.com/JohanCodinha/blsync/internal/store"
	"github.com/JohanCodinha/blsync/internal/sync"
	"github.com/spf13/cobra"
)

func main() {
	err := newRootCmd().Execute()
	logger.Close()
	if err != nil {
		os.Exit(1)
	}
}

// cli holds state shared by subcommands once the config is loaded.
type cli struct {
	configPath string
	logLevel   string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "blsync",
		Short: "Keep a marketplace blacklist in sync across devices",
		Long: `blsync keeps a personal blacklist of sellers (subjects) and listings
(items) in a local database, synchronises it with a shared list on a
list service, and merges in lists you subscribe to.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup()
		},
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (default <data dir>/blsync.yaml)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(
		c.daemonCmd(),
		c.serveCmd(),
		c.syncCmd(),
		c.addCmd(),
		c.removeCmd(),
		c.listCmd(),
		c.checkCmd(),
		c.publishCmd(),
		c.linkCmd(),
		c.unlinkCmd(),
		c.subscribeCmd(),
		c.unsubscribeCmd(),
		c.subscriptionsCmd(),
		c.statusCmd(),
		c.exportCmd(),
		c.importCmd(),
	)
	return root
}

// setup loads the configuration and configures logging.
func (c *cli) setup() error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	c.cfg = cfg

	levelName := cfg.Log.Level
	if c.logLevel != "" {
		levelName = c.logLevel
	}
	level, err := logger.ParseLevel(levelName)
	if err != nil {
		return err
	}
	logger.SetLevel(level)

	format, err := logger.ParseFormat(cfg.Log.Format)
	if err != nil {
		return err
	}
	logger.SetFormat(format)

	if cfg.Log.File != "" {
		opts := logger.FileOptions{
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
		}
		if err := logger.SetRotatingLogFile(cfg.Log.File, opts); err != nil {
			return err
		}
	}
	return nil
}

// env is the wired client-side stack.
type env struct {
	db     *store.DB
	client *remote.Client
	lookup *blacklist.Lookup
	engine *sync.Engine
	subs   *sync.Subscriptions
}

func (c *cli) openEnv() (*env, error) {
	if err := os.MkdirAll(c.cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := store.InitDB(c.cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	client := remote.NewWithTimeout(c.cfg.Remote.BaseURL, c.cfg.Remote.Timeout)
	lookup := blacklist.NewLookup()
	return &env{
		db:     db,
		client: client,
		lookup: lookup,
		engine: sync.NewEngine(db, client, lookup),
		subs:   sync.NewSubscriptions(db, client, lookup, c.cfg.Sync.SubscriptionConcurrency),
	}, nil
}

func (e *env) Close() {
	if err := e.db.Close(); err != nil {
		logger.Warn("failed to close database: %v", err)
	}
}

func (c *cli) syncOptions() sync.Options {
	return sync.Options{
		Interval:     c.cfg.Sync.Interval,
		Debounce:     c.cfg.Sync.Debounce,
		RetryBackoff: c.cfg.Sync.RetryBackoff,
	}
}

// withEnv opens the client stack for the duration of fn.
func (c *cli) withEnv(fn func(ctx context.Context, e *env) error) error {
	e, err := c.openEnv()
	if err != nil {
		return err
	}
	defer e.Close()
	return fn(context.Background(), e)
}
