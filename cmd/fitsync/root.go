package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"fitsync/internal/archive"
	"fitsync/internal/blob"
	"fitsync/internal/config"
	"fitsync/internal/core"
	"fitsync/pkg/domain"
)

// app carries state shared by subcommands once the root has loaded config.
type app struct {
	configPath string
	logLevel   string

	cfg    config.Config
	logger *slog.Logger
	out    io.Writer
	errOut io.Writer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{out: stdout, errOut: stderr}
	root := &cobra.Command{
		Use:           "fitsync",
		Short:         "Manage saved fit sessions and their archives",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load()
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "path to a YAML config file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")

	root.AddCommand(newSessionsCmd(a), newArchiveCmd(a), newValidateCmd(a), newConfigCmd(a))
	return root
}

func (a *app) load() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	a.cfg = cfg
	a.logger = slog.New(slog.NewTextHandler(a.errOut, &slog.HandlerOptions{Level: cfg.Level()}))
	return nil
}

// withStore opens the configured snapshot store for the duration of fn.
func (a *app) withStore(ctx context.Context, fn func(domain.SnapshotStore) error) error {
	store, err := core.OpenSnapshotStore(ctx, a.cfg.StorageOptions())
	if err != nil {
		return fmt.Errorf("open snapshot store: %w", err)
	}
	a.logger.Debug("snapshot store opened", "driver", a.cfg.Storage.Driver)
	defer func() {
		if c, ok := store.(io.Closer); ok {
			if err := c.Close(); err != nil {
				a.logger.Warn("closing snapshot store", "error", err)
			}
		}
	}()
	return fn(store)
}

func (a *app) archiver(ctx context.Context) (*archive.Archiver, error) {
	store, err := blob.Open(ctx, a.cfg.BlobOptions())
	if err != nil {
		return nil, fmt.Errorf("open blob store: %w", err)
	}
	a.logger.Debug("blob store opened", "driver", store.Driver())
	return archive.New(store), nil
}

func isBlocked(err error) bool {
	var rv domain.RuleViolationError
	return errors.As(err, &rv)
}
