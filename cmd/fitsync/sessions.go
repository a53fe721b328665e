package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"fitsync/internal/archive"
	"fitsync/pkg/domain"
)

func newSessionsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"s"},
		Short:   "Inspect snapshots in the snapshot store",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List saved sessions",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return a.withStore(cmd.Context(), func(store domain.SnapshotStore) error {
					infos, err := store.List(cmd.Context())
					if err != nil {
						return err
					}
					tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "NAME\tFUNCTION\tCOMPONENTS\tRUNS\tSAVED")
					for _, info := range infos {
						fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", info.Name, info.Function, info.Components, info.Runs, info.SavedAt.Format(time.RFC3339))
					}
					return tw.Flush()
				})
			},
		},
		&cobra.Command{
			Use:   "show NAME",
			Short: "Print a saved session as YAML",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withStore(cmd.Context(), func(store domain.SnapshotStore) error {
					snap, err := store.Load(cmd.Context(), args[0])
					if err != nil {
						return err
					}
					enc := yaml.NewEncoder(a.out)
					enc.SetIndent(2)
					if err := enc.Encode(snap); err != nil {
						return err
					}
					return enc.Close()
				})
			},
		},
		&cobra.Command{
			Use:   "delete NAME",
			Short: "Delete a saved session",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withStore(cmd.Context(), func(store domain.SnapshotStore) error {
					ok, err := store.Delete(cmd.Context(), args[0])
					if err != nil {
						return err
					}
					if !ok {
						return fmt.Errorf("%s: %w", args[0], domain.ErrSnapshotNotFound)
					}
					a.logger.Info("session deleted", "session", args[0])
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "load FILE NAME",
			Short: "Validate a YAML snapshot file and save it under NAME",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				snap, err := readSnapshotFile(args[0])
				if err != nil {
					return err
				}
				return a.save(cmd.Context(), args[1], snap)
			},
		},
	)
	return cmd
}

func readSnapshotFile(path string) (domain.Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.Snapshot{}, err
	}
	defer func() { _ = f.Close() }()
	snap, err := archive.Decode(f)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("%s: %w", path, err)
	}
	return snap, nil
}

// save checks snap against the rules before writing it.
func (a *app) save(ctx context.Context, name string, snap domain.Snapshot) error {
	res, err := evaluate(ctx, snap)
	if err != nil {
		return err
	}
	a.logViolations(res)
	if res.HasBlocking() {
		return domain.RuleViolationError{Result: res}
	}
	return a.withStore(ctx, func(store domain.SnapshotStore) error {
		if err := store.Save(ctx, name, snap); err != nil {
			return err
		}
		a.logger.Info("session saved", "session", name, "runs", len(snap.Runs))
		return nil
	})
}
