package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"fitsync/pkg/domain"
)

func newArchiveCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Move sessions between the snapshot store and the blob archive",
	}

	var as string
	importCmd := &cobra.Command{
		Use:   "import KEY",
		Short: "Restore an archived session into the snapshot store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			arch, err := a.archiver(cmd.Context())
			if err != nil {
				return err
			}
			snap, err := arch.Import(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			name := as
			if name == "" {
				entry, err := arch.Stat(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				name = entry.Session
			}
			if name == "" {
				return fmt.Errorf("archive %s has no session name; pass --as", args[0])
			}
			if err := a.save(cmd.Context(), name, snap); err != nil {
				return err
			}
			_, err = fmt.Fprintln(a.out, name)
			return err
		},
	}
	importCmd.Flags().StringVar(&as, "as", "", "session name to save under (defaults to the archived name)")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "export NAME",
			Short: "Archive a saved session and print the archive key",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				arch, err := a.archiver(cmd.Context())
				if err != nil {
					return err
				}
				return a.withStore(cmd.Context(), func(store domain.SnapshotStore) error {
					snap, err := store.Load(cmd.Context(), args[0])
					if err != nil {
						return err
					}
					entry, err := arch.Export(cmd.Context(), args[0], snap)
					if err != nil {
						return err
					}
					a.logger.Info("session archived", "session", args[0], "key", entry.Key, "bytes", entry.Size)
					_, err = fmt.Fprintln(a.out, entry.Key)
					return err
				})
			},
		},
		importCmd,
		&cobra.Command{
			Use:   "list",
			Short: "List archives, newest first",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				arch, err := a.archiver(cmd.Context())
				if err != nil {
					return err
				}
				entries, err := arch.List(cmd.Context())
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "KEY\tSESSION\tFUNCTION\tRUNS\tSTORED")
				for _, e := range entries {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", e.Key, e.Session, e.Function, e.Runs, e.Stored.Format(time.RFC3339))
				}
				return tw.Flush()
			},
		},
		&cobra.Command{
			Use:   "delete KEY",
			Short: "Delete an archive",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				arch, err := a.archiver(cmd.Context())
				if err != nil {
					return err
				}
				ok, err := arch.Delete(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("archive %s not found", args[0])
				}
				return nil
			},
		},
	)
	return cmd
}
