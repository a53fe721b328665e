package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"fitsync/internal/core"
	"fitsync/pkg/domain"
	"fitsync/plugins/bnmr"
)

// evaluate runs the built-in rules plus the bnmr plugin rules over snap.
func evaluate(ctx context.Context, snap domain.Snapshot) (domain.Result, error) {
	engine := core.NewDefaultRulesEngine()
	registry := core.NewPluginRegistry()
	if err := bnmr.New(nil).Register(registry); err != nil {
		return domain.Result{}, err
	}
	for _, rule := range registry.Rules() {
		engine.Register(rule)
	}
	return engine.Evaluate(ctx, snap, nil)
}

func (a *app) logViolations(res domain.Result) {
	for _, v := range res.Violations {
		args := []any{"rule", v.Rule, "run", v.Run, "parameter", v.Parameter, "message", v.Message}
		switch v.Severity {
		case domain.SeverityBlock:
			a.logger.Error("rule violation", args...)
		case domain.SeverityWarn:
			a.logger.Warn("rule violation", args...)
		default:
			a.logger.Debug("rule violation", args...)
		}
	}
}

func newValidateCmd(a *app) *cobra.Command {
	var session string
	cmd := &cobra.Command{
		Use:   "validate [FILE]",
		Short: "Check a snapshot file or a saved session against the rules",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var snap domain.Snapshot
			switch {
			case len(args) == 1 && session != "":
				return errors.New("pass either FILE or --session, not both")
			case len(args) == 1:
				s, err := readSnapshotFile(args[0])
				if err != nil {
					return err
				}
				snap = s
			case session != "":
				err := a.withStore(cmd.Context(), func(store domain.SnapshotStore) error {
					s, err := store.Load(cmd.Context(), session)
					snap = s
					return err
				})
				if err != nil {
					return err
				}
			default:
				return errors.New("nothing to validate: pass FILE or --session")
			}
			res, err := evaluate(cmd.Context(), snap)
			if err != nil {
				return err
			}
			if len(res.Violations) == 0 {
				_, err := fmt.Fprintln(a.out, "ok")
				return err
			}
			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SEVERITY\tRULE\tRUN\tPARAMETER\tMESSAGE")
			for _, v := range res.Violations {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", v.Severity, v.Rule, v.Run, v.Parameter, v.Message)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if res.HasBlocking() {
				return domain.RuleViolationError{Result: res}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&session, "session", "", "validate a saved session instead of a file")
	return cmd
}

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML with secrets redacted",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			cfg := a.cfg
			if cfg.Storage.PostgresDSN != "" {
				cfg.Storage.PostgresDSN = "REDACTED"
			}
			if cfg.Blob.S3.SecretAccessKey != "" {
				cfg.Blob.S3.SecretAccessKey = "REDACTED"
			}
			enc := yaml.NewEncoder(a.out)
			enc.SetIndent(2)
			if err := enc.Encode(cfg); err != nil {
				return err
			}
			return enc.Close()
		},
	})
	return cmd
}
