package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"mitonet/internal/core"
	"mitonet/pkg/domain"
)

// NewRootCommand returns the mitonet command tree.
func NewRootCommand() *cobra.Command {
	opts := &Options{}
	root := &cobra.Command{
		Use:   "mitonet",
		Short: "Incremental protein interaction network builder",
		Long: `mitonet ingests interaction and annotation sources into one consistent
relational store, skipping unchanged files and resuming interrupted runs.

Commands:
  init         Create the store schema and list available source files
  update       Ingest all sources or the named ones
  add-genes    Register proteins by gene symbol or UniProt accession
  status       Show store statistics
  checkpoints  List recent processing checkpoints`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "configuration file (default ./mitonet.yaml)")
	root.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "override logging.level")

	root.AddCommand(
		newInitCommand(opts),
		newUpdateCommand(opts),
		newAddGenesCommand(opts),
		newStatusCommand(opts),
		newCheckpointsCommand(opts),
	)
	return root
}

func newInitCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the store schema and list available source files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				files, err := a.service.Init(ctx)
				if err != nil {
					return err
				}
				renderSourceFiles(cmd.OutOrStdout(), a.service.Store().Driver(), files)
				return nil
			})
		},
	}
}

func newUpdateCommand(opts *Options) *cobra.Command {
	var (
		names  []string
		force  bool
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Ingest all sources or the named ones",
		Long: `Ingest sources into the store. Unchanged files are skipped unless --force
is given; interrupted runs resume from their last committed chunk.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				reports, err := a.service.Update(ctx, names, force)
				if asJSON {
					if jerr := writeJSON(cmd.OutOrStdout(), reports); jerr != nil {
						return errors.Join(err, jerr)
					}
				} else if len(reports) > 0 {
					renderReports(cmd.OutOrStdout(), reports)
				}
				return err
			})
		},
	}
	cmd.Flags().StringSliceVarP(&names, "source", "s", nil, "sources to update (comma-separated; default all)")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "ingest even when the source file is unchanged")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print run reports as JSON")
	return cmd
}

func newAddGenesCommand(opts *Options) *cobra.Command {
	var genes, accessions []string
	cmd := &cobra.Command{
		Use:   "add-genes",
		Short: "Register proteins by gene symbol or UniProt accession",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(genes) == 0 && len(accessions) == 0 {
				return errors.New("nothing to add: use --genes or --uniprots")
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				res, err := a.service.AddProteins(ctx, genes, accessions)
				if err != nil {
					return err
				}
				renderAdded(cmd.OutOrStdout(), res)
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&genes, "genes", "g", nil, "gene symbols (comma-separated)")
	cmd.Flags().StringSliceVarP(&accessions, "uniprots", "u", nil, "UniProt accessions (comma-separated)")
	return cmd
}

func newStatusCommand(opts *Options) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show store statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				summary, err := a.service.Status(ctx)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), summary)
				}
				renderSummary(cmd.OutOrStdout(), summary)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print statistics as JSON")
	return cmd
}

func newCheckpointsCommand(opts *Options) *cobra.Command {
	var phase string
	cmd := &cobra.Command{
		Use:   "checkpoints",
		Short: fmt.Sprintf("List the %d most recent processing checkpoints", core.CheckpointListLimit),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				cps, err := a.service.Checkpoints(ctx, phase)
				if err != nil {
					return err
				}
				renderCheckpoints(cmd.OutOrStdout(), cps)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&phase, "phase", "p", "", "only checkpoints of this phase (aliases, info, interactions, attributes)")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ExitCode maps a command error to a process exit status: 2 for fatal
// configuration errors, 1 otherwise.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if domain.IsFatal(err) {
		return 2
	}
	return 1
}
