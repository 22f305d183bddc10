package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

type analyzeFlags struct {
	runFlags
	incrementalLog string
	pdlist         string
}

func newAnalyzeCmd(g *globalFlags) *cobra.Command {
	f := &analyzeFlags{}

	cmd := &cobra.Command{
		Use:   "analyze [archive]",
		Short: "Analyze one diagnostic archive or incremental log",
		Long: `Analyze one RCLogs archive and write the report.

Instead of an archive, an already extracted incremental log (and pdlist for the
disk summary) can be given with --log and --pdlist.

Examples:
  rclog analyze RCLogs_2024.zip --org acme --chassis 42 -p secret --disks
  rclog analyze --log MegaRAID_Incremental_Log.txt --org acme --chassis 42`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, g, f, args)
		},
	}

	f.register(cmd)
	cmd.Flags().StringVar(&f.incrementalLog, "log", "", "incremental log to analyze instead of an archive")
	cmd.Flags().StringVar(&f.pdlist, "pdlist", "", "disk list dump for the disk summary")

	return cmd
}

func runAnalyze(cmd *cobra.Command, g *globalFlags, f *analyzeFlags, args []string) error {
	cfg, err := loadConfig(cmd, g, &f.runFlags)
	if err != nil {
		return err
	}
	if len(args) == 1 {
		cfg.Inputs.Archive = args[0]
	}
	if f.incrementalLog != "" {
		cfg.Inputs.IncrementalLog = f.incrementalLog
	}
	if f.pdlist != "" {
		cfg.Inputs.PDList = f.pdlist
	}
	if err := cfg.ValidateRun(); err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.close()

	rt.logger.Info().Str("version", version).Msg("Starting rclog")

	result, err := rt.pipeline.Run(ctx)
	if err != nil {
		return err
	}

	if result.Report == "" {
		fmt.Fprintln(cmd.OutOrStdout(), "No events or disks found, no report written")
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), result.Report)
	return nil
}
