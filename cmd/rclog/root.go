package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/therealutkarshpriyadarshi/rclog/internal/config"
	"github.com/therealutkarshpriyadarshi/rclog/internal/logging"
)

// passwordEnv supplies the archive password when neither flag nor file does
const passwordEnv = "RCLOG_ARCHIVE_PASSWORD"

// globalFlags are shared by every subcommand
type globalFlags struct {
	configFile string
	logLevel   string
	logFormat  string
}

// runFlags override the report and input sections of the configuration
type runFlags struct {
	password     string
	workDir      string
	outputDir    string
	organization string
	chassisID    string
	compression  string
	diskAnalysis bool
	keep         bool
	purge        bool
	cpuProfile   string
	memProfile   string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:   "rclog",
		Short: "Analyze RAID controller diagnostic logs",
		Long: `rclog reads a MegaRAID diagnostic archive (RCLogs), rebuilds the events of
its incremental log, sorts them into categories and writes an XLSX report with
one sheet per category, plus an optional per-disk error counter summary.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&g.configFile, "config", "c", "", "path to configuration file")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&g.logFormat, "log-format", "", "log format: console, json")

	root.AddCommand(newAnalyzeCmd(g))
	root.AddCommand(newWatchCmd(g))

	return root
}

func (r *runFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVarP(&r.password, "password", "p", "", "archive password")
	f.StringVarP(&r.workDir, "work-dir", "w", "", "directory archives are extracted into")
	f.StringVarP(&r.outputDir, "output-dir", "o", "", "directory the report is written to")
	f.StringVar(&r.organization, "org", "", "organization name used in the report file name")
	f.StringVar(&r.chassisID, "chassis", "", "chassis ID used in the report file name")
	f.StringVar(&r.compression, "compression", "", "intermediate file compression: none, gzip, snappy")
	f.BoolVarP(&r.diskAnalysis, "disks", "d", false, "add the per-disk error counter sheet")
	f.BoolVarP(&r.keep, "keep", "k", false, "move intermediate files into tmpfiles instead of deleting them")
	f.BoolVar(&r.purge, "purge", false, "remove reports and tmpfiles of previous runs first")
	f.StringVar(&r.cpuProfile, "cpu-profile", "", "write a CPU profile to this file")
	f.StringVar(&r.memProfile, "mem-profile", "", "write a heap profile to this file on exit")
}

// loadConfig reads the configuration file, if any, and applies flag overrides.
// Only flags set on the command line win over file values.
func loadConfig(cmd *cobra.Command, g *globalFlags, r *runFlags) (*config.Config, error) {
	var cfg *config.Config
	if g.configFile != "" {
		loaded, err := config.Load(g.configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
		cfg = loaded
	} else {
		cfg = config.DefaultConfig()
	}

	if g.logLevel != "" {
		cfg.Logging.Level = g.logLevel
	}
	if g.logFormat != "" {
		cfg.Logging.Format = g.logFormat
	}

	flags := cmd.Flags()
	if flags.Changed("password") {
		cfg.Inputs.Password = r.password
	}
	if cfg.Inputs.Password == "" {
		cfg.Inputs.Password = os.Getenv(passwordEnv)
	}
	if flags.Changed("work-dir") {
		cfg.Inputs.WorkDir = r.workDir
		if !flags.Changed("output-dir") && g.configFile == "" {
			cfg.Report.OutputDir = r.workDir
		}
	}
	if flags.Changed("output-dir") {
		cfg.Report.OutputDir = r.outputDir
	}
	if flags.Changed("org") {
		cfg.Report.Organization = r.organization
	}
	if flags.Changed("chassis") {
		cfg.Report.ChassisID = r.chassisID
	}
	if flags.Changed("compression") {
		cfg.Intermediate.Compression = r.compression
	}
	if flags.Changed("disks") {
		cfg.Report.DiskAnalysis = r.diskAnalysis
	}
	if flags.Changed("keep") {
		cfg.Report.KeepIntermediate = r.keep
	}
	if flags.Changed("purge") {
		cfg.Report.Purge = r.purge
	}
	if flags.Changed("cpu-profile") || flags.Changed("mem-profile") {
		if cfg.Profiling == nil {
			cfg.Profiling = &config.ProfilingConfig{}
		}
		if flags.Changed("cpu-profile") {
			cfg.Profiling.CPUProfile = r.cpuProfile
		}
		if flags.Changed("mem-profile") {
			cfg.Profiling.MemProfile = r.memProfile
		}
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *logging.Logger {
	logger := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	logging.SetGlobal(logger)
	return logger
}
