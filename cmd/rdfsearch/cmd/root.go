// Package cmd provides the CLI commands for rdfsearch.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/rdfsearch/internal/config"
	"github.com/Aman-CERP/rdfsearch/internal/logging"
	"github.com/Aman-CERP/rdfsearch/internal/profiling"
	"github.com/Aman-CERP/rdfsearch/pkg/version"
)

var (
	debugMode      bool
	projectDir     string
	loadedConfig   *config.Config
	loggingCleanup func()

	profileCfg profiling.Config
	profiler   *profiling.Session
)

// NewRootCmd creates the root command for the rdfsearch CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rdfsearch",
		Short: "Full-text and geospatial search over an RDF store",
		Long: `rdfsearch keeps an RDF quad store and a bleve index in step and answers
queries that mix graph patterns with full-text and GeoSPARQL searches.

Datasets are YAML files of statements. Load one with 'rdfsearch load',
then query it with 'rdfsearch search' or 'rdfsearch near'.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.SetVersionTemplate("rdfsearch version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to stderr and the log file")
	cmd.PersistentFlags().StringVarP(&projectDir, "dir", "C", ".", "Project directory holding .rdfsearch.yaml and the data directory")

	cmd.PersistentFlags().StringVar(&profileCfg.CPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileCfg.Heap, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&profileCfg.Trace, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = startProfilingAndLogging
	cmd.PersistentPostRunE = stopProfilingAndLogging

	cmd.AddCommand(newLoadCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newNearCmd())
	cmd.AddCommand(newRelateCmd())
	cmd.AddCommand(newReindexCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startProfilingAndLogging loads the project configuration, installs the
// logger and starts any requested profiles.
func startProfilingAndLogging(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(projectDir)
	if err != nil {
		return err
	}
	loadedConfig = cfg

	logger, cleanup, err := logging.Setup(cfg.LogConfig(debugMode))
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	slog.Debug("logging_started",
		slog.String("version", version.Version),
		slog.String("dir", projectDir))

	if profileCfg.Enabled() {
		if profiler, err = profiling.Start(profileCfg); err != nil {
			return err
		}
	}
	return nil
}

func stopProfilingAndLogging(_ *cobra.Command, _ []string) error {
	var err error
	if profiler != nil {
		err = profiler.Stop()
		profiler = nil
	}
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return err
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
