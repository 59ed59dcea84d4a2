package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ethpandaops/releasekpi/pkg/config"
	"github.com/ethpandaops/releasekpi/pkg/release"
	"github.com/ethpandaops/releasekpi/pkg/snapshot"
)

var (
	// Version information set at build time.
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	cfgFiles []string
	logLevel string
	log      *logrus.Logger
)

func main() {
	log = newLogger()

	if err := rootCmd.Execute(); err != nil {
		log.WithError(err).Fatal("Failed to execute command")
	}
}

// newLogger writes to stderr; stdout carries query output.
func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	return l
}

var rootCmd = &cobra.Command{
	Use:   "releasekpi",
	Short: "Release identification and multi-release KPI engine",
	Long: `Releasekpi recovers the release of each test plan and test run from its
title, computes quality KPIs for the active release of every project and
keeps a queryable history of every KPI value.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", logLevel, err)
		}

		log.SetLevel(level)

		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("releasekpi %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	rootCmd.PersistentFlags().StringSliceVar(&cfgFiles, "config", nil,
		"config file path (repeatable, later files override earlier ones)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"log level ("+strings.Join(logLevels(), ", ")+")")

	rootCmd.AddCommand(versionCmd)
}

func logLevels() []string {
	levels := make([]string, 0, len(logrus.AllLevels))
	for _, level := range logrus.AllLevels {
		levels = append(levels, level.String())
	}

	return levels
}

// loadConfig loads and validates the config files. The config log level
// applies unless --log-level was given explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if len(cfgFiles) == 0 {
		return nil, fmt.Errorf("config file is required (use --config)")
	}

	cfg, err := config.Load(cfgFiles...)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	if !cmd.Flags().Changed("log-level") {
		level, err := logrus.ParseLevel(cfg.Global.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("invalid global.log_level %q: %w",
				cfg.Global.LogLevel, err)
		}

		log.SetLevel(level)
	}

	return cfg, nil
}

// buildParser compiles the release grammar. An invalid grammar is logged
// and yields an inoperable parser, so every title is reported unparseable
// instead of aborting the run.
func buildParser(cfg *config.Config) (*release.Parser, release.Comparator, error) {
	cmp, err := release.ComparatorByName(cfg.Release.Ordering)
	if err != nil {
		return nil, nil, err
	}

	parser, err := release.NewParserFromConfig(
		release.NewGrammarCache(cfg.Release.Grammar), &cfg.Release,
	)
	if err != nil {
		log.WithError(err).
			WithField("grammar", cfg.Release.Grammar).
			Error("Release grammar is invalid, no title will parse")

		return release.NewParser(nil, release.Rules{}), cmp, nil
	}

	return parser, cmp, nil
}

// openStore starts the snapshot store. The caller must Stop it.
func openStore(
	ctx context.Context, cfg *config.Config, cmp release.Comparator,
) (snapshot.Store, error) {
	store := snapshot.NewStore(log, &cfg.Database, cmp)
	if err := store.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting snapshot store: %w", err)
	}

	return store, nil
}
