package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ethpandaops/releasekpi/pkg/artifact"
	"github.com/ethpandaops/releasekpi/pkg/engine"
	"github.com/ethpandaops/releasekpi/pkg/kpi"
	"github.com/ethpandaops/releasekpi/pkg/snapshot"
)

var (
	computeProjects []string
	computeFallback string
	computeDryRun   bool
)

var computeCmd = &cobra.Command{
	Use:   "compute",
	Short: "Compute KPIs for the active release of each project",
	Long: `Load plan and run documents from the configured source, detect the active
release of each project, compute every KPI and store the snapshots.`,
	RunE: runCompute,
}

func init() {
	computeCmd.Flags().StringSliceVar(&computeProjects, "project", nil,
		"project to compute (repeatable, default: source.projects or every project found)")
	computeCmd.Flags().StringVar(&computeFallback, "fallback", "",
		"release id used when none is detected (default: release.fallback_release)")
	computeCmd.Flags().BoolVar(&computeDryRun, "dry-run", false,
		"compute and print without storing snapshots")

	rootCmd.AddCommand(computeCmd)
}

func runCompute(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if err := cfg.ValidateSource(); err != nil {
		return fmt.Errorf("validating source config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	parser, cmp, err := buildParser(cfg)
	if err != nil {
		return err
	}

	src, err := artifact.NewSource(&cfg.Source)
	if err != nil {
		return fmt.Errorf("creating artifact source: %w", err)
	}

	projects := computeProjects
	if len(projects) == 0 {
		projects = cfg.Source.Projects
	}

	if len(projects) == 0 {
		projects, err = src.Projects(ctx)
		if err != nil {
			return fmt.Errorf("listing projects: %w", err)
		}
	}

	if len(projects) == 0 {
		log.Warn("No projects to compute")

		return nil
	}

	sets, loadErrs := artifact.LoadAll(ctx, src, projects, cfg.KPI.Concurrency)
	for project, err := range loadErrs {
		log.WithError(err).
			WithField("project", project).
			Error("Failed to load artifacts, project skipped")
	}

	var store snapshot.Store

	if !computeDryRun {
		store, err = openStore(ctx, cfg, cmp)
		if err != nil {
			return err
		}

		defer func() {
			if err := store.Stop(); err != nil {
				log.WithError(err).Warn("Failed to stop snapshot store")
			}
		}()
	}

	fallback := computeFallback
	if fallback == "" {
		fallback = cfg.Release.FallbackRelease
	}

	eng := engine.New(log, parser, cmp, kpi.DefaultCalculators(), store,
		engine.Options{Concurrency: cfg.KPI.Concurrency})

	results, err := eng.Run(ctx, sets, fallback)
	if err != nil {
		return err
	}

	printComputeSummary(results)

	return nil
}

func printComputeSummary(results []engine.Result) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PROJECT\tRELEASE\tKPI\tVALUE\tTREND\tSTORED")

	for _, res := range results {
		if len(res.Records) == 0 {
			fmt.Fprintf(w, "%s\t-\t-\t-\t-\t-\n", res.Project)

			continue
		}

		for _, r := range res.Records {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%t\n",
				res.Project, res.Release, r.Key, r.FormattedValue,
				r.TrendSymbol, res.Persisted)
		}
	}

	_ = w.Flush()
}
