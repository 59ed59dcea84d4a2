package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ethpandaops/releasekpi/pkg/kpi"
	"github.com/ethpandaops/releasekpi/pkg/snapshot"
)

const (
	outputTable = "table"
	outputJSON  = "json"
	outputYAML  = "yaml"
)

var (
	queryProject     string
	queryOutput      string
	queryKeys        []string
	queryMaxReleases int
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query stored KPI snapshots",
}

var queryLastCmd = &cobra.Command{
	Use:   "last <key>",
	Short: "Show the most recent value of a KPI",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQuery(cmd, func(store snapshot.Store) ([]kpi.Record, error) {
			r, err := store.Last(cmd.Context(), queryProject, args[0])
			if errors.Is(err, snapshot.ErrNotFound) {
				return nil, fmt.Errorf("no snapshot of %s for project %s",
					args[0], queryProject)
			}

			if err != nil {
				return nil, err
			}

			return []kpi.Record{r}, nil
		})
	},
}

var queryTrendCmd = &cobra.Command{
	Use:   "trend <key>",
	Short: "Show every stored value of a KPI in write order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQuery(cmd, func(store snapshot.Store) ([]kpi.Record, error) {
			return store.Trend(cmd.Context(), queryProject, args[0])
		})
	},
}

var queryPanelCmd = &cobra.Command{
	Use:   "panel",
	Short: "Show the latest KPIs of the most recent releases",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runQuery(cmd, func(store snapshot.Store) ([]kpi.Record, error) {
			return store.Panel(cmd.Context(), queryProject, queryKeys, queryMaxReleases)
		})
	},
}

func init() {
	queryCmd.PersistentFlags().StringVar(&queryProject, "project", "",
		"project to query")
	queryCmd.PersistentFlags().StringVarP(&queryOutput, "output", "o", outputTable,
		"output format (table, json, yaml)")
	_ = queryCmd.MarkPersistentFlagRequired("project")

	queryPanelCmd.Flags().StringSliceVar(&queryKeys, "keys", nil,
		"KPI keys in display order (default: kpi.panel_keys)")
	queryPanelCmd.Flags().IntVar(&queryMaxReleases, "max-releases", -1,
		"number of releases to show, 0 for all (default: kpi.max_panel_releases)")

	queryCmd.AddCommand(queryLastCmd, queryTrendCmd, queryPanelCmd)
	rootCmd.AddCommand(queryCmd)
}

func runQuery(
	cmd *cobra.Command,
	fetch func(store snapshot.Store) ([]kpi.Record, error),
) error {
	switch queryOutput {
	case outputTable, outputJSON, outputYAML:
	default:
		return fmt.Errorf("unknown output format %q", queryOutput)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if len(queryKeys) == 0 {
		queryKeys = cfg.KPI.PanelKeys
	}

	if queryMaxReleases < 0 {
		queryMaxReleases = cfg.KPI.MaxPanelReleases
	}

	_, cmp, err := buildParser(cfg)
	if err != nil {
		return err
	}

	store, err := openStore(cmd.Context(), cfg, cmp)
	if err != nil {
		return err
	}

	defer func() {
		if err := store.Stop(); err != nil {
			log.WithError(err).Warn("Failed to stop snapshot store")
		}
	}()

	records, err := fetch(store)
	if err != nil {
		return err
	}

	return writeRecords(os.Stdout, queryOutput, records, time.Now())
}

// writeRecords renders records in the requested format. Table output shows
// the age of each value relative to now.
func writeRecords(w io.Writer, format string, records []kpi.Record, now time.Time) error {
	if records == nil {
		records = []kpi.Record{}
	}

	switch format {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		return enc.Encode(records)
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)

		if err := enc.Encode(records); err != nil {
			return err
		}

		return enc.Close()
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RELEASE\tKPI\tVALUE\tTREND\tCOMPUTED")

	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s ago\n",
			r.Release, r.Key, r.FormattedValue, r.TrendSymbol,
			units.HumanDuration(now.Sub(r.ComputedAt)))
	}

	return tw.Flush()
}
