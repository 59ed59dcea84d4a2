package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ethpandaops/releasekpi/pkg/api"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the KPI query API server",
	Long:  `Serve stored KPI snapshots over a read-only HTTP API.`,
	RunE:  runAPI,
}

func init() {
	rootCmd.AddCommand(apiCmd)
}

func runAPI(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if err := cfg.ValidateAPI(); err != nil {
		return fmt.Errorf("validating api config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	_, cmp, err := buildParser(cfg)
	if err != nil {
		return err
	}

	store, err := openStore(ctx, cfg, cmp)
	if err != nil {
		return err
	}

	defer func() {
		if err := store.Stop(); err != nil {
			log.WithError(err).Warn("Failed to stop snapshot store")
		}
	}()

	srv := api.NewServer(log, cfg.API, store, api.PanelDefaults{
		Keys:        cfg.KPI.PanelKeys,
		MaxReleases: cfg.KPI.MaxPanelReleases,
	})

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting api server: %w", err)
	}

	// Wait for shutdown signal.
	sig := <-sigCh
	log.WithField("signal", sig).Info("Shutting down API server")
	cancel()

	if err := srv.Stop(); err != nil {
		return fmt.Errorf("stopping api server: %w", err)
	}

	return nil
}
