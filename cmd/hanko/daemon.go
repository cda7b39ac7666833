package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/harunnryd/hanko/internal/daemon"
	"github.com/harunnryd/hanko/internal/daemon/components"

	"github.com/spf13/cobra"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Start Hanko in background daemon mode",
	Long:  `Starts Hanko as a long-running service: the approval store, the engine with its timeout sweeper, and the callback HTTP endpoints.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			return fmt.Errorf("config not loaded")
		}

		daemonMgr, err := daemon.NewDaemon(cfg)
		if err != nil {
			return fmt.Errorf("failed to create daemon manager: %w", err)
		}

		storeComp := components.NewApprovalStoreComponent(&cfg.Store)
		engineComp := components.NewEngineComponent(cfg, storeComp)
		ingressComp := components.NewIngressComponent(cfg, engineComp)

		daemonMgr.AddComponent(storeComp)
		daemonMgr.AddComponent(engineComp)
		daemonMgr.AddComponent(ingressComp)

		slog.Info("Hanko daemon starting up...", "port", cfg.Server.Port, "store", cfg.Store.Path)
		if err := daemonMgr.Start(context.Background()); err != nil {
			// Cancellation via signal/context is a graceful shutdown case for CLI.
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				slog.Info("Hanko daemon stopped gracefully")
				return nil
			}
			return fmt.Errorf("daemon failed: %w", err)
		}

		slog.Info("Hanko daemon stopped gracefully")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}
