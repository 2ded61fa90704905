package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cuongbtq/batch-reconciler/internal/api/dto"
	"github.com/cuongbtq/batch-reconciler/internal/app"
)

func tickCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tick",
		Short: "Run one reconciliation tick and print its report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, appLogger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			defer appLogger.Close()

			if err := cfg.ValidateReconcilerConfig(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			services, err := app.Bootstrap(cmd.Context(), cfg, appLogger)
			if err != nil {
				return err
			}
			defer services.Close()

			report, err := services.Reconciler.Tick(cmd.Context())
			if err != nil {
				return err
			}

			return printJSON(cmd.OutOrStdout(), dto.TickResponse{OK: true, TickReport: report})
		},
	}
}

func resetDailyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset-daily",
		Short: "Set every user's daily balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, appLogger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			defer appLogger.Close()

			amount, _ := cmd.Flags().GetInt("amount")
			if amount < 0 {
				amount = cfg.Balance.DailyResetAmount
			}

			services, err := app.OpenLedger(cfg, appLogger)
			if err != nil {
				return err
			}
			defer services.Close()

			users, err := services.Balance.ResetDaily(cmd.Context(), amount)
			if err != nil {
				return err
			}

			return printJSON(cmd.OutOrStdout(), dto.ResetDailyResponse{OK: true, Amount: amount, Users: users})
		},
	}

	cmd.Flags().IntP("amount", "a", -1, "Balance to set (default from config)")

	return cmd
}
