package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cuongbtq/batch-reconciler/internal/api/dto"
	"github.com/cuongbtq/batch-reconciler/internal/api/handler"
	"github.com/cuongbtq/batch-reconciler/internal/app"
	"github.com/cuongbtq/batch-reconciler/internal/domain"
	"github.com/cuongbtq/batch-reconciler/internal/ledger"
)

func batchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Inspect generation batches",
	}

	cmd.AddCommand(batchGetCmd())
	cmd.AddCommand(batchListCmd())

	return cmd
}

func batchGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get [batch-id]",
		Short: "Show one batch's status and counters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, appLogger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			defer appLogger.Close()

			services, err := app.OpenLedger(cfg, appLogger)
			if err != nil {
				return err
			}
			defer services.Close()

			batch, err := services.Ledger.GetBatch(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			return printJSON(cmd.OutOrStdout(), dto.NewBatchDTO(batch))
		},
	}
}

func batchListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a user's batches, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, _ := cmd.Flags().GetString("user")
			status, _ := cmd.Flags().GetString("status")
			pageSize, _ := cmd.Flags().GetInt("page-size")
			cursorStr, _ := cmd.Flags().GetString("cursor")

			filter := ledger.BatchFilter{UserID: userID, PageSize: pageSize}
			switch status {
			case "":
			case "open":
				s := domain.BatchStatusOpen
				filter.Status = &s
			case "closed":
				s := domain.BatchStatusClosed
				filter.Status = &s
			default:
				return fmt.Errorf("invalid status %q (open or closed)", status)
			}
			if filter.PageSize < 1 {
				return fmt.Errorf("page-size must be positive")
			}

			cursor, err := handler.DecodeBatchCursor(cursorStr)
			if err != nil {
				return fmt.Errorf("invalid cursor: %w", err)
			}
			filter.Cursor = cursor

			cfg, appLogger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			defer appLogger.Close()

			services, err := app.OpenLedger(cfg, appLogger)
			if err != nil {
				return err
			}
			defer services.Close()

			batches, err := services.Ledger.ListBatches(cmd.Context(), filter)
			if err != nil {
				return err
			}

			resp := dto.ListBatchesResponse{Batches: []dto.BatchDTO{}}
			if len(batches) > filter.PageSize {
				batches = batches[:filter.PageSize]
				last := batches[len(batches)-1]
				resp.NextCursor = handler.EncodeBatchCursor(&ledger.BatchCursor{
					CreatedAt: last.CreatedAt,
					BatchID:   last.ID,
				})
			}
			for i := range batches {
				resp.Batches = append(resp.Batches, dto.NewBatchDTO(&batches[i]))
			}

			return printJSON(cmd.OutOrStdout(), resp)
		},
	}

	cmd.Flags().StringP("user", "u", "", "Owner user id")
	cmd.Flags().String("status", "", "Filter by status (open, closed)")
	cmd.Flags().IntP("page-size", "n", 20, "Batches per page")
	cmd.Flags().String("cursor", "", "next_cursor from the previous page")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}
