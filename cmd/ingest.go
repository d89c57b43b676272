package main

import (
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roofsignal/permit-ingest/internal/ingest"
)

var ingestMode string

var ingestCmd = &cobra.Command{
	Use:   "ingest <source-id>",
	Short: "Run a single ingestion against one source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sourceID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return eris.Errorf("invalid source id %q", args[0])
		}

		mode, err := ingest.ParseMode(ingestMode)
		if err != nil {
			return err
		}

		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		if mode == ingest.ModeDeep {
			return env.Orchestrator.RunDeepIngestion(cmd.Context(), sourceID)
		}

		result, err := env.Orchestrator.RunIngestion(cmd.Context(), sourceID, mode)
		if err != nil {
			return err
		}
		zap.L().Info("run finished",
			zap.Int("rows_fetched", result.RowsFetched),
			zap.Int("rows_upserted", result.RowsUpserted),
			zap.Int("errors", result.Errors),
		)
		return nil
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestMode, "mode", "backfill", "ingestion mode: backfill, incremental, or deep")
	rootCmd.AddCommand(ingestCmd)
}
