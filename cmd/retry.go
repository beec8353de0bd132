package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/verify-cli/internal/classify"
	"github.com/sells-group/verify-cli/internal/model"
	"github.com/sells-group/verify-cli/internal/retry"
)

var (
	retryLimit      int
	retryOutputPath string
)

var retryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Retry quarantined records with adaptively ranked extraction methods",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("retry"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return eris.Wrap(err, "init store")
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		selector, err := initSelector(st)
		if err != nil {
			return err
		}

		fields := model.DefaultRegistry()
		limit := retryLimit
		if limit == 0 {
			limit = cfg.Retry.Limit
		}

		var resolved []*model.StoreRecord
		orch := retry.NewOrchestrator(
			st,
			initGate(fields),
			classify.NewClassifier(fields, cfg.Decay),
			selector,
			initMethods(),
			fields,
			retry.WithLimit(limit),
			retry.WithLeaseTTL(time.Duration(cfg.Retry.LeaseTTLSecs)*time.Second),
			retry.WithResolvedSink(func(_ context.Context, sr *model.StoreRecord) error {
				resolved = append(resolved, sr)
				return nil
			}),
		)

		stats, err := orch.Run(ctx)
		if err != nil {
			return eris.Wrap(err, "run retry pass")
		}

		if retryOutputPath != "" && len(resolved) > 0 {
			if err := writeJSONL(retryOutputPath, resolved); err != nil {
				return err
			}
		}

		zap.L().Info("retry pass complete",
			zap.Int("resolved", stats.Resolved),
			zap.Int("still_quarantined", stats.StillQuarantined),
			zap.Int("permanently_quarantined", stats.PermanentlyQuarantined),
			zap.Int("errors", stats.Errors),
		)
		return nil
	},
}

func init() {
	retryCmd.Flags().IntVar(&retryLimit, "limit", 0, "max records to retry this pass (default from config)")
	retryCmd.Flags().StringVar(&retryOutputPath, "output", "", "path for resolved-record output JSONL")
	rootCmd.AddCommand(retryCmd)
}
