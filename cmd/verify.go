package main

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/verify-cli/internal/classify"
	"github.com/sells-group/verify-cli/internal/input"
	"github.com/sells-group/verify-cli/internal/model"
	"github.com/sells-group/verify-cli/internal/retry"
	"github.com/sells-group/verify-cli/internal/store"
	"github.com/sells-group/verify-cli/internal/verify"
)

var (
	verifyInputPath  string
	verifyOutputPath string
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Run a candidate batch through the verification gate",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("verify"); err != nil {
			return err
		}

		records, err := loadInput(verifyInputPath)
		if err != nil {
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

		fields := model.DefaultRegistry()
		gate := initGate(fields)
		classifier := classify.NewClassifier(fields, cfg.Decay)
		runner := verify.NewBatchRunner(gate, verify.WithConcurrency(cfg.Gate.Concurrency))

		verdicts, stats, err := runner.Run(ctx, records)
		if err != nil {
			return eris.Wrap(err, "run batch")
		}

		var outputs []*model.StoreRecord
		for i, verdict := range verdicts {
			if verdict == nil {
				continue
			}
			rec := records[i]
			if verdict.Status == model.GateQuarantined {
				if err := quarantine(ctx, st, classifier, rec, verdict); err != nil {
					return err
				}
				continue
			}
			sr := retry.BuildStoreRecord(rec, verdict)
			if err := st.SaveOutput(ctx, sr); err != nil {
				return eris.Wrap(err, "save output record")
			}
			outputs = append(outputs, sr)
		}

		if verifyOutputPath != "" {
			if err := writeJSONL(verifyOutputPath, outputs); err != nil {
				return err
			}
		}

		zap.L().Info("verification complete",
			zap.Int("verified", stats.Verified),
			zap.Int("unverified", stats.Unverified),
			zap.Int("quarantined", stats.Quarantined),
			zap.Int("errors", stats.Errors),
		)
		return nil
	},
}

func loadInput(path string) ([]*model.CandidateRecord, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl", ".json":
		return input.LoadJSONL(path)
	case ".xlsx":
		return input.LoadXLSX(path, input.XLSXOptions{})
	default:
		return nil, eris.Errorf("unsupported input format: %s", path)
	}
}

// quarantine writes a rejected record to the store, folding into any
// existing quarantine for the same profile so re-runs do not duplicate.
func quarantine(ctx context.Context, st store.Store, classifier *classify.Classifier,
	rec *model.CandidateRecord, verdict *model.GateVerdict) error {
	failures := classifier.Classify(rec, verdict)
	q := retry.NewQuarantine(rec, verdict, failures, time.Now())

	existing, err := st.GetQuarantineByProfile(ctx, rec.ProfileID)
	if err != nil {
		return eris.Wrap(err, "lookup existing quarantine")
	}
	if existing != nil {
		q.ID = existing.ID
		q.RetryCount = existing.RetryCount
		q.MethodsTried = existing.MethodsTried
		q.QuarantinedAt = existing.QuarantinedAt
		return eris.Wrap(st.UpdateQuarantine(ctx, q), "update quarantine")
	}
	return eris.Wrap(st.CreateQuarantine(ctx, q), "create quarantine")
}

func writeJSONL(path string, records []*model.StoreRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "create output")
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return eris.Wrap(err, "encode output record")
		}
	}
	return eris.Wrap(w.Flush(), "flush output")
}

func init() {
	verifyCmd.Flags().StringVar(&verifyInputPath, "input", "", "path to candidate batch (.jsonl or .xlsx, required)")
	verifyCmd.Flags().StringVar(&verifyOutputPath, "output", "", "path for verified/unverified output JSONL")
	_ = verifyCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(verifyCmd)
}
