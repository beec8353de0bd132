package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/verify-cli/internal/model"
)

var (
	strategiesCategory string
	strategiesFailure  string
)

var strategiesCmd = &cobra.Command{
	Use:   "strategies",
	Short: "Show effective retry-method rankings with learning-log rates",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("strategies"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return eris.Wrap(err, "init store")
		}
		defer st.Close()

		selector, err := initSelector(st)
		if err != nil {
			return err
		}

		categories := []model.FieldCategory{
			model.CategoryIdentifier, model.CategoryURL, model.CategoryFreeText, model.CategoryBasic,
		}
		failures := []model.FailureType{
			model.FailureHallucination, model.FailureMissingData, model.FailureFormatError,
			model.FailureEmailInvalid, model.FailureStaleContent,
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CATEGORY\tFAILURE\tRANKING\tOBSERVED RATES")
		for _, cat := range categories {
			if strategiesCategory != "" && string(cat) != strategiesCategory {
				continue
			}
			for _, failure := range failures {
				if strategiesFailure != "" && string(failure) != strategiesFailure {
					continue
				}
				ranked := selector.Rank(ctx, cat, failure)

				stats, err := st.MethodStats(ctx, cat, failure)
				if err != nil {
					return eris.Wrap(err, "method stats")
				}
				rates := make([]string, 0, len(stats))
				for _, s := range stats {
					rates = append(rates, fmt.Sprintf("%s %.0f%% (%d)", s.Method, s.SuccessRate()*100, s.Attempts))
				}

				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					cat, failure, strings.Join(ranked, " > "), strings.Join(rates, ", "))
			}
		}
		return w.Flush()
	},
}

func init() {
	strategiesCmd.Flags().StringVar(&strategiesCategory, "field-category", "", "restrict to one field category")
	strategiesCmd.Flags().StringVar(&strategiesFailure, "failure-type", "", "restrict to one failure type")
	rootCmd.AddCommand(strategiesCmd)
}
