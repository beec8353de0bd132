package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/verify-cli/internal/model"
	"github.com/sells-group/verify-cli/internal/store"
)

var quarantineStatus string

var quarantineCmd = &cobra.Command{
	Use:   "quarantine",
	Short: "Inspect quarantined records",
}

var quarantineListCmd = &cobra.Command{
	Use:   "list",
	Short: "List quarantined records with reasons and remaining budget",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("quarantine"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return eris.Wrap(err, "init store")
		}
		defer st.Close()

		filter := store.QuarantineFilter{}
		if quarantineStatus != "" {
			filter.Status = model.QuarantineStatus(quarantineStatus)
		}
		records, err := st.ListQuarantine(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "list quarantine")
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tPROFILE\tSTATUS\tRETRIES\tREASON")
		for _, q := range records {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%s\n",
				q.ID, q.ProfileID, q.Status, q.RetryCount, q.MaxRetries, q.Reason)
		}
		return w.Flush()
	},
}

var quarantineShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one quarantined record in full",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("quarantine"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return eris.Wrap(err, "init store")
		}
		defer st.Close()

		q, err := st.GetQuarantine(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "get quarantine")
		}
		if q == nil {
			return eris.Errorf("quarantine record %s not found", args[0])
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(q)
	},
}

func init() {
	quarantineListCmd.Flags().StringVar(&quarantineStatus, "status", "", "filter by status (quarantined, permanently_quarantined)")
	quarantineCmd.AddCommand(quarantineListCmd, quarantineShowCmd)
	rootCmd.AddCommand(quarantineCmd)
}
