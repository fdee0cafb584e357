package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wahajws/amast-crm-sub000/pkg/gateway"
	"github.com/wahajws/amast-crm-sub000/pkg/types"
)

var (
	syncLabelId string
	statusLimit int
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync one label, or every syncing label",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd.Context(), func(engine *gateway.Engine) error {
			ctx := cmd.Context()
			user := currentUser()

			var results []*types.SyncResult
			if syncLabelId != "" {
				result, err := engine.Pipeline.SyncLabel(ctx, user, syncLabelId, types.SyncTypeManual)
				if result == nil {
					return err
				}
				results = append(results, result)
				if types.IsAuthError(err) {
					defer PrintWarning("reconnect gmail for this user before syncing again")
				}
			} else {
				all, err := engine.Pipeline.SyncAllSyncingLabels(ctx, user, types.SyncTypeManual)
				if err != nil {
					return err
				}
				results = all
			}

			printResults(results)
			for _, r := range results {
				if r.Status == types.SyncStatusFailed {
					return errors.New("one or more labels failed to sync")
				}
			}
			return nil
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent sync runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd.Context(), func(engine *gateway.Engine) error {
			ctx := cmd.Context()

			runs, err := engine.Audit.FindByUser(ctx, userId, statusLimit)
			if err != nil {
				return err
			}
			last, err := engine.Audit.FindLatestSuccess(ctx, userId, nil)
			if err != nil {
				return err
			}

			if PrintStructured(map[string]interface{}{"runs": runs, "lastSuccess": last}) {
				return nil
			}

			if last != nil {
				PrintKeyValue("Last success", FormatTime(last.CompletedAt))
			} else {
				PrintKeyValue("Last success", DimStyle.Render("never"))
			}
			fmt.Fprintln(out)

			table := NewTable("STARTED", "LABEL", "TYPE", "STATUS", "SYNCED", "SKIPPED", "ERROR")
			for _, run := range runs {
				label := "-"
				if run.LabelId != nil {
					label = *run.LabelId
				}
				errMsg := ""
				if run.ErrorMessage != nil {
					errMsg = firstLine(*run.ErrorMessage)
				}
				table.AddRow(
					FormatTime(&run.StartedAt),
					label,
					string(run.SyncType),
					StatusStyle(run.Status).Render(string(run.Status)),
					fmt.Sprintf("%d", run.EmailsSynced),
					fmt.Sprintf("%d", run.EmailsSkipped),
					errMsg,
				)
			}
			table.Print()
			return nil
		})
	},
}

func init() {
	addUserFlags(syncCmd)
	syncCmd.Flags().StringVar(&syncLabelId, "label", "", "Label id, empty syncs every syncing label")

	addUserFlags(statusCmd)
	statusCmd.Flags().IntVar(&statusLimit, "limit", 20, "Number of runs to show")
}

func printResults(results []*types.SyncResult) {
	if PrintStructured(results) {
		return
	}

	table := NewTable("LABEL", "STATUS", "SYNCED", "SKIPPED", "ERRORS")
	for _, r := range results {
		table.AddRow(
			r.LabelId,
			StatusStyle(r.Status).Render(string(r.Status)),
			fmt.Sprintf("%d", r.EmailsSynced),
			fmt.Sprintf("%d", r.EmailsSkipped),
			fmt.Sprintf("%d", len(r.Errors)),
		)
	}
	table.Print()

	for _, r := range results {
		for _, e := range r.Errors {
			PrintWarning(r.LabelId + ": " + e)
		}
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 60 {
		s = s[:57] + "..."
	}
	return s
}
