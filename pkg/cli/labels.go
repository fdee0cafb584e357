package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/wahajws/amast-crm-sub000/pkg/gateway"
	"github.com/wahajws/amast-crm-sub000/pkg/types"
)

var autoEnable bool

var labelsCmd = &cobra.Command{
	Use:   "labels",
	Short: "Manage Gmail label sync preferences",
}

var labelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List labels and whether they sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd.Context(), func(engine *gateway.Engine) error {
			states, err := engine.Reconciler.ListLabels(cmd.Context(), currentUser())
			if err != nil {
				return err
			}
			printLabels(states)
			return nil
		})
	},
}

var labelsRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Re-read labels from Gmail",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd.Context(), func(engine *gateway.Engine) error {
			ctx := cmd.Context()
			user := currentUser()

			states, err := engine.Reconciler.RefreshFromProvider(ctx, user)
			if err != nil {
				return err
			}
			if autoEnable {
				enabled, err := engine.Reconciler.AutoEnableUserLabels(ctx, user)
				if err != nil {
					return err
				}
				if !PrintStructured(map[string]int{"enabled": enabled}) {
					PrintSuccessf("enabled %d user labels", enabled)
				}
				if states, err = engine.Reconciler.ListLabels(ctx, user); err != nil {
					return err
				}
			}
			printLabels(states)
			return nil
		})
	},
}

var labelsEnableCmd = &cobra.Command{
	Use:   "enable LABEL_ID...",
	Short: "Turn sync on for labels",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setSyncing(cmd.Context(), args, true)
	},
}

var labelsDisableCmd = &cobra.Command{
	Use:   "disable LABEL_ID...",
	Short: "Turn sync off for labels",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setSyncing(cmd.Context(), args, false)
	},
}

func init() {
	labelsRefreshCmd.Flags().BoolVar(&autoEnable, "auto-enable", false, "Turn sync on for every user label")

	for _, cmd := range []*cobra.Command{labelsListCmd, labelsRefreshCmd, labelsEnableCmd, labelsDisableCmd} {
		addUserFlags(cmd)
		labelsCmd.AddCommand(cmd)
	}
}

func setSyncing(ctx context.Context, labelIds []string, isSyncing bool) error {
	return withEngine(ctx, func(engine *gateway.Engine) error {
		updated, err := engine.Reconciler.SetSyncing(ctx, currentUser(), labelIds, isSyncing)
		if err != nil {
			return err
		}
		if PrintStructured(map[string]int{"updated": updated}) {
			return nil
		}
		if updated < len(labelIds) {
			PrintWarning("some labels are unknown, run `labels refresh` first")
		}
		PrintSuccessf("updated %d labels", updated)
		return nil
	})
}

func printLabels(states []types.LabelSyncState) {
	if PrintStructured(states) {
		return
	}

	table := NewTable("ID", "NAME", "TYPE", "SYNCING", "LAST SYNCED")
	for _, s := range states {
		syncing := DimStyle.Render("no")
		if s.IsSyncing {
			syncing = SuccessStyle.Render("yes")
		}
		table.AddRow(s.LabelId, s.LabelName, string(s.LabelType), syncing, FormatTime(s.LastSyncedAt))
	}
	table.Print()
}
