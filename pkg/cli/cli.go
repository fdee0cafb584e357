package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/wahajws/amast-crm-sub000/pkg/common"
	"github.com/wahajws/amast-crm-sub000/pkg/gateway"
	"github.com/wahajws/amast-crm-sub000/pkg/types"
)

// Build information (injected at compile time via ldflags)
var Version = "dev"

var (
	configPath string
	userId     string
	userEmail  string
	output     string
)

var rootCmd = &cobra.Command{
	Use:   "crm-gmail",
	Short: "Gmail sync engine for the CRM",
	Long: lipgloss.NewStyle().Foreground(ColorPrimary).Bold(true).Render("crm-gmail") + ` - Gmail sync engine for the CRM

Connects user mailboxes, keeps label preferences in step with Gmail,
ingests messages from syncing labels and links them to CRM contacts
and accounts. Commands run against the storage in the loaded config.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return SetOutput(output, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("  %s version %s\n", BrandStyle.Render("crm-gmail"), Version))

	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv(common.ConfigPathEnv), "Config file (yaml or json)")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", OutputTable, "Output format: table, json or yaml")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(labelsCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(schedulerCmd)
}

// Execute runs the CLI
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		PrintError(err)
		return err
	}
	return nil
}

// addUserFlags registers the flags naming the CRM user a command acts for
func addUserFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&userId, "user", "", "CRM user id")
	cmd.Flags().StringVar(&userEmail, "email", "", "CRM user email")
	cmd.MarkFlagRequired("user")
}

func currentUser() *types.User {
	return &types.User{Id: userId, Email: userEmail}
}

func loadConfig() (types.AppConfig, error) {
	configManager, err := common.NewConfigManagerFromPath[types.AppConfig](configPath)
	if err != nil {
		return types.AppConfig{}, err
	}
	return configManager.GetConfig(), nil
}

// withEngine builds the sync engine from config and closes it when fn returns
func withEngine(ctx context.Context, fn func(*gateway.Engine) error) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}
	if config.IsLocalMode() {
		PrintWarning("local mode keeps state in memory, nothing persists after this command")
	}

	engine, err := gateway.NewEngine(ctx, config)
	if err != nil {
		return err
	}
	defer engine.Close()

	return fn(engine)
}
