package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/wahajws/amast-crm-sub000/pkg/auth"
	"github.com/wahajws/amast-crm-sub000/pkg/gateway"
	"github.com/wahajws/amast-crm-sub000/pkg/scheduler"
	"github.com/wahajws/amast-crm-sub000/pkg/types"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP gateway",
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := loadConfig()
		if err != nil {
			return err
		}
		if config.PrettyLogs {
			log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
		}
		if config.DebugMode {
			log.Logger = log.Logger.Level(zerolog.DebugLevel)
		}

		gw, err := gateway.NewGatewayWithConfig(config)
		if err != nil {
			return err
		}
		return gw.Start()
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		// NewEngine migrates on connect in remote mode
		return withEngine(cmd.Context(), func(engine *gateway.Engine) error {
			if engine.Postgres == nil {
				PrintInfo("no postgres backend configured, nothing to migrate")
				return nil
			}
			version, err := engine.Postgres.MigrationStatus()
			if err != nil {
				return err
			}
			if PrintStructured(map[string]int64{"version": version}) {
				return nil
			}
			PrintSuccessf("schema at version %d", version)
			return nil
		})
	},
}

var tokenTTL time.Duration

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for a user (development)",
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := loadConfig()
		if err != nil {
			return err
		}
		validator, err := auth.NewJWTValidator(config.Auth)
		if err != nil {
			return err
		}
		token, err := validator.Issue(currentUser(), tokenTTL)
		if err != nil {
			return err
		}
		if PrintStructured(map[string]string{"token": token}) {
			return nil
		}
		fmt.Fprintln(out, token)
		return nil
	},
}

var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Scheduled sync commands",
}

var schedulerRunCmd = &cobra.Command{
	Use:   "run-once",
	Short: "Sync every connected user once, ignoring the tick lock",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd.Context(), func(engine *gateway.Engine) error {
			s := scheduler.NewScheduler(cmd.Context(), engine.Config.Scheduler, engine.Backend, engine.Pipeline, engine.Lock)
			report, err := s.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			if PrintStructured(report) {
				return nil
			}

			PrintHeader("Scheduled pass")
			PrintKeyValue("Users", fmt.Sprintf("%d", report.Users))
			PrintKeyValue("Labels", fmt.Sprintf("%d", report.Labels))
			for _, status := range []types.SyncStatus{types.SyncStatusSuccess, types.SyncStatusPartial, types.SyncStatusFailed} {
				PrintKeyValue(string(status), StatusStyle(status).Render(fmt.Sprintf("%d", report.Statuses[string(status)])))
			}
			for user, msg := range report.UserErrors {
				PrintWarning(user + ": " + msg)
			}
			return nil
		})
	},
}

func init() {
	addUserFlags(tokenCmd)
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "Token lifetime")

	schedulerCmd.AddCommand(schedulerRunCmd)
}
