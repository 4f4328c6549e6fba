package cmd

import (
	"context"
	"log"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/socius/internal/logger"
	"github.com/spigell/socius/internal/permissions"
)

var permissionsCmd = &cobra.Command{
	Use:   "permissions",
	Short: "Show or change what the assistant may do without asking",
}

var permissionsGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the effective permission of every action",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		withPolicy(cmd, func(ctx context.Context, policy *permissions.Policy, userID string, logger *zap.Logger) {
			perms, err := policy.UserPermissions(ctx, userID)
			if err != nil {
				logger.Fatal("getting permissions", zap.Error(err))
			}
			printJSON(map[string]any{"user_id": userID, "permissions": perms})
		})
	},
}

var permissionsSetCmd = &cobra.Command{
	Use:   "set <action> <level>",
	Short: "Set the permission level of one action",
	Long: "Set the permission level of one action.\n\n" +
		"Actions: send_message, schedule_meeting, send_email, share_profile, request_connection.\n" +
		"Levels: always_ask, auto_high_match, always_auto, never.",
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		withPolicy(cmd, func(ctx context.Context, policy *permissions.Policy, userID string, logger *zap.Logger) {
			action, err := permissions.ParseAction(args[0])
			if err != nil {
				logger.Fatal("parsing action", zap.Error(err))
			}
			level, err := permissions.ParseLevel(args[1])
			if err != nil {
				logger.Fatal("parsing level", zap.Error(err))
			}

			if err := policy.UpdatePermission(ctx, userID, action, level); err != nil {
				logger.Fatal("updating permission", zap.Error(err))
			}

			logger.Info("permission updated",
				zap.String("user_id", userID),
				zap.String("action", string(action)),
				zap.String("level", string(level)),
			)
		})
	},
}

func init() {
	rootCmd.AddCommand(permissionsCmd)
	permissionsCmd.AddCommand(permissionsGetCmd, permissionsSetCmd)

	permissionsCmd.PersistentFlags().StringP("user", "u", "", "user whose permissions to use (default is user-id)")
}

func withPolicy(cmd *cobra.Command, fn func(ctx context.Context, policy *permissions.Policy, userID string, logger *zap.Logger)) {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	userID, err := requireUserID(config, cmd.Flag("user").Value.String())
	if err != nil {
		logger.Fatal("resolving user", zap.Error(err))
	}

	c, err := newComponents(ctx, config, false, logger)
	if err != nil {
		logger.Fatal("building components", zap.Error(err))
	}

	fn(ctx, c.policy, userID, logger)
}
