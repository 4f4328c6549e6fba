package cmd

import (
	"context"
	"log"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/socius/internal/logger"
)

var matchCmd = &cobra.Command{
	Use:   "match <user-id> <other-user-id>",
	Short: "Score how well two users match",
	Args:  cobra.ExactArgs(2),
	Run: func(_ *cobra.Command, args []string) {
		match(args[0], args[1])
	},
}

func init() {
	rootCmd.AddCommand(matchCmd)
}

func match(userID, otherUserID string) {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	c, err := newComponents(ctx, config, false, logger)
	if err != nil {
		logger.Fatal("building components", zap.Error(err))
	}

	self, err := c.store.GetProfile(ctx, userID)
	if err != nil {
		logger.Fatal("getting profile", zap.String("user_id", userID), zap.Error(err))
	}

	other, err := c.store.GetProfile(ctx, otherUserID)
	if err != nil {
		logger.Fatal("getting profile", zap.String("user_id", otherUserID), zap.Error(err))
	}

	printJSON(c.scorer.Evaluate(self, other))
}
