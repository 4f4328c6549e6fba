package cmd

import (
	"context"
	"log"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/socius/internal/api"
	"github.com/spigell/socius/internal/datastore"
	"github.com/spigell/socius/internal/logger"
	"github.com/spigell/socius/internal/secrets"
)

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Serve the data store holding profiles, preferences, conversations and interactions",
	Run: func(_ *cobra.Command, _ []string) {
		runStore()
	},
}

func init() {
	rootCmd.AddCommand(storeCmd)

	storeCmd.Flags().String("listen", "", "address to listen on (default is datastore.listen)")
	storeCmd.Flags().String("data-dir", "", "directory of the sqlite database, or :memory:")
	viper.BindPFlag("datastore.listen", storeCmd.Flags().Lookup("listen"))
	viper.BindPFlag("datastore.data-dir", storeCmd.Flags().Lookup("data-dir"))
}

func runStore() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting the socius data store", zap.String("version", version))

	// The store shares its token with the clients reading it.
	token, err := secrets.Optional(secrets.Source{
		Name: "store token",
		File: config.Store.TokenFile,
	})
	if err != nil {
		logger.Fatal("loading store token", zap.Error(err),
			zap.String("hint", "set SOCIUS_STORE_TOKEN_FILE environment variable or the 'store.token-file' key in the configuration file"),
		)
	}

	db, err := datastore.Open(config.Datastore.DataDir)
	if err != nil {
		logger.Fatal("opening sqlite store", zap.String("data_dir", config.Datastore.DataDir), zap.Error(err))
	}
	defer db.Close()

	versions, err := db.AppliedMigrations()
	if err != nil {
		logger.Fatal("reading schema version", zap.Error(err))
	}
	logger.Debug("schema migrations applied", zap.Ints("versions", versions))

	deps := api.StoreDeps{
		Records:       db,
		Conversations: db,
		Token:         token,
		Logger:        logger,
	}

	if redisURL := strings.TrimSpace(config.Datastore.RedisURL); redisURL != "" {
		client, err := datastore.Connect(ctx, redisURL)
		if err != nil {
			logger.Fatal("connecting to redis", zap.Error(err))
		}
		defer client.Close()

		conversations := datastore.NewRedisConversations(client, config.Datastore.HistoryMax)
		if err := conversations.Ping(ctx); err != nil {
			logger.Fatal("pinging redis", zap.Error(err))
		}

		deps.Conversations = conversations
		logger.Info("keeping conversations in redis", zap.Int("history_max", config.Datastore.HistoryMax))
	}

	if err := listenAndServe(ctx, config.Datastore.Listen, api.NewStoreHandler(deps), logger); err != nil {
		logger.Fatal("serving data store", zap.Error(err))
	}
}
