package cmd

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/socius/internal/api"
	"github.com/spigell/socius/internal/logger"
	"github.com/spigell/socius/internal/secrets"
	"github.com/spigell/socius/internal/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the agent API for every user",
	Run: func(_ *cobra.Command, _ []string) {
		serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("listen", "", "address to listen on (default is server.listen)")
	viper.BindPFlag("server.listen", serveCmd.Flags().Lookup("listen"))
}

func serve() {
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

	logger.Info("starting the socius agent api", zap.String("version", version))

	token, err := secrets.Optional(secrets.Source{
		Name: "api token",
		File: config.Server.TokenFile,
	})
	if err != nil {
		logger.Fatal("loading api token", zap.Error(err),
			zap.String("hint", "set SOCIUS_API_TOKEN_FILE environment variable or the 'server.token-file' key in the configuration file"),
		)
	}
	if token == "" {
		logger.Warn("api token is not configured, the api is open to anyone who can reach it")
	}

	c, err := newComponents(ctx, config, true, logger)
	if err != nil {
		logger.Fatal("building components", zap.Error(err))
	}

	if err := c.store.Health(ctx); err != nil {
		logger.Warn("data store is not reachable yet", zap.String("url", config.Store.URL), zap.Error(err))
	}
	if c.imessage != nil {
		if err := c.imessage.Health(ctx); err != nil {
			logger.Warn("imessage bridge is not reachable yet", zap.String("url", config.IMessage.URL), zap.Error(err))
		}
	}

	sessions := session.New(config.Sessions.Size, config.Sessions.TTL,
		func(ctx context.Context, userID string) (api.UserAgent, error) {
			a, err := c.newAgent(ctx, config, userID, logger)
			if err != nil {
				return nil, err
			}
			return a, nil
		},
		logger.With(zap.String("component", "sessions")),
	)

	handler := api.NewAgentHandler(api.AgentDeps{
		Sessions:    sessions,
		Permissions: c.policy,
		Profiles:    c.store,
		Scorer:      c.scorer,
		Token:       token,
		Logger:      logger,
	})

	if err := listenAndServe(ctx, config.Server.Listen, handler, logger); err != nil {
		logger.Fatal("serving agent api", zap.Error(err))
	}
}
