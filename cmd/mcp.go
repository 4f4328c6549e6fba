package cmd

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/socius/internal/logger"
	"github.com/spigell/socius/internal/mcptools"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve match scoring and permission tools over MCP on stdio",
	Run: func(_ *cobra.Command, _ []string) {
		serveMCP()
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func serveMCP() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// stdout carries the protocol.
	logger, err := logger.NewWithOutput(viper.GetBool("json"), viper.GetBool("debug"), "stderr")
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

	mcpSrv := mcptools.NewServer(mcptools.Deps{
		Profiles:    c.store,
		Permissions: c.policy,
		Scorer:      c.scorer,
		Version:     version,
		Logger:      logger,
	})

	logger.Info("mcp server started (stdio transport)")

	if err := server.NewStdioServer(mcpSrv).Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("mcp stdio server", zap.Error(err))
	}
}
