package main

import (
	"fmt"
	"log/slog"

	"github.com/codelore/codelore"
	"github.com/codelore/codelore/internal/log"
	"github.com/codelore/codelore/internal/mcp"
	"github.com/spf13/cobra"
)

func stdioCmd() *cobra.Command {
	var envFile string

	cmd := &cobra.Command{
		Use:   "stdio",
		Short: "Start MCP server on stdio",
		Long: `Start the MCP (Model Context Protocol) server on stdio.

This exposes search, ask, list_repositories, and get_documentation tools
so AI assistants can query the indexed knowledge base.
Configuration is loaded from environment variables and .env file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStdio(envFile)
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "Path to .env file")

	return cmd
}

func runStdio(envFile string) error {
	cfg, err := loadConfig(envFile)
	if err != nil {
		return err
	}

	if err := cfg.EnsureDataDir(); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	// Stdout carries the MCP protocol; the logger writes to stderr.
	slogger := log.New(cfg)

	slogger.Info("starting MCP server",
		slog.String("version", version),
		slog.String("data_dir", cfg.DataDir()),
	)

	// The stdio surface only reads; skip the handler checks that would
	// otherwise reject a read-only setup without a chat endpoint.
	opts := append(clientOptions(cfg),
		codelore.WithLogger(slogger),
		codelore.WithoutMaintenance(),
		codelore.WithSkipProviderValidation(),
	)

	client, err := codelore.New(opts...)
	if err != nil {
		return fmt.Errorf("create codelore client: %w", err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			slogger.Error("failed to close codelore client", slog.Any("error", err))
		}
	}()

	// The ask tool needs a chat endpoint; without one the server still
	// exposes search and the read-only tools.
	var asker mcp.Asker
	var creator mcp.ConversationCreator
	if client.Chat != nil {
		asker = client.Chat
		creator = client.Conversations
	}

	mcpServer := mcp.NewServer(
		client.Retrieval,
		asker,
		creator,
		client.Repositories,
		client.Docs,
		slogger,
	)

	return mcpServer.ServeStdio()
}
