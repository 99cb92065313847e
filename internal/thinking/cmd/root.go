// Package cmd wires the thinking server's cobra command tree: serve, and
// the config show/schema diagnostics borrowed from the teacher's own
// command layout.
package cmd

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/rand/thinkingserver/internal/thinking/config"
	"github.com/rand/thinkingserver/internal/thinking/mcpserver"
	"github.com/rand/thinkingserver/internal/thinking/pipeline"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const serverVersion = "v0.1.0"

func init() {
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().String("log-file", "", "Write logs to this file instead of stderr (rotated via lumberjack)")

	serveCmd.Flags().String("http", "", "If set, serve streamable HTTP at this address instead of stdio")

	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(serveCmd, configCmd)
}

var rootCmd = &cobra.Command{
	Use:   "thinkingserver",
	Short: "Sequential Thinking MCP server",
	Long: `thinkingserver exposes the sequential-thinking reasoning engine as a
Model Context Protocol server: a search tree scored by Monte Carlo Tree
Search, with per-session rate limiting, sanitization, and thinking-mode
presets.`,
}

// Execute runs the root command, reading flags and dispatching to the
// selected subcommand.
func Execute() error {
	_ = godotenv.Load() // optional .env; absence is not an error
	return rootCmd.Execute()
}

func setupLogger(cmd *cobra.Command) *slog.Logger {
	debug, _ := cmd.Flags().GetBool("debug")
	logFile, _ := cmd.Flags().GetString("log-file")

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	if logFile != "" {
		writer := &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    50, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
		handler = slog.NewJSONHandler(writer, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	return slog.New(handler)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sequential-thinking MCP server",
	Long: `Run the sequential-thinking MCP server.

By default the server speaks MCP over stdin/stdout, the transport MCP
clients expect when launching the server as a subprocess. Pass --http to
instead serve the streamable HTTP transport at the given address.`,
	Example: `
# Run as a stdio subprocess (the common case)
thinkingserver serve

# Run as a long-lived HTTP server
thinkingserver serve --http :8080

# Verbose logging to a rotating file
thinkingserver serve --debug --log-file /var/log/thinkingserver.log
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := setupLogger(cmd)

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		p, err := pipeline.New(cfg, logger)
		if err != nil {
			return fmt.Errorf("init pipeline: %w", err)
		}
		defer p.Destroy()

		server := mcp.NewServer("sequential-thinking", serverVersion, nil)
		if err := mcpserver.Register(server, p); err != nil {
			return fmt.Errorf("register tools: %w", err)
		}

		httpAddr, _ := cmd.Flags().GetString("http")
		if httpAddr != "" {
			handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
				return server
			}, nil)
			logger.Info("sequential-thinking MCP server listening", "addr", httpAddr)
			return http.ListenAndServe(httpAddr, handler)
		}

		t := mcp.NewLoggingTransport(mcp.NewStdioTransport(), os.Stderr)
		if err := server.Run(cmd.Context(), t); err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	},
}
