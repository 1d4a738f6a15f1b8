package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ironsheep/segmenter-mcp/internal/config"
	"github.com/ironsheep/segmenter-mcp/internal/logging"
	"github.com/ironsheep/segmenter-mcp/internal/server"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Handle --version and -v flags
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v", "version":
			fmt.Printf("segmenter-mcp %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			return
		case "--help", "-h", "help":
			fmt.Println("segmenter-mcp - MCP server for region-growing image segmentation")
			fmt.Println()
			fmt.Println("Usage: segmenter-mcp [options]")
			fmt.Println()
			fmt.Println("Options:")
			fmt.Println("  --version, -v    Print version information")
			fmt.Println("  --help, -h       Print this help message")
			fmt.Println()
			fmt.Println("Environment variables:")
			fmt.Println("  SEGMENTER_LOG_LEVEL=debug    Log level (debug, info, warn, error)")
			fmt.Println("  SEGMENTER_LOG_FORMAT=json    Log format (text, json)")
			fmt.Println("  SEGMENTER_STRATEGY=mean      Default merge strategy (baatz, mean)")
			fmt.Println("  SEGMENTER_MIN_SEGMENT_SIZE   Default minimum segment size in pixels")
			fmt.Println("  SEGMENTER_THRESHOLD          Default similarity threshold")
			fmt.Println("  SEGMENTER_WORKERS            Blocks segmented in parallel")
			fmt.Println()
			fmt.Println("This server communicates via MCP protocol over stdin/stdout.")
			fmt.Println("Configure it in your MCP client (e.g., Claude Desktop).")
			return
		}
	}

	// Logs go to stderr; stdout is for MCP protocol
	logger := logging.New(config.LogLevel(os.LookupEnv), config.LogFormat(os.LookupEnv))
	logger.WithField("version", Version).WithField("commit", GitCommit).Debug("segmenter MCP server starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Default()
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		logger.WithError(err).Fatal("invalid environment")
	}

	server.Version = Version
	srv := server.New(logger)
	srv.SetConfig(cfg)
	if err := srv.Run(ctx); err != nil {
		logger.WithError(err).Fatal("server error")
	}
}
