// Command genoa runs the gossiping-agents market simulation.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/talgya/gossip-market/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

type logOptions struct {
	level  string
	format string
	file   string
}

func newRootCmd() *cobra.Command {
	var logOpts logOptions

	rootCmd := &cobra.Command{
		Use:   "genoa",
		Short: "Artificial stock market with gossiping agents",
		Long: `genoa simulates a population of traders on a set of call markets.
Each step agents exchange beliefs with random influencers and friends, trade
on those beliefs, and befriend sources whose advice tracked the market.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("load .env: %w", err)
			}
			return setupLogging(cmd.ErrOrStderr(), logOpts)
		},
	}

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newWriteConfigCmd())

	rootCmd.PersistentFlags().StringVar(&logOpts.level, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logOpts.format, "log-format", "text", "Log format (text or json)")
	rootCmd.PersistentFlags().StringVar(&logOpts.file, "log-file", "", "Write logs to this file with rotation instead of stderr")

	return rootCmd
}

func newWriteConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "write-config PATH",
		Short: "Write the default configuration (YAML, or TOML for a .toml path)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Write(args[0], config.Default()); err != nil {
				return err
			}
			slog.Info("default configuration written", "path", args[0])
			return nil
		},
	}
}

func setupLogging(stderr io.Writer, opts logOptions) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(opts.level)); err != nil {
		return fmt.Errorf("invalid log level %q", opts.level)
	}

	out := stderr
	if opts.file != "" {
		out = &lumberjack.Logger{
			Filename: opts.file,
			MaxSize:  100,
			MaxAge:   28,
			Compress: true,
		}
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(opts.format) {
	case "text", "":
		handler = slog.NewTextHandler(out, handlerOpts)
	case "json":
		handler = slog.NewJSONHandler(out, handlerOpts)
	default:
		return fmt.Errorf("invalid log format %q", opts.format)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}
