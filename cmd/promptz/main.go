// Command promptz serves the promptz content API and operates its event
// archive.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/cremich/promptz-sub001/pkg/promptz/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Set by the linker.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
	envFiles   []string
	logLevel   string
}

func rootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "promptz",
		Short:         "Content backend for prompts, rules and agents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Config file (yaml, json, toml or .env)")
	cmd.PersistentFlags().StringSliceVar(&opts.envFiles, "env-file", nil, "Dotenv files to load (default .env when present)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override LOG_LEVEL (debug, info, warn, error)")

	cmd.AddCommand(
		serveCmd(opts),
		migrateCmd(opts),
		replayCmd(opts),
		tokenCmd(opts),
		schemaCmd(),
		envCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "promptz version %s (build: %s)\n", Version, BuildTime)
			},
		},
	)
	return cmd
}

// load reads dotenv files, the config file and the environment, then installs
// the default logger.
func (o *rootOptions) load() (*config.ServerConfig, *slog.Logger, error) {
	if err := godotenv.Load(o.envFiles...); err != nil {
		if len(o.envFiles) > 0 || !errors.Is(err, fs.ErrNotExist) {
			return nil, nil, fmt.Errorf("failed to load env file: %w", err)
		}
	}

	options := []config.Option{config.WithFile(o.configPath), config.WithEnv()}
	if o.logLevel != "" {
		options = append(options, func(c *config.ServerConfig) error {
			c.LogLevel = o.logLevel
			return nil
		})
	}

	cfg, err := config.Load(options...)
	if err != nil {
		return nil, nil, err
	}

	logger := config.NewLogger(os.Stderr, cfg.Environment, cfg.Level())
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func envCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "List the environment variables promptz reads",
		RunE: func(cmd *cobra.Command, args []string) error {
			desc, err := config.Describe()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), desc)
			return nil
		},
	}
}
