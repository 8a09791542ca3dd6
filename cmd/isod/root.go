package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/airone01/isod/internal/config"
	"github.com/airone01/isod/internal/registry"
	"github.com/airone01/isod/internal/registry/distros"
	"github.com/airone01/isod/internal/safety"
)

var (
	// Global flags
	cfgPath   string
	outputDir string
	logLevel  string
	logFormat string
	quiet     bool

	globalCfg *config.Config
	logger    *slog.Logger

	// Global components
	globalRegistry *registry.Registry
)

// initializeComponents builds the registry with the built-in distro catalog.
func initializeComponents() error {
	if globalCfg == nil {
		return fmt.Errorf("config not loaded")
	}

	client := safety.NewHTTPClient(0)
	globalRegistry = registry.New(client, logger)

	if err := distros.RegisterBuiltins(globalRegistry, logger); err != nil {
		return fmt.Errorf("failed to register distros: %w", err)
	}

	return nil
}

// shouldSkipComponentInit checks if a command should skip component initialization
func shouldSkipComponentInit(cmdName string) bool {
	skipInitCmds := map[string]bool{
		"help":    true,
		"version": true,
		"config":  true,
		"show":    true,
		"init":    true,
		"path":    true,
	}
	return skipInitCmds[cmdName]
}

// NewRootCmd creates and returns the root command
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "isod",
		Short: "Download and verify Linux distribution installation images",
		Long: `isod resolves, downloads, and verifies ISO images for Linux
distributions. It detects available versions from release feeds and APIs,
ranks official and mirror download sources, resumes interrupted transfers,
and checks published checksums.`,
		Example: `  isod download ubuntu
  isod download fedora 40 --arch x86_64 --variant workstation
  isod versions debian
  isod info arch
  isod probe ubuntu`,
		Version: "0.1.0",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			setupLogging()

			if shouldSkipConfig(cmd.Name()) {
				return nil
			}

			if cfgPath == "" {
				var err error
				cfgPath, err = config.FindConfigFile()
				if err != nil && cmd.Name() != "config" {
					logger.Debug("config file not found, using defaults", "error", err)
				}
			}

			if cfgPath != "" {
				var err error
				globalCfg, err = config.Load(cfgPath)
				if err != nil {
					return fmt.Errorf("failed to load config: %w", err)
				}
			} else {
				globalCfg = config.DefaultConfig()
			}

			if outputDir != "" {
				globalCfg.General.OutputDirectory = outputDir
			}

			if !shouldSkipComponentInit(cmd.Name()) {
				if err := initializeComponents(); err != nil {
					return fmt.Errorf("failed to initialize components: %w", err)
				}
			}

			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config file (auto-discovered if not specified)")
	cmd.PersistentFlags().StringVarP(&outputDir, "output", "o", "", "override output directory")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text or json)")
	cmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "suppress non-error output")

	cmd.AddCommand(
		newDownloadCmd(),
		newVersionsCmd(),
		newListCmd(),
		newInfoCmd(),
		newSearchCmd(),
		newConfigCmd(),
		newHistoryCmd(),
		newProbeCmd(),
	)

	return cmd
}

// setupLogging initializes the slog logger based on flags
func setupLogging() {
	var level slog.Level
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	if quiet {
		level = slog.LevelError
	}

	var handler slog.Handler
	if strings.ToLower(logFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}

	logger = slog.New(handler)
	slog.SetDefault(logger)
}

// shouldSkipConfig checks if a command should skip config loading
func shouldSkipConfig(cmdName string) bool {
	skipConfigCmds := map[string]bool{
		"help":    true,
		"version": true,
	}
	return skipConfigCmds[cmdName]
}
