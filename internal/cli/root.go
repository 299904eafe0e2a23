// ABOUTME: Root cobra command and shared setup for the stemdeck CLI
// ABOUTME: Loads configuration and logging before any subcommand runs
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/stemdeck/stemdeck-go/internal/config"
	"github.com/stemdeck/stemdeck-go/internal/logger"
	"github.com/stemdeck/stemdeck-go/internal/version"
	"go.uber.org/zap"
)

// app carries state shared by the subcommands
type app struct {
	envFile  string
	logLevel string
	logFile  string

	cfg    *config.Config
	logger *zap.Logger

	// quiet suppresses console logging, for the TUI
	quiet bool
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           version.Product,
		Short:         "Synchronized stem player for practising with isolated tracks",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&a.envFile, "env", ".env", "Environment file to load")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&a.logFile, "log-file", "", "Rotated log file path")

	root.AddCommand(
		newPlayCmd(a),
		newProbeCmd(a),
		newDiscoverCmd(a),
	)
	return root
}

// setup loads configuration and installs the logger. console receives
// log output unless quiet is set.
func (a *app) setup(console io.Writer) error {
	cfg, err := config.Load(a.envFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	if a.logFile != "" {
		cfg.LogFile = a.logFile
	}
	a.cfg = cfg

	if a.quiet {
		console = nil
	}
	l, err := logger.Init(logger.Config{
		Level:      logger.Level(cfg.LogLevel),
		OutputPath: cfg.LogFile,
		Console:    console,
	})
	if err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	a.logger = l
	return nil
}

// Execute runs the CLI
func Execute() {
	defer logger.Sync()
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
