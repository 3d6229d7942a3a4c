// Package cli implements the persona-rag commands.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"persona-rag/internal/config"
	"persona-rag/internal/logging"
)

var (
	cfgPath  string
	logLevel string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "persona-rag",
	Short: "Character persona chat grounded in a story archive corpus",
	Long: "Builds a scoped knowledge base from narrative archives and answers fan questions " +
		"in character, retrieving only from the archives a router picks for each query.",
	SilenceUsage: true,
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "Path to YAML config file (default: ./config.yaml or ~/.config/persona-rag/config.yaml)")
	RootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log.level from config")
}

// loadConfig reads .env, then the YAML config.
func loadConfig() (*config.AppConfig, error) {
	_ = godotenv.Load()

	var (
		cfg *config.AppConfig
		err error
	)
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}

// newLogger builds the process logger. console is nil when the terminal is
// owned by the TUI.
func newLogger(cfg *config.AppConfig, console io.Writer) (*zap.Logger, error) {
	return logging.New(logging.Options{
		File:       cfg.Log.File,
		Level:      cfg.Log.Level,
		Production: cfg.Log.Production,
		Console:    console,
	})
}

// setup loads config and a stderr logger for the non-interactive commands.
func setup() (*config.AppConfig, *zap.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
