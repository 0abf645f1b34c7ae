package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/user/composablestudio/internal/config"
	"github.com/user/composablestudio/internal/logger"
	"github.com/user/composablestudio/internal/state"
	"github.com/user/composablestudio/internal/studio"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:           "studio",
	Short:         "Composable Studio state service",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config",
		filepath.Join(os.Getenv("HOME"), ".composablestudio", "config.json"), "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file, exiting the process if it cannot.
func loadConfig() *config.Config {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func setupLogging(cfg *config.Config) {
	logger.Init(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
}

// openStudio builds a service over the stores in the configured data dir.
// The returned function closes the content database.
func openStudio(cfg *config.Config, opts ...studio.Option) (*studio.Service, *state.SQLiteContentStore, func(), error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, nil, nil, errors.Wrap(err, "create data dir")
	}
	content, err := state.NewSQLiteContentStore(state.SQLiteContentDSN(filepath.Join(cfg.DataDir, "content.db")))
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "open content store")
	}
	svc := studio.New(studio.Stores{
		Sessions:    state.NewSessionStore(cfg.DataDir),
		History:     state.NewHistoryStore(cfg.DataDir),
		Canvas:      state.NewCanvasStore(cfg.DataDir),
		Content:     content,
		Attachments: state.NewAttachmentStore(cfg.DataDir),
	}, opts...)
	return svc, content, func() { _ = content.Close() }, nil
}

// localStudio is openStudio for one-shot commands.
func localStudio() (*studio.Service, func(), error) {
	cfg := loadConfig()
	setupLogging(cfg)
	svc, _, closeFn, err := openStudio(cfg)
	return svc, closeFn, err
}
