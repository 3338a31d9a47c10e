package main

import (
	"github.com/spf13/cobra"

	"renderbridge/internal/config"
	"renderbridge/internal/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:           "renderctl",
	Short:         "Submit render jobs and manage renderbridge credentials",
	SilenceUsage:  true,
}

var (
	rootLogLevel string
	rootBaseURL  string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&rootLogLevel, "log-level", "", "Log level (overrides LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&rootBaseURL, "base-url", "", "Render server base URL (overrides RENDER_SERVER_BASE_URL)")
}

// loadConfig reads the environment and applies the persistent flags.
func loadConfig() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if rootLogLevel != "" {
		cfg.LogLevel = rootLogLevel
	}
	if rootBaseURL != "" {
		cfg.BaseURL = rootBaseURL
		if err := cfg.Validate(); err != nil {
			return nil, nil, err
		}
	}

	log := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Format:      "text",
		ServiceName: cfg.ServiceName + "-ctl",
		Output:      rootCmd.ErrOrStderr(),
	})
	return cfg, log, nil
}
