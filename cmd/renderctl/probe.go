package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"renderbridge/internal/worker/renderer"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Check that the render server answers",
	Args:  cobra.NoArgs,
	RunE:  runProbe,
}

var (
	probeAttempts int
	probeInterval time.Duration
)

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.Flags().IntVar(&probeAttempts, "attempts", 0, "Attempts before giving up (default RENDER_SERVER_AVAILABLE_MAX_RETRIES)")
	probeCmd.Flags().DurationVar(&probeInterval, "interval", 0, "Delay between attempts (default RENDER_SERVER_AVAILABLE_INTERVAL)")
}

func runProbe(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	attempts, interval := cfg.ReachabilityAttempts, cfg.ReachabilityInterval
	if probeAttempts > 0 {
		attempts = probeAttempts
	}
	if probeInterval > 0 {
		interval = probeInterval
	}

	client := renderer.NewHTTPClient(cfg.BaseURL, cfg.RequestTimeout)
	if !client.Probe(cmd.Context(), attempts, interval) {
		return fmt.Errorf("render server %s unreachable after %d attempts", client.Host(), attempts)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "render server %s is reachable\n", client.Host())
	return nil
}
