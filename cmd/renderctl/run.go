package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"renderbridge/internal/storage"
	"renderbridge/internal/worker"
)

var runCmd = &cobra.Command{
	Use:   "run [request.json]",
	Short: "Run one job inline and print the response",
	Long: `Run one job against the render server without the API or the queue.

The request is read from the given file, or from stdin when the argument is
omitted or "-". It accepts the same body as POST /run. template_id requests
are rejected since no template store is attached.

The JSON response is written to stdout. The exit status is non-zero when the
run failed; the partial response is still printed.
`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

var runNoStorage bool

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVar(&runNoStorage, "no-storage", false, "Do not attach the storage provider (image_object_key is rejected)")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	body, err := readRequest(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	var sp storage.Provider
	if !runNoStorage {
		if sp, err = storage.NewProvider(ctx, cfg.Storage); err != nil {
			return fmt.Errorf("storage provider: %w", err)
		}
	}

	resp, runErr := worker.NewProcessor(cfg, nil, sp, log).RunRaw(ctx, body)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(resp); err != nil {
		return err
	}
	return runErr
}

func readRequest(stdin io.Reader, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(args[0])
}
