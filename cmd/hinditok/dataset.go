package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/example/go-hindi-bpe/internal/dataset"
)

func newDatasetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dataset",
		Short: "Raw dataset acquisition commands",
	}

	cmd.AddCommand(newDatasetDownloadCmd())
	return cmd
}

func newDatasetDownloadCmd() *cobra.Command {
	var (
		url    string
		out    string
		sha256 string
		token  string
	)

	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download the raw Hindi dataset, resuming partial downloads",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			if url == "" {
				url = cfg.Dataset.URL
			}
			if out == "" {
				out = cfg.Paths.RawPath
			}
			if sha256 == "" {
				sha256 = cfg.Dataset.SHA256
			}
			if token == "" {
				token = os.Getenv("HF_TOKEN")
			}
			if url == "" {
				return fmt.Errorf("no dataset URL: pass --url or set dataset.url")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			_, err = dataset.Download(ctx, dataset.DownloadOptions{
				URL:     url,
				OutPath: out,
				SHA256:  sha256,
				Token:   token,
				Stdout:  cmd.OutOrStdout(),
			})
			if err != nil {
				return fmt.Errorf("dataset download failed: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "Dataset URL (defaults to dataset.url)")
	cmd.Flags().StringVar(&out, "out", "", "Output file (defaults to paths.raw_path)")
	cmd.Flags().StringVar(&sha256, "sha256", "", "Expected SHA-256 (defaults to dataset.sha256)")
	cmd.Flags().StringVar(&token, "token", "", "Bearer token (falls back to HF_TOKEN env var)")

	return cmd
}
