package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/example/go-hindi-bpe/internal/bpe"
	"github.com/example/go-hindi-bpe/internal/store"
	"github.com/example/go-hindi-bpe/internal/text"
)

const (
	vocabMergesPrefix = "hindi_vocab"
	reportName        = "report.yaml"
)

func newTrainCmd() *cobra.Command {
	var (
		skipPreprocess bool
		strict         bool
	)

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Preprocess the raw dataset, train the BPE model and report its compression",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			opts, err := cfg.TrainOptions()
			if err != nil {
				return err
			}
			opts.Logger = slog.Default()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			fs := afero.NewOsFs()

			if skipPreprocess {
				fmt.Fprintf(out, "Step 1: Using preprocessed corpus %s\n", cfg.Paths.CorpusPath)
			} else {
				fmt.Fprintln(out, "Step 1: Preprocessing dataset...")
				st, err := preprocessFile(fs, cfg.Paths.RawPath, cfg.Paths.CorpusPath, cfg.Train.NFC)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "  %d lines -> %s\n", st.Lines, cfg.Paths.CorpusPath)
			}

			fmt.Fprintln(out, "Step 2: Training BPE tokenizer...")
			corpus := &text.FileCorpus{Fs: fs, Path: cfg.Paths.CorpusPath}
			m, stats, trainErr := bpe.Train(ctx, corpus, opts)
			if trainErr != nil && !errors.Is(trainErr, bpe.ErrTrainingAborted) {
				return trainErr
			}
			fmt.Fprintf(out, "  vocab %d, %d merges, stopped: %s\n", stats.VocabSize, stats.Merges, stats.StopReason)

			// An aborted run still persists the partial model.
			saveCtx := context.WithoutCancel(ctx)

			fmt.Fprintln(out, "Step 3: Saving tokenizer files...")
			if err := store.Save(saveCtx, fs, cfg.Paths.ModelPath, m); err != nil {
				return err
			}
			fmt.Fprintf(out, "  model  %s\n", cfg.Paths.ModelPath)
			vocabPath, mergesPath, err := store.ExportVocabMerges(fs, cfg.Paths.OutputDir, vocabMergesPrefix, m)
			if err != nil {
				slog.Warn("vocab/merges export skipped", slog.String("error", err.Error()))
			} else {
				fmt.Fprintf(out, "  vocab  %s\n  merges %s\n", vocabPath, mergesPath)
			}

			report := store.Report{
				CreatedAt: time.Now().UTC(),
				Corpus:    cfg.Paths.CorpusPath,
				Model:     cfg.Paths.ModelPath,
				Options:   store.NewReportOptions(opts),
				Stats:     stats,
			}
			reportPath := filepath.Join(cfg.Paths.OutputDir, reportName)

			if trainErr != nil {
				if err := store.WriteReport(fs, reportPath, report); err != nil {
					return err
				}
				return trainErr
			}

			fmt.Fprintln(out, "Step 4: Calculating compression ratio...")
			c, err := bpe.CompressionRatio(m, corpus, cfg.Train.CompressionThreshold)
			if err != nil {
				return err
			}
			report.Compression = &c
			if err := store.WriteReport(fs, reportPath, report); err != nil {
				return err
			}
			fmt.Fprintf(out, "  report %s\n", reportPath)

			printCompression(out, c)
			if strict {
				return c.Err()
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&skipPreprocess, "skip-preprocess", false, "Train on paths.corpus_path as is")
	cmd.Flags().BoolVar(&strict, "strict", false, "Exit non-zero when the compression ratio misses the threshold")

	return cmd
}
