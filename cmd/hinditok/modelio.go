package main

import (
	"context"
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/example/go-hindi-bpe/internal/bpe"
	"github.com/example/go-hindi-bpe/internal/config"
	"github.com/example/go-hindi-bpe/internal/pretokenize"
	"github.com/example/go-hindi-bpe/internal/store"
)

// modelFlags selects the model a command reads.
type modelFlags struct {
	path   string
	merges string
}

func (f *modelFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.path, "model", "", "Model file (defaults to paths.model_path); a vocab.json when --merges is set")
	cmd.Flags().StringVar(&f.merges, "merges", "", "merges.txt paired with a vocab.json given by --model")
}

// load reads the model from a tokenizer file, a SQLite store, or a
// vocab.json/merges.txt pair. The pair carries no metadata, so specials and
// the pre-tokenizer come from the train config.
func (f *modelFlags) load(ctx context.Context, cfg config.Config) (*bpe.Model, error) {
	path := f.path
	if path == "" {
		path = cfg.Paths.ModelPath
	}
	fs := afero.NewOsFs()

	if f.merges == "" {
		return store.Load(ctx, fs, path)
	}

	mode, err := pretokenize.ParseMode(cfg.Train.PreTokenizer)
	if err != nil {
		return nil, err
	}
	m, err := store.LoadVocabMerges(fs, path, f.merges, cfg.Train.SpecialTokens, bpe.ModelConfig{PreTokenizer: mode})
	if err != nil {
		return nil, fmt.Errorf("load %s + %s: %w", path, f.merges, err)
	}
	return m, nil
}
