// Package store persists trained models. The on-disk format is chosen by
// file extension:
//
//	.json                  HuggingFace-style tokenizer.json
//	.db, .sqlite, .sqlite3 SQLite database
//
// The vocab.json + merges.txt pair is available through ExportVocabMerges
// and LoadVocabMerges.
package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/example/go-hindi-bpe/internal/bpe"
)

// ErrUnsupportedFormat is returned for paths whose extension maps to no format.
var ErrUnsupportedFormat = errors.New("unsupported model format")

// Format names a persistence format.
type Format string

const (
	FormatJSON   Format = "json"
	FormatSQLite Format = "sqlite"
)

// FormatFor returns the format selected by path's extension.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".db", ".sqlite", ".sqlite3":
		return FormatSQLite, nil
	default:
		return "", fmt.Errorf("%w: %q (want .json, .db or .sqlite)", ErrUnsupportedFormat, path)
	}
}

// Save writes m to path in the format chosen by its extension, creating the
// parent directory. SQLite files always live on the OS filesystem; fs is
// used for every other format.
func Save(ctx context.Context, fs afero.Fs, path string, m *bpe.Model) error {
	format, err := FormatFor(path)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create model dir: %w", err)
		}
	}

	switch format {
	case FormatSQLite:
		return SaveSQLite(ctx, path, m)
	default:
		return SaveJSON(fs, path, m)
	}
}

// Load reads a model written by Save.
func Load(ctx context.Context, fs afero.Fs, path string) (*bpe.Model, error) {
	format, err := FormatFor(path)
	if err != nil {
		return nil, err
	}

	switch format {
	case FormatSQLite:
		return LoadSQLite(ctx, path)
	default:
		return LoadJSON(fs, path)
	}
}

// pairsOf returns the merge pairs of m in rank order.
func pairsOf(m *bpe.Model) []bpe.Pair {
	rules := m.Merges()
	pairs := make([]bpe.Pair, len(rules))
	for i, r := range rules {
		pairs[i] = r.Pair
	}
	return pairs
}

// denseSymbols orders a symbol->id table by id, rejecting gaps and
// duplicate ids.
func denseSymbols(vocab map[string]int) ([]string, error) {
	symbols := make([]string, len(vocab))
	seen := make([]bool, len(vocab))
	for s, id := range vocab {
		if id < 0 || id >= len(vocab) {
			return nil, fmt.Errorf("%w: id %d of %q outside 0..%d", bpe.ErrInvalidModel, id, s, len(vocab)-1)
		}
		if seen[id] {
			return nil, fmt.Errorf("%w: id %d assigned twice", bpe.ErrInvalidModel, id)
		}
		seen[id] = true
		symbols[id] = s
	}
	return symbols, nil
}
