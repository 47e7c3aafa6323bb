package bpe

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/example/go-hindi-bpe/internal/pretokenize"
	"go.uber.org/multierr"
)

// Defaults mirror the reference training run.
const (
	DefaultVocabSize            = 4500
	DefaultVocabCeiling         = 5000
	DefaultMinFrequency         = 2
	DefaultCompressionThreshold = 3.2
	DefaultUnkToken             = "<unk>"
)

// DefaultSpecialTokens returns the reserved tokens in id order.
func DefaultSpecialTokens() []string {
	return []string{"<pad>", "<unk>", "<s>", "</s>"}
}

// MergeEvent describes one completed merge iteration.
type MergeEvent struct {
	Rule      MergeRule
	Frequency int
	VocabSize int
	// Words exposes the current segmentation of every distinct word. It is
	// only valid for the duration of the callback.
	Words func(yield func(word string, symbols []Symbol) bool)
}

// TrainOptions configures Train.
type TrainOptions struct {
	VocabSize     int
	VocabCeiling  int
	MinFrequency  int
	SpecialTokens []string
	UnkToken      string
	// LimitAlphabet caps the number of base runes; 0 means no explicit cap.
	LimitAlphabet int
	PreTokenizer  pretokenize.Mode
	// Workers bounds the goroutines used for the initial pair count.
	Workers int

	Logger *slog.Logger
	// OnMerge, when set, is called after each merge is fully applied.
	OnMerge func(MergeEvent)
	// ProgressEvery logs a progress line every N merges; 0 disables it.
	ProgressEvery int
}

// DefaultTrainOptions returns the reference configuration.
func DefaultTrainOptions() TrainOptions {
	return TrainOptions{
		VocabSize:     DefaultVocabSize,
		VocabCeiling:  DefaultVocabCeiling,
		MinFrequency:  DefaultMinFrequency,
		SpecialTokens: DefaultSpecialTokens(),
		UnkToken:      DefaultUnkToken,
		PreTokenizer:  pretokenize.ModeWhitespace,
		Workers:       4,
		ProgressEvery: 500,
	}
}

// Validate reports every problem with the options at once. A target size at
// or above the ceiling yields ErrVocabularyCeilingExceeded; everything else,
// including a ceiling below 1, is ErrInvalidOptions.
func (o TrainOptions) Validate() error {
	var err error

	switch {
	case o.VocabCeiling < 1:
		err = multierr.Append(err, fmt.Errorf("%w: vocab ceiling %d < 1", ErrInvalidOptions, o.VocabCeiling))
	case o.VocabSize >= o.VocabCeiling:
		err = multierr.Append(err, fmt.Errorf("%w: vocab size %d >= ceiling %d",
			ErrVocabularyCeilingExceeded, o.VocabSize, o.VocabCeiling))
	}
	if o.VocabSize < len(o.SpecialTokens) {
		err = multierr.Append(err, fmt.Errorf("%w: vocab size %d smaller than %d special tokens",
			ErrInvalidOptions, o.VocabSize, len(o.SpecialTokens)))
	}
	if o.MinFrequency < 1 {
		err = multierr.Append(err, fmt.Errorf("%w: min frequency %d < 1", ErrInvalidOptions, o.MinFrequency))
	}
	if o.LimitAlphabet < 0 {
		err = multierr.Append(err, fmt.Errorf("%w: limit alphabet %d < 0", ErrInvalidOptions, o.LimitAlphabet))
	}

	seen := make(map[string]struct{}, len(o.SpecialTokens))
	for _, tok := range o.SpecialTokens {
		if tok == "" {
			err = multierr.Append(err, fmt.Errorf("%w: empty special token", ErrInvalidOptions))
			continue
		}
		if _, dup := seen[tok]; dup {
			err = multierr.Append(err, fmt.Errorf("%w: duplicate special token %q", ErrInvalidOptions, tok))
		}
		seen[tok] = struct{}{}
	}
	if !slices.Contains(o.SpecialTokens, o.unkToken()) {
		err = multierr.Append(err, fmt.Errorf("%w: unknown token %q not among special tokens", ErrInvalidOptions, o.unkToken()))
	}

	if _, perr := pretokenize.New(o.PreTokenizer); perr != nil {
		err = multierr.Append(err, fmt.Errorf("%w: %v", ErrInvalidOptions, perr))
	}

	return err
}

func (o TrainOptions) unkToken() string {
	if o.UnkToken == "" {
		return DefaultUnkToken
	}
	return o.UnkToken
}

func (o TrainOptions) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}
