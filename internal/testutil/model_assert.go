package testutil

import (
	"context"
	"slices"
	"testing"

	"github.com/example/go-hindi-bpe/internal/bpe"
	"github.com/example/go-hindi-bpe/internal/text"
)

// GreetingModel trains the GreetingLines fixture with a target of 40.
func GreetingModel(tb testing.TB) *bpe.Model {
	tb.Helper()

	opts := bpe.DefaultTrainOptions()
	opts.VocabSize = 40
	opts.ProgressEvery = 0
	m, _, err := bpe.Train(context.Background(), text.SliceCorpus(GreetingLines()), opts)
	if err != nil {
		tb.Fatalf("train greeting model: %v", err)
	}
	return m
}

// AssertEquivalentModels checks that got has the same vocabulary, merge
// table and pre-tokenizer as want, and encodes every line identically.
func AssertEquivalentModels(tb testing.TB, want, got *bpe.Model, lines []string) {
	tb.Helper()

	if got == nil {
		tb.Fatal("model is nil")
	}
	if !slices.Equal(want.Vocabulary().Symbols(), got.Vocabulary().Symbols()) {
		tb.Fatalf("vocabulary differs: want %d symbols, got %d", want.VocabSize(), got.VocabSize())
	}
	if !slices.Equal(want.Vocabulary().Specials(), got.Vocabulary().Specials()) {
		tb.Fatalf("specials differ: want %q, got %q", want.Vocabulary().Specials(), got.Vocabulary().Specials())
	}
	if !slices.Equal(want.Merges(), got.Merges()) {
		tb.Fatalf("merge tables differ: want %d rules, got %d", len(want.Merges()), len(got.Merges()))
	}
	if want.PreTokenizer() != got.PreTokenizer() {
		tb.Fatalf("pre-tokenizer: want %q, got %q", want.PreTokenizer(), got.PreTokenizer())
	}
	if want.UnkToken() != got.UnkToken() {
		tb.Fatalf("unknown token: want %q, got %q", want.UnkToken(), got.UnkToken())
	}

	for _, line := range lines {
		w, g := want.Encode(line), got.Encode(line)
		if !slices.Equal(w.IDs, g.IDs) {
			tb.Fatalf("encode %q: want %v, got %v", line, w.IDs, g.IDs)
		}
	}
}
