// Package baseline measures how established tokenizers compress the same
// corpus as a trained Hindi BPE model, for side-by-side comparison.
package baseline

import (
	"fmt"
	"time"

	"github.com/example/go-hindi-bpe/internal/bpe"
)

// Tokenizer counts the tokens a text encodes to.
type Tokenizer interface {
	Name() string
	Count(text string) (int, error)
}

// Result is the compression of one tokenizer over a corpus.
type Result struct {
	Name   string  `json:"name" yaml:"name"`
	Chars  int     `json:"chars" yaml:"chars"`
	Tokens int     `json:"tokens" yaml:"tokens"`
	Ratio  float64 `json:"ratio" yaml:"ratio"`
	// Duration is the wall time spent tokenizing.
	Duration time.Duration `json:"-" yaml:"duration"`
}

// Measure encodes every corpus line with tok and returns characters per
// token. Characters are counted with bpe.LineChars, so every tokenizer is
// measured like bpe.CompressionRatio.
func Measure(tok Tokenizer, corpus bpe.Corpus) (Result, error) {
	start := time.Now()
	res := Result{Name: tok.Name()}
	i := 0
	for line, err := range corpus.Lines() {
		if err != nil {
			return Result{}, fmt.Errorf("read corpus: %w", err)
		}
		n, err := tok.Count(line)
		if err != nil {
			return Result{}, fmt.Errorf("%s: %w", tok.Name(), err)
		}
		res.Chars += bpe.LineChars(i, line)
		res.Tokens += n
		i++
	}
	if res.Tokens == 0 {
		return Result{}, fmt.Errorf("%s: %w", tok.Name(), bpe.ErrEmptyCorpus)
	}
	res.Ratio = float64(res.Chars) / float64(res.Tokens)
	res.Duration = time.Since(start)
	return res, nil
}

// Compare measures each tokenizer in order over the same corpus.
func Compare(corpus bpe.Corpus, toks ...Tokenizer) ([]Result, error) {
	out := make([]Result, 0, len(toks))
	for _, tok := range toks {
		res, err := Measure(tok, corpus)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

// Model adapts a trained model to Tokenizer.
type Model struct {
	Label string
	Model *bpe.Model
}

func (m Model) Name() string {
	if m.Label == "" {
		return "hindi-bpe"
	}
	return m.Label
}

func (m Model) Count(text string) (int, error) {
	return m.Model.Encode(text).Len(), nil
}
