package bpe

import (
	"fmt"
	"unicode/utf8"
)

// Compression is the characters-per-token measurement of a model on a
// reference corpus.
type Compression struct {
	Chars     int     `json:"chars" yaml:"chars"`
	Tokens    int     `json:"tokens" yaml:"tokens"`
	Ratio     float64 `json:"ratio" yaml:"ratio"`
	Threshold float64 `json:"threshold" yaml:"threshold"`
	Passed    bool    `json:"passed" yaml:"passed"`
}

// Err returns ErrCompressionBelowThreshold when the ratio missed the
// threshold, nil otherwise. It never invalidates the model.
func (c Compression) Err() error {
	if c.Passed {
		return nil
	}
	return fmt.Errorf("%w: %.2f < %.2f", ErrCompressionBelowThreshold, c.Ratio, c.Threshold)
}

// LineChars returns the characters line contributes to a "\n"-joined
// corpus: its code points, plus the line break before it for every line
// after the first.
func LineChars(index int, line string) int {
	n := utf8.RuneCountInString(line)
	if index > 0 {
		n++
	}
	return n
}

// CompressionRatio encodes every line of corpus and returns total characters
// divided by total tokens. Characters are code points, and each line break
// between two lines counts as one. A threshold <= 0 selects
// DefaultCompressionThreshold.
func CompressionRatio(m *Model, corpus Corpus, threshold float64) (Compression, error) {
	if threshold <= 0 {
		threshold = DefaultCompressionThreshold
	}
	c := Compression{Threshold: threshold}

	i := 0
	for line, err := range corpus.Lines() {
		if err != nil {
			return c, fmt.Errorf("read reference corpus: %w", err)
		}
		c.Chars += LineChars(i, line)
		i++
		c.Tokens += m.Encode(line).Len()
	}
	if c.Tokens == 0 {
		return c, fmt.Errorf("%w: reference corpus produced no tokens", ErrEmptyCorpus)
	}

	c.Ratio = float64(c.Chars) / float64(c.Tokens)
	c.Passed = c.Ratio >= threshold
	return c, nil
}
