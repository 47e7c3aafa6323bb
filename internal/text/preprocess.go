package text

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Devanagari block bounds and the characters the preprocessor treats
// specially inside it.
const (
	devanagariFirst = '\u0900'
	devanagariLast  = '\u097F'
	digitZero       = '\u0966' // ०
	digitNine       = '\u096F' // ९
	danda           = '\u0964' // ।
)

// IsRetained reports whether r survives preprocessing: Devanagari letters,
// signs and punctuation, whitespace, and the ASCII marks , . ! ? -. Digits of
// any script are dropped.
func IsRetained(r rune) bool {
	switch {
	case r >= digitZero && r <= digitNine:
		return false
	case r >= devanagariFirst && r <= devanagariLast:
		return true
	case unicode.IsSpace(r):
		return true
	}
	switch r {
	case ',', '.', '!', '?', '-':
		return true
	}
	return false
}

// PreprocessOptions tunes the preprocessing pipeline.
type PreprocessOptions struct {
	// NFC composes the input to Unicode Normalization Form C before
	// filtering. Off by default.
	NFC bool
}

// Preprocessor cleans raw Hindi text into training-ready lines.
type Preprocessor struct {
	opts PreprocessOptions
}

func NewPreprocessor(opts PreprocessOptions) *Preprocessor {
	return &Preprocessor{opts: opts}
}

// Preprocess filters input to retained characters, rewrites the danda to a
// full stop, collapses whitespace runs to single spaces and trims the result.
// The returned string may be empty.
func (p *Preprocessor) Preprocess(input string) (string, error) {
	out, _, err := transform.String(p.pipeline(), input)
	if err != nil {
		return "", fmt.Errorf("preprocess text: %w", err)
	}
	return strings.Join(strings.Fields(out), " "), nil
}

// pipeline builds a fresh transformer chain; chains carry state and must not
// be shared between goroutines.
func (p *Preprocessor) pipeline() transform.Transformer {
	steps := make([]transform.Transformer, 0, 3)
	if p.opts.NFC {
		steps = append(steps, norm.NFC)
	}
	steps = append(steps,
		runes.Remove(runes.Predicate(func(r rune) bool { return !IsRetained(r) })),
		runes.Map(func(r rune) rune {
			if r == danda {
				return '.'
			}
			return r
		}),
	)
	return transform.Chain(steps...)
}
