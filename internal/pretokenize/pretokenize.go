// Package pretokenize splits normalized text lines into the word units that
// BPE segments independently.
package pretokenize

import (
	"fmt"
	"strings"

	"github.com/dlclark/regexp2"
)

// Mode selects how a line is cut into words.
type Mode string

const (
	// ModeWhitespace splits on runs of Unicode whitespace.
	ModeWhitespace Mode = "whitespace"
	// ModePunct splits on whitespace and additionally separates runs of
	// punctuation from runs of letters and marks ("भारत!" -> "भारत", "!").
	ModePunct Mode = "punct"
	// ModeNone treats the whole trimmed line as one unit.
	ModeNone Mode = "none"
)

// punctPattern keeps Devanagari combining marks (\p{M}) inside words; a plain
// \w class would cut matras and the virama off their consonants.
const punctPattern = `[\p{L}\p{M}\p{N}_]+|[^\p{L}\p{M}\p{N}_\s]+`

// Splitter cuts a line into words. Implementations never return empty words.
type Splitter interface {
	Split(line string) []string
	Mode() Mode
}

// ParseMode normalizes a mode string. Empty input selects ModeWhitespace.
func ParseMode(raw string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(raw))); m {
	case "":
		return ModeWhitespace, nil
	case ModeWhitespace, ModePunct, ModeNone:
		return m, nil
	case "off":
		return ModeNone, nil
	default:
		return "", fmt.Errorf("invalid pre-tokenizer %q (expected %s|%s|%s)", raw, ModeWhitespace, ModePunct, ModeNone)
	}
}

// New returns the Splitter for mode.
func New(mode Mode) (Splitter, error) {
	switch mode {
	case ModeWhitespace, "":
		return whitespaceSplitter{}, nil
	case ModeNone:
		return noneSplitter{}, nil
	case ModePunct:
		re, err := regexp2.Compile(punctPattern, regexp2.None)
		if err != nil {
			return nil, fmt.Errorf("compile punct pattern: %w", err)
		}
		return &punctSplitter{re: re}, nil
	default:
		return nil, fmt.Errorf("unsupported pre-tokenizer %q", mode)
	}
}

// MustNew is New for modes known to be valid at compile time.
func MustNew(mode Mode) Splitter {
	s, err := New(mode)
	if err != nil {
		panic(err)
	}
	return s
}

type whitespaceSplitter struct{}

func (whitespaceSplitter) Split(line string) []string { return strings.Fields(line) }
func (whitespaceSplitter) Mode() Mode                 { return ModeWhitespace }

type noneSplitter struct{}

func (noneSplitter) Split(line string) []string {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	return []string{line}
}

func (noneSplitter) Mode() Mode { return ModeNone }

type punctSplitter struct {
	re *regexp2.Regexp
}

func (p *punctSplitter) Mode() Mode { return ModePunct }

func (p *punctSplitter) Split(line string) []string {
	var words []string
	m, err := p.re.FindStringMatch(line)
	for err == nil && m != nil {
		if s := m.String(); s != "" {
			words = append(words, s)
		}
		m, err = p.re.FindNextMatch(m)
	}
	// regexp2 only errors on match timeouts, which are not configured here.
	return words
}
