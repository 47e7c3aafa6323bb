package bpe

import "strings"

// Symbol is an atomic unit of the current segmentation: a single rune at
// first, later the concatenation of merged symbols.
type Symbol = string

// Pair is an ordered pair of adjacent symbols.
type Pair struct {
	Left  Symbol
	Right Symbol
}

// Merged returns the symbol a merge of p produces.
func (p Pair) Merged() Symbol { return p.Left + p.Right }

func (p Pair) String() string { return p.Left + " " + p.Right }

// MergeRule is a pair selected at training iteration Rank.
type MergeRule struct {
	Pair
	Rank int
}

// pairLess orders pairs for tie-breaking among equal frequencies: the smaller
// concatenation wins, then the smaller left symbol.
func pairLess(a, b Pair) bool {
	if c := strings.Compare(a.Merged(), b.Merged()); c != 0 {
		return c < 0
	}
	return a.Left < b.Left
}

// splitRunes returns the initial single-rune segmentation of word.
func splitRunes(word string) []Symbol {
	symbols := make([]Symbol, 0, len(word))
	for _, r := range word {
		symbols = append(symbols, string(r))
	}
	return symbols
}

// mergeAll replaces every non-overlapping occurrence of p, scanning left to
// right. It returns symbols unchanged (and false) when p does not occur.
func mergeAll(symbols []Symbol, p Pair) ([]Symbol, bool) {
	var out []Symbol
	for i := 0; i < len(symbols); i++ {
		if i+1 < len(symbols) && symbols[i] == p.Left && symbols[i+1] == p.Right {
			if out == nil {
				out = make([]Symbol, 0, len(symbols)-1)
				out = append(out, symbols[:i]...)
			}
			out = append(out, p.Merged())
			i++
			continue
		}
		if out != nil {
			out = append(out, symbols[i])
		}
	}
	if out == nil {
		return symbols, false
	}
	return out, true
}
