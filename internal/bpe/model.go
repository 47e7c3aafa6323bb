// Package bpe implements Byte Pair Encoding training and inference over
// whitespace-delimited words, with rune-level base symbols so Devanagari
// text keeps whole code points as its smallest units.
//
// A Model is produced once by Train (or rebuilt from persisted data with
// NewModel) and is read-only afterwards; Encode, Decode and the lookup
// methods are safe for concurrent use.
package bpe

import (
	"fmt"
	"slices"

	lru "github.com/hashicorp/golang-lru"

	"github.com/example/go-hindi-bpe/internal/pretokenize"
)

// DefaultCacheSize bounds the per-model word segmentation cache.
const DefaultCacheSize = 8192

// ModelConfig carries the non-table parts of a model.
type ModelConfig struct {
	UnkToken     string
	PreTokenizer pretokenize.Mode
	// CacheSize is the number of memoized word segmentations; negative
	// disables the cache, zero selects DefaultCacheSize.
	CacheSize int
}

// Model is a trained vocabulary plus its ordered merge rules.
type Model struct {
	vocab    *Vocabulary
	merges   []MergeRule
	ranks    map[Pair]int
	unkID    int
	splitter pretokenize.Splitter
	cache    *lru.Cache
}

// NewModel rebuilds a model from a vocabulary listed in id order, the number
// of leading special tokens, and merges in rank order. It validates that the
// tables describe a consistent model and returns ErrInvalidModel otherwise.
func NewModel(symbols []string, numSpecials int, merges []Pair, cfg ModelConfig) (*Model, error) {
	if numSpecials < 0 || numSpecials > len(symbols) {
		return nil, fmt.Errorf("%w: %d special tokens for %d symbols", ErrInvalidModel, numSpecials, len(symbols))
	}

	v := newVocabulary(nil)
	for id, s := range symbols {
		if s == "" {
			return nil, fmt.Errorf("%w: empty symbol at id %d", ErrInvalidModel, id)
		}
		if _, dup := v.ids[s]; dup {
			return nil, fmt.Errorf("%w: duplicate symbol %q at id %d", ErrInvalidModel, s, id)
		}
		v.add(s)
	}
	v.specials = numSpecials

	rules := make([]MergeRule, len(merges))
	for rank, p := range merges {
		for _, s := range []string{p.Left, p.Right, p.Merged()} {
			if _, ok := v.ids[s]; !ok {
				return nil, fmt.Errorf("%w: merge %d (%s) references %q outside the vocabulary", ErrInvalidModel, rank, p, s)
			}
		}
		rules[rank] = MergeRule{Pair: p, Rank: rank}
	}

	return newModel(v, rules, cfg)
}

func newModel(v *Vocabulary, rules []MergeRule, cfg ModelConfig) (*Model, error) {
	unk := cfg.UnkToken
	if unk == "" {
		unk = DefaultUnkToken
	}
	unkID, ok := v.ids[unk]
	if !ok || !v.IsSpecial(unkID) {
		return nil, fmt.Errorf("%w: unknown token %q is not a special token", ErrInvalidModel, unk)
	}

	splitter, err := pretokenize.New(cfg.PreTokenizer)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidModel, err)
	}

	ranks := make(map[Pair]int, len(rules))
	for _, r := range rules {
		// A pair can be selected again if a later merge recreates it; the
		// earliest rank wins at encode time.
		if _, seen := ranks[r.Pair]; !seen {
			ranks[r.Pair] = r.Rank
		}
	}

	m := &Model{
		vocab:    v,
		merges:   rules,
		ranks:    ranks,
		unkID:    unkID,
		splitter: splitter,
	}

	size := cfg.CacheSize
	if size == 0 {
		size = DefaultCacheSize
	}
	if size > 0 {
		m.cache, err = lru.New(size)
		if err != nil {
			return nil, fmt.Errorf("create segmentation cache: %w", err)
		}
	}

	return m, nil
}

// Vocabulary returns the model's vocabulary.
func (m *Model) Vocabulary() *Vocabulary { return m.vocab }

// VocabSize returns the number of vocabulary entries.
func (m *Model) VocabSize() int { return m.vocab.Len() }

// Merges returns a copy of the merge rules in rank order.
func (m *Model) Merges() []MergeRule { return slices.Clone(m.merges) }

// PreTokenizer returns the word splitting mode used at training time.
func (m *Model) PreTokenizer() pretokenize.Mode { return m.splitter.Mode() }

// UnkID returns the id substituted for unknown symbols.
func (m *Model) UnkID() int { return m.unkID }

// UnkToken returns the text of the unknown-symbol token.
func (m *Model) UnkToken() string { return m.vocab.symbols[m.unkID] }

// SymbolToID returns the id of s.
func (m *Model) SymbolToID(s string) (int, bool) { return m.vocab.ID(s) }

// IDOrUnk returns the id of s, or the unknown-token id when s is absent.
func (m *Model) IDOrUnk(s string) int {
	if id, ok := m.vocab.ID(s); ok {
		return id
	}
	return m.unkID
}

// IDToSymbol returns the symbol for id or ErrInvalidTokenID.
func (m *Model) IDToSymbol(id int) (string, error) {
	s, ok := m.vocab.Symbol(id)
	if !ok {
		return "", fmt.Errorf("%w: %d (vocabulary has %d entries)", ErrInvalidTokenID, id, m.vocab.Len())
	}
	return s, nil
}

// Rank returns the merge rank of p.
func (m *Model) Rank(p Pair) (int, bool) {
	r, ok := m.ranks[p]
	return r, ok
}

// Replay applies the first k merge rules in rank order to word, exactly as
// training rewrote it after k iterations.
func (m *Model) Replay(word string, k int) []Symbol {
	symbols := splitRunes(word)
	k = min(max(k, 0), len(m.merges))
	for _, r := range m.merges[:k] {
		symbols, _ = mergeAll(symbols, r.Pair)
	}
	return symbols
}
