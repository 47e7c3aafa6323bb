package bpe

import "slices"

// Vocabulary maps symbols to dense ids starting at 0. Special tokens occupy
// the lowest ids in the order they were configured.
type Vocabulary struct {
	symbols  []string
	ids      map[string]int
	specials int
}

func newVocabulary(specials []string) *Vocabulary {
	v := &Vocabulary{ids: make(map[string]int)}
	for _, s := range specials {
		v.add(s)
	}
	v.specials = len(v.symbols)
	return v
}

// add inserts s if absent and returns its id.
func (v *Vocabulary) add(s string) int {
	if id, ok := v.ids[s]; ok {
		return id
	}
	id := len(v.symbols)
	v.symbols = append(v.symbols, s)
	v.ids[s] = id
	return id
}

// Len returns the number of entries, special tokens included.
func (v *Vocabulary) Len() int { return len(v.symbols) }

// ID returns the id of s.
func (v *Vocabulary) ID(s string) (int, bool) {
	id, ok := v.ids[s]
	return id, ok
}

// Symbol returns the symbol with the given id.
func (v *Vocabulary) Symbol(id int) (string, bool) {
	if id < 0 || id >= len(v.symbols) {
		return "", false
	}
	return v.symbols[id], true
}

// Specials returns the special tokens in id order.
func (v *Vocabulary) Specials() []string {
	return slices.Clone(v.symbols[:v.specials])
}

// IsSpecial reports whether id belongs to a special token.
func (v *Vocabulary) IsSpecial(id int) bool { return id >= 0 && id < v.specials }

// Symbols returns every symbol in id order.
func (v *Vocabulary) Symbols() []string { return slices.Clone(v.symbols) }
