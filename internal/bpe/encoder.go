package bpe

import "slices"

// Encoding is the result of encoding one text.
type Encoding struct {
	IDs     []int    `json:"ids"`
	Symbols []string `json:"tokens"`
	// WordStarts[i] is the index in IDs of the first token of word i.
	WordStarts []int `json:"word_starts"`
	// Unknown counts symbols replaced by the unknown-token id.
	Unknown int `json:"unknown"`
}

// Len returns the number of tokens.
func (e Encoding) Len() int { return len(e.IDs) }

// Encode splits text into words with the model's pre-tokenizer and segments
// each word by repeatedly merging the adjacent pair with the lowest merge
// rank. Symbols outside the vocabulary map to the unknown-token id.
func (m *Model) Encode(text string) Encoding {
	var enc Encoding
	for _, w := range m.splitter.Split(text) {
		enc.WordStarts = append(enc.WordStarts, len(enc.IDs))
		for _, s := range m.segment(w) {
			id, ok := m.vocab.ID(s)
			if !ok {
				id = m.unkID
				enc.Unknown++
			}
			enc.IDs = append(enc.IDs, id)
			enc.Symbols = append(enc.Symbols, s)
		}
	}
	return enc
}

// EncodeWord returns the segmentation of a single pre-tokenized word.
func (m *Model) EncodeWord(w string) []Symbol {
	return slices.Clone(m.segment(w))
}

// segment returns the cached segmentation of w; callers must not modify it.
func (m *Model) segment(w string) []Symbol {
	if m.cache != nil {
		if v, ok := m.cache.Get(w); ok {
			return v.([]Symbol)
		}
	}

	symbols := splitRunes(w)
	for len(symbols) > 1 {
		best, bestRank := Pair{}, -1
		for i := 0; i+1 < len(symbols); i++ {
			p := Pair{Left: symbols[i], Right: symbols[i+1]}
			if r, ok := m.ranks[p]; ok && (bestRank < 0 || r < bestRank) {
				best, bestRank = p, r
			}
		}
		if bestRank < 0 {
			break
		}
		symbols, _ = mergeAll(symbols, best)
	}

	if m.cache != nil {
		m.cache.Add(w, symbols)
	}
	return symbols
}
