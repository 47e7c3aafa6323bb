package bpe

import (
	"fmt"
	"strings"
)

// DecodeOptions adjusts Decode output.
type DecodeOptions struct {
	// SkipSpecial drops special-token ids instead of emitting their text.
	SkipSpecial bool
}

// Decode maps ids back to symbols and joins every token with a single space,
// including subword pieces of the same original word. The result is lossy:
// word-internal boundaries cannot be told apart from word boundaries.
//
// Any id outside the vocabulary rejects the whole call with
// ErrInvalidTokenID; no partial text is returned.
func (m *Model) Decode(ids []int) (string, error) {
	return m.DecodeWithOptions(ids, DecodeOptions{})
}

// DecodeWithOptions is Decode with explicit options.
func (m *Model) DecodeWithOptions(ids []int, opts DecodeOptions) (string, error) {
	parts := make([]string, 0, len(ids))
	for pos, id := range ids {
		s, ok := m.vocab.Symbol(id)
		if !ok {
			return "", fmt.Errorf("%w: %d at position %d", ErrInvalidTokenID, id, pos)
		}
		if opts.SkipSpecial && m.vocab.IsSpecial(id) {
			continue
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, " "), nil
}

// DecodeWords rebuilds text from an Encoding using its word boundaries:
// tokens of one word are concatenated, words are separated by one space.
// Unknown symbols are emitted as they were seen at encode time.
func (m *Model) DecodeWords(enc Encoding) string {
	var b strings.Builder
	next := 0
	for i, s := range enc.Symbols {
		if next < len(enc.WordStarts) && enc.WordStarts[next] == i {
			if i > 0 {
				b.WriteByte(' ')
			}
			next++
		}
		b.WriteString(s)
	}
	return b.String()
}
