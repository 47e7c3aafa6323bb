package bpe

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testWords(counts map[string]int) []word {
	words := make([]word, 0, len(counts))
	for text, n := range counts {
		words = append(words, word{text: text, symbols: splitRunes(text), count: n})
	}
	return words
}

func TestMergeAll(t *testing.T) {
	tests := []struct {
		name    string
		symbols []Symbol
		pair    Pair
		want    []Symbol
		changed bool
	}{
		{"single occurrence", []Symbol{"क", "ा", "म"}, Pair{"क", "ा"}, []Symbol{"का", "म"}, true},
		{"overlapping run merges left to right", []Symbol{"a", "a", "a"}, Pair{"a", "a"}, []Symbol{"aa", "a"}, true},
		{"even run", []Symbol{"a", "a", "a", "a"}, Pair{"a", "a"}, []Symbol{"aa", "aa"}, true},
		{"separated occurrences", []Symbol{"a", "b", "c", "a", "b"}, Pair{"a", "b"}, []Symbol{"ab", "c", "ab"}, true},
		{"absent", []Symbol{"a", "b"}, Pair{"b", "a"}, []Symbol{"a", "b"}, false},
		{"single symbol", []Symbol{"a"}, Pair{"a", "a"}, []Symbol{"a"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, changed := mergeAll(tt.symbols, tt.pair)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("mergeAll mismatch (-want +got):\n%s", diff)
			}
			if changed != tt.changed {
				t.Errorf("changed = %v, want %v", changed, tt.changed)
			}
		})
	}
}

func TestPairCounter_WeightsByWordCount(t *testing.T) {
	pc := newPairCounter(testWords(map[string]int{"aaba": 3, "aaaa": 1}), nil, 2)

	assert.Equal(t, 3+3, pc.counts[Pair{"a", "a"}])
	assert.Equal(t, 3, pc.counts[Pair{"a", "b"}])
	assert.Equal(t, 3, pc.counts[Pair{"b", "a"}])
	assert.Len(t, pc.where[Pair{"a", "a"}], 2)
	assert.Len(t, pc.where[Pair{"a", "b"}], 1)
}

func TestPairCounter_BlockedSymbolsAreNeverCounted(t *testing.T) {
	blocked := map[Symbol]struct{}{"x": {}}
	pc := newPairCounter(testWords(map[string]int{"axb": 2, "ab": 1}), blocked, 1)

	assert.Equal(t, map[Pair]int{{"a", "b"}: 1}, pc.counts)
}

func TestPairCounter_ApplyMatchesRecount(t *testing.T) {
	words := map[string]int{"abab": 2, "bab": 3, "aab": 1, "ba": 4}
	pc := newPairCounter(testWords(words), nil, 1)

	grown := pc.apply(Pair{"a", "b"})
	assert.ElementsMatch(t, []Pair{{"ab", "ab"}, {"b", "ab"}, {"a", "ab"}}, grown)

	fresh := &pairCounter{words: pc.words, counts: map[Pair]int{}}
	for _, w := range pc.words {
		fresh.eachPair(w.symbols, func(p Pair) { fresh.counts[p] += w.count })
	}
	assert.Equal(t, fresh.counts, pc.counts)
	assert.NotContains(t, pc.counts, Pair{"a", "b"})
	assert.NotContains(t, pc.where, Pair{"a", "b"})

	for p, set := range pc.where {
		for i := range set {
			_, ok := fresh.pairSet(pc.words[i].symbols)[p]
			assert.True(t, ok, "word %q indexed under %v", pc.words[i].text, p)
		}
	}
}

func TestSelector_OrdersByCountThenConcatenation(t *testing.T) {
	pc := &pairCounter{counts: map[Pair]int{
		{"c", "d"}: 5,
		{"a", "b"}: 5,
		{"x", "y"}: 7,
		{"a", "c"}: 1,
	}}
	s := newSelector(pc)

	var order []Pair
	for {
		p, _, ok := s.next()
		if !ok {
			break
		}
		order = append(order, p)
		delete(pc.counts, p)
	}
	require.Equal(t, []Pair{{"x", "y"}, {"a", "b"}, {"c", "d"}, {"a", "c"}}, order)
}

func TestSelector_RepairsStaleEntries(t *testing.T) {
	pc := &pairCounter{counts: map[Pair]int{{"a", "b"}: 9, {"c", "d"}: 4}}
	s := newSelector(pc)

	// The heap still holds 9 for (a, b) after its live count drops.
	pc.counts[Pair{"a", "b"}] = 2
	p, n, ok := s.next()
	require.True(t, ok)
	assert.Equal(t, Pair{"c", "d"}, p)
	assert.Equal(t, 4, n)

	delete(pc.counts, Pair{"c", "d"})
	p, n, ok = s.next()
	require.True(t, ok)
	assert.Equal(t, Pair{"a", "b"}, p)
	assert.Equal(t, 2, n)

	delete(pc.counts, Pair{"a", "b"})
	_, _, ok = s.next()
	assert.False(t, ok)
}

func TestPairLess(t *testing.T) {
	assert.True(t, pairLess(Pair{"a", "b"}, Pair{"c", "d"}))
	// Same concatenation: the smaller left symbol wins.
	assert.True(t, pairLess(Pair{"a", "bc"}, Pair{"ab", "c"}))
	assert.False(t, pairLess(Pair{"ab", "c"}, Pair{"a", "bc"}))
}
