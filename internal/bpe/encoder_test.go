package bpe

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/go-hindi-bpe/internal/text"
)

func greetingModel(t *testing.T) *Model {
	t.Helper()
	m, _ := mustTrain(t, greetingCorpus, trainOpts(40))
	return m
}

// reload rebuilds m from its exported tables, as persistence does.
func reload(t *testing.T, m *Model) *Model {
	t.Helper()

	pairs := make([]Pair, 0, len(m.Merges()))
	for _, r := range m.Merges() {
		pairs = append(pairs, r.Pair)
	}
	out, err := NewModel(m.Vocabulary().Symbols(), len(m.Vocabulary().Specials()), pairs, ModelConfig{
		UnkToken:     m.UnkToken(),
		PreTokenizer: m.PreTokenizer(),
	})
	require.NoError(t, err)
	return out
}

func TestEncode_GreetingFixedModel(t *testing.T) {
	m := greetingModel(t)

	enc := m.Encode("नमस्ते भारत!")
	assert.Equal(t, []string{"नमस्ते", "भारत", "!"}, enc.Symbols)
	assert.Equal(t, []int{23, 26, 1}, enc.IDs)
	assert.Equal(t, []int{0, 1}, enc.WordStarts)
	assert.Equal(t, 1, enc.Unknown)

	decoded, err := m.Decode(enc.IDs)
	require.NoError(t, err)
	assert.Equal(t, "नमस्ते भारत <unk>", decoded)
}

func TestEncode_DeterministicAcrossRunsAndReload(t *testing.T) {
	m := greetingModel(t)
	reloaded := reload(t, m)
	retrained := greetingModel(t)

	inputs := []string{"नमस्ते भारत!", "भारत में सब दोस्त हैं", "महान दोस्ती", ""}
	for _, in := range inputs {
		first := m.Encode(in)
		assert.Equal(t, first, m.Encode(in), "second encode of %q", in)
		assert.Equal(t, first, reloaded.Encode(in), "reloaded encode of %q", in)
		assert.Equal(t, first, retrained.Encode(in), "retrained encode of %q", in)
	}
}

func TestEncode_MatchesTrainingSegmentation(t *testing.T) {
	opts := trainOpts(250)
	var final map[string][]Symbol
	opts.OnMerge = func(ev MergeEvent) {
		final = map[string][]Symbol{}
		for w, symbols := range ev.Words {
			final[w] = append([]Symbol(nil), symbols...)
		}
	}
	m, _ := mustTrain(t, syntheticCorpus(250), opts)
	require.NotEmpty(t, final)

	for w, want := range final {
		assert.Equal(t, want, m.EncodeWord(w), "segmentation of %q", w)
	}
}

func TestEncode_UnknownCharactersBecomeUnk(t *testing.T) {
	m := greetingModel(t)

	enc := m.Encode("abc नमस्ते")
	require.Len(t, enc.IDs, 4)
	for _, id := range enc.IDs[:3] {
		assert.Equal(t, m.UnkID(), id)
	}
	assert.Equal(t, []string{"a", "b", "c", "नमस्ते"}, enc.Symbols)
	assert.Equal(t, 3, enc.Unknown)
}

func TestEncode_EmptyAndWhitespace(t *testing.T) {
	m := greetingModel(t)

	for _, in := range []string{"", "   ", "\t\n"} {
		enc := m.Encode(in)
		assert.Empty(t, enc.IDs)
		assert.Zero(t, enc.Len())
	}
}

func TestEncode_CacheDisabledGivesSameResult(t *testing.T) {
	m := greetingModel(t)

	pairs := make([]Pair, 0)
	for _, r := range m.Merges() {
		pairs = append(pairs, r.Pair)
	}
	uncached, err := NewModel(m.Vocabulary().Symbols(), 4, pairs, ModelConfig{CacheSize: -1})
	require.NoError(t, err)

	for _, line := range greetingCorpus {
		assert.Equal(t, m.Encode(line), uncached.Encode(line))
	}
}

func TestEncode_ConcurrentUse(t *testing.T) {
	m := greetingModel(t)
	want := m.Encode("भारत में सब दोस्त हैं")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if got := m.Encode("भारत में सब दोस्त हैं"); !assert.Equal(t, want, got) {
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestDecode_SpaceJoinsSubwordsOfOneWord(t *testing.T) {
	m := greetingModel(t)

	enc := m.Encode("नमस्तेभारत")
	require.Equal(t, []string{"नमस्ते", "भारत"}, enc.Symbols)
	require.Equal(t, []int{0}, enc.WordStarts)

	got, err := m.Decode(enc.IDs)
	require.NoError(t, err)
	assert.Equal(t, "नमस्ते भारत", got)
	assert.Equal(t, "नमस्तेभारत", m.DecodeWords(enc))
}

func TestDecode_LossyFormEqualsSpaceJoinedSymbols(t *testing.T) {
	m := greetingModel(t)

	for _, line := range greetingCorpus {
		enc := m.Encode(line)
		got, err := m.Decode(enc.IDs)
		require.NoError(t, err)
		assert.Equal(t, strings.Join(enc.Symbols, " "), got)
		assert.Equal(t, strings.Join(strings.Fields(line), " "), m.DecodeWords(enc))
	}
}

func TestDecode_InvalidIDRejectsWholeCall(t *testing.T) {
	m := greetingModel(t)

	for _, ids := range [][]int{{23, -1}, {m.VocabSize()}, {0, 1, 1 << 20}} {
		got, err := m.Decode(ids)
		require.ErrorIs(t, err, ErrInvalidTokenID)
		assert.Empty(t, got)
	}
}

func TestDecode_SpecialTokens(t *testing.T) {
	m := greetingModel(t)

	ids := []int{2, 23, 26, 3}
	got, err := m.Decode(ids)
	require.NoError(t, err)
	assert.Equal(t, "<s> नमस्ते भारत </s>", got)

	got, err = m.DecodeWithOptions(ids, DecodeOptions{SkipSpecial: true})
	require.NoError(t, err)
	assert.Equal(t, "नमस्ते भारत", got)
}

func TestModel_Lookups(t *testing.T) {
	m := greetingModel(t)

	id, ok := m.SymbolToID("भारत")
	require.True(t, ok)
	assert.Equal(t, 26, id)
	assert.Equal(t, m.UnkID(), m.IDOrUnk("xyz"))
	assert.Equal(t, 1, m.UnkID())
	assert.Equal(t, "<unk>", m.UnkToken())

	s, err := m.IDToSymbol(23)
	require.NoError(t, err)
	assert.Equal(t, "नमस्ते", s)

	_, err = m.IDToSymbol(-3)
	assert.ErrorIs(t, err, ErrInvalidTokenID)

	rank, ok := m.Rank(Pair{"न", "म"})
	require.True(t, ok)
	assert.Equal(t, 2, rank)

	// Merges returns a copy.
	merges := m.Merges()
	merges[0].Left = "x"
	assert.Equal(t, "स", m.Merges()[0].Left)
}

func TestNewModel_Validation(t *testing.T) {
	specials := []string{"<pad>", "<unk>", "<s>", "</s>"}
	base := append(append([]string(nil), specials...), "अ", "ब", "अब")

	tests := []struct {
		name        string
		symbols     []string
		numSpecials int
		merges      []Pair
		cfg         ModelConfig
	}{
		{"duplicate symbol", append(append([]string(nil), base...), "अ"), 4, nil, ModelConfig{}},
		{"empty symbol", append(append([]string(nil), base...), ""), 4, nil, ModelConfig{}},
		{"merge result missing", base[:6], 4, []Pair{{"अ", "ब"}}, ModelConfig{}},
		{"merge operand missing", base, 4, []Pair{{"क", "ब"}}, ModelConfig{}},
		{"unk not special", base, 0, nil, ModelConfig{}},
		{"too many specials", base, 10, nil, ModelConfig{}},
		{"bad pre-tokenizer", base, 4, nil, ModelConfig{PreTokenizer: "bytes"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewModel(tt.symbols, tt.numSpecials, tt.merges, tt.cfg)
			assert.ErrorIs(t, err, ErrInvalidModel)
		})
	}

	m, err := NewModel(base, 4, []Pair{{"अ", "ब"}}, ModelConfig{})
	require.NoError(t, err)
	assert.Equal(t, []string{"अब", "अब"}, m.Encode("अब अब").Symbols)
}

func TestCompressionRatio(t *testing.T) {
	m := greetingModel(t)

	c, err := CompressionRatio(m, greetingCorpus, 0)
	require.NoError(t, err)
	// 69 code points plus the four line breaks joining five lines.
	assert.Equal(t, 73, c.Chars)
	assert.Equal(t, 21, c.Tokens)
	assert.InDelta(t, 73.0/21.0, c.Ratio, 1e-9)
	assert.Equal(t, DefaultCompressionThreshold, c.Threshold)
	assert.True(t, c.Passed)
	assert.NoError(t, c.Err())
}

func TestLineChars(t *testing.T) {
	assert.Equal(t, 6, LineChars(0, "नमस्ते"))
	assert.Equal(t, 7, LineChars(1, "नमस्ते"))
	assert.Equal(t, 0, LineChars(0, ""))
	assert.Equal(t, 1, LineChars(3, ""))
}

func TestCompressionRatio_CountsBlankLineBreaks(t *testing.T) {
	m := greetingModel(t)

	c, err := CompressionRatio(m, text.SliceCorpus{"भारत", "", "भारत"}, 0)
	require.NoError(t, err)
	assert.Equal(t, 4+1+1+4, c.Chars)
	assert.Equal(t, 2, c.Tokens)
}

func TestCompressionRatio_BelowThresholdIsAdvisory(t *testing.T) {
	m := greetingModel(t)

	c, err := CompressionRatio(m, greetingCorpus, 10)
	require.NoError(t, err)
	assert.False(t, c.Passed)
	assert.ErrorIs(t, c.Err(), ErrCompressionBelowThreshold)
	assert.Greater(t, c.Ratio, 1.0)
}

func TestCompressionRatio_PositiveForAnyNonEmptyCorpus(t *testing.T) {
	m := greetingModel(t)

	for _, corpus := range []text.SliceCorpus{{"क"}, {"xyz"}, {"नमस्ते", "", "भारत"}, syntheticCorpus(20)} {
		c, err := CompressionRatio(m, corpus, 0)
		require.NoError(t, err)
		assert.Greater(t, c.Ratio, 0.0)
		assert.GreaterOrEqual(t, c.Ratio, 1.0)
	}
}

func TestCompressionRatio_EmptyCorpus(t *testing.T) {
	m := greetingModel(t)

	_, err := CompressionRatio(m, text.SliceCorpus{"", "  "}, 0)
	assert.ErrorIs(t, err, ErrEmptyCorpus)
}
