package bpe

import (
	"cmp"
	"context"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"time"

	"github.com/example/go-hindi-bpe/internal/pretokenize"
)

// Corpus is a finite, restartable sequence of normalized text lines. Every
// call to Lines starts from the beginning.
type Corpus interface {
	Lines() iter.Seq2[string, error]
}

// StopReason records why the merge loop ended.
type StopReason string

const (
	StopTargetReached StopReason = "target_reached"
	StopMinFrequency  StopReason = "min_frequency"
	StopNoPairs       StopReason = "no_pairs"
	StopAborted       StopReason = "aborted"
)

// TrainStats summarizes a training run.
type TrainStats struct {
	Lines         int           `json:"lines" yaml:"lines"`
	Words         int           `json:"words" yaml:"words"`
	DistinctWords int           `json:"distinct_words" yaml:"distinct_words"`
	Alphabet      int           `json:"alphabet" yaml:"alphabet"`
	DroppedRunes  int           `json:"dropped_runes" yaml:"dropped_runes"`
	Merges        int           `json:"merges" yaml:"merges"`
	VocabSize     int           `json:"vocab_size" yaml:"vocab_size"`
	StopReason    StopReason    `json:"stop_reason" yaml:"stop_reason"`
	Duration      time.Duration `json:"duration" yaml:"duration"`
}

// Train learns merge rules from corpus until the vocabulary reaches
// opts.VocabSize, the best pair falls below opts.MinFrequency, or no pairs
// remain. Equal frequencies are broken by the lexicographically smaller
// concatenation, then the smaller left symbol.
//
// If ctx is cancelled between merges, Train returns the model built so far
// together with an error wrapping ErrTrainingAborted.
func Train(ctx context.Context, corpus Corpus, opts TrainOptions) (*Model, TrainStats, error) {
	start := time.Now()
	var stats TrainStats

	if err := opts.Validate(); err != nil {
		return nil, stats, err
	}
	log := opts.logger()

	splitter, err := pretokenize.New(opts.PreTokenizer)
	if err != nil {
		return nil, stats, fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}

	counts, err := countWords(corpus, splitter, &stats)
	if err != nil {
		return nil, stats, err
	}
	if len(counts) == 0 {
		return nil, stats, ErrEmptyCorpus
	}
	stats.DistinctWords = len(counts)

	vocab := newVocabulary(opts.SpecialTokens)
	alphabet, dropped := selectAlphabet(counts, vocab, opts)
	for _, r := range alphabet {
		vocab.add(string(r))
	}
	stats.Alphabet = len(alphabet)
	stats.DroppedRunes = len(dropped)

	words := make([]word, 0, len(counts))
	for text, n := range counts {
		words = append(words, word{text: text, symbols: splitRunes(text), count: n})
	}
	slices.SortFunc(words, func(a, b word) int { return cmp.Compare(a.text, b.text) })

	log.Info("bpe training started",
		slog.Int("lines", stats.Lines),
		slog.Int("words", stats.Words),
		slog.Int("distinct_words", stats.DistinctWords),
		slog.Int("alphabet", stats.Alphabet),
		slog.Int("dropped_runes", stats.DroppedRunes),
		slog.Int("target_vocab", opts.VocabSize),
	)

	pc := newPairCounter(words, dropped, opts.Workers)
	sel := newSelector(pc)

	var (
		merges  []MergeRule
		stopErr error
	)
	stats.StopReason = StopTargetReached

	for vocab.Len() < opts.VocabSize {
		if ctxErr := ctx.Err(); ctxErr != nil {
			stats.StopReason = StopAborted
			stopErr = fmt.Errorf("%w after %d merges: %w", ErrTrainingAborted, len(merges), ctxErr)
			break
		}

		best, freq, ok := sel.next()
		if !ok {
			stats.StopReason = StopNoPairs
			break
		}
		if freq < opts.MinFrequency {
			stats.StopReason = StopMinFrequency
			break
		}

		rule := MergeRule{Pair: best, Rank: len(merges)}
		merges = append(merges, rule)
		vocab.add(best.Merged())
		sel.push(pc.apply(best))

		if opts.OnMerge != nil {
			opts.OnMerge(MergeEvent{
				Rule:      rule,
				Frequency: freq,
				VocabSize: vocab.Len(),
				Words:     pc.eachWord,
			})
		}
		if opts.ProgressEvery > 0 && len(merges)%opts.ProgressEvery == 0 {
			log.Info("bpe training progress",
				slog.Int("merges", len(merges)),
				slog.Int("vocab_size", vocab.Len()),
				slog.String("last_merge", rule.Merged()),
				slog.Int("frequency", freq),
			)
		}
	}

	stats.Merges = len(merges)
	stats.VocabSize = vocab.Len()
	stats.Duration = time.Since(start)

	model, err := newModel(vocab, merges, ModelConfig{
		UnkToken:     opts.unkToken(),
		PreTokenizer: splitter.Mode(),
	})
	if err != nil {
		return nil, stats, err
	}

	log.Info("bpe training finished",
		slog.Int("merges", stats.Merges),
		slog.Int("vocab_size", stats.VocabSize),
		slog.String("stop_reason", string(stats.StopReason)),
		slog.Duration("duration", stats.Duration),
	)

	return model, stats, stopErr
}

func (pc *pairCounter) eachWord(yield func(string, []Symbol) bool) {
	for _, w := range pc.words {
		if !yield(w.text, w.symbols) {
			return
		}
	}
}

func countWords(corpus Corpus, splitter pretokenize.Splitter, stats *TrainStats) (map[string]int, error) {
	counts := make(map[string]int)
	for line, err := range corpus.Lines() {
		if err != nil {
			return nil, fmt.Errorf("read corpus: %w", err)
		}
		stats.Lines++
		for _, w := range splitter.Split(line) {
			counts[w]++
			stats.Words++
		}
	}
	return counts, nil
}

// selectAlphabet returns the base runes in code-point order and the runes
// dropped to keep the vocabulary within its target. When a cap applies the
// most frequent runes are kept, ties going to the lower code point.
func selectAlphabet(counts map[string]int, vocab *Vocabulary, opts TrainOptions) ([]rune, map[Symbol]struct{}) {
	freq := make(map[rune]int)
	for w, n := range counts {
		for _, r := range w {
			freq[r] += n
		}
	}

	runes := make([]rune, 0, len(freq))
	for r := range freq {
		if _, special := vocab.ID(string(r)); special {
			continue
		}
		runes = append(runes, r)
	}

	limit := opts.VocabSize - vocab.Len()
	if opts.LimitAlphabet > 0 {
		limit = min(limit, opts.LimitAlphabet)
	}

	var dropped map[Symbol]struct{}
	if len(runes) > limit {
		slices.SortFunc(runes, func(a, b rune) int {
			if c := cmp.Compare(freq[b], freq[a]); c != 0 {
				return c
			}
			return cmp.Compare(a, b)
		})
		dropped = make(map[Symbol]struct{}, len(runes)-limit)
		for _, r := range runes[limit:] {
			dropped[string(r)] = struct{}{}
		}
		runes = runes[:limit]
	}

	slices.Sort(runes)
	return runes, dropped
}
