package bpe

import (
	"github.com/emirpasic/gods/v2/trees/binaryheap"
	"github.com/sourcegraph/conc/pool"
)

// word is the training-time representation of one distinct corpus word.
type word struct {
	text    string
	symbols []Symbol
	count   int
}

// pairCounter tracks adjacent-pair frequencies over all words and the set of
// words each pair occurs in, so a merge only revisits affected words.
type pairCounter struct {
	words   []word
	blocked map[Symbol]struct{}
	counts  map[Pair]int
	where   map[Pair]map[int]struct{}
}

type shardCount struct {
	counts map[Pair]int
	where  map[Pair][]int
}

// minShard keeps tiny corpora on a single goroutine.
const minShard = 512

func newPairCounter(words []word, blocked map[Symbol]struct{}, workers int) *pairCounter {
	pc := &pairCounter{
		words:   words,
		blocked: blocked,
		counts:  make(map[Pair]int),
		where:   make(map[Pair]map[int]struct{}),
	}

	if workers < 1 {
		workers = 1
	}
	size := (len(words) + workers - 1) / workers
	if size < minShard {
		size = minShard
	}

	p := pool.NewWithResults[shardCount]().WithMaxGoroutines(workers)
	for start := 0; start < len(words); start += size {
		end := min(start+size, len(words))
		p.Go(func() shardCount { return pc.countShard(start, end) })
	}

	for _, sc := range p.Wait() {
		for pair, n := range sc.counts {
			pc.counts[pair] += n
		}
		for pair, idxs := range sc.where {
			set := pc.where[pair]
			if set == nil {
				set = make(map[int]struct{}, len(idxs))
				pc.where[pair] = set
			}
			for _, i := range idxs {
				set[i] = struct{}{}
			}
		}
	}

	return pc
}

func (pc *pairCounter) countShard(start, end int) shardCount {
	sc := shardCount{
		counts: make(map[Pair]int),
		where:  make(map[Pair][]int),
	}
	for i := start; i < end; i++ {
		w := pc.words[i]
		seen := make(map[Pair]struct{})
		pc.eachPair(w.symbols, func(p Pair) {
			sc.counts[p] += w.count
			if _, ok := seen[p]; !ok {
				seen[p] = struct{}{}
				sc.where[p] = append(sc.where[p], i)
			}
		})
	}
	return sc
}

// eachPair visits every adjacent pair; pairs touching a blocked symbol are
// never counted, so they can never be merged.
func (pc *pairCounter) eachPair(symbols []Symbol, fn func(Pair)) {
	for i := 0; i+1 < len(symbols); i++ {
		if pc.isBlocked(symbols[i]) || pc.isBlocked(symbols[i+1]) {
			continue
		}
		fn(Pair{Left: symbols[i], Right: symbols[i+1]})
	}
}

func (pc *pairCounter) isBlocked(s Symbol) bool {
	if len(pc.blocked) == 0 {
		return false
	}
	_, ok := pc.blocked[s]
	return ok
}

// apply rewrites every word containing p and updates counts for the pairs
// around each rewritten position. It returns the pairs whose count grew.
func (pc *pairCounter) apply(p Pair) []Pair {
	delta := make(map[Pair]int)

	for i := range pc.where[p] {
		w := &pc.words[i]
		merged, ok := mergeAll(w.symbols, p)
		if !ok {
			continue
		}

		pc.eachPair(w.symbols, func(q Pair) { delta[q] -= w.count })
		oldPairs := pc.pairSet(w.symbols)
		w.symbols = merged
		newPairs := pc.pairSet(w.symbols)
		pc.eachPair(w.symbols, func(q Pair) { delta[q] += w.count })

		for q := range oldPairs {
			if _, still := newPairs[q]; still {
				continue
			}
			if set := pc.where[q]; set != nil {
				delete(set, i)
				if len(set) == 0 && q != p {
					delete(pc.where, q)
				}
			}
		}
		for q := range newPairs {
			set := pc.where[q]
			if set == nil {
				set = make(map[int]struct{})
				pc.where[q] = set
			}
			set[i] = struct{}{}
		}
	}
	delete(pc.where, p)

	var grown []Pair
	for q, d := range delta {
		if d == 0 {
			continue
		}
		n := pc.counts[q] + d
		if n <= 0 {
			delete(pc.counts, q)
			continue
		}
		pc.counts[q] = n
		if d > 0 {
			grown = append(grown, q)
		}
	}
	return grown
}

func (pc *pairCounter) pairSet(symbols []Symbol) map[Pair]struct{} {
	set := make(map[Pair]struct{}, len(symbols))
	pc.eachPair(symbols, func(q Pair) { set[q] = struct{}{} })
	return set
}

// candidate is a heap entry; count may be stale relative to pairCounter.
type candidate struct {
	pair  Pair
	count int
}

// compareCandidates orders the heap: higher count first, ties broken by
// pairLess.
func compareCandidates(a, b candidate) int {
	switch {
	case a.count > b.count:
		return -1
	case a.count < b.count:
		return 1
	case pairLess(a.pair, b.pair):
		return -1
	case pairLess(b.pair, a.pair):
		return 1
	default:
		return 0
	}
}

// selector pops the most frequent live pair, repairing stale entries lazily.
type selector struct {
	pc   *pairCounter
	heap *binaryheap.Heap[candidate]
}

func newSelector(pc *pairCounter) *selector {
	s := &selector{
		pc:   pc,
		heap: binaryheap.NewWith(compareCandidates),
	}
	for p, n := range pc.counts {
		s.heap.Push(candidate{pair: p, count: n})
	}
	return s
}

func (s *selector) push(pairs []Pair) {
	for _, p := range pairs {
		s.heap.Push(candidate{pair: p, count: s.pc.counts[p]})
	}
}

// next returns the best pair and its live frequency; ok is false when no
// pairs remain.
func (s *selector) next() (Pair, int, bool) {
	for {
		c, ok := s.heap.Pop()
		if !ok {
			return Pair{}, 0, false
		}
		live := s.pc.counts[c.pair]
		if live == 0 {
			continue
		}
		if live != c.count {
			s.heap.Push(candidate{pair: c.pair, count: live})
			continue
		}
		return c.pair, live, true
	}
}
