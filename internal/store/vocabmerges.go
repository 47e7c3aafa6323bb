package store

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/afero"

	"github.com/example/go-hindi-bpe/internal/bpe"
)

const mergesHeader = "#version: 0.2"

// ExportVocabMerges writes <prefix>-vocab.json and <prefix>-merges.txt into
// dir and returns their paths. merges.txt holds one "left right" pair per
// line in rank order, so symbols containing whitespace cannot be exported.
func ExportVocabMerges(fs afero.Fs, dir, prefix string, m *bpe.Model) (vocabPath, mergesPath string, err error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("create export dir: %w", err)
	}

	vocab := make(map[string]int, m.VocabSize())
	for id, s := range m.Vocabulary().Symbols() {
		vocab[s] = id
	}
	var vb bytes.Buffer
	enc := json.NewEncoder(&vb)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(vocab); err != nil {
		return "", "", fmt.Errorf("encode vocab: %w", err)
	}

	var mb bytes.Buffer
	mb.WriteString(mergesHeader + "\n")
	for rank, p := range pairsOf(m) {
		if strings.ContainsAny(p.Left, " \t\n") || strings.ContainsAny(p.Right, " \t\n") {
			return "", "", fmt.Errorf("merge %d (%q, %q) contains whitespace and cannot be written to merges.txt", rank, p.Left, p.Right)
		}
		mb.WriteString(p.Left + " " + p.Right + "\n")
	}

	vocabPath = filepath.Join(dir, prefix+"-vocab.json")
	mergesPath = filepath.Join(dir, prefix+"-merges.txt")
	if err := afero.WriteFile(fs, vocabPath, vb.Bytes(), 0o644); err != nil {
		return "", "", fmt.Errorf("write %s: %w", vocabPath, err)
	}
	if err := afero.WriteFile(fs, mergesPath, mb.Bytes(), 0o644); err != nil {
		return "", "", fmt.Errorf("write %s: %w", mergesPath, err)
	}
	return vocabPath, mergesPath, nil
}

// LoadVocabMerges rebuilds a model from a vocab.json/merges.txt pair. The
// pair carries no metadata, so the special tokens (which must hold the
// lowest ids in order) and the model config come from the caller.
func LoadVocabMerges(fs afero.Fs, vocabPath, mergesPath string, specials []string, cfg bpe.ModelConfig) (*bpe.Model, error) {
	raw, err := afero.ReadFile(fs, vocabPath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", vocabPath, err)
	}
	var vocab map[string]int
	if err := json.Unmarshal(raw, &vocab); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", bpe.ErrInvalidModel, vocabPath, err)
	}
	symbols, err := denseSymbols(vocab)
	if err != nil {
		return nil, err
	}
	if len(specials) > len(symbols) || !slices.Equal(symbols[:len(specials)], specials) {
		return nil, fmt.Errorf("%w: %s does not start with special tokens %q", bpe.ErrInvalidModel, vocabPath, specials)
	}

	pairs, err := readMerges(fs, mergesPath)
	if err != nil {
		return nil, err
	}

	return bpe.NewModel(symbols, len(specials), pairs, cfg)
}

func readMerges(fs afero.Fs, path string) ([]bpe.Pair, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var pairs []bpe.Pair
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" || (n == 1 && strings.HasPrefix(line, "#version")) {
			continue
		}
		parts := strings.Split(line, " ")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("%w: %s:%d: want \"left right\", got %q", bpe.ErrInvalidModel, path, n, line)
		}
		pairs = append(pairs, bpe.Pair{Left: parts[0], Right: parts[1]})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return pairs, nil
}
