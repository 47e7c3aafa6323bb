package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/afero"

	"github.com/example/go-hindi-bpe/internal/bpe"
	"github.com/example/go-hindi-bpe/internal/pretokenize"
)

// tokenizerFile mirrors the subset of the HuggingFace tokenizers JSON layout
// that a word-level BPE model needs.
type tokenizerFile struct {
	Version       string        `json:"version"`
	Truncation    any           `json:"truncation"`
	Padding       any           `json:"padding"`
	AddedTokens   []addedToken  `json:"added_tokens"`
	Normalizer    any           `json:"normalizer"`
	PreTokenizer  *preTokenizer `json:"pre_tokenizer"`
	PostProcessor any           `json:"post_processor"`
	Decoder       any           `json:"decoder"`
	Model         bpeSection    `json:"model"`
}

type addedToken struct {
	ID         int    `json:"id"`
	Content    string `json:"content"`
	SingleWord bool   `json:"single_word"`
	LStrip     bool   `json:"lstrip"`
	RStrip     bool   `json:"rstrip"`
	Normalized bool   `json:"normalized"`
	Special    bool   `json:"special"`
}

type preTokenizer struct {
	Type string `json:"type"`
}

type bpeSection struct {
	Type                    string         `json:"type"`
	Dropout                 *float64       `json:"dropout"`
	UnkToken                string         `json:"unk_token"`
	ContinuingSubwordPrefix *string        `json:"continuing_subword_prefix"`
	EndOfWordSuffix         *string        `json:"end_of_word_suffix"`
	FuseUnk                 bool           `json:"fuse_unk"`
	ByteFallback            bool           `json:"byte_fallback"`
	Vocab                   map[string]int `json:"vocab"`
	Merges                  []mergePair    `json:"merges"`
}

// mergePair is written as a two-element array. The older "left right"
// string form is accepted on read.
type mergePair [2]string

func (p *mergePair) UnmarshalJSON(b []byte) error {
	var arr []string
	if err := json.Unmarshal(b, &arr); err == nil {
		if len(arr) != 2 {
			return fmt.Errorf("merge must have 2 elements, got %d", len(arr))
		}
		*p = mergePair{arr[0], arr[1]}
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("merge must be an array or string: %w", err)
	}
	left, right, ok := strings.Cut(s, " ")
	if !ok {
		return fmt.Errorf("merge %q has no separator", s)
	}
	*p = mergePair{left, right}
	return nil
}

// HuggingFace pre-tokenizer names for each mode. "Whitespace" in the
// tokenizers library separates punctuation, which is what ModePunct does.
var preTokenizerNames = map[pretokenize.Mode]string{
	pretokenize.ModeWhitespace: "WhitespaceSplit",
	pretokenize.ModePunct:      "Whitespace",
}

func preTokenizerFor(mode pretokenize.Mode) *preTokenizer {
	name, ok := preTokenizerNames[mode]
	if !ok {
		return nil
	}
	return &preTokenizer{Type: name}
}

func modeFor(p *preTokenizer) (pretokenize.Mode, error) {
	if p == nil {
		return pretokenize.ModeNone, nil
	}
	for mode, name := range preTokenizerNames {
		if name == p.Type {
			return mode, nil
		}
	}
	return "", fmt.Errorf("%w: unsupported pre_tokenizer %q", bpe.ErrInvalidModel, p.Type)
}

// MarshalJSON encodes m as tokenizer.json bytes.
func MarshalJSON(m *bpe.Model) ([]byte, error) {
	v := m.Vocabulary()
	f := tokenizerFile{
		Version:      "1.0",
		PreTokenizer: preTokenizerFor(m.PreTokenizer()),
		Model: bpeSection{
			Type:     "BPE",
			UnkToken: m.UnkToken(),
			Vocab:    make(map[string]int, v.Len()),
			Merges:   make([]mergePair, 0, len(m.Merges())),
		},
	}

	for id, s := range v.Symbols() {
		f.Model.Vocab[s] = id
	}
	for id, s := range v.Specials() {
		f.AddedTokens = append(f.AddedTokens, addedToken{ID: id, Content: s, Special: true})
	}
	for _, p := range pairsOf(m) {
		f.Model.Merges = append(f.Model.Merges, mergePair{p.Left, p.Right})
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(f); err != nil {
		return nil, fmt.Errorf("encode tokenizer json: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalJSON rebuilds a model from tokenizer.json bytes.
func UnmarshalJSON(data []byte) (*bpe.Model, error) {
	var f tokenizerFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: parse tokenizer json: %v", bpe.ErrInvalidModel, err)
	}
	if f.Model.Type != "BPE" {
		return nil, fmt.Errorf("%w: model type %q is not BPE", bpe.ErrInvalidModel, f.Model.Type)
	}

	symbols, err := denseSymbols(f.Model.Vocab)
	if err != nil {
		return nil, err
	}

	specials := 0
	for _, t := range f.AddedTokens {
		if !t.Special {
			continue
		}
		if t.ID != specials || t.ID >= len(symbols) || symbols[t.ID] != t.Content {
			return nil, fmt.Errorf("%w: special token %q must hold id %d", bpe.ErrInvalidModel, t.Content, specials)
		}
		specials++
	}

	mode, err := modeFor(f.PreTokenizer)
	if err != nil {
		return nil, err
	}

	pairs := make([]bpe.Pair, len(f.Model.Merges))
	for i, mp := range f.Model.Merges {
		pairs[i] = bpe.Pair{Left: mp[0], Right: mp[1]}
	}

	return bpe.NewModel(symbols, specials, pairs, bpe.ModelConfig{
		UnkToken:     f.Model.UnkToken,
		PreTokenizer: mode,
	})
}

// SaveJSON writes m to path as tokenizer.json.
func SaveJSON(fs afero.Fs, path string, m *bpe.Model) error {
	data, err := MarshalJSON(m)
	if err != nil {
		return err
	}
	if err := afero.WriteFile(fs, path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// LoadJSON reads a tokenizer.json file.
func LoadJSON(fs afero.Fs, path string) (*bpe.Model, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	m, err := UnmarshalJSON(data)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return m, nil
}
