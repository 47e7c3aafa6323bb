package store

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/example/go-hindi-bpe/internal/bpe"
	"github.com/example/go-hindi-bpe/internal/pretokenize"
)

// Report records one training run next to its model.
type Report struct {
	CreatedAt   time.Time        `yaml:"created_at"`
	Corpus      string           `yaml:"corpus"`
	Model       string           `yaml:"model"`
	Options     ReportOptions    `yaml:"options"`
	Stats       bpe.TrainStats   `yaml:"stats"`
	Compression *bpe.Compression `yaml:"compression,omitempty"`
}

// ReportOptions is the serializable part of bpe.TrainOptions.
type ReportOptions struct {
	VocabSize     int              `yaml:"vocab_size"`
	VocabCeiling  int              `yaml:"vocab_ceiling"`
	MinFrequency  int              `yaml:"min_frequency"`
	SpecialTokens []string         `yaml:"special_tokens"`
	LimitAlphabet int              `yaml:"limit_alphabet"`
	PreTokenizer  pretokenize.Mode `yaml:"pre_tokenizer"`
	Workers       int              `yaml:"workers"`
}

// NewReportOptions copies the serializable fields of opts.
func NewReportOptions(opts bpe.TrainOptions) ReportOptions {
	return ReportOptions{
		VocabSize:     opts.VocabSize,
		VocabCeiling:  opts.VocabCeiling,
		MinFrequency:  opts.MinFrequency,
		SpecialTokens: append([]string(nil), opts.SpecialTokens...),
		LimitAlphabet: opts.LimitAlphabet,
		PreTokenizer:  opts.PreTokenizer,
		Workers:       opts.Workers,
	}
}

// WriteReport writes r as YAML.
func WriteReport(fs afero.Fs, path string, r Report) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report dir: %w", err)
		}
	}
	if err := afero.WriteFile(fs, path, data, 0o644); err != nil {
		return fmt.Errorf("write report %s: %w", path, err)
	}
	return nil
}

// ReadReport reads a report written by WriteReport.
func ReadReport(fs afero.Fs, path string) (Report, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return Report{}, fmt.Errorf("read report %s: %w", path, err)
	}
	var r Report
	if err := yaml.Unmarshal(data, &r); err != nil {
		return Report{}, fmt.Errorf("decode report %s: %w", path, err)
	}
	return r, nil
}
