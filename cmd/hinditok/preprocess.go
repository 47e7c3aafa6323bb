package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/example/go-hindi-bpe/internal/text"
)

type preprocessStats struct {
	Lines int
	Empty int
}

func newPreprocessCmd() *cobra.Command {
	var in, out string

	cmd := &cobra.Command{
		Use:   "preprocess",
		Short: "Clean a raw Hindi dataset into one training line per input line",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			if in == "" {
				in = cfg.Paths.RawPath
			}
			if out == "" {
				out = cfg.Paths.CorpusPath
			}

			st, err := preprocessFile(afero.NewOsFs(), in, out, cfg.Train.NFC)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d lines, %d empty)\n", out, st.Lines, st.Empty)
			return err
		},
	}

	cmd.Flags().StringVar(&in, "in", "", "Raw input file (defaults to paths.raw_path)")
	cmd.Flags().StringVar(&out, "out", "", "Preprocessed output file (defaults to paths.corpus_path)")

	return cmd
}

// preprocessFile writes one cleaned line per input line, joined by "\n"
// without a trailing terminator. Lines that clean to nothing are kept empty.
func preprocessFile(fs afero.Fs, in, out string, nfc bool) (preprocessStats, error) {
	var st preprocessStats

	if filepath.Clean(in) == filepath.Clean(out) {
		return st, fmt.Errorf("input and output are the same file: %s", in)
	}
	if _, err := fs.Stat(in); err != nil {
		if os.IsNotExist(err) {
			return st, fmt.Errorf("input file %q not found", in)
		}
		return st, fmt.Errorf("stat input: %w", err)
	}
	if dir := filepath.Dir(out); dir != "." {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return st, fmt.Errorf("create output dir: %w", err)
		}
	}

	f, err := fs.Create(out)
	if err != nil {
		return st, fmt.Errorf("create %s: %w", out, err)
	}
	defer func() { _ = f.Close() }()

	w := bufio.NewWriter(f)
	corpus := text.PreprocessedCorpus{
		Source:       &text.FileCorpus{Fs: fs, Path: in},
		Preprocessor: text.NewPreprocessor(text.PreprocessOptions{NFC: nfc}),
	}
	for line, err := range corpus.Lines() {
		if err != nil {
			return st, err
		}
		if st.Lines > 0 {
			if err := w.WriteByte('\n'); err != nil {
				return st, fmt.Errorf("write %s: %w", out, err)
			}
		}
		if _, err := w.WriteString(line); err != nil {
			return st, fmt.Errorf("write %s: %w", out, err)
		}
		st.Lines++
		if line == "" {
			st.Empty++
		}
	}

	if err := w.Flush(); err != nil {
		return st, fmt.Errorf("write %s: %w", out, err)
	}
	if err := f.Close(); err != nil {
		return st, fmt.Errorf("close %s: %w", out, err)
	}
	return st, nil
}
