package text

import (
	"bufio"
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/spf13/afero"
)

// maxLineBytes bounds a single corpus line; dataset dumps often carry whole
// articles on one line.
const maxLineBytes = 16 << 20

// SliceCorpus is an in-memory corpus.
type SliceCorpus []string

// Lines yields every element in order.
func (c SliceCorpus) Lines() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, line := range c {
			if !yield(line, nil) {
				return
			}
		}
	}
}

// FileCorpus streams lines from a file. Each call to Lines reopens the file,
// so iteration is restartable.
type FileCorpus struct {
	Fs   afero.Fs
	Path string
}

// NewFileCorpus returns a corpus over path on the OS filesystem.
func NewFileCorpus(path string) *FileCorpus {
	return &FileCorpus{Fs: afero.NewOsFs(), Path: path}
}

// Lines yields each line without its terminator. A read error is yielded
// once as the final element.
func (c *FileCorpus) Lines() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		fs := c.Fs
		if fs == nil {
			fs = afero.NewOsFs()
		}
		f, err := fs.Open(c.Path)
		if err != nil {
			yield("", fmt.Errorf("open corpus %q: %w", c.Path, err))
			return
		}
		defer func() { _ = f.Close() }()

		for line, err := range ReaderLines(f) {
			if err != nil {
				yield("", fmt.Errorf("read corpus %q: %w", c.Path, err))
				return
			}
			if !yield(line, nil) {
				return
			}
		}
	}
}

// ReaderLines yields the lines of r with "\n" and "\r\n" terminators removed.
func ReaderLines(r io.Reader) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 64*1024), maxLineBytes)
		for sc.Scan() {
			if !yield(strings.TrimSuffix(sc.Text(), "\r"), nil) {
				return
			}
		}
		if err := sc.Err(); err != nil {
			yield("", err)
		}
	}
}

// Corpus is the line source consumed by training and evaluation.
type Corpus interface {
	Lines() iter.Seq2[string, error]
}

// PreprocessedCorpus applies a Preprocessor to every line of an underlying
// corpus on the fly.
type PreprocessedCorpus struct {
	Source       Corpus
	Preprocessor *Preprocessor
}

// Lines yields preprocessed lines, including ones that became empty.
func (c PreprocessedCorpus) Lines() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for line, err := range c.Source.Lines() {
			if err != nil {
				yield("", err)
				return
			}
			clean, err := c.Preprocessor.Preprocess(line)
			if err != nil {
				yield("", err)
				return
			}
			if !yield(clean, nil) {
				return
			}
		}
	}
}
