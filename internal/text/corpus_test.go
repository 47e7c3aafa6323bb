package text

import (
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/spf13/afero"
)

func collect(t *testing.T, c Corpus) []string {
	t.Helper()

	var lines []string
	for line, err := range c.Lines() {
		if err != nil {
			t.Fatalf("Lines: %v", err)
		}
		lines = append(lines, line)
	}
	return lines
}

func TestSliceCorpus_Restartable(t *testing.T) {
	c := SliceCorpus{"अब", "कब"}

	first := collect(t, c)
	second := collect(t, c)
	if strings.Join(first, "|") != "अब|कब" || strings.Join(second, "|") != "अब|कब" {
		t.Fatalf("unexpected lines: %v then %v", first, second)
	}
}

func TestFileCorpus_StripsTerminators(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "corpus.txt", []byte("अब कब\r\nजब\n\nतब"), 0o644); err != nil {
		t.Fatalf("write corpus: %v", err)
	}

	c := &FileCorpus{Fs: fs, Path: "corpus.txt"}
	got := collect(t, c)
	want := []string{"अब कब", "जब", "", "तब"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("lines = %q, want %q", got, want)
	}

	// A second pass reopens the file.
	if again := collect(t, c); len(again) != len(want) {
		t.Errorf("second pass yielded %d lines, want %d", len(again), len(want))
	}
}

func TestFileCorpus_MissingFile(t *testing.T) {
	c := &FileCorpus{Fs: afero.NewMemMapFs(), Path: "missing.txt"}

	var gotErr error
	for _, err := range c.Lines() {
		if err != nil {
			gotErr = err
		}
	}
	if gotErr == nil {
		t.Fatal("expected error for missing corpus")
	}
	if !errors.Is(gotErr, os.ErrNotExist) {
		t.Errorf("expected os.ErrNotExist, got %v", gotErr)
	}
}

func TestFileCorpus_EarlyStop(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "c.txt", []byte("एक\nदो\nतीन\n"), 0o644); err != nil {
		t.Fatalf("write corpus: %v", err)
	}

	var seen int
	for range (&FileCorpus{Fs: fs, Path: "c.txt"}).Lines() {
		seen++
		if seen == 2 {
			break
		}
	}
	if seen != 2 {
		t.Fatalf("seen = %d, want 2", seen)
	}
}

func TestPreprocessedCorpus(t *testing.T) {
	c := PreprocessedCorpus{
		Source:       SliceCorpus{"यह 2024 है।", "hello", "  अब   कब  "},
		Preprocessor: NewPreprocessor(PreprocessOptions{}),
	}

	got := collect(t, c)
	want := []string{"यह है.", "", "अब कब"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("lines = %q, want %q", got, want)
	}
}
