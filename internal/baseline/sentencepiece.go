package baseline

import (
	"errors"
	"fmt"
	"path/filepath"

	gosp "github.com/vikesh-raj/go-sentencepiece-encoder/sentencepiece"
)

// ErrEmptyPath is returned when NewSentencePiece is called with an empty path.
var ErrEmptyPath = errors.New("sentencepiece model path must not be empty")

// SentencePiece counts tokens with a pure-Go SentencePiece model.
type SentencePiece struct {
	proc gosp.Sentencepiece
	name string
}

// NewSentencePiece loads a SentencePiece .model file.
func NewSentencePiece(modelPath string) (*SentencePiece, error) {
	if modelPath == "" {
		return nil, ErrEmptyPath
	}

	proc, err := gosp.NewSentencepieceFromFile(modelPath, false)
	if err != nil {
		return nil, fmt.Errorf("load sentencepiece model %q: %w", modelPath, err)
	}

	return &SentencePiece{proc: proc, name: filepath.Base(modelPath)}, nil
}

func (s *SentencePiece) Name() string { return "sentencepiece/" + s.name }

func (s *SentencePiece) Count(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	return len(s.proc.TokenizeToIDs(text)), nil
}
