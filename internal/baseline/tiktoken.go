package baseline

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultTikTokenEncoding is the GPT-4 family encoding.
const DefaultTikTokenEncoding = "cl100k_base"

// TikToken wraps the pkoukk/tiktoken-go encodings. Loading an encoding
// fetches its rank file on first use unless TIKTOKEN_CACHE_DIR holds a copy.
type TikToken struct {
	encoding *tiktoken.Tiktoken
	name     string
}

// NewTikToken loads the named encoding ("cl100k_base", "p50k_base", ...).
func NewTikToken(encodingName string) (*TikToken, error) {
	if encodingName == "" {
		encodingName = DefaultTikTokenEncoding
	}
	encoding, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("load tiktoken encoding %q: %w", encodingName, err)
	}
	return &TikToken{encoding: encoding, name: encodingName}, nil
}

func (t *TikToken) Name() string { return "tiktoken/" + t.name }

func (t *TikToken) Count(text string) (int, error) {
	return len(t.encoding.Encode(text, nil, nil)), nil
}
