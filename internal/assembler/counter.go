package assembler

import (
	"fmt"
	"unicode/utf8"

	"github.com/tiktoken-go/tokenizer"
)

// Counter measures text in budget units.
type Counter interface {
	Count(text string) int
}

// CharCounter estimates tokens as one per CharsPerToken runes, rounded up.
type CharCounter struct {
	CharsPerToken int
}

func (c CharCounter) Count(text string) int {
	per := c.CharsPerToken
	if per <= 0 {
		per = 4
	}
	n := utf8.RuneCountInString(text)
	return (n + per - 1) / per
}

// TiktokenCounter counts BPE tokens with a tiktoken encoding.
type TiktokenCounter struct {
	codec    tokenizer.Codec
	fallback CharCounter
}

// NewTiktokenCounter loads the cl100k_base encoding.
func NewTiktokenCounter() (*TiktokenCounter, error) {
	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		return nil, fmt.Errorf("load cl100k_base: %w", err)
	}
	return &TiktokenCounter{codec: codec}, nil
}

func (t *TiktokenCounter) Count(text string) int {
	ids, _, err := t.codec.Encode(text)
	if err != nil {
		return t.fallback.Count(text)
	}
	return len(ids)
}

// NewCounter returns the counter for a config name: "cl100k" or "chars".
func NewCounter(name string) (Counter, error) {
	switch name {
	case "", "chars":
		return CharCounter{CharsPerToken: 4}, nil
	case "cl100k", "tiktoken":
		return NewTiktokenCounter()
	default:
		return nil, fmt.Errorf("unknown tokenizer %q", name)
	}
}
