package text

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

const DefaultEncoding = "cl100k_base"

// TiktokenCounter counts tokens with a BPE encoding.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

func NewTiktokenCounter(encoding string) (*TiktokenCounter, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load encoding %s: %w", encoding, err)
	}
	return &TiktokenCounter{enc: enc}, nil
}

func (c *TiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// ApproxCounter estimates tokens as one per CharsPerToken characters.
type ApproxCounter struct {
	CharsPerToken int
}

func (c ApproxCounter) Count(text string) int {
	per := c.CharsPerToken
	if per <= 0 {
		per = 4
	}
	n := len(text)
	return (n + per - 1) / per
}

// NewCounter selects a counter by name: "approx", or a BPE encoding name.
// Unknown encodings are rejected.
func NewCounter(kind string) (TokenCounter, error) {
	switch kind {
	case "", "tiktoken":
		return NewTiktokenCounter(DefaultEncoding)
	case "approx":
		return ApproxCounter{CharsPerToken: 4}, nil
	default:
		c, err := NewTiktokenCounter(kind)
		if err != nil {
			return nil, fmt.Errorf("unknown tokenizer %q: %w", kind, err)
		}
		return c, nil
	}
}
