package costs

import (
	"log/slog"
	"math"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer counts tokens with the cl100k_base BPE when available and
// falls back to the chars/3.5 heuristic when the encoding can't be
// loaded (offline environments). The encoding is loaded once, lazily.
type Tokenizer struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
}

func NewTokenizer() *Tokenizer {
	return &Tokenizer{}
}

// Count returns the token count of text.
func (t *Tokenizer) Count(text string) int {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			slog.Warn("costs.tokenizer_unavailable", "err", err)
			return
		}
		t.enc = enc
	})

	if t.enc == nil {
		return int(math.Ceil(float64(len(text)) / charsPerToken))
	}
	return len(t.enc.Encode(text, nil, nil))
}
