// Package tokens approximates how many model tokens a text costs.
package tokens

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

const (
	ModeHeuristic = "heuristic"
	ModeTiktoken  = "tiktoken"

	defaultEncoding = "cl100k_base"
	bytesPerToken   = 4
)

// Heuristic charges one token per four bytes, rounded down.
type Heuristic struct{}

func (Heuristic) Estimate(text string) int {
	return len(text) / bytesPerToken
}

// Tiktoken counts BPE tokens. The encoding is loaded lazily on first use; when it
// cannot be loaded every call falls back to the heuristic for the rest of the run.
type Tiktoken struct {
	encoding string

	once     sync.Once
	enc      *tiktoken.Tiktoken
	fallback Heuristic
}

func NewTiktoken(encoding string) *Tiktoken {
	if strings.TrimSpace(encoding) == "" {
		encoding = defaultEncoding
	}
	return &Tiktoken{encoding: encoding}
}

func (t *Tiktoken) Estimate(text string) int {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			slog.Warn("tokenizer_unavailable", "encoding", t.encoding, "error", err)
			return
		}
		t.enc = enc
	})
	if t.enc == nil {
		return t.fallback.Estimate(text)
	}
	return len(t.enc.Encode(text, nil, nil))
}

// Estimator is satisfied by both implementations.
type Estimator interface {
	Estimate(text string) int
}

// New returns the estimator for mode; unknown modes use the heuristic.
func New(mode string) Estimator {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case ModeTiktoken:
		return NewTiktoken(defaultEncoding)
	default:
		return Heuristic{}
	}
}
