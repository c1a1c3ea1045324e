// Package summarizer trims long text to a token budget by keeping its head and tail.
package summarizer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"

	"robo-chat-go/internal/model"
)

const (
	DefaultMaxTokens = 1000
	DefaultModel     = "gpt-3.5-turbo"

	// TrimMarker separates the kept head and tail segments.
	TrimMarker = "... [Content Trimmed for Length] ..."
)

// Tokenizer converts text to model tokens and back.
type Tokenizer interface {
	Encode(text string) []int
	Decode(tokens []int) string
}

type tiktokenTokenizer struct {
	enc *tiktoken.Tiktoken
}

func (t tiktokenTokenizer) Encode(text string) []int {
	return t.enc.Encode(text, nil, nil)
}

func (t tiktokenTokenizer) Decode(tokens []int) string {
	return t.enc.Decode(tokens)
}

var loaderOnce sync.Once

// NewTiktoken returns the BPE tokenizer for modelName. The ranks come from the
// embedded offline loader so no download happens at runtime.
func NewTiktoken(modelName string) (Tokenizer, error) {
	loaderOnce.Do(func() {
		tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
	})
	if modelName == "" {
		modelName = DefaultModel
	}
	enc, err := tiktoken.EncodingForModel(modelName)
	if err != nil {
		return nil, fmt.Errorf("load encoding for %s: %w", modelName, err)
	}
	return tiktokenTokenizer{enc: enc}, nil
}

// Summarizer applies head/tail trimming with a fixed tokenizer.
type Summarizer struct {
	tok     Tokenizer
	initErr error
}

// New builds a Summarizer on the tiktoken encoding for modelName. A tokenizer
// that fails to load is reported by every later Summarize call.
func New(modelName string) *Summarizer {
	tok, err := NewTiktoken(modelName)
	return &Summarizer{tok: tok, initErr: err}
}

// NewWithTokenizer builds a Summarizer on a caller-provided tokenizer.
func NewWithTokenizer(tok Tokenizer) *Summarizer {
	return &Summarizer{tok: tok}
}

// Summarize returns text unchanged when it fits in maxTokens. Otherwise it keeps
// the first and last maxTokens/2 tokens around TrimMarker.
func (s *Summarizer) Summarize(text string, maxTokens int) (out model.Outcome) {
	if text == "" {
		return model.Succeed("")
	}
	if s.initErr != nil || s.tok == nil {
		return model.Fail(model.KindParse, "Summarization error: tokenizer unavailable", s.initErr)
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	defer func() {
		if r := recover(); r != nil {
			out = model.Fail(model.KindParse, fmt.Sprintf("Summarization error: %v", r), nil)
		}
	}()

	tokens := s.tok.Encode(text)
	if len(tokens) <= maxTokens {
		return model.Succeed(text)
	}

	half := maxTokens / 2
	if half < 1 {
		half = 1
	}
	head := strings.TrimSpace(s.tok.Decode(tokens[:half]))
	tail := strings.TrimSpace(s.tok.Decode(tokens[len(tokens)-half:]))
	return model.Succeed(head + "\n\n" + TrimMarker + "\n\n" + tail)
}
