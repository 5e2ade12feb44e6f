// Package testutil holds test doubles shared across package tests.
package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/llms"
)

// KeywordEmbedder embeds a text as the count of each keyword it contains.
// Texts sharing keywords end up close under cosine similarity.
type KeywordEmbedder struct {
	Keywords []string
	Err      error

	mu    sync.Mutex
	Calls int
}

func (e *KeywordEmbedder) vector(text string) []float32 {
	lower := strings.ToLower(text)
	v := make([]float32, len(e.Keywords)+1)
	for i, kw := range e.Keywords {
		v[i] = float32(strings.Count(lower, kw))
	}
	v[len(e.Keywords)] = 0.01
	return v
}

func (e *KeywordEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.Calls++
	e.mu.Unlock()

	if e.Err != nil {
		return nil, e.Err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = e.vector(text)
	}
	return out, nil
}

func (e *KeywordEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// RecordingLanguageModel returns canned answers and keeps every prompt it
// was given.
type RecordingLanguageModel struct {
	Answers []string
	Err     error

	mu      sync.Mutex
	Prompts [][]llms.MessageContent
}

func (m *RecordingLanguageModel) Generate(_ context.Context, messages []llms.MessageContent) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Prompts = append(m.Prompts, messages)
	if m.Err != nil {
		return "", m.Err
	}
	if len(m.Answers) == 0 {
		return "I could not find that in the document, please rephrase the question.", nil
	}
	answer := m.Answers[0]
	m.Answers = m.Answers[1:]
	return answer, nil
}

// LastPrompt returns the most recent prompt, or nil.
func (m *RecordingLanguageModel) LastPrompt() []llms.MessageContent {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Prompts) == 0 {
		return nil
	}
	return m.Prompts[len(m.Prompts)-1]
}

// Text flattens the text parts of a message.
func Text(msg llms.MessageContent) string {
	var b strings.Builder
	for _, part := range msg.Parts {
		if tc, ok := part.(llms.TextContent); ok {
			b.WriteString(tc.Text)
		}
	}
	return b.String()
}
