package mock

import (
	"context"
	"sync"

	"github.com/markdave123-py/docflow/internal/core"
)

var _ core.LLMProvider = (*MockLLM)(nil)

// MockLLM echoes a fixed answer and remembers the prompts it was given.
type MockLLM struct {
	Answer string
	Err    error

	mu      sync.Mutex
	prompts []string
}

func (m *MockLLM) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, userPrompt)
	m.mu.Unlock()
	if m.Err != nil {
		return "", m.Err
	}
	return m.Answer, nil
}

func (m *MockLLM) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}
