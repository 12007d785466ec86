package llm

import (
	"context"
	"sync"
)

// MockClient permite tests sin llamar a un LLM real.
// Si Responses no esta vacio se consume en orden y luego se repite Response.
type MockClient struct {
	Response  string
	Responses []string
	Err       error

	mu      sync.Mutex
	Prompts []string
	Opts    []Options
}

func (m *MockClient) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Prompts = append(m.Prompts, prompt)
	m.Opts = append(m.Opts, opts)
	if m.Err != nil {
		return "", m.Err
	}
	if len(m.Responses) > 0 {
		r := m.Responses[0]
		m.Responses = m.Responses[1:]
		return r, nil
	}
	return m.Response, nil
}

// Calls devuelve cuantas veces se llamo Generate.
func (m *MockClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Prompts)
}

// StaticGenerator implementa Generator con un texto y proveedor fijos.
type StaticGenerator struct {
	Text     string
	Provider ProviderName
}

func (s StaticGenerator) Generate(context.Context, string, Options) Generation {
	return Generation{Text: s.Text, Provider: s.Provider}
}
