package agent

import (
	"context"
	"strings"
	"sync"
)

// MockClient provides scripted completions for tests. Responses are chosen
// by keyword in the system prompt, matching how the drafting stages phrase
// their instructions. FailAfter, when positive, makes every call past the
// N-th return ErrScripted.
type MockClient struct {
	mu        sync.Mutex
	Responses map[string]string
	Default   string
	FailAfter int
	Err       error
	calls     int
}

// NewMockClient returns a mock with sensible drafts for all three stages.
func NewMockClient() *MockClient {
	return &MockClient{
		Responses: map[string]string{
			"atmosphere": "Dusk settled over the terraced city, mage-lanterns guttering in the salt wind.",
			"dialogue":   "\"We leave at dawn,\" Mira said, not meeting his eyes.",
			"integrate":  "Dusk settled over the terraced city as Mira made her choice and the gates swung open.",
		},
		Default: "scripted draft",
	}
}

// CallCount reports how many completions were requested.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockClient) Complete(ctx context.Context, prompt string) (string, error) {
	return m.CompleteWithSystem(ctx, "", prompt)
}

func (m *MockClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	if m.FailAfter > 0 && m.calls > m.FailAfter && m.Err != nil {
		return "", m.Err
	}

	combined := strings.ToLower(systemPrompt + " " + userPrompt)
	for keyword, response := range m.Responses {
		if strings.Contains(combined, keyword) {
			return response, nil
		}
	}
	return m.Default, nil
}
