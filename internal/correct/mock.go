package correct

import "context"

// MockCorrector returns input unchanged, optionally routed through a
// rewrite function supplied by tests.
type MockCorrector struct {
	Rewrite func(string) string
}

func NewMockCorrector() *MockCorrector {
	return &MockCorrector{}
}

func (m *MockCorrector) Correct(_ context.Context, sentence string) (string, error) {
	if m.Rewrite != nil {
		return m.Rewrite(sentence), nil
	}
	return sentence, nil
}
