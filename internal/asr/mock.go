package asr

import "sync"

// ScriptStep describes what the mock engine should report for one chunk.
type ScriptStep struct {
	Partial string
	Final   string // non-empty means endpointing fires on this chunk
}

// MockEngine replays a script, one step per accepted chunk. Steps past the
// end of the script report silence. Used for tests and dry runs.
type MockEngine struct {
	mu     sync.Mutex
	script []ScriptStep
	pos    int
	cur    ScriptStep
	resets int
}

func NewMockEngine(script []ScriptStep) *MockEngine {
	return &MockEngine{script: script}
}

func (m *MockEngine) AcceptChunk(_ []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pos >= len(m.script) {
		m.cur = ScriptStep{}
		return false, nil
	}
	m.cur = m.script[m.pos]
	m.pos++
	return m.cur.Final != "", nil
}

func (m *MockEngine) PartialResult() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur.Partial
}

func (m *MockEngine) FinalResult() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur.Final
}

func (m *MockEngine) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cur = ScriptStep{}
	m.resets++
	return nil
}

// Resets reports how many times Reset has been called.
func (m *MockEngine) Resets() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resets
}

// Consumed reports how many chunks have been accepted.
func (m *MockEngine) Consumed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pos
}
