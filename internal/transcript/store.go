package transcript

import (
	"strings"
	"sync"
	"sync/atomic"
)

// Sentence is one finalized utterance. The index is assigned at
// finalization and never reused or removed; the text is overwritten in
// place when a correction lands.
type Sentence struct {
	Index int
	Text  string
}

// Store owns the canonical transcript: the ordered sentence list plus the
// current partial hypothesis. The sentence list is the only mutex-guarded
// state. The partial has exactly one writer (the recognition loop) and is
// held in an atomic so correction workers can compose concurrently without
// taking the lock.
type Store struct {
	mu        sync.Mutex
	sentences []Sentence
	partial   atomic.Value // string
}

func NewStore() *Store {
	s := &Store{}
	s.partial.Store("")
	return s
}

// Compose renders the desired transcript from a sentence snapshot and a
// partial. Pure: identical inputs always yield identical output.
func Compose(texts []string, partial string) string {
	var b strings.Builder
	for _, t := range texts {
		b.WriteString(t)
	}
	joined := b.String()

	if partial != "" {
		trimmed := strings.TrimRight(joined, " ")
		if trimmed == "" || endsTerminal(trimmed) {
			partial = capitalizeFirst(partial)
		}
		if joined != "" && !strings.HasSuffix(joined, " ") {
			joined += " "
		}
		joined += partial
	}

	return capitalizeFirst(strings.TrimRight(joined, " "))
}

// Compose renders the desired transcript from the store's live state.
func (s *Store) Compose() string {
	return Compose(s.texts(), s.Partial())
}

func (s *Store) texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	texts := make([]string, len(s.sentences))
	for i, sent := range s.sentences {
		texts[i] = sent.Text
	}
	return texts
}

// SetPartial records the current unstable hypothesis. Recognition loop
// only.
func (s *Store) SetPartial(text string) {
	s.partial.Store(text)
}

// Partial returns the current unstable hypothesis.
func (s *Store) Partial() string {
	return s.partial.Load().(string)
}

// Finalize normalizes a final hypothesis, appends it with the next index,
// clears the partial, and returns the sentence plus the freshly composed
// desired text. A hypothesis that normalizes to nothing is discarded
// without consuming an index; the returned sentence has a negative index.
func (s *Store) Finalize(raw string) (Sentence, string) {
	text := NormalizeSentence(raw)
	if text == "" {
		s.partial.Store("")
		return Sentence{Index: -1}, s.Compose()
	}

	s.mu.Lock()
	sent := Sentence{Index: len(s.sentences), Text: text}
	s.sentences = append(s.sentences, sent)
	s.mu.Unlock()

	s.partial.Store("")
	return sent, s.Compose()
}

// Apply overwrites a sentence with its corrected text. It reports whether
// the index was valid. Completion order does not matter: whichever
// corrections have landed, each sentence holds its latest known value.
func (s *Store) Apply(index int, corrected string) bool {
	text := NormalizeSentence(corrected)
	if text == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.sentences) {
		return false
	}
	s.sentences[index].Text = text
	return true
}

// Snapshot returns a copy of the sentence list.
func (s *Store) Snapshot() []Sentence {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Sentence, len(s.sentences))
	copy(out, s.sentences)
	return out
}

// Len reports the number of finalized sentences.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sentences)
}
