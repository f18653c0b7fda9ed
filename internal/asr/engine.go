package asr

// Engine abstracts the streaming recognizer collaborator. Implementations
// own the acoustic state; callers drive it one chunk at a time.
type Engine interface {
	// AcceptChunk feeds one PCM block and reports whether the engine's
	// endpointing decided the utterance is complete.
	AcceptChunk(pcm []byte) (bool, error)
	// PartialResult returns the current unstable hypothesis.
	PartialResult() string
	// FinalResult returns the completed-utterance hypothesis after
	// AcceptChunk reported an endpoint.
	FinalResult() string
	// Reset clears acoustic state without reloading the model.
	Reset() error
}

// EventKind distinguishes unstable from completed hypotheses.
type EventKind int

const (
	KindPartial EventKind = iota
	KindFinal
)

// Event is a recognition result surfaced by the stream adapter.
type Event struct {
	Kind EventKind
	Text string
}
