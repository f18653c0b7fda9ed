package correct

import "context"

// Corrector rewrites one sentence with grammar and punctuation repaired.
// Calls may block for seconds; they run off the latency-critical path.
type Corrector interface {
	Correct(ctx context.Context, sentence string) (string, error)
}

// Job is one pending correction: the sentence's stable index and the text
// as it was finalized. Submitted once per sentence; the result may arrive
// in any order relative to other jobs or new finalizations.
type Job struct {
	Index int
	Text  string
}
