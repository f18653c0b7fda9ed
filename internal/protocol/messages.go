package protocol

import "time"

// SentenceEvent reports a finalized or corrected sentence on the bus.
type SentenceEvent struct {
	Session   string    `json:"session"`
	Index     int       `json:"index"`
	Text      string    `json:"text"`
	Corrected bool      `json:"corrected"`
	Timestamp time.Time `json:"timestamp"`
}

// PartialEvent reports the current unstable hypothesis.
type PartialEvent struct {
	Session   string    `json:"session"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// DisplayEvent mirrors the full desired text after each reconciliation, so
// remote observers can render the session without replaying edit actions.
type DisplayEvent struct {
	Session   string    `json:"session"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	SubjectPartial           = "dictation.partial"
	SubjectSentenceFinal     = "dictation.sentence.final"
	SubjectSentenceCorrected = "dictation.sentence.corrected"
	SubjectDisplay           = "dictation.display"
)
