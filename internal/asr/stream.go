package asr

// streamState tracks whether the adapter has seen audio since its last
// reset.
type streamState int

const (
	stateIdle streamState = iota
	stateAccumulating
)

// Stream adapts a raw Engine into partial/final events. It is driven by a
// single goroutine (the recognition loop) and carries no locking.
type Stream struct {
	engine      Engine
	state       streamState
	lastPartial string
}

func NewStream(engine Engine) *Stream {
	return &Stream{engine: engine}
}

// Feed pushes one chunk through the engine. It returns a Final event when
// endpointing fires, a Partial event when the unstable hypothesis changed,
// or nil when there is nothing new to report.
func (s *Stream) Feed(pcm []byte) (*Event, error) {
	endpointed, err := s.engine.AcceptChunk(pcm)
	if err != nil {
		return nil, err
	}
	if s.state == stateIdle {
		s.state = stateAccumulating
	}

	if endpointed {
		text := s.engine.FinalResult()
		s.state = stateIdle
		s.lastPartial = ""
		if text == "" {
			return nil, nil
		}
		return &Event{Kind: KindFinal, Text: text}, nil
	}

	partial := s.engine.PartialResult()
	if partial == "" || partial == s.lastPartial {
		return nil, nil
	}
	s.lastPartial = partial
	return &Event{Kind: KindPartial, Text: partial}, nil
}

// Reset clears both the adapter and the underlying engine, used after the
// bootstrap file has been fed through.
func (s *Stream) Reset() error {
	s.state = stateIdle
	s.lastPartial = ""
	return s.engine.Reset()
}
