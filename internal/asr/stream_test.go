package asr

import "testing"

func feed(t *testing.T, s *Stream) *Event {
	t.Helper()
	ev, err := s.Feed([]byte{0, 0})
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	return ev
}

func TestStreamPartialThenFinal(t *testing.T) {
	engine := NewMockEngine([]ScriptStep{
		{Partial: "hel"},
		{Partial: "hello"},
		{Final: "hello there"},
	})
	s := NewStream(engine)

	ev := feed(t, s)
	if ev == nil || ev.Kind != KindPartial || ev.Text != "hel" {
		t.Fatalf("expected partial 'hel', got %+v", ev)
	}
	ev = feed(t, s)
	if ev == nil || ev.Kind != KindPartial || ev.Text != "hello" {
		t.Fatalf("expected partial 'hello', got %+v", ev)
	}
	ev = feed(t, s)
	if ev == nil || ev.Kind != KindFinal || ev.Text != "hello there" {
		t.Fatalf("expected final, got %+v", ev)
	}
}

func TestStreamSuppressesUnchangedPartials(t *testing.T) {
	engine := NewMockEngine([]ScriptStep{
		{Partial: "hi"},
		{Partial: "hi"},
		{Partial: "hi there"},
	})
	s := NewStream(engine)

	if ev := feed(t, s); ev == nil || ev.Text != "hi" {
		t.Fatalf("expected first partial, got %+v", ev)
	}
	if ev := feed(t, s); ev != nil {
		t.Fatalf("expected repeated partial suppressed, got %+v", ev)
	}
	if ev := feed(t, s); ev == nil || ev.Text != "hi there" {
		t.Fatalf("expected changed partial, got %+v", ev)
	}
}

func TestStreamSilenceEmitsNothing(t *testing.T) {
	s := NewStream(NewMockEngine(nil))
	if ev := feed(t, s); ev != nil {
		t.Fatalf("expected nothing for silence, got %+v", ev)
	}
}

func TestStreamResetClearsPartialTracking(t *testing.T) {
	engine := NewMockEngine([]ScriptStep{
		{Partial: "one"},
		{Partial: "one"},
	})
	s := NewStream(engine)

	if ev := feed(t, s); ev == nil {
		t.Fatal("expected first partial")
	}
	if err := s.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if engine.Resets() != 1 {
		t.Fatalf("expected engine reset, got %d", engine.Resets())
	}
	// Identical partial text resurfaces after a reset.
	if ev := feed(t, s); ev == nil || ev.Text != "one" {
		t.Fatalf("expected partial after reset, got %+v", ev)
	}
}

func TestStreamEmptyFinalDropped(t *testing.T) {
	engine := NewMockEngine([]ScriptStep{
		{Final: "   "},
	})
	// whitespace-only finals are normalized away downstream; the adapter
	// only drops the empty string
	s := NewStream(engine)
	ev := feed(t, s)
	if ev == nil || ev.Kind != KindFinal {
		t.Fatalf("expected final event, got %+v", ev)
	}
}
