package events

import "testing"

func TestBus_EmitReachesSubscribers(t *testing.T) {
	bus := NewBus()
	var lessons, decisions int
	bus.Subscribe(TypeLesson, func(Event) { lessons++ })
	bus.Subscribe(TypeLesson, func(Event) { lessons++ })
	bus.Subscribe(TypeDecision, func(Event) { decisions++ })

	bus.Emit(Event{Type: TypeLesson, Payload: "x"})
	if lessons != 2 {
		t.Fatalf("expected both lesson handlers called, got %d", lessons)
	}
	if decisions != 0 {
		t.Fatalf("decision handler must not fire on lesson events, got %d", decisions)
	}
}

func TestBus_FillsTimestamp(t *testing.T) {
	bus := NewBus()
	var got Event
	bus.Subscribe(TypeJudgment, func(evt Event) { got = evt })
	bus.Emit(Event{Type: TypeJudgment})
	if got.At.IsZero() {
		t.Fatal("emit should stamp the event time")
	}
}

func TestBus_NilSafety(t *testing.T) {
	var bus *Bus
	bus.Subscribe(TypeLesson, func(Event) {})
	bus.Emit(Event{Type: TypeLesson}) // 不得崩

	real := NewBus()
	real.Subscribe(TypeLesson, nil)
	real.Emit(Event{Type: TypeLesson}) // nil 回调被忽略
	real.Emit(Event{Type: TypeDecision})
}
