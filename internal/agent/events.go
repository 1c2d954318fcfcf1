package agent

import "time"

type EventType int

const (
	EventPlanning EventType = iota
	EventPlanResolved
	EventStepStarted
	EventToolRan
	EventReplying
	EventDone
	EventError
)

// Event reports router progress to whichever surface is listening (TUI
// spinner, telegram typing indicator, logs). EventPlanResolved carries the
// plan in Payload.
type Event struct {
	Type    EventType
	Detail  string
	Step    int
	Payload any
	At      time.Time
}

// Sink receives router events. A nil sink is valid and drops everything.
type Sink func(Event)

func (s Sink) emit(eventType EventType, step int, detail string) {
	if s == nil {
		return
	}
	s(Event{Type: eventType, Step: step, Detail: detail, At: time.Now()})
}
