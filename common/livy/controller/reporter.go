package controller

import (
	"fmt"
	"sync"
	"time"

	"github.com/Scusemua/go-utils/config"
	"github.com/Scusemua/go-utils/logger"
	"github.com/scusemua/livy-notebook/common/utils"
)

type EventLevel int

const (
	EventInfo EventLevel = iota
	EventWarning
	EventError
)

func (l EventLevel) String() string {
	switch l {
	case EventInfo:
		return "INFO"
	case EventWarning:
		return "WARNING"
	case EventError:
		return "ERROR"
	default:
		return fmt.Sprintf("EventLevel(%d)", int(l))
	}
}

// Event is something the Controller wants the front-end to show to the user.
type Event struct {
	Level       EventLevel
	SessionName string
	Message     string
	Timestamp   time.Time
}

func (e Event) String() string {
	if e.SessionName == "" {
		return fmt.Sprintf("[%s] %s", e.Level, e.Message)
	}

	return fmt.Sprintf("[%s] %s: %s", e.Level, e.SessionName, e.Message)
}

// Reporter receives the events emitted by a Controller.
type Reporter interface {
	Report(event Event)
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(event Event)

func (f ReporterFunc) Report(event Event) {
	f(event)
}

// LogReporter writes events to a logger.
type LogReporter struct {
	log logger.Logger
}

func NewLogReporter() *LogReporter {
	reporter := &LogReporter{}
	config.InitLogger(&reporter.log, reporter)
	return reporter
}

func (r *LogReporter) Report(event Event) {
	switch event.Level {
	case EventError:
		r.log.Error(utils.RedStyle.Render("%s"), event.String())
	case EventWarning:
		r.log.Warn(utils.OrangeStyle.Render("%s"), event.String())
	default:
		r.log.Info("%s", event.String())
	}
}

// RecordingReporter keeps every event it receives.
type RecordingReporter struct {
	events []Event
	mu     sync.Mutex
}

func (r *RecordingReporter) Report(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, event)
}

func (r *RecordingReporter) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	events := make([]Event, len(r.events))
	copy(events, r.events)
	return events
}

// Count returns the number of recorded events with the given level.
func (r *RecordingReporter) Count(level EventLevel) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, event := range r.events {
		if event.Level == level {
			n++
		}
	}

	return n
}
