package lifecycle

import (
	"fmt"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Event kinds recorded in the journal.
const (
	EventStateChange          = "state-change"
	EventComponentStarted     = "component-started"
	EventComponentStopped     = "component-stopped"
	EventComponentStartFailed = "component-start-failed"
	EventComponentStopFailed  = "component-stop-failed"
	EventComponentRestarted   = "component-restarted"
)

// Event is one entry in the lifecycle journal.
type Event struct {
	Seq       uint64    `json:"seq"`
	Time      time.Time `json:"time"`
	Kind      string    `json:"kind"`
	Component string    `json:"component,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}

// Journal is a bounded, in-memory log of lifecycle events. Old entries are
// evicted once capacity is reached; the journal is for operator visibility
// over the admin API, not an audit trail.
type Journal struct {
	seq     atomic.Uint64
	entries *lru.Cache[uint64, Event]
}

// NewJournal creates a journal holding at most capacity events.
func NewJournal(capacity int) (*Journal, error) {
	entries, err := lru.New[uint64, Event](capacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create journal: %w", err)
	}
	return &Journal{entries: entries}, nil
}

// Record appends an event. Safe for concurrent use.
func (j *Journal) Record(kind, component, detail string) {
	seq := j.seq.Add(1)
	j.entries.Add(seq, Event{
		Seq:       seq,
		Time:      time.Now(),
		Kind:      kind,
		Component: component,
		Detail:    detail,
	})
}

// Recent returns up to n events, oldest first. n <= 0 returns all retained
// events.
func (j *Journal) Recent(n int) []Event {
	keys := j.entries.Keys()
	if n > 0 && len(keys) > n {
		keys = keys[len(keys)-n:]
	}

	events := make([]Event, 0, len(keys))
	for _, k := range keys {
		if e, ok := j.entries.Peek(k); ok {
			events = append(events, e)
		}
	}
	return events
}

// Len returns the number of retained events.
func (j *Journal) Len() int {
	return j.entries.Len()
}
