package lifecycle

import "context"

// Component defines the lifecycle interface that all managed components must
// implement. The coordinator drives components through startup in
// registration order and shutdown in reverse registration order.
type Component interface {
	// Start initializes and starts the component.
	// The provided context can be used to signal shutdown or set deadlines.
	// Later components may assume earlier ones are already running.
	// Returns error if initialization fails.
	Start(ctx context.Context) error

	// Stop stops the component.
	// Must be safe to call more than once: a graceful shutdown that
	// escalates to a forced one stops every component again, possibly
	// while an earlier Stop is still in flight.
	// Should respect the context deadline.
	// Returns error if shutdown fails (a forced stop ignores it so other
	// components still get their stop attempt).
	Stop(ctx context.Context) error

	// Name returns the unique, human-readable name of the component.
	// Used for registration, logging, and error reporting.
	// Must return a non-empty string.
	Name() string
}

// Drainer is an optional capability: components that can finish in-flight
// work before stopping implement it. The coordinator calls Drain on every
// draining component during a graceful shutdown, before any Stop call.
type Drainer interface {
	Drain(ctx context.Context) error
}

// Interrupter is an optional capability: components that can abandon
// in-flight work implement it. The coordinator calls Interrupt immediately
// before Stop during a forced shutdown.
type Interrupter interface {
	Interrupt(ctx context.Context) error
}

// Prober is an optional capability: components that can cheaply report
// whether they are currently running implement it. Probes must not block;
// status aggregation bounds each call with a short timeout regardless.
type Prober interface {
	Running() bool
}

// SessionReporter is an optional capability: components that track in-flight
// sessions or jobs expose their counts for status reporting.
type SessionReporter interface {
	ActiveSessions() map[string]int
}
