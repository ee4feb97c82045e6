package syncstate

import (
	"time"
)

// cursorRecord holds timing data for one cursor advance.
type cursorRecord struct {
	Cursor     uint64
	RecordedAt time.Time
}

// Metrics holds sync performance data for one dataset.
type Metrics struct {
	ItemsPerSecond float64
	LastFailureAt  *time.Time
	StateHistory   []Transition
}

// MetricsCollector tracks sync performance over time.
type MetricsCollector struct {
	windowSize  int            // number of cursor advances to track
	cursors     []cursorRecord // ring buffer of cursor records
	transitions []Transition   // recent status changes
	lastFailAt  *time.Time
}

// NewMetricsCollector creates a new metrics collector with the given window size.
func NewMetricsCollector(windowSize int) *MetricsCollector {
	if windowSize <= 0 {
		windowSize = 100
	}
	return &MetricsCollector{
		windowSize:  windowSize,
		cursors:     make([]cursorRecord, 0, windowSize),
		transitions: make([]Transition, 0, 10),
	}
}

// RecordCursor records timing for one cursor advance.
func (mc *MetricsCollector) RecordCursor(cursor uint64, recordedAt time.Time) {
	record := cursorRecord{
		Cursor:     cursor,
		RecordedAt: recordedAt,
	}

	if len(mc.cursors) >= mc.windowSize {
		// Shift elements left, drop oldest
		copy(mc.cursors, mc.cursors[1:])
		mc.cursors[len(mc.cursors)-1] = record
	} else {
		mc.cursors = append(mc.cursors, record)
	}
}

// RecordTransition records a status transition.
func (mc *MetricsCollector) RecordTransition(t Transition) {
	// Keep only last 10 transitions
	if len(mc.transitions) >= 10 {
		copy(mc.transitions, mc.transitions[1:])
		mc.transitions[len(mc.transitions)-1] = t
	} else {
		mc.transitions = append(mc.transitions, t)
	}

	if t.To == StatusFailed {
		failedAt := t.Timestamp
		mc.lastFailAt = &failedAt
	}
}

// GetMetrics returns current metrics.
func (mc *MetricsCollector) GetMetrics() Metrics {
	m := Metrics{
		LastFailureAt: mc.lastFailAt,
		StateHistory:  make([]Transition, len(mc.transitions)),
	}
	copy(m.StateHistory, mc.transitions)

	// Calculate items per second from cursor movement across the window
	if len(mc.cursors) >= 2 {
		first := mc.cursors[0]
		last := mc.cursors[len(mc.cursors)-1]
		duration := last.RecordedAt.Sub(first.RecordedAt)

		if duration > 0 && last.Cursor > first.Cursor {
			m.ItemsPerSecond = float64(last.Cursor-first.Cursor) / duration.Seconds()
		}
	}

	return m
}

// Reset clears all collected metrics.
func (mc *MetricsCollector) Reset() {
	mc.cursors = mc.cursors[:0]
	mc.transitions = mc.transitions[:0]
	mc.lastFailAt = nil
}
