package metrics

import "github.com/bensuskins/office-hub/internal/models"

// Recorder receives lifecycle and read-path events.
type Recorder interface {
	// RecordPromoted records occurrences moved to overdue by one promotion pass.
	RecordPromoted(count int)

	// RecordOutcome records a single occurrence outcome written by a user.
	RecordOutcome(state models.OccurrenceState)

	// RecordCutoff records a cutoff and the number of occurrences it cancelled.
	RecordCutoff(cancelled int)

	// RecordProjected records how many rows one projection produced.
	RecordProjected(rows int)
}

// NopMetrics discards everything.
type NopMetrics struct{}

var _ Recorder = (*NopMetrics)(nil)

func NewNop() *NopMetrics {
	return &NopMetrics{}
}

func (n *NopMetrics) RecordPromoted(_ int) {}

func (n *NopMetrics) RecordOutcome(_ models.OccurrenceState) {}

func (n *NopMetrics) RecordCutoff(_ int) {}

func (n *NopMetrics) RecordProjected(_ int) {}
