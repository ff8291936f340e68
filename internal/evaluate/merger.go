package evaluate

import (
	"math"
	"time"
)

// Event is a Candidate, possibly the result of merging several contiguous
// Candidates (spec.md §4.7).
type Event struct {
	Start, End     Candidate
	Confidence     float64
	PeakBrightness float64
}

func (e Event) startTime() time.Time { return e.Start.Start.Time }
func (e Event) endTime() time.Time   { return e.End.End.Time }

// velocity returns a candidate's mean speed (a scalar; direction is not
// considered), used for the merger's speed-ratio gate.
func (c Candidate) velocity() float64 { return c.Speed }

// Merger buffers recently emitted Candidates in arrival order and merges a
// new Candidate with the queue's tail when all of spec.md §4.7's
// predicates hold.
type Merger struct {
	params DetectionParams
	queue  []Event
}

// NewMerger returns an empty Merger using params for its gating thresholds.
func NewMerger(params DetectionParams) *Merger {
	return &Merger{params: params}
}

// SetParams replaces the merger's gating thresholds for subsequent calls.
func (m *Merger) SetParams(params DetectionParams) { m.params = params }

// Add appends a newly accepted Candidate, merging it into the queue's tail
// event when eligible, and returns any events whose end has aged past
// MergeMaxGapTimeSeconds and are therefore flushed downstream.
func (m *Merger) Add(c Candidate) []Event {
	if len(m.queue) > 0 {
		tail := &m.queue[len(m.queue)-1]
		if m.eligible(*tail, c) {
			m.merge(tail, c)
			return m.flush(c.Start.Time)
		}
	}
	m.queue = append(m.queue, Event{
		Start:          c,
		End:            c,
		Confidence:     c.Confidence,
		PeakBrightness: c.PeakBrightness,
	})
	return m.flush(c.Start.Time)
}

// Flush drains every buffered event unconditionally, for use at shutdown
// (spec.md §4.7 "at shutdown, any queued item ... is flushed downstream").
func (m *Merger) Flush() []Event {
	out := m.queue
	m.queue = nil
	return out
}

func (m *Merger) eligible(tail Event, c Candidate) bool {
	gap := c.Start.Time.Sub(tail.endTime()).Seconds()
	if gap < 0 || gap > m.params.MergeMaxGapTimeSeconds {
		return false
	}

	d := euclid(tail.End.End.X, tail.End.End.Y, c.Start.X, c.Start.Y)
	if d > m.params.MergeMaxDistance {
		return false
	}

	vTail, vNew := tail.End.velocity(), c.velocity()
	denom := math.Max(vTail, math.Max(vNew, 1e-9))
	if math.Abs(vTail-vNew)/denom > m.params.MergeMaxSpeedRatio {
		return false
	}

	return true
}

func (m *Merger) merge(tail *Event, c Candidate) {
	tail.End = c
	if c.Confidence > tail.Confidence {
		tail.Confidence = c.Confidence
	}
	if c.PeakBrightness > tail.PeakBrightness {
		tail.PeakBrightness = c.PeakBrightness
	}
}

// flush removes and returns any queued event whose end is older than
// the incoming candidate's start time minus MergeMaxGapTimeSeconds,
// preserving arrival order, matching the original's flush_expired keying
// on the incoming event's start time.
func (m *Merger) flush(now time.Time) []Event {
	var out []Event
	kept := m.queue[:0]
	for _, e := range m.queue {
		if now.Sub(e.endTime()).Seconds() > m.params.MergeMaxGapTimeSeconds {
			out = append(out, e)
		} else {
			kept = append(kept, e)
		}
	}
	m.queue = kept
	return out
}
