// Package resolver turns overlapping pass predictions into a recording
// schedule for a single receiver.
package resolver

import (
	"time"

	"github.com/saviobatista/groundstation/internal/types"
)

// Lookahead is the window after now in which predicted passes are scheduled
const Lookahead = time.Hour

// Action is the outcome for one candidate
type Action int

const (
	Keep Action = iota
	Trim
	Drop
)

func (a Action) String() string {
	switch a {
	case Keep:
		return "keep"
	case Trim:
		return "trim"
	case Drop:
		return "drop"
	default:
		return "unknown"
	}
}

// Decision is the outcome for the candidate at the same index of the input
type Decision struct {
	Candidate types.PassCandidate
	Action    Action
	AOS       time.Time
	LOS       time.Time
	// Winner is the index of the candidate whose AOS bounds a trimmed pass, or -1
	Winner int
}

// Candidates returns the passes whose AOS falls before now+lookahead, in input order
func Candidates(passes []types.PassCandidate, now time.Time, lookahead time.Duration) []types.PassCandidate {
	limit := now.Add(lookahead)
	out := make([]types.PassCandidate, 0, len(passes))
	for _, c := range passes {
		if c.Pass.AOS.Before(limit) {
			out = append(out, c)
		}
	}
	return out
}

// Overlaps reports whether q starts before p ends and ends after p starts
func Overlaps(p, q types.Pass) bool {
	return !q.AOS.After(p.LOS) && q.LOS.After(p.AOS)
}

// losesTo reports whether p yields the receiver to q
func losesTo(p, q types.PassCandidate) bool {
	if p.Satellite.Priority == q.Satellite.Priority {
		return q.Pass.MaxElevation > p.Pass.MaxElevation
	}
	return q.Satellite.Priority > p.Satellite.Priority
}

// Evaluate classifies every candidate. A candidate that loses to an
// overlapping one is trimmed to end at the winner's AOS when the overlap is
// below maxOverlap, otherwise dropped. With several winners the bounds of
// the last successful trim in input order apply, and a candidate that was
// trimmed once stays trimmed.
func Evaluate(candidates []types.PassCandidate, maxOverlap time.Duration) []Decision {
	decisions := make([]Decision, len(candidates))

	for i, p := range candidates {
		d := Decision{
			Candidate: p,
			Action:    Keep,
			AOS:       p.Pass.AOS,
			LOS:       p.Pass.LOS,
			Winner:    -1,
		}

		lost := false
		for j, q := range candidates {
			if i == j {
				continue
			}
			if !Overlaps(p.Pass, q.Pass) || !losesTo(p, q) {
				continue
			}

			lost = true
			if p.Pass.LOS.Sub(q.Pass.AOS) < maxOverlap {
				d.Action = Trim
				d.AOS = p.Pass.AOS
				d.LOS = q.Pass.AOS
				d.Winner = j
			}
		}

		if lost && d.Action != Trim {
			d.Action = Drop
		}
		decisions[i] = d
	}

	return decisions
}

// Recording converts a kept or trimmed decision into a schedule entry
func (d Decision) Recording() types.ScheduledRecording {
	return types.ScheduledRecording{
		Satellite: d.Candidate.Satellite,
		AOS:       d.AOS,
		LOS:       d.LOS,
		Pass:      d.Candidate.Pass,
		Trimmed:   d.Action == Trim,
	}
}

// Resolve returns the recordings to schedule, preserving input order.
// Empty input yields an empty schedule.
func Resolve(candidates []types.PassCandidate, maxOverlap time.Duration) []types.ScheduledRecording {
	scheduled := make([]types.ScheduledRecording, 0, len(candidates))
	for _, d := range Evaluate(candidates, maxOverlap) {
		if d.Action == Drop {
			continue
		}
		scheduled = append(scheduled, d.Recording())
	}
	return scheduled
}
