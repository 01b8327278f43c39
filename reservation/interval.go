/*
interval.go - Interval algebra for conflict and occupancy math

PURPOSE:
  Pure functions over half-open time intervals [start, end). Every
  conflict check in the engine uses the same boundary rule: back-to-back
  bookings (one ends exactly when the next starts) never conflict.

KEY FUNCTIONS:
  Overlaps:      The single overlap predicate all conflict checks share
  Merge:         Coalesces a sorted interval set (one user's simultaneous
                 bookings collapse to a single occupancy unit)
  MaxConcurrent: Sweep-line maximum-concurrency count, with the earliest
                 time the maximum is reached

DETERMINISM:
  When a start event and an end event share an exact timestamp, the end
  is processed first: departures at an instant are reflected before
  arrivals, consistent with "back-to-back doesn't conflict".

SEE ALSO:
  - occupancy.go: Capacity checks built on Merge + MaxConcurrent
  - policy.go: Conflict rules built on Overlaps
*/
package reservation

import (
	"sort"
	"time"
)

// Window is a half-open time interval [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// Valid reports whether the window is well-formed (Start before End).
func (w Window) Valid() bool { return w.Start.Before(w.End) }

// Duration is the window's length.
func (w Window) Duration() time.Duration { return w.End.Sub(w.Start) }

// Contains reports whether the instant falls inside [Start, End).
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Overlaps reports whether two half-open windows intersect. Two windows
// overlap unless one ends at or before the other starts.
func (w Window) Overlaps(other Window) bool {
	return w.End.After(other.Start) && other.End.After(w.Start)
}

// Shift returns the window moved by delta.
func (w Window) Shift(delta time.Duration) Window {
	return Window{Start: w.Start.Add(delta), End: w.End.Add(delta)}
}

// Merge coalesces a set of windows, sorted by start time, into a minimal
// covering set: any pair where one window's end exceeds the next window's
// start is fused, repeatedly, until no merges remain. Inputs must be
// sorted; use SortWindows first if they are not.
func Merge(sorted []Window) []Window {
	merged := make([]Window, len(sorted))
	copy(merged, sorted)
	for i := 0; i < len(merged)-1; {
		if merged[i].End.After(merged[i+1].Start) {
			if merged[i+1].End.After(merged[i].End) {
				merged[i].End = merged[i+1].End
			}
			merged = append(merged[:i+1], merged[i+2:]...)
			// Re-examine from the fused window: it may now reach
			// further windows.
			continue
		}
		i++
	}
	return merged
}

// SortWindows orders windows by start time, then end time.
func SortWindows(ws []Window) {
	sort.Slice(ws, func(i, j int) bool {
		if ws[i].Start.Equal(ws[j].Start) {
			return ws[i].End.Before(ws[j].End)
		}
		return ws[i].Start.Before(ws[j].Start)
	})
}

// sweepEvent is one boundary of a window during the concurrency sweep.
type sweepEvent struct {
	at    time.Time
	start bool
}

// MaxConcurrent sweeps the windows chronologically and returns the maximum
// number of simultaneously open windows, plus the earliest instant at which
// that maximum was reached. At equal timestamps end events are processed
// before start events, so a window ending exactly when another starts never
// inflates the count.
//
// The returned time is the zero value when the input is empty.
func MaxConcurrent(windows []Window) (int, time.Time) {
	events := make([]sweepEvent, 0, 2*len(windows))
	for _, w := range windows {
		events = append(events, sweepEvent{at: w.Start, start: true})
		events = append(events, sweepEvent{at: w.End, start: false})
	}
	sort.Slice(events, func(i, j int) bool {
		if events[i].at.Equal(events[j].at) {
			// Ends first: simultaneous departures before arrivals.
			return !events[i].start && events[j].start
		}
		return events[i].at.Before(events[j].at)
	})

	var count, maxCount int
	var maxTime time.Time
	for _, e := range events {
		if e.start {
			count++
		} else {
			count--
		}
		if count > maxCount {
			maxCount = count
			maxTime = e.at
		}
	}
	return maxCount, maxTime
}
