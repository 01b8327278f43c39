package reservation

import (
	"fmt"
	"time"
)

// =============================================================================
// DISPLAY HELPERS - Violation messages quote times in local wall clock
// =============================================================================

const instantLayout = "Mon, Jan 2 2006 @ 3:04 PM"
const clockLayout = "3:04 PM"

func formatInstant(t time.Time) string {
	return t.Format(instantLayout)
}

func formatClock(t time.Time) string {
	return t.Format(clockLayout)
}

func formatRange(start, end time.Time) string {
	return fmt.Sprintf("%s - %s", formatInstant(start), formatInstant(end))
}

// beginningOfDay returns local midnight of the day containing t.
func beginningOfDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}

// wholeMinutes renders a duration as an integer minute count.
func wholeMinutes(d time.Duration) int {
	return int(d.Minutes())
}
