package calendar

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidTimeRange = errors.New("invalid time range")
	ErrSlotDuration     = errors.New("slot duration must be positive")
	ErrInvalidClock     = errors.New("invalid clock time, want HH:MM")
)

// TimeRange is an interval [Start, End).
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// NormalizeTimeRange:
//   - swaps the bounds when they are reversed;
//   - converts both bounds to loc;
//   - trims the range to start+maxDuration when it is longer.
//
// maxDuration <= 0 disables the length limit.
func NormalizeTimeRange(
	start, end time.Time,
	loc *time.Location,
	maxDuration time.Duration,
) (TimeRange, error) {
	if start.IsZero() || end.IsZero() {
		return TimeRange{}, ErrInvalidTimeRange
	}

	if end.Before(start) {
		start, end = end, start
	}

	if loc != nil {
		start = start.In(loc)
		end = end.In(loc)
	}

	if maxDuration > 0 && end.Sub(start) > maxDuration {
		end = start.Add(maxDuration)
	}

	if !end.After(start) {
		return TimeRange{}, ErrInvalidTimeRange
	}

	return TimeRange{Start: start, End: end}, nil
}

// WindowAround returns the closed conflict window [t-w, t+w].
func WindowAround(t time.Time, w time.Duration) TimeRange {
	return TimeRange{Start: t.Add(-w), End: t.Add(w)}
}

// SlotBucket maps t onto consecutive w-wide buckets since the Unix epoch.
// Two instants in one bucket are always less than w apart.
func SlotBucket(t time.Time, w time.Duration) int64 {
	size := int64(w / time.Second)
	if size <= 0 {
		size = 1
	}
	sec := t.Unix()
	b := sec / size
	if sec%size < 0 {
		b--
	}
	return b
}

// SplitToTimeSlots splits the range into fixed-length slots.
// alignMinutes > 0 moves the first slot to the next multiple of alignMinutes.
// A tail shorter than slotDuration is dropped.
func SplitToTimeSlots(
	tr TimeRange,
	slotDuration time.Duration,
	alignMinutes int,
) ([]TimeRange, error) {
	if slotDuration <= 0 {
		return nil, ErrSlotDuration
	}
	if !tr.End.After(tr.Start) {
		return []TimeRange{}, nil
	}

	start := tr.Start

	if alignMinutes > 0 {
		min := start.Minute()
		rem := min % alignMinutes
		if rem != 0 {
			start = time.Date(
				start.Year(),
				start.Month(),
				start.Day(),
				start.Hour(),
				min+alignMinutes-rem,
				0, 0,
				start.Location(),
			)
			if !start.Before(tr.End) {
				return []TimeRange{}, nil
			}
		}
	}

	slots := []TimeRange{}
	for cur := start; !cur.Add(slotDuration).After(tr.End); cur = cur.Add(slotDuration) {
		slots = append(slots, TimeRange{Start: cur, End: cur.Add(slotDuration)})
	}

	return slots, nil
}

// HasOverlap reports whether newRange intersects any of existing.
// inclusive = true treats touching ends as an overlap.
func HasOverlap(
	newRange TimeRange,
	existing []TimeRange,
	inclusive bool,
) (bool, []TimeRange) {
	var conflicts []TimeRange

	for _, tr := range existing {
		if rangesOverlap(newRange, tr, inclusive) {
			conflicts = append(conflicts, tr)
		}
	}

	return len(conflicts) > 0, conflicts
}

func rangesOverlap(a, b TimeRange, inclusive bool) bool {
	if inclusive {
		// closed intervals
		return !a.Start.After(b.End) && !b.Start.After(a.End)
	}

	// half-open intervals
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// ParseClock parses "HH:MM" into an offset from midnight.
func ParseClock(s string) (time.Duration, error) {
	var h, m int
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	if h < 0 || h > 24 || m < 0 || m > 59 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute, nil
}

// DayRange returns the [start, end) interval of a working period on day.
func DayRange(day time.Time, start, end string) (TimeRange, error) {
	from, err := ParseClock(start)
	if err != nil {
		return TimeRange{}, err
	}
	to, err := ParseClock(end)
	if err != nil {
		return TimeRange{}, err
	}
	if to <= from {
		return TimeRange{}, ErrInvalidTimeRange
	}
	midnight := dateOnly(day)
	return TimeRange{Start: midnight.Add(from), End: midnight.Add(to)}, nil
}

func dateOnly(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}
