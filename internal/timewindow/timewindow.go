// Package timewindow resolves which daily HH:MM window applies at a given instant.
package timewindow

import (
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/mrcode/nightscout-insights/internal/models"
)

// MinutesPerDay is the number of wall-clock minutes in a day.
const MinutesPerDay = 24 * 60

var clockPattern = regexp.MustCompile(`^([01]\d|2[0-3]):([0-5]\d)$`)

// Clock is a parsed HH:MM value. Defaulted is set when the input was
// malformed and Minutes fell back to midnight.
type Clock struct {
	Minutes   int
	Defaulted bool
}

// ParseClock parses a 24h "HH:MM" string into minutes since midnight.
// Surrounding whitespace is ignored; anything else malformed yields
// Clock{Minutes: 0, Defaulted: true}.
func ParseClock(value string) Clock {
	m := clockPattern.FindStringSubmatch(strings.TrimSpace(value))
	if m == nil {
		return Clock{Defaulted: true}
	}
	hours, _ := strconv.Atoi(m[1])
	minutes, _ := strconv.Atoi(m[2])
	return Clock{Minutes: hours*60 + minutes}
}

// MinuteOfDay returns the wall-clock minute of t in its own location.
func MinuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// Contains reports whether minute falls inside [start, end]. A window whose
// start is after its end wraps past midnight.
func Contains(start, end, minute int) bool {
	if start <= end {
		return minute >= start && minute <= end
	}
	return minute >= start || minute <= end
}

// Window is any daily span described by two HH:MM strings.
type Window interface {
	Span() (start, end string)
}

// Resolve returns the window that applies at the instant's local minute.
func Resolve[W Window](windows []W, at time.Time) (W, bool) {
	return ResolveMinute(windows, MinuteOfDay(at))
}

// ResolveMinute returns the first window, ordered by start minute, that
// contains minute. When none matches the earliest-starting window is
// returned. ok is false only when windows is empty.
func ResolveMinute[W Window](windows []W, minute int) (W, bool) {
	var zero W
	if len(windows) == 0 {
		return zero, false
	}

	sorted := slices.Clone(windows)
	slices.SortStableFunc(sorted, func(a, b W) int {
		return startMinute(a) - startMinute(b)
	})

	for _, w := range sorted {
		start, end := w.Span()
		if Contains(ParseClock(start).Minutes, ParseClock(end).Minutes, minute) {
			return w, true
		}
	}
	return sorted[0], true
}

func startMinute[W Window](w W) int {
	start, _ := w.Span()
	return ParseClock(start).Minutes
}

// TargetRange returns the target range in g/L that applies at the instant,
// falling back to the profile's flat range when it has no target windows.
func TargetRange(p models.TherapyProfile, at time.Time) (low, high float64) {
	return TargetRangeAtMinute(p, MinuteOfDay(at))
}

// TargetRangeAtMinute is TargetRange for a minute of day.
func TargetRangeAtMinute(p models.TherapyProfile, minute int) (low, high float64) {
	if w, ok := ResolveMinute(p.TargetWindows, minute); ok {
		return w.LowGL, w.HighGL
	}
	return p.TargetLowGL, p.TargetHighGL
}

// Defaulted lists the clock strings in windows that failed to parse, so
// callers can surface them.
func Defaulted[W Window](windows []W) []string {
	var bad []string
	for _, w := range windows {
		start, end := w.Span()
		for _, v := range []string{start, end} {
			if ParseClock(v).Defaulted {
				bad = append(bad, v)
			}
		}
	}
	return bad
}
