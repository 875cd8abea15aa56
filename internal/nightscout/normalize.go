package nightscout

import (
	"math"
	"slices"
	"time"

	"github.com/samber/lo"

	"github.com/mrcode/nightscout-insights/internal/models"
)

// rawEntry mirrors an entries document before validation. Numeric fields are
// left untyped because uploaders disagree on number versus string.
type rawEntry struct {
	ID         string `json:"_id"`
	SGV        any    `json:"sgv"`
	Date       any    `json:"date"`
	DateString string `json:"dateString"`
	Trend      any    `json:"trend"`
	Direction  string `json:"direction"`
	Device     string `json:"device"`
	Type       string `json:"type"`
}

type rawTreatment struct {
	ID        string `json:"_id"`
	EventType string `json:"eventType"`
	CreatedAt string `json:"created_at"`
	Date      any    `json:"date"`
	Insulin   any    `json:"insulin"`
	Carbs     any    `json:"carbs"`
	Notes     string `json:"notes"`
	EnteredBy string `json:"enteredBy"`
}

func finiteNumber(v any) (float64, bool) {
	f, ok := v.(float64)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// normalizeEntry keeps readings with a numeric sgv and a resolvable time.
// The timestamp comes from date, then dateString.
func normalizeEntry(r rawEntry) (models.GlucoseEntry, bool) {
	sgv, ok := finiteNumber(r.SGV)
	if !ok {
		return models.GlucoseEntry{}, false
	}

	var date int64
	if d, ok := finiteNumber(r.Date); ok {
		date = int64(d)
	} else if t, ok := models.ParseTimestamp(r.DateString); ok {
		date = t.UnixMilli()
	} else {
		return models.GlucoseEntry{}, false
	}

	dateStr := r.DateString
	if dateStr == "" {
		dateStr = time.UnixMilli(date).UTC().Format("2006-01-02T15:04:05.000Z")
	}

	trend := 0
	if t, ok := finiteNumber(r.Trend); ok {
		trend = int(t)
	}

	return models.GlucoseEntry{
		ID:        r.ID,
		SGV:       sgv,
		Date:      date,
		DateStr:   dateStr,
		Trend:     trend,
		Direction: r.Direction,
		Device:    r.Device,
		Type:      r.Type,
	}, true
}

func (c *Client) normalizeEntries(raw []rawEntry) []models.GlucoseEntry {
	entries := lo.FilterMap(raw, func(r rawEntry, _ int) (models.GlucoseEntry, bool) {
		return normalizeEntry(r)
	})
	if dropped := len(raw) - len(entries); dropped > 0 {
		c.logger.Debug("dropped malformed glucose entries", "dropped", dropped, "kept", len(entries))
	}
	return entries
}

// normalizeTreatment requires a parseable created_at. Missing or
// non-numeric insulin and carbs are treated as absent.
func normalizeTreatment(r rawTreatment) (models.Treatment, bool) {
	created, ok := models.ParseTimestamp(r.CreatedAt)
	if !ok {
		return models.Treatment{}, false
	}

	t := models.Treatment{
		ID:        r.ID,
		EventType: r.EventType,
		CreatedAt: r.CreatedAt,
		Date:      created.UnixMilli(),
		Notes:     r.Notes,
		EnteredBy: r.EnteredBy,
	}
	if d, ok := finiteNumber(r.Date); ok {
		t.Date = int64(d)
	}
	if v, ok := finiteNumber(r.Insulin); ok {
		t.Insulin = v
	}
	if v, ok := finiteNumber(r.Carbs); ok {
		t.Carbs = v
	}
	return t, true
}

func (c *Client) normalizeTreatments(raw []rawTreatment) []models.Treatment {
	treatments := lo.FilterMap(raw, func(r rawTreatment, _ int) (models.Treatment, bool) {
		return normalizeTreatment(r)
	})
	if dropped := len(raw) - len(treatments); dropped > 0 {
		c.logger.Debug("dropped treatments without created_at", "dropped", dropped, "kept", len(treatments))
	}
	return treatments
}

func daysDuration(days float64) time.Duration {
	return time.Duration(days * float64(24*time.Hour))
}

// recentEntries keeps entries at or after cutoff (unix ms), newest first.
func recentEntries(entries []models.GlucoseEntry, cutoff int64) []models.GlucoseEntry {
	out := lo.Filter(entries, func(e models.GlucoseEntry, _ int) bool {
		return e.Date >= cutoff
	})
	slices.SortStableFunc(out, func(a, b models.GlucoseEntry) int {
		switch {
		case a.Date > b.Date:
			return -1
		case a.Date < b.Date:
			return 1
		}
		return 0
	})
	return out
}

// recentTreatments keeps treatments at or after cutoff, newest first.
func recentTreatments(treatments []models.Treatment, cutoff time.Time) []models.Treatment {
	out := lo.Filter(treatments, func(t models.Treatment, _ int) bool {
		ts, ok := t.ParsedTime()
		return ok && !ts.Before(cutoff)
	})
	slices.SortStableFunc(out, func(a, b models.Treatment) int {
		ta, _ := a.ParsedTime()
		tb, _ := b.ParsedTime()
		return tb.Compare(ta)
	})
	return out
}
