package models

import (
	"strings"
	"time"
)

// Treatment represents a treatment entry from Nightscout (insulin, carbs, etc.)
type Treatment struct {
	ID        string  `json:"_id,omitempty"`
	EventType string  `json:"eventType,omitempty"`
	Date      int64   `json:"date,omitempty"` // Unix timestamp in milliseconds
	CreatedAt string  `json:"created_at"`
	Insulin   float64 `json:"insulin,omitempty"` // Units of insulin, 0 means absent
	Carbs     float64 `json:"carbs,omitempty"`   // Grams of carbohydrates, 0 means absent
	Notes     string  `json:"notes,omitempty"`
	EnteredBy string  `json:"enteredBy,omitempty"`
}

var treatmentLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z0700",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParsedTime returns the instant the treatment happened. The created_at
// timestamp wins over the numeric date; ok is false when neither is usable.
func (t *Treatment) ParsedTime() (time.Time, bool) {
	if ts, ok := ParseTimestamp(t.CreatedAt); ok {
		return ts, true
	}
	if t.Date > 0 {
		return time.UnixMilli(t.Date), true
	}
	return time.Time{}, false
}

// HasInsulin returns true if this treatment includes insulin
func (t *Treatment) HasInsulin() bool {
	return t.Insulin > 0
}

// HasCarbs returns true if this treatment includes carbohydrates
func (t *Treatment) HasCarbs() bool {
	return t.Carbs > 0
}

// ParseTimestamp parses the ISO-8601 variants seen in Nightscout and
// integration payloads. Values without a zone are read in time.Local.
func ParseTimestamp(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range treatmentLayouts {
		if ts, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
