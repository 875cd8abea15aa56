// Package models contains data structures used throughout the application
package models

import (
	"math"
	"time"
)

// MgdlPerGL converts between mg/dL readings and the g/L unit used by therapy profiles.
const MgdlPerGL = 100.0

// GlucoseEntry represents a single glucose reading from Nightscout
type GlucoseEntry struct {
	ID        string  `json:"_id,omitempty"`
	SGV       float64 `json:"sgv"`  // Sensor glucose value in mg/dL
	Date      int64   `json:"date"` // Unix timestamp in milliseconds
	DateStr   string  `json:"dateString,omitempty"`
	Trend     int     `json:"trend,omitempty"`     // Trend direction (1-7)
	Direction string  `json:"direction,omitempty"` // Trend direction as string
	Device    string  `json:"device,omitempty"`
	Type      string  `json:"type,omitempty"`
}

// Time returns the time of the glucose entry
func (g *GlucoseEntry) Time() time.Time {
	return time.UnixMilli(g.Date)
}

// ValueMgDL returns the glucose value in mg/dL rounded to a whole number
func (g *GlucoseEntry) ValueMgDL() int {
	return int(math.Round(g.SGV))
}

// ValueGL returns the glucose value in g/L
func (g *GlucoseEntry) ValueGL() float64 {
	return g.SGV / MgdlPerGL
}

// ValueMmolL returns the glucose value in mmol/L
func (g *GlucoseEntry) ValueMmolL() float64 {
	return g.SGV / 18.0182
}

var directionArrows = map[string]string{
	"DoubleUp":          "⇈",
	"SingleUp":          "↑",
	"FortyFiveUp":       "↗",
	"Flat":              "→",
	"FortyFiveDown":     "↘",
	"SingleDown":        "↓",
	"DoubleDown":        "⇊",
	"NOT COMPUTABLE":    "?",
	"RATE OUT OF RANGE": "⚠",
}

var trendArrows = map[int]string{
	1: "⇈",
	2: "↑",
	3: "↗",
	4: "→",
	5: "↘",
	6: "↓",
	7: "⇊",
}

// TrendArrow returns the Unicode arrow character for the trend
func (g *GlucoseEntry) TrendArrow() string {
	if arrow, ok := directionArrows[g.Direction]; ok {
		return arrow
	}
	// Fallback to numeric trend
	if arrow, ok := trendArrows[g.Trend]; ok {
		return arrow
	}
	return "-"
}

// GlucoseStatus represents the current glucose status for display
type GlucoseStatus struct {
	Value        int       `json:"value"`        // mg/dL
	ValueMmol    float64   `json:"valueMmol"`    // mmol/L
	Trend        string    `json:"trend"`        // Arrow character
	Direction    string    `json:"direction"`    // Direction string
	Time         time.Time `json:"time"`         // Reading time
	Delta        int       `json:"delta"`        // Change from previous reading
	Status       string    `json:"status"`       // "normal", "high", "low", "urgent_high", "urgent_low"
	StaleMinutes int       `json:"staleMinutes"` // Minutes since last reading
	IsStale      bool      `json:"isStale"`      // True if data is stale (>15 min)
	IOB          float64   `json:"iob"`          // Insulin on Board (units)
	COB          float64   `json:"cob"`          // Carbs on Board (grams)
}

// TrendSummary describes the latest reading relative to the one before it.
type TrendSummary struct {
	Current   *float64   `json:"current"`   // mg/dL
	Delta     *float64   `json:"delta"`     // mg/dL
	Direction string     `json:"direction"` // Nightscout direction string
	UpdatedAt *time.Time `json:"updatedAt"`
}

// ServerStatus represents the Nightscout server status
type ServerStatus struct {
	Status     string         `json:"status"`
	Name       string         `json:"name"`
	Version    string         `json:"version"`
	ServerTime string         `json:"serverTime"`
	APIEnabled bool           `json:"apiEnabled"`
	Settings   ServerSettings `json:"settings,omitempty"`
}

// ServerSettings contains Nightscout server settings
type ServerSettings struct {
	Units      string     `json:"units"`
	Thresholds Thresholds `json:"thresholds,omitempty"`
}

// Thresholds contains glucose threshold settings
type Thresholds struct {
	BGHigh         int `json:"bgHigh"`
	BGLow          int `json:"bgLow"`
	BGTargetTop    int `json:"bgTargetTop"`
	BGTargetBottom int `json:"bgTargetBottom"`
}
