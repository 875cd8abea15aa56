package badge

import (
	"bytes"
	"encoding/binary"
	"image/png"
	"testing"

	"github.com/mrcode/nightscout-insights/internal/models"
)

func TestRender_PNG(t *testing.T) {
	r := NewRenderer("mg/dL")
	status := &models.GlucoseStatus{Value: 123, Direction: "FortyFiveUp", Status: "normal"}

	data, err := r.Render(status, &models.HealthScoreCard{Overall: 72})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("output is not a PNG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != Size || b.Dy() != Size {
		t.Errorf("bounds = %v, want %dx%d", b, Size, Size)
	}
}

func TestRender_NilStatus(t *testing.T) {
	if _, err := NewRenderer("mg/dL").Render(nil, nil); err != nil {
		t.Errorf("Render(nil) error = %v", err)
	}
}

func TestRenderICO_Header(t *testing.T) {
	data, err := NewRenderer("mmol/L").RenderICO(&models.GlucoseStatus{ValueMmol: 6.8, Status: "normal"}, nil)
	if err != nil {
		t.Fatalf("RenderICO() error = %v", err)
	}
	if len(data) < 22 {
		t.Fatalf("ICO too short: %d bytes", len(data))
	}

	if typ := binary.LittleEndian.Uint16(data[2:4]); typ != 1 {
		t.Errorf("type = %d, want 1", typ)
	}
	if count := binary.LittleEndian.Uint16(data[4:6]); count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
	if data[6] != Size || data[7] != Size {
		t.Errorf("dimensions = %dx%d, want %dx%d", data[6], data[7], Size, Size)
	}
	if size := binary.LittleEndian.Uint32(data[14:18]); int(size) != len(data)-22 {
		t.Errorf("payload size = %d, want %d", size, len(data)-22)
	}
	if _, err := png.Decode(bytes.NewReader(data[22:])); err != nil {
		t.Errorf("ICO payload is not a PNG: %v", err)
	}
}

func TestStatusColor(t *testing.T) {
	tests := []struct {
		name   string
		status *models.GlucoseStatus
		want   string
	}{
		{"unknown", nil, "#808080"},
		{"stale", &models.GlucoseStatus{Status: "normal", StaleMinutes: 8}, "#9ca3af"},
		{"urgent low", &models.GlucoseStatus{Status: "urgent_low"}, "#ef4444"},
		{"urgent high", &models.GlucoseStatus{Status: "urgent_high"}, "#ef4444"},
		{"low", &models.GlucoseStatus{Status: "low"}, "#f97316"},
		{"high", &models.GlucoseStatus{Status: "high"}, "#facc15"},
		{"normal", &models.GlucoseStatus{Status: "normal"}, "#4ade80"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusColor(tt.status); got != tt.want {
				t.Errorf("StatusColor() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestParseHexColor(t *testing.T) {
	r, g, b := parseHexColor("#4ade80")
	if r != 0x4a || g != 0xde || b != 0x80 {
		t.Errorf("parseHexColor() = %d,%d,%d", r, g, b)
	}
	r, g, b = parseHexColor("bad")
	if r != 0 || g != 0 || b != 0 {
		t.Error("invalid hex should give black")
	}
}

func TestValueText(t *testing.T) {
	status := &models.GlucoseStatus{Value: 145, ValueMmol: 8.06}
	if got := NewRenderer("mg/dL").ValueText(status); got != "145" {
		t.Errorf("mg/dL ValueText = %q", got)
	}
	if got := NewRenderer("mmol/L").ValueText(status); got != "8.1" {
		t.Errorf("mmol/L ValueText = %q", got)
	}
	if got := NewRenderer("mg/dL").ValueText(nil); got != "---" {
		t.Errorf("nil ValueText = %q", got)
	}
}
