// Package badge renders the glucose status as an image badge and as text
// sparklines for terminals and tooltips.
package badge

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"sync"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/mrcode/nightscout-insights/internal/models"
)

const (
	statusUrgentLow  = "urgent_low"
	statusUrgentHigh = "urgent_high"
	statusLow        = "low"
	statusHigh       = "high"
)

// Size is the badge edge length in pixels.
const Size = 64

// staleColorAfter greys the badge out once the reading is this old.
const staleColorAfter = 7

var (
	fontOnce   sync.Once
	parsedFont *truetype.Font
	fontErr    error
)

func loadFont() (*truetype.Font, error) {
	fontOnce.Do(func() {
		parsedFont, fontErr = truetype.Parse(goregular.TTF)
	})
	return parsedFont, fontErr
}

// Renderer draws badges in the configured display unit.
type Renderer struct {
	Unit string
}

// NewRenderer creates a Renderer for "mg/dL" or "mmol/L".
func NewRenderer(unit string) *Renderer {
	return &Renderer{Unit: unit}
}

// ValueText formats the reading in the renderer's unit.
func (r *Renderer) ValueText(status *models.GlucoseStatus) string {
	if status == nil {
		return "---"
	}
	if r.Unit == "mmol/L" {
		return fmt.Sprintf("%.1f", status.ValueMmol)
	}
	return fmt.Sprintf("%d", status.Value)
}

// Render draws the badge as PNG. A non-nil score adds a ring whose sweep is
// proportional to the overall health score.
func (r *Renderer) Render(status *models.GlucoseStatus, score *models.HealthScoreCard) ([]byte, error) {
	img, err := r.draw(status, score)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding png: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderICO draws the badge wrapped in a single-image ICO container.
func (r *Renderer) RenderICO(status *models.GlucoseStatus, score *models.HealthScoreCard) ([]byte, error) {
	img, err := r.draw(status, score)
	if err != nil {
		return nil, err
	}
	return imageToICO(img)
}

func (r *Renderer) draw(status *models.GlucoseStatus, score *models.HealthScoreCard) (image.Image, error) {
	const radius = 16

	dc := gg.NewContext(Size, Size)
	dc.SetRGBA(0, 0, 0, 0)
	dc.Clear()

	cr, cg, cb := parseHexColor(StatusColor(status))
	dc.SetRGB255(int(cr), int(cg), int(cb))
	dc.DrawRoundedRectangle(0, 0, Size, Size, radius)
	dc.Fill()

	// Text colour follows background brightness.
	brightness := (int(cr)*299 + int(cg)*587 + int(cb)*114) / 1000
	var fg color.Color = color.White
	if brightness > 128 {
		fg = color.Black
	}

	if score != nil {
		drawScoreRing(dc, score.Overall, fg)
	}

	dc.SetColor(fg)
	font, err := loadFont()
	if err != nil {
		return nil, fmt.Errorf("loading font: %w", err)
	}
	dc.SetFontFace(truetype.NewFace(font, &truetype.Options{Size: 30}))
	dc.DrawStringAnchored(r.ValueText(status), Size/2, Size/2-12, 0.5, 0.5)

	if status != nil && status.Direction != "" {
		drawArrow(dc, Size/2, Size-16, 22, status.Direction)
	}

	return dc.Image(), nil
}

// drawScoreRing strokes an arc from 12 o'clock, clockwise, covering
// overall/100 of the circle.
func drawScoreRing(dc *gg.Context, overall float64, fg color.Color) {
	frac := math.Max(0, math.Min(1, overall/100))
	if frac == 0 {
		return
	}
	dc.Push()
	defer dc.Pop()

	dc.SetColor(fg)
	dc.SetLineWidth(3)
	start := -math.Pi / 2
	dc.DrawArc(Size/2, Size/2, Size/2-3, start, start+frac*2*math.Pi)
	dc.Stroke()
}

// drawArrow draws a vector arrow based on direction
func drawArrow(dc *gg.Context, x, y, size float64, direction string) {
	var angle float64
	switch direction {
	case "DoubleUp", "SingleUp":
		angle = 0
	case "FortyFiveUp":
		angle = 45
	case "Flat":
		angle = 90
	case "FortyFiveDown":
		angle = 135
	case "DoubleDown", "SingleDown":
		angle = 180
	default:
		return
	}

	dc.Push()
	defer dc.Pop()
	dc.Translate(x, y)
	dc.Rotate(gg.Radians(angle))

	halfSize := size / 2
	if direction == "DoubleUp" || direction == "DoubleDown" {
		drawSingleArrow(dc, 0, -halfSize/2, size*0.8)
		drawSingleArrow(dc, 0, halfSize/2, size*0.8)
	} else {
		drawSingleArrow(dc, 0, 0, size)
	}
}

func drawSingleArrow(dc *gg.Context, ox, oy, s float64) {
	w := s * 0.5

	dc.NewSubPath()
	dc.MoveTo(ox, oy-s/2)
	dc.LineTo(ox+w/2, oy)
	dc.LineTo(ox+w/6, oy)
	dc.LineTo(ox+w/6, oy+s/2)
	dc.LineTo(ox-w/6, oy+s/2)
	dc.LineTo(ox-w/6, oy)
	dc.LineTo(ox-w/2, oy)
	dc.ClosePath()
	dc.Fill()
}

// StatusColor returns the badge background for a status.
func StatusColor(status *models.GlucoseStatus) string {
	if status == nil {
		return "#808080" // Gray for unknown
	}

	if status.StaleMinutes > staleColorAfter {
		return "#9ca3af"
	}

	switch status.Status {
	case statusUrgentLow, statusUrgentHigh:
		return "#ef4444" // Red
	case statusLow:
		return "#f97316" // Orange
	case statusHigh:
		return "#facc15" // Yellow
	default:
		return "#4ade80" // Green
	}
}

// parseHexColor parses a hex color string to RGB values
func parseHexColor(hex string) (r, g, b byte) {
	if len(hex) == 7 && hex[0] == '#' {
		_, _ = fmt.Sscanf(hex, "#%02x%02x%02x", &r, &g, &b)
	}
	return
}

// imageToICO wraps a PNG in an ICO container: a 6-byte ICONDIR, one 16-byte
// ICONDIRENTRY and the PNG payload.
func imageToICO(img image.Image) ([]byte, error) {
	var pngBuf bytes.Buffer
	if err := png.Encode(&pngBuf, img); err != nil {
		return nil, fmt.Errorf("encoding png: %w", err)
	}
	pngData := pngBuf.Bytes()

	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, uint16(0)) // reserved
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1)) // type: icon
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1)) // image count

	bounds := img.Bounds()
	buf.WriteByte(icoDimension(bounds.Dx()))
	buf.WriteByte(icoDimension(bounds.Dy()))
	buf.WriteByte(0) // no palette
	buf.WriteByte(0) // reserved
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1))  // color planes
	_ = binary.Write(&buf, binary.LittleEndian, uint16(32)) // bits per pixel
	// #nosec G115 -- PNG size is limited by memory and will not overflow uint32
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(pngData)))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(22)) // data offset

	buf.Write(pngData)
	return buf.Bytes(), nil
}

// icoDimension encodes a width or height; 0 means 256.
func icoDimension(n int) byte {
	if n >= 256 {
		return 0
	}
	return byte(n)
}
