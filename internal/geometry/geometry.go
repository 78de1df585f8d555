// Package geometry converts pixel-space measurements into physical
// centimeters and visual degrees for a given monitor and viewing
// distance. All acquisition code stays in center-origin pixels; this
// package is the single conversion boundary.
package geometry

import (
	"fmt"
	"math"

	"github.com/TheSimpleMango/ImagineFace/internal/models"
)

const inchToCm = 2.54

// ConfigurationError reports an invalid MonitorConfig field. It is
// fatal: a session must not start until the configuration is fixed.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid monitor configuration: %s %s", e.Field, e.Reason)
}

// Geometry holds the derived physical parameters of one monitor
// configuration. Construct with New; never from ambient state, so
// multiple hardware presets can be tested side by side.
type Geometry struct {
	cfg models.MonitorConfig

	widthCm  float64
	heightCm float64
	// per-axis pixel pitch in cm/px; identical on square-pixel panels
	pitchX float64
	pitchY float64
	distCm float64
}

// New validates the configuration and derives physical width, height
// and pixel pitch from the diagonal size and the resolution aspect
// ratio.
func New(cfg models.MonitorConfig) (*Geometry, error) {
	switch {
	case cfg.WidthPx <= 0:
		return nil, &ConfigurationError{Field: "width_px", Reason: "must be positive"}
	case cfg.HeightPx <= 0:
		return nil, &ConfigurationError{Field: "height_px", Reason: "must be positive"}
	case cfg.DiagonalInches <= 0:
		return nil, &ConfigurationError{Field: "diagonal_inches", Reason: "must be positive"}
	case cfg.ViewingDistanceM <= 0:
		return nil, &ConfigurationError{Field: "viewing_distance_m", Reason: "must be positive"}
	}

	diagCm := cfg.DiagonalInches * inchToCm
	diagPx := math.Hypot(float64(cfg.WidthPx), float64(cfg.HeightPx))
	widthCm := diagCm * (float64(cfg.WidthPx) / diagPx)
	heightCm := diagCm * (float64(cfg.HeightPx) / diagPx)

	return &Geometry{
		cfg:      cfg,
		widthCm:  widthCm,
		heightCm: heightCm,
		pitchX:   widthCm / float64(cfg.WidthPx),
		pitchY:   heightCm / float64(cfg.HeightPx),
		distCm:   cfg.ViewingDistanceM * 100,
	}, nil
}

// Config returns the configuration snapshot this geometry was built from.
func (g *Geometry) Config() models.MonitorConfig { return g.cfg }

// ScreenWidthCm returns the physical screen width.
func (g *Geometry) ScreenWidthCm() float64 { return g.widthCm }

// ScreenHeightCm returns the physical screen height.
func (g *Geometry) ScreenHeightCm() float64 { return g.heightCm }

// PixelsToCmX converts a horizontal pixel span to centimeters.
func (g *Geometry) PixelsToCmX(px float64) float64 { return px * g.pitchX }

// PixelsToCmY converts a vertical pixel span to centimeters.
func (g *Geometry) PixelsToCmY(px float64) float64 { return px * g.pitchY }

// CmToPixelsX converts centimeters back to a horizontal pixel span.
func (g *Geometry) CmToPixelsX(cm float64) float64 { return cm / g.pitchX }

// CmToPixelsY converts centimeters back to a vertical pixel span.
func (g *Geometry) CmToPixelsY(cm float64) float64 { return cm / g.pitchY }

// SpanDegrees converts a physical span to its angular size using the
// span formula 2*atan(cm/(2*d)). Use for object sizes: face width,
// face height, inter-landmark distances.
func (g *Geometry) SpanDegrees(cm float64) float64 {
	return 2 * radToDeg(math.Atan2(cm/2, g.distCm))
}

// OffsetDegrees converts a physical offset from screen center to its
// eccentricity using the offset formula atan(cm/d). Use for positions:
// landmark or gaze eccentricity relative to center.
func (g *Geometry) OffsetDegrees(cm float64) float64 {
	return radToDeg(math.Atan2(cm, g.distCm))
}

// PointDistanceCm returns the physical distance between two
// center-origin pixel points.
func (g *Geometry) PointDistanceCm(x1, y1, x2, y2 float64) float64 {
	dx := g.PixelsToCmX(x2 - x1)
	dy := g.PixelsToCmY(y2 - y1)
	return math.Hypot(dx, dy)
}

// PointEccentricityCm returns the physical distance of a center-origin
// pixel point from the screen center.
func (g *Geometry) PointEccentricityCm(x, y float64) float64 {
	return math.Hypot(g.PixelsToCmX(x), g.PixelsToCmY(y))
}

func radToDeg(rad float64) float64 { return rad * 180 / math.Pi }
