// Package radar projects the position, heading and visual trail into the screen space of a
// circular radar viewport centred on a slowly moving anchor.
package radar

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"

	"fieldnav/pkg/geo"
	"fieldnav/pkg/trail"
)

// Mode selects what stays fixed on screen.
type Mode string

const (
	// ModeHeadingUp rotates the scene so the direction of travel points up.
	ModeHeadingUp Mode = "heading-up"
	// ModeNorthUp keeps north up and rotates the marker instead.
	ModeNorthUp Mode = "north-up"
)

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeHeadingUp, ModeNorthUp:
		return m, nil
	}
	return "", fmt.Errorf("unknown radar mode %q", s)
}

const (
	MinZoom = 1
	MaxZoom = 20
)

// Config holds the projector settings.
type Config struct {
	OffCenterThreshold float64 // meters; UI only
	ReanchorThreshold  float64 // meters; moves the anchor
	Zoom               float64
	TileSize           float64
	Width              int
	Height             int
	Mode               Mode
}

// DefaultConfig returns the default projector settings.
func DefaultConfig() Config {
	return Config{
		OffCenterThreshold: 30,
		ReanchorThreshold:  60,
		Zoom:               17,
		TileSize:           geo.DefaultTileSize,
		Width:              320,
		Height:             320,
		Mode:               ModeHeadingUp,
	}
}

// Frame is everything the render layer needs for one radar repaint.
// OffsetEast and OffsetNorth are the live position's offset from the anchor in meters.
type Frame struct {
	Anchor         geo.Point `json:"anchor"`
	HasAnchor      bool      `json:"has_anchor"`
	OffCenter      bool      `json:"off_center"`
	Mode           Mode      `json:"mode"`
	Zoom           float64   `json:"zoom"`
	Epoch          uint64    `json:"epoch"`
	SceneRotation  float64   `json:"scene_rotation"`
	MarkerRotation float64   `json:"marker_rotation"`
	Heading        float64   `json:"heading"`
	MarkerX        float64   `json:"marker_x"`
	MarkerY        float64   `json:"marker_y"`
	OffsetEast     float64   `json:"offset_east_m"`
	OffsetNorth    float64   `json:"offset_north_m"`
	Path           string    `json:"path"`
}

// ImageryRequest is handed to the external tile provider.
// Epoch changes whenever the anchor moves, invalidating cached imagery.
type ImageryRequest struct {
	AnchorLat float64 `json:"anchor_lat"`
	AnchorLng float64 `json:"anchor_lng"`
	Zoom      float64 `json:"zoom"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	Epoch     uint64  `json:"epoch"`
}

type pathKey struct {
	version uint64
	anchor  geo.Point
	zoom    float64
}

// Projector owns the radar anchor and display settings.
type Projector struct {
	cfg    Config
	logger *slog.Logger

	mu        sync.Mutex
	anchor    geo.Point
	hasAnchor bool
	offCenter bool
	epoch     uint64
	mode      Mode
	zoom      float64

	cacheKey   pathKey
	cacheValid bool
	cachePath  string
	pathBuilds int
}

// New creates a projector without an anchor; the first tracked position sets it.
func New(cfg Config) *Projector {
	def := DefaultConfig()
	if cfg.TileSize <= 0 {
		cfg.TileSize = def.TileSize
	}
	if cfg.Zoom <= 0 {
		cfg.Zoom = def.Zoom
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		cfg.Width, cfg.Height = def.Width, def.Height
	}
	if cfg.ReanchorThreshold < cfg.OffCenterThreshold {
		cfg.ReanchorThreshold = cfg.OffCenterThreshold
	}
	if _, err := ParseMode(string(cfg.Mode)); err != nil {
		cfg.Mode = ModeHeadingUp
	}
	return &Projector{
		cfg:    cfg,
		logger: slog.With("component", "radar"),
		mode:   cfg.Mode,
		zoom:   clampZoom(cfg.Zoom),
	}
}

// Track updates the off-center flag and moves the anchor once the live position has drifted
// beyond the re-anchor threshold. It reports whether the anchor moved.
func (p *Projector) Track(pos geo.Point) (reanchored bool) {
	if !pos.Valid() {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.hasAnchor {
		p.moveAnchorLocked(pos)
		return true
	}

	d := geo.Distance(p.anchor, pos)
	if d > p.cfg.ReanchorThreshold {
		p.logger.Debug("Re-anchoring radar", "drift_m", d)
		p.moveAnchorLocked(pos)
		return true
	}
	p.offCenter = d > p.cfg.OffCenterThreshold
	return false
}

// Recenter moves the anchor to pos unconditionally.
func (p *Projector) Recenter(pos geo.Point) bool {
	if !pos.Valid() {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.moveAnchorLocked(pos)
	return true
}

func (p *Projector) moveAnchorLocked(pos geo.Point) {
	p.anchor = pos
	p.hasAnchor = true
	p.offCenter = false
	p.epoch++
}

// Anchor returns the current anchor.
func (p *Projector) Anchor() (geo.Point, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.anchor, p.hasAnchor
}

// Project builds the frame for the current position and heading.
// heading is the unbounded animated heading so scene rotation never spins back across north.
func (p *Projector) Project(pts []trail.TrackPoint, version uint64, pos geo.Point, heading float64) Frame {
	p.mu.Lock()
	defer p.mu.Unlock()

	f := Frame{
		Anchor:    p.anchor,
		HasAnchor: p.hasAnchor,
		OffCenter: p.offCenter,
		Mode:      p.mode,
		Zoom:      p.zoom,
		Epoch:     p.epoch,
		Heading:   geo.Wrap360(heading),
	}

	if math.IsNaN(heading) || math.IsInf(heading, 0) {
		heading = 0
	}
	switch p.mode {
	case ModeNorthUp:
		f.SceneRotation = 0
		f.MarkerRotation = heading
	default:
		f.SceneRotation = -heading
		f.MarkerRotation = 0
	}

	cx, cy := float64(p.cfg.Width)/2, float64(p.cfg.Height)/2
	f.MarkerX, f.MarkerY = cx, cy
	if !p.hasAnchor {
		return f
	}
	if pos.Valid() {
		dx, dy := geo.ProjectToPixels(pos, p.anchor, p.zoom, p.cfg.TileSize)
		f.MarkerX, f.MarkerY = cx+dx, cy+dy
		f.OffsetEast, f.OffsetNorth = geo.LocalOffsetMeters(pos, p.anchor)
	}
	f.Path = p.pathLocked(pts, version)
	return f
}

func (p *Projector) pathLocked(pts []trail.TrackPoint, version uint64) string {
	key := pathKey{version: version, anchor: p.anchor, zoom: p.zoom}
	if p.cacheValid && p.cacheKey == key {
		return p.cachePath
	}
	p.cachePath = BuildPath(pts, p.anchor, p.zoom, p.cfg.TileSize, float64(p.cfg.Width)/2, float64(p.cfg.Height)/2)
	p.cacheKey = key
	p.cacheValid = true
	p.pathBuilds++
	return p.cachePath
}

// BuildPath renders pts as an SVG path in viewport pixels, with the anchor at (cx, cy).
func BuildPath(pts []trail.TrackPoint, anchor geo.Point, zoom, tileSize, cx, cy float64) string {
	if len(pts) == 0 {
		return ""
	}
	var b strings.Builder
	b.Grow(len(pts) * 16)
	for i, tp := range pts {
		dx, dy := geo.ProjectToPixels(tp.Point(), anchor, zoom, tileSize)
		if i == 0 {
			b.WriteString("M ")
		} else {
			b.WriteString(" L ")
		}
		b.WriteString(strconv.FormatFloat(cx+dx, 'f', 1, 64))
		b.WriteByte(' ')
		b.WriteString(strconv.FormatFloat(cy+dy, 'f', 1, 64))
	}
	return b.String()
}

// ImageryRequest returns the parameters for the background imagery.
func (p *Projector) ImageryRequest() (ImageryRequest, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return ImageryRequest{
		AnchorLat: p.anchor.Lat,
		AnchorLng: p.anchor.Lon,
		Zoom:      p.zoom,
		Width:     p.cfg.Width,
		Height:    p.cfg.Height,
		Epoch:     p.epoch,
	}, p.hasAnchor
}

// Mode returns the display mode.
func (p *Projector) Mode() Mode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mode
}

// SetMode switches the display mode.
func (p *Projector) SetMode(m Mode) error {
	if _, err := ParseMode(string(m)); err != nil {
		return err
	}
	p.mu.Lock()
	p.mode = m
	p.mu.Unlock()
	return nil
}

// ToggleMode flips between heading-up and north-up and returns the new mode.
func (p *Projector) ToggleMode() Mode {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.mode == ModeNorthUp {
		p.mode = ModeHeadingUp
	} else {
		p.mode = ModeNorthUp
	}
	return p.mode
}

// Zoom returns the zoom level.
func (p *Projector) Zoom() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.zoom
}

// SetZoom sets the zoom level, clamped to [MinZoom, MaxZoom], and returns the applied value.
func (p *Projector) SetZoom(z float64) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.zoom = clampZoom(z)
	return p.zoom
}

func clampZoom(z float64) float64 {
	if math.IsNaN(z) {
		return MaxZoom
	}
	return math.Max(MinZoom, math.Min(MaxZoom, z))
}
