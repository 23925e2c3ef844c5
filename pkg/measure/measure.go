// Package measure estimates the rendered width of a string at a given font
// size without rendering a page.
//
// The primary path measures against an off-screen Surface that is created
// once and reused for the lifetime of the estimator. When no surface is
// available, or a surface cannot represent the text, an analytical fallback
// classifies each rune as CJK or other and sums per-class width ratios.
package measure

import (
	"math"
	"sync"
)

// DefaultFontSize substitutes for a missing or invalid font size.
const DefaultFontSize = 12

// Surface measures text against a concrete font backend. The width is
// returned in the same unit as the size. Surfaces are reused across calls
// and need not be safe for concurrent use; the Estimator serializes access.
type Surface interface {
	TextWidth(text string, size float64, family string) (float64, error)
}

// Config holds estimator options.
type Config struct {
	Surface    Surface // measurement backend (nil = core-font surface, created on first use)
	Heuristic  bool    // skip the surface entirely and always use the analytical fallback
	CJKRatio   float64 // fallback width of a CJK glyph relative to the font size (0 = 1.0)
	OtherRatio float64 // fallback width of any other glyph relative to the font size (0 = 0.6)
}

// DefaultConfig returns a config with the ratios tuned for the default
// embedded fonts.
func DefaultConfig() Config {
	return Config{
		CJKRatio:   1.0,
		OtherRatio: 0.6,
	}
}

// Estimator memoizes text measurements for the lifetime of the process.
// The zero value is not usable; construct with New.
type Estimator struct {
	mu      sync.Mutex
	cfg     Config
	surface Surface
	cache   map[measureKey]float64
}

type measureKey struct {
	text   string
	size   float64
	family string
}

// New returns an Estimator using the given config. Zero ratio fields take
// the defaults.
func New(cfg Config) *Estimator {
	if cfg.CJKRatio == 0 {
		cfg.CJKRatio = 1.0
	}
	if cfg.OtherRatio == 0 {
		cfg.OtherRatio = 0.6
	}
	return &Estimator{
		cfg:     cfg,
		surface: cfg.Surface,
		cache:   make(map[measureKey]float64),
	}
}

// Width returns the estimated pixel width of text at the given font size and
// family. A size that is not a positive finite number recovers to
// DefaultFontSize. Width never fails; when the surface cannot measure the
// text it degrades to the analytical fallback.
func (e *Estimator) Width(text string, size float64, family string) float64 {
	if size <= 0 || math.IsNaN(size) || math.IsInf(size, 0) {
		size = DefaultFontSize
	}
	if text == "" {
		return 0
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	k := measureKey{text: text, size: size, family: family}
	if w, ok := e.cache[k]; ok {
		return w
	}

	w, ok := e.surfaceWidth(text, size, family)
	if !ok {
		w = Heuristic(text, size, e.cfg.CJKRatio, e.cfg.OtherRatio)
	}
	e.cache[k] = w
	return w
}

// surfaceWidth measures via the memoized surface, creating the default one
// on first use. Callers hold e.mu.
func (e *Estimator) surfaceWidth(text string, size float64, family string) (float64, bool) {
	if e.cfg.Heuristic {
		return 0, false
	}
	if e.surface == nil {
		e.surface = NewCoreSurface()
	}
	w, err := e.surface.TextWidth(text, size, family)
	if err != nil {
		return 0, false
	}
	return w, true
}

// Heuristic is the analytical fallback: every rune in the CJK unified range
// (U+4E00 through U+9FA5) counts cjkRatio font sizes of width, every other
// rune otherRatio font sizes.
func Heuristic(text string, size, cjkRatio, otherRatio float64) float64 {
	var cjk, other int
	for _, r := range text {
		if r >= 0x4E00 && r <= 0x9FA5 {
			cjk++
		} else {
			other++
		}
	}
	return float64(cjk)*size*cjkRatio + float64(other)*size*otherRatio
}
