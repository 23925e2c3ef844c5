package measure

import (
	"bytes"
	"fmt"
	"strings"
	"unicode"

	"github.com/go-text/typesetting/di"
	"github.com/go-text/typesetting/font"
	"github.com/go-text/typesetting/language"
	"github.com/go-text/typesetting/shaping"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/math/fixed"
)

// shapedSurface measures by shaping text with go-text/typesetting. Unlike
// the core-font metrics it handles any script the loaded faces cover,
// including kerning and ligatures.
type shapedSurface struct {
	def    *font.Face
	faces  map[string]*font.Face
	shaper shaping.HarfbuzzShaper
}

// NewShapedSurface returns a Surface that measures by HarfBuzz shaping.
// fonts maps family names to TTF data; the Go Regular face serves any family
// not present, so a nil map is valid.
func NewShapedSurface(fonts map[string][]byte) (Surface, error) {
	def, err := font.ParseTTF(bytes.NewReader(goregular.TTF))
	if err != nil {
		return nil, fmt.Errorf("parsing default font: %w", err)
	}
	s := &shapedSurface{def: def, faces: make(map[string]*font.Face)}
	for name, data := range fonts {
		face, err := font.ParseTTF(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("parsing font %q: %w", name, err)
		}
		s.faces[strings.ToLower(name)] = face
	}
	return s, nil
}

func (s *shapedSurface) TextWidth(text string, size float64, family string) (float64, error) {
	face := s.def
	if f, ok := s.faces[strings.ToLower(family)]; ok {
		face = f
	}
	runes := []rune(text)
	if len(runes) == 0 {
		return 0, nil
	}

	script, dir := detectScript(runes)
	out := s.shaper.Shape(shaping.Input{
		Text:      runes,
		RunStart:  0,
		RunEnd:    len(runes),
		Direction: dir,
		Face:      face,
		Size:      fixed.Int26_6(size * 64),
		Script:    script,
		Language:  language.DefaultLanguage(),
	})

	var width fixed.Int26_6
	for _, g := range out.Glyphs {
		width += g.XAdvance
	}
	return float64(width) / 64, nil
}

// detectScript picks the dominant script of the runes and its direction.
// Only the scripts that change measurement materially are distinguished.
func detectScript(runes []rune) (language.Script, di.Direction) {
	for _, r := range runes {
		switch {
		case unicode.Is(unicode.Han, r):
			return language.Han, di.DirectionLTR
		case unicode.Is(unicode.Arabic, r):
			return language.Arabic, di.DirectionRTL
		case unicode.Is(unicode.Hebrew, r):
			return language.Hebrew, di.DirectionRTL
		}
	}
	return language.Latin, di.DirectionLTR
}
