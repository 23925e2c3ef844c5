package measure

import (
	"errors"
	"math"
	"testing"
)

type countingSurface struct {
	calls int
	err   error
}

func (s *countingSurface) TextWidth(text string, size float64, family string) (float64, error) {
	s.calls++
	if s.err != nil {
		return 0, s.err
	}
	return float64(len([]rune(text))) * size * 0.5, nil
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestWidthInvalidSizeRecoversToDefault(t *testing.T) {
	e := New(Config{Heuristic: true})
	want := 2 * float64(DefaultFontSize) * 0.6
	for _, size := range []float64{0, -3, math.NaN(), math.Inf(1)} {
		if got := e.Width("ab", size, ""); !almostEqual(got, want) {
			t.Errorf("Width(%v) = %v, want %v", size, got, want)
		}
	}
}

func TestHeuristic(t *testing.T) {
	tests := []struct {
		name string
		text string
		size float64
		want float64
	}{
		{"latin", "abcd", 12, 4 * 12 * 0.6},
		{"cjk", "你好", 12, 2 * 12},
		{"mixed", "Hi你", 12, 2*12*0.6 + 12},
		{"spaces and digits", "a 1", 10, 3 * 10 * 0.6},
		{"outside cjk range", "ヱ", 12, 12 * 0.6}, // katakana is not in the counted range
		{"empty", "", 12, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Heuristic(tt.text, tt.size, 1.0, 0.6); !almostEqual(got, tt.want) {
				t.Errorf("Heuristic(%q, %v) = %v, want %v", tt.text, tt.size, got, tt.want)
			}
		})
	}
}

func TestWidthMemoizesSurfaceCalls(t *testing.T) {
	s := &countingSurface{}
	e := New(Config{Surface: s})

	first := e.Width("hello", 12, "Helvetica")
	second := e.Width("hello", 12, "Helvetica")
	if first != second {
		t.Errorf("repeated measurement changed: %v then %v", first, second)
	}
	if s.calls != 1 {
		t.Errorf("surface measured %d times, want 1", s.calls)
	}

	// A different key measures again.
	e.Width("hello", 14, "Helvetica")
	if s.calls != 2 {
		t.Errorf("surface measured %d times after size change, want 2", s.calls)
	}
}

func TestWidthFallsBackOnSurfaceError(t *testing.T) {
	s := &countingSurface{err: errors.New("no metrics")}
	e := New(Config{Surface: s})
	want := Heuristic("hello", 12, 1.0, 0.6)
	if got := e.Width("hello", 12, ""); !almostEqual(got, want) {
		t.Errorf("Width = %v, want heuristic %v", got, want)
	}
}

func TestWidthMonotonicInText(t *testing.T) {
	e := New(Config{Heuristic: true})
	text := "Globex International 你好 Inc"
	prev := 0.0
	for i := 1; i <= len([]rune(text)); i++ {
		w := e.Width(string([]rune(text)[:i]), 12, "")
		if w < prev {
			t.Fatalf("width shrank from %v to %v at prefix %d", prev, w, i)
		}
		prev = w
	}
}

func TestWidthEmptyText(t *testing.T) {
	e := New(Config{Heuristic: true})
	if got := e.Width("", 12, ""); got != 0 {
		t.Errorf("Width of empty text = %v, want 0", got)
	}
}

func TestCoreFamily(t *testing.T) {
	tests := []struct {
		family string
		want   string
	}{
		{"Helvetica", "Helvetica"},
		{"Arial", "Helvetica"},
		{"sans-serif", "Helvetica"},
		{"Times-Roman", "Times"},
		{"serif", "Times"},
		{"Courier New", "Courier"},
		{"JetBrains Mono", "Courier"},
		{"", "Helvetica"},
		{"g_d0_f1", "Helvetica"},
	}
	for _, tt := range tests {
		if got := coreFamily(tt.family); got != tt.want {
			t.Errorf("coreFamily(%q) = %q, want %q", tt.family, got, tt.want)
		}
	}
}
