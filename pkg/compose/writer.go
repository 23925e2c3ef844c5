package compose

// RGB is an 8-bit color used for covers and replacement text.
type RGB struct {
	R, G, B int
}

// Colors used by the default config.
var (
	White = RGB{R: 255, G: 255, B: 255}
	Black = RGB{R: 0, G: 0, B: 0}
)

// Font names an embeddable standard font.
type Font struct {
	Name  string // core font family, e.g. "Helvetica"
	Style string // font style: "", "B", "I" or "BI"
}

// Canvas draws on one page of an open document. Coordinates are document
// units with the origin at the bottom-left corner and Y increasing upward;
// adapters flip into their native convention.
type Canvas interface {
	// Rect fills the axis-aligned rectangle whose bottom-left corner is
	// (x, y).
	Rect(x, y, w, h float64, fill RGB)

	// Text paints s with its baseline origin at (x, y). Text that cannot be
	// represented in the font's encoding is still painted best-effort and
	// reported as ErrTextEncoding.
	Text(x, y float64, s string, font Font, size float64, fill RGB) error
}

// Doc is an in-memory clone of the original document under composition.
type Doc interface {
	// PageCount reports the number of pages of the original.
	PageCount() int

	// PageSize returns the media box of the 1-based page in document units.
	PageSize(page int) (w, h float64, err error)

	// Page makes the 1-based page current, with the original page content
	// underneath, and returns its drawing surface. Pages must be visited in
	// ascending order; every page of the original must be visited for it to
	// appear in the output.
	Page(page int) (Canvas, error)

	// Bytes serializes the composed document.
	Bytes() ([]byte, error)
}

// Writer opens original document bytes into a fresh Doc. Every Open is a
// clone: implementations never share mutable state with a live viewer.
type Writer interface {
	Open(original []byte) (Doc, error)
}
