package hocr

// Document is a parsed hOCR file: head metadata plus the page hierarchy.
type Document struct {
	Title    string
	Language string
	System   string // ocr-system metadata
	Pages    []Page
}

// Page is one recognized page, class 'ocr_page'. Box coordinates are
// top-down pixels in the page's own image space.
type Page struct {
	ID         string
	Number     int    // ppageno value, zero-based
	Image      string // source image reference
	BBox       BBox
	Areas      []Area
	Paragraphs []Paragraph // paragraphs without an enclosing area
	Lines      []Line      // lines without an enclosing paragraph
}

// Area is a content region, class 'ocr_carea'.
type Area struct {
	ID         string
	BBox       BBox
	Paragraphs []Paragraph
	Lines      []Line
}

// Paragraph is a block of lines, class 'ocr_par'.
type Paragraph struct {
	ID    string
	BBox  BBox
	Lines []Line
}

// Line is one text line, class 'ocr_line'.
type Line struct {
	ID       string
	BBox     BBox
	Baseline string  // raw baseline property
	XSize    float64 // x_size property, the line's nominal glyph height
	Words    []Word
}

// Word is a positioned word, class 'ocrx_word'.
type Word struct {
	ID         string
	Text       string
	BBox       BBox
	Confidence float64 // x_wconf value, 0 to 100
}

// BBox is a top-down pixel rectangle from an hOCR bbox property.
type BBox struct {
	X1, Y1, X2, Y2 float64
}

// Width returns the horizontal extent of the box.
func (b BBox) Width() float64 { return b.X2 - b.X1 }

// Height returns the vertical extent of the box.
func (b BBox) Height() float64 { return b.Y2 - b.Y1 }

// Union returns the smallest box covering both b and o. A zero box acts as
// the identity.
func (b BBox) Union(o BBox) BBox {
	if b == (BBox{}) {
		return o
	}
	if o == (BBox{}) {
		return b
	}
	if o.X1 < b.X1 {
		b.X1 = o.X1
	}
	if o.Y1 < b.Y1 {
		b.Y1 = o.Y1
	}
	if o.X2 > b.X2 {
		b.X2 = o.X2
	}
	if o.Y2 > b.Y2 {
		b.Y2 = o.Y2
	}
	return b
}
