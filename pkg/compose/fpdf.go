package compose

import (
	"bytes"
	"fmt"
	"io"

	"codeberg.org/go-pdf/fpdf"
	"codeberg.org/go-pdf/fpdf/contrib/gofpdi"
	"golang.org/x/text/encoding/charmap"
)

// FpdfWriter opens documents with fpdf, importing every original page as a
// template so untouched pages ride through to the output unchanged.
type FpdfWriter struct{}

// Open implements Writer. The bytes are parsed independently of any live
// viewer state.
func (FpdfWriter) Open(original []byte) (doc Doc, err error) {
	defer captureImportPanic(&err)

	d := &fpdfDoc{
		pdf:       fpdf.New("P", "pt", "", ""),
		imp:       gofpdi.NewImporter(),
		rs:        bytes.NewReader(original),
		templates: make(map[int]int),
	}
	// Importing the first page binds the reader to the importer, which makes
	// the media boxes of every source page available.
	d.templates[1] = d.imp.ImportPageFromStream(d.pdf, &d.rs, 1, "/MediaBox")
	d.sizes = d.imp.GetPageSizes()
	return d, nil
}

type fpdfDoc struct {
	pdf       *fpdf.Fpdf
	imp       *gofpdi.Importer
	rs        io.ReadSeeker
	templates map[int]int
	sizes     map[int]map[string]map[string]float64
	current   int
}

func (d *fpdfDoc) PageCount() int {
	return len(d.sizes)
}

func (d *fpdfDoc) PageSize(page int) (float64, float64, error) {
	box, ok := d.sizes[page]["/MediaBox"]
	if !ok {
		return 0, 0, fmt.Errorf("no media box for page %d", page)
	}
	return box["w"], box["h"], nil
}

func (d *fpdfDoc) Page(page int) (c Canvas, err error) {
	defer captureImportPanic(&err)

	if page <= d.current {
		return nil, fmt.Errorf("page %d already composed, pages are visited in ascending order", page)
	}
	w, h, err := d.PageSize(page)
	if err != nil {
		return nil, err
	}
	tpl, ok := d.templates[page]
	if !ok {
		tpl = d.imp.ImportPageFromStream(d.pdf, &d.rs, page, "/MediaBox")
		d.templates[page] = tpl
	}
	d.pdf.AddPageFormat("P", fpdf.SizeType{Wd: w, Ht: h})
	d.imp.UseImportedTemplate(d.pdf, tpl, 0, 0, w, 0)
	d.current = page
	return &fpdfCanvas{pdf: d.pdf, pageHeight: h}, nil
}

func (d *fpdfDoc) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := d.pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// fpdfCanvas adapts the bottom-left-origin Canvas contract onto fpdf's
// top-down page coordinates.
type fpdfCanvas struct {
	pdf        *fpdf.Fpdf
	pageHeight float64
}

func (c *fpdfCanvas) Rect(x, y, w, h float64, fill RGB) {
	c.pdf.SetFillColor(fill.R, fill.G, fill.B)
	c.pdf.Rect(x, c.pageHeight-y-h, w, h, "F")
}

func (c *fpdfCanvas) Text(x, y float64, s string, font Font, size float64, fill RGB) error {
	// Convert to ISO-8859-1 to match the core font encoding.
	latin1, encErr := charmap.ISO8859_1.NewEncoder().String(s)
	if encErr != nil {
		latin1 = s // paint the raw text rather than dropping the edit
	}
	c.pdf.SetFont(font.Name, font.Style, size)
	c.pdf.SetTextColor(fill.R, fill.G, fill.B)
	c.pdf.Text(x, c.pageHeight-y, latin1)
	if encErr != nil {
		return fmt.Errorf("%w: %v", ErrTextEncoding, encErr)
	}
	return nil
}

// captureImportPanic converts gofpdi's panics on malformed input into
// errors.
func captureImportPanic(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("reading original document: %v", r)
	}
}
