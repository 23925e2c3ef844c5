package hocr

import "strings"

// AllLines flattens a page's hierarchy into document order: areas first,
// then stray paragraphs, then stray lines.
func (p Page) AllLines() []Line {
	var lines []Line
	for _, area := range p.Areas {
		for _, par := range area.Paragraphs {
			lines = append(lines, par.Lines...)
		}
		lines = append(lines, area.Lines...)
	}
	for _, par := range p.Paragraphs {
		lines = append(lines, par.Lines...)
	}
	return append(lines, p.Lines...)
}

// Text joins every word of the document, one line per text line and a blank
// line between pages.
func (d *Document) Text() string {
	var b strings.Builder
	for i, page := range d.Pages {
		if i > 0 {
			b.WriteString("\n")
		}
		for _, line := range page.AllLines() {
			words := make([]string, 0, len(line.Words))
			for _, w := range line.Words {
				words = append(words, w.Text)
			}
			b.WriteString(strings.Join(words, " "))
			b.WriteString("\n")
		}
	}
	return b.String()
}
