package hocr

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/text/encoding/charmap"
)

// Parse converts raw hOCR bytes into a Document. Legacy files declaring a
// non-UTF-8 charset are decoded as Latin-1 first.
func Parse(data []byte) (*Document, error) {
	if cs := declaredCharset(data); cs != "" && cs != "utf-8" {
		decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
		if err != nil {
			return nil, fmt.Errorf("decoding %s document: %w", cs, err)
		}
		data = decoded
	}

	root, err := html.Parse(strings.NewReader(string(data)))
	if err != nil {
		return nil, err
	}

	doc := &Document{}
	readHead(doc, root)
	walk(root, func(n *html.Node) bool {
		if hasClass(n, "ocr_page") {
			doc.Pages = append(doc.Pages, buildPage(n))
			return true
		}
		return false
	})
	if len(doc.Pages) == 0 {
		return nil, fmt.Errorf("no ocr_page elements found")
	}
	return doc, nil
}

// ParseTitle splits an hOCR title attribute into its properties.
// "bbox 1 2 3 4; x_wconf 95" yields {"bbox": [1 2 3 4], "x_wconf": [95]}.
func ParseTitle(title string) map[string][]string {
	props := make(map[string][]string)
	for _, part := range strings.Split(title, ";") {
		fields := strings.Fields(strings.TrimSpace(part))
		if len(fields) > 0 {
			props[fields[0]] = fields[1:]
		}
	}
	return props
}

// declaredCharset sniffs a charset= declaration from the raw bytes.
func declaredCharset(data []byte) string {
	content := string(data)
	i := strings.Index(content, "charset=")
	if i < 0 {
		return ""
	}
	rest := content[i+len("charset="):]
	end := strings.IndexFunc(rest, func(r rune) bool {
		return r == '"' || r == '\'' || r == ';' || r == '>' || r == ' '
	})
	if end < 0 {
		end = len(rest)
	}
	return strings.ToLower(rest[:end])
}

// readHead pulls the title and recognized meta entries from the head.
func readHead(doc *Document, root *html.Node) {
	walk(root, func(n *html.Node) bool {
		switch n.Data {
		case "html":
			if lang := attrOf(n, "lang"); lang != "" {
				doc.Language = lang
			}
		case "title":
			if n.FirstChild != nil {
				doc.Title = strings.TrimSpace(n.FirstChild.Data)
			}
		case "meta":
			name, content := attrOf(n, "name"), attrOf(n, "content")
			switch name {
			case "ocr-system":
				doc.System = content
			case "dc.language":
				doc.Language = content
			}
		case "body":
			return true
		}
		return false
	})
}

func buildPage(n *html.Node) Page {
	props := ParseTitle(attrOf(n, "title"))
	page := Page{
		ID:   attrOf(n, "id"),
		BBox: bboxOf(props),
	}
	if v, ok := props["image"]; ok && len(v) > 0 {
		page.Image = strings.Trim(v[0], `"`)
	}
	if v, ok := props["ppageno"]; ok && len(v) > 0 {
		page.Number, _ = strconv.Atoi(v[0])
	}
	walkChildren(n, func(c *html.Node) bool {
		switch {
		case hasClass(c, "ocr_carea"):
			page.Areas = append(page.Areas, buildArea(c))
		case hasClass(c, "ocr_par"):
			page.Paragraphs = append(page.Paragraphs, buildParagraph(c))
		case hasClass(c, "ocr_line"):
			page.Lines = append(page.Lines, buildLine(c))
		default:
			return false
		}
		return true
	})
	return page
}

func buildArea(n *html.Node) Area {
	area := Area{
		ID:   attrOf(n, "id"),
		BBox: bboxOf(ParseTitle(attrOf(n, "title"))),
	}
	walkChildren(n, func(c *html.Node) bool {
		switch {
		case hasClass(c, "ocr_par"):
			area.Paragraphs = append(area.Paragraphs, buildParagraph(c))
		case hasClass(c, "ocr_line"):
			area.Lines = append(area.Lines, buildLine(c))
		default:
			return false
		}
		return true
	})
	return area
}

func buildParagraph(n *html.Node) Paragraph {
	par := Paragraph{
		ID:   attrOf(n, "id"),
		BBox: bboxOf(ParseTitle(attrOf(n, "title"))),
	}
	walkChildren(n, func(c *html.Node) bool {
		if hasClass(c, "ocr_line") {
			par.Lines = append(par.Lines, buildLine(c))
			return true
		}
		return false
	})
	return par
}

func buildLine(n *html.Node) Line {
	props := ParseTitle(attrOf(n, "title"))
	line := Line{
		ID:   attrOf(n, "id"),
		BBox: bboxOf(props),
	}
	if v, ok := props["baseline"]; ok {
		line.Baseline = strings.Join(v, " ")
	}
	if v, ok := props["x_size"]; ok && len(v) > 0 {
		line.XSize, _ = strconv.ParseFloat(v[0], 64)
	}
	walkChildren(n, func(c *html.Node) bool {
		if hasClass(c, "ocrx_word") {
			line.Words = append(line.Words, buildWord(c))
			return true
		}
		return false
	})
	return line
}

func buildWord(n *html.Node) Word {
	props := ParseTitle(attrOf(n, "title"))
	word := Word{
		ID:   attrOf(n, "id"),
		Text: textOf(n),
		BBox: bboxOf(props),
	}
	if v, ok := props["x_wconf"]; ok && len(v) > 0 {
		word.Confidence, _ = strconv.ParseFloat(v[0], 64)
	}
	return word
}

// bboxOf reads the bbox property out of parsed title properties.
func bboxOf(props map[string][]string) BBox {
	v, ok := props["bbox"]
	if !ok || len(v) < 4 {
		return BBox{}
	}
	x1, _ := strconv.ParseFloat(v[0], 64)
	y1, _ := strconv.ParseFloat(v[1], 64)
	x2, _ := strconv.ParseFloat(v[2], 64)
	y2, _ := strconv.ParseFloat(v[3], 64)
	return BBox{X1: x1, Y1: y1, X2: x2, Y2: y2}
}

// walk visits every element node under n. visit returns true to claim the
// subtree and stop descending into it.
func walk(n *html.Node, visit func(*html.Node) bool) {
	if n.Type == html.ElementNode && visit(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, visit)
	}
}

// walkChildren visits element nodes strictly below n.
func walkChildren(n *html.Node, visit func(*html.Node) bool) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, visit)
	}
}

func hasClass(n *html.Node, class string) bool {
	return n.Type == html.ElementNode && strings.Contains(attrOf(n, "class"), class)
}

func attrOf(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// textOf collects and trims all text under a node.
func textOf(n *html.Node) string {
	var b strings.Builder
	var rec func(*html.Node)
	rec = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			rec(c)
		}
	}
	rec(n)
	return strings.TrimSpace(b.String())
}
