package pdfdoc

import (
	"strconv"
	"strings"

	"github.com/WyRainBow/overtype/pkg/coords"
	"github.com/WyRainBow/overtype/pkg/measure"
	"github.com/WyRainBow/overtype/pkg/textrun"
)

// runsFromContent walks a decoded page content stream and yields one TextRun
// per text-showing operator, tracking the text matrix, line matrix and CTM
// the way a viewer would. fonts maps font resource names to base font names.
//
// The walker is deliberately tolerant: unknown operators clear the operand
// stack and move on, so a page drawing operators outside the text subset
// still extracts.
func runsFromContent(content []byte, fonts map[string]string) []textrun.TextRun {
	x := &extractor{fonts: fonts, ctm: coords.Identity(), hscale: 1}
	lex := lexer{data: content}
	var operands []token

	for {
		t, ok := lex.next()
		if !ok {
			break
		}
		switch t.kind {
		case tokArrayEnd:
			// Collapse back to the matching array start.
			for i := len(operands) - 1; i >= 0; i-- {
				if operands[i].kind == tokArrayStart {
					arr := token{kind: tokArray, arr: append([]token(nil), operands[i+1:]...)}
					operands = append(operands[:i], arr)
					break
				}
			}
		case tokOperator:
			x.apply(t.op, operands)
			operands = operands[:0]
		default:
			operands = append(operands, t)
		}
	}
	return x.runs
}

// extractor holds the graphics and text state of the walk.
type extractor struct {
	fonts map[string]string

	ctm   coords.Matrix
	saved []coords.Matrix

	tm       coords.Matrix // text matrix
	lm       coords.Matrix // line matrix
	font     string
	fontSize float64
	leading  float64
	charSp   float64
	wordSp   float64
	hscale   float64
	inText   bool

	runs []textrun.TextRun
}

func (x *extractor) apply(op string, args []token) {
	switch op {
	case "BT":
		x.inText = true
		x.tm = coords.Identity()
		x.lm = coords.Identity()
	case "ET":
		x.inText = false
	case "Td":
		if len(args) >= 2 {
			x.moveLine(num(args, 0), num(args, 1))
		}
	case "TD":
		if len(args) >= 2 {
			x.leading = -num(args, 1)
			x.moveLine(num(args, 0), num(args, 1))
		}
	case "Tm":
		if len(args) >= 6 {
			m := coords.Matrix{num(args, 0), num(args, 1), num(args, 2), num(args, 3), num(args, 4), num(args, 5)}
			x.tm = m
			x.lm = m
		}
	case "T*":
		x.moveLine(0, -x.leading)
	case "TL":
		if len(args) >= 1 {
			x.leading = num(args, 0)
		}
	case "Tc":
		if len(args) >= 1 {
			x.charSp = num(args, 0)
		}
	case "Tw":
		if len(args) >= 1 {
			x.wordSp = num(args, 0)
		}
	case "Tz":
		if len(args) >= 1 {
			x.hscale = num(args, 0) / 100
		}
	case "Tf":
		if len(args) >= 2 {
			x.font = args[0].name
			x.fontSize = num(args, 1)
		}
	case "Tj":
		if len(args) >= 1 {
			x.show(decodeString(args[0].str))
		}
	case "TJ":
		if len(args) >= 1 && args[0].kind == tokArray {
			x.showArray(args[0].arr)
		}
	case "'":
		x.moveLine(0, -x.leading)
		if len(args) >= 1 {
			x.show(decodeString(args[0].str))
		}
	case "\"":
		if len(args) >= 3 {
			x.wordSp = num(args, 0)
			x.charSp = num(args, 1)
			x.moveLine(0, -x.leading)
			x.show(decodeString(args[2].str))
		}
	case "q":
		x.saved = append(x.saved, x.ctm)
	case "Q":
		if n := len(x.saved); n > 0 {
			x.ctm = x.saved[n-1]
			x.saved = x.saved[:n-1]
		}
	case "cm":
		if len(args) >= 6 {
			m := coords.Matrix{num(args, 0), num(args, 1), num(args, 2), num(args, 3), num(args, 4), num(args, 5)}
			x.ctm = m.Mul(x.ctm)
		}
	}
}

// moveLine starts a new text line, marking the previous run as the end of
// its line when the move is vertical.
func (x *extractor) moveLine(tx, ty float64) {
	x.lm = coords.Translation(tx, ty).Mul(x.lm)
	x.tm = x.lm
	if ty != 0 && len(x.runs) > 0 {
		x.runs[len(x.runs)-1].EndOfLine = true
	}
}

// show emits one run for a text-showing operator and advances the pen.
func (x *extractor) show(text string) {
	if !x.inText || text == "" {
		return
	}
	advance := x.advanceOf(text)
	x.emit(text, advance)
	x.tm = coords.Translation(advance, 0).Mul(x.tm)
}

// showArray emits a single run for a TJ array, folding the positioning
// adjustments into the run's advance the way a viewer folds them into the
// pen position.
func (x *extractor) showArray(elems []token) {
	if !x.inText {
		return
	}
	var b strings.Builder
	total := 0.0
	for _, el := range elems {
		switch el.kind {
		case tokString:
			s := decodeString(el.str)
			b.WriteString(s)
			total += x.advanceOf(s)
		case tokNumber:
			// Thousandths of text space; positive values tighten.
			total -= el.num / 1000 * x.fontSize * x.hscale
		}
	}
	text := b.String()
	if text == "" {
		x.tm = coords.Translation(total, 0).Mul(x.tm)
		return
	}
	x.emit(text, total)
	x.tm = coords.Translation(total, 0).Mul(x.tm)
}

// advanceOf approximates the pen advance of text in text-space units. Glyph
// width programs are not consulted; the analytical width model keeps the
// extractor independent of font files, which is enough to place hotspots.
func (x *extractor) advanceOf(text string) float64 {
	w := measure.Heuristic(text, x.fontSize, 1.0, 0.6) * x.hscale
	if n := len([]rune(text)); n > 0 {
		w += x.charSp * float64(n)
	}
	if spaces := strings.Count(text, " "); spaces > 0 {
		w += x.wordSp * float64(spaces)
	}
	return w
}

func (x *extractor) emit(text string, advance float64) {
	trm := coords.Scaled(x.fontSize, x.fontSize).Mul(x.tm).Mul(x.ctm)
	placed := x.tm.Mul(x.ctm)

	run := textrun.TextRun{
		Text:      text,
		Dir:       textrun.DirectionOf(text),
		Width:     advance * placed.ScaleX(),
		Height:    trm.ScaleY(),
		Transform: trm,
		FontName:  x.baseFont(),
	}
	x.runs = append(x.runs, run)
}

// baseFont resolves the current font resource name against the page's font
// resources, stripping any subset tag.
func (x *extractor) baseFont() string {
	base, ok := x.fonts[x.font]
	if !ok {
		return x.font
	}
	return stripSubsetTag(base)
}

// stripSubsetTag removes the "ABCDEF+" prefix of subsetted font names.
func stripSubsetTag(name string) string {
	if len(name) > 7 && name[6] == '+' {
		for _, r := range name[:6] {
			if r < 'A' || r > 'Z' {
				return name
			}
		}
		return name[7:]
	}
	return name
}

// decodeString maps raw PDF string bytes to text: UTF-16BE when the byte
// order mark is present, otherwise a Latin-1 view of the bytes.
func decodeString(b []byte) string {
	if len(b) >= 2 && b[0] == 0xFE && b[1] == 0xFF {
		var sb strings.Builder
		for i := 2; i+1 < len(b); i += 2 {
			sb.WriteRune(rune(uint16(b[i])<<8 | uint16(b[i+1])))
		}
		return sb.String()
	}
	var sb strings.Builder
	for _, c := range b {
		sb.WriteRune(rune(c))
	}
	return sb.String()
}

// Token kinds produced by the lexer.
const (
	tokNumber = iota
	tokString
	tokName
	tokArrayStart
	tokArrayEnd
	tokArray
	tokDictStart
	tokDictEnd
	tokOperator
)

type token struct {
	kind int
	num  float64
	str  []byte
	name string
	op   string
	arr  []token
}

// lexer splits a content stream into tokens. It understands literal and hex
// strings, names, numbers, arrays and dictionary brackets; anything else
// surfaces as an operator token.
type lexer struct {
	data []byte
	pos  int
}

func (l *lexer) next() (token, bool) {
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		switch {
		case isWhitespace(c):
			l.pos++
		case c == '%':
			l.skipComment()
		case c == '(':
			l.pos++
			return token{kind: tokString, str: l.readLiteral()}, true
		case c == '<':
			if l.pos+1 < len(l.data) && l.data[l.pos+1] == '<' {
				l.pos += 2
				return token{kind: tokDictStart}, true
			}
			l.pos++
			return token{kind: tokString, str: l.readHex()}, true
		case c == '>':
			if l.pos+1 < len(l.data) && l.data[l.pos+1] == '>' {
				l.pos += 2
				return token{kind: tokDictEnd}, true
			}
			l.pos++
		case c == '[':
			l.pos++
			return token{kind: tokArrayStart}, true
		case c == ']':
			l.pos++
			return token{kind: tokArrayEnd}, true
		case c == '/':
			l.pos++
			return token{kind: tokName, name: l.readRegular()}, true
		default:
			word := l.readRegular()
			if word == "" {
				l.pos++ // stray delimiter, e.g. '{' or '}'
				continue
			}
			if n, err := strconv.ParseFloat(word, 64); err == nil {
				return token{kind: tokNumber, num: n}, true
			}
			return token{kind: tokOperator, op: word}, true
		}
	}
	return token{}, false
}

// readLiteral consumes a (...) string with balanced parentheses and the
// standard escape sequences.
func (l *lexer) readLiteral() []byte {
	var out []byte
	depth := 1
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		l.pos++
		switch c {
		case '\\':
			if l.pos >= len(l.data) {
				return out
			}
			e := l.data[l.pos]
			l.pos++
			switch e {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			case 'b':
				out = append(out, '\b')
			case 'f':
				out = append(out, '\f')
			case '(', ')', '\\':
				out = append(out, e)
			case '\n':
				// line continuation
			case '\r':
				if l.pos < len(l.data) && l.data[l.pos] == '\n' {
					l.pos++
				}
			default:
				if e >= '0' && e <= '7' {
					v := int(e - '0')
					for i := 0; i < 2 && l.pos < len(l.data); i++ {
						d := l.data[l.pos]
						if d < '0' || d > '7' {
							break
						}
						v = v*8 + int(d-'0')
						l.pos++
					}
					out = append(out, byte(v))
				} else {
					out = append(out, e)
				}
			}
		case '(':
			depth++
			out = append(out, c)
		case ')':
			depth--
			if depth == 0 {
				return out
			}
			out = append(out, c)
		default:
			out = append(out, c)
		}
	}
	return out
}

// readHex consumes a <...> hex string, padding an odd final digit with zero.
func (l *lexer) readHex() []byte {
	var digits []byte
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		l.pos++
		if c == '>' {
			break
		}
		if isHexDigit(c) {
			digits = append(digits, c)
		}
	}
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	out := make([]byte, 0, len(digits)/2)
	for i := 0; i+1 < len(digits); i += 2 {
		out = append(out, hexVal(digits[i])<<4|hexVal(digits[i+1]))
	}
	return out
}

// readRegular consumes a run of regular characters: a number, an operator
// or a name body.
func (l *lexer) readRegular() string {
	start := l.pos
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		if isWhitespace(c) || isDelimiter(c) {
			break
		}
		l.pos++
	}
	return string(l.data[start:l.pos])
}

func (l *lexer) skipComment() {
	for l.pos < len(l.data) && l.data[l.pos] != '\n' && l.data[l.pos] != '\r' {
		l.pos++
	}
}

// num reads the i-th operand as a number, zero when absent or mistyped.
func num(args []token, i int) float64 {
	if i >= len(args) || args[i].kind != tokNumber {
		return 0
	}
	return args[i].num
}

func isWhitespace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '\f' || b == 0
}

func isDelimiter(b byte) bool {
	return b == '(' || b == ')' || b == '<' || b == '>' || b == '[' || b == ']' ||
		b == '{' || b == '}' || b == '/' || b == '%'
}

func isHexDigit(b byte) bool {
	return b >= '0' && b <= '9' || b >= 'a' && b <= 'f' || b >= 'A' && b <= 'F'
}

func hexVal(b byte) byte {
	switch {
	case b >= '0' && b <= '9':
		return b - '0'
	case b >= 'a' && b <= 'f':
		return b - 'a' + 10
	default:
		return b - 'A' + 10
	}
}
