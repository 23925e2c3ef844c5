// overtype is a command-line tool for replacing text in PDF documents by
// painting over it.
//
// The tool extracts the positioned text runs of a document, matches an edit
// list against them and exports a copy of the document with each original
// run covered by an opaque rectangle and the replacement text painted on
// top. It can also dump the extracted runs as YAML, as an hOCR document or
// as plain text, and report the page geometry and text layer of a document.
//
// For scanned documents without a text layer the run source can be swapped:
// either an hOCR file, a Google Document AI processor, or a previously saved
// Document AI response.
//
// Edit list:
//
// Edits are described in a YAML file, matched either by text or by a
// device-pixel point at the chosen scale:
//
//	- page: 1
//	  find: "Acme Corp"
//	  replace: "Globex Inc"
//	- page: 1
//	  find: "Total"
//	  occurrence: 2
//	  replace: "Subtotal"
//	- page: 2
//	  at: [110, 85]
//	  replace: "Initech"
//
// Occurrences count through the page's unedited runs in extraction order.
//
// Usage:
//
//	overtype -pdf input.pdf [options]
//
// Required flags:
//
//	-pdf string     Path to the input PDF file
//
// Actions (at least one required):
//
//	-edits string     Path to the YAML edit list; requires -o
//	-o string         Path to save the edited PDF
//	-dump-runs string Path to save extracted text runs as YAML
//	-dump-hocr string Path to save the extracted text as an hOCR document
//	-text string      Path to save the extracted plain text
//	-info             Print page count, sizes and text layer probe as YAML
//	-save-ocr string  Path to save the raw Document AI response as JSON
//
// Text source options (at most one):
//
//	-hocr string       Path to an hOCR file to use as the text source
//	-ocr-config string Path to a Document AI YAML config (project_id,
//	                   location, processor_id); the document is OCRed and
//	                   the response used as the text source
//	-ocr-json string   Path to a saved Document AI response JSON to use as
//	                   the text source
//
// Processing options:
//
//	-scale float      Zoom scale mapping document units to device pixels (default 1)
//	-max-retries int  Retries after a failed document load attempt (default 3)
//	-debug            Log retries, fallbacks and degraded pages to stderr
//
// Document AI authentication uses the GOOGLE_APPLICATION_CREDENTIALS
// environment variable.
//
// Examples:
//
//	overtype -pdf invoice.pdf -edits edits.yml -o invoice_fixed.pdf
//	overtype -pdf invoice.pdf -info
//	overtype -pdf scan.pdf -ocr-config docai.yml -save-ocr scan.json -dump-hocr scan.hocr
//	overtype -pdf scan.pdf -ocr-json scan.json -edits edits.yml -o scan_fixed.pdf
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/WyRainBow/overtype/pkg/docai"
	"github.com/WyRainBow/overtype/pkg/editor"
	"github.com/WyRainBow/overtype/pkg/hocr"
	"github.com/WyRainBow/overtype/pkg/pdfdoc"
	"github.com/WyRainBow/overtype/pkg/textrun"
)

// editSpec is one entry of the YAML edit list.
type editSpec struct {
	Page       int       `yaml:"page"`
	Find       string    `yaml:"find"`
	Occurrence int       `yaml:"occurrence"`
	At         []float64 `yaml:"at"`
	Replace    string    `yaml:"replace"`
}

// runEntry is one extracted run in the -dump-runs output.
type runEntry struct {
	Text      string  `yaml:"text"`
	X         float64 `yaml:"x"`
	Y         float64 `yaml:"y"`
	Width     float64 `yaml:"width"`
	FontSize  float64 `yaml:"font_size"`
	Font      string  `yaml:"font,omitempty"`
	Dir       string  `yaml:"dir"`
	EndOfLine bool    `yaml:"end_of_line,omitempty"`
}

type runDump struct {
	Page   int        `yaml:"page"`
	Width  float64    `yaml:"width"`
	Height float64    `yaml:"height"`
	Runs   []runEntry `yaml:"runs"`
}

type pageInfo struct {
	Page   int     `yaml:"page"`
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`
	Text   bool    `yaml:"text_layer"`
	Runs   int     `yaml:"runs"`
}

type docInfo struct {
	PageCount int        `yaml:"page_count"`
	Pages     []pageInfo `yaml:"pages"`
}

// loadOCRConfig reads a YAML file into a Document AI config.
func loadOCRConfig(path string) (docai.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return docai.Config{}, err
	}
	var cfg docai.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return docai.Config{}, err
	}
	return cfg, nil
}

// loadEdits reads and validates the YAML edit list.
func loadEdits(path string) ([]editSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var specs []editSpec
	if err := yaml.Unmarshal(data, &specs); err != nil {
		return nil, err
	}
	for i, e := range specs {
		if e.Find == "" && len(e.At) != 2 {
			return nil, fmt.Errorf("edit %d: needs either find or at: [x, y]", i+1)
		}
		if e.Find != "" && len(e.At) != 0 {
			return nil, fmt.Errorf("edit %d: find and at are mutually exclusive", i+1)
		}
	}
	return specs, nil
}

// applyEdits resolves each spec against its page and drives the session
// through the click, type, finish sequence. Pages are rendered once, so
// occurrence counting always runs over the unedited runs.
func applyEdits(ctx context.Context, sess *editor.Session, specs []editSpec) error {
	views := make(map[int]*editor.PageView)
	for i, e := range specs {
		page := e.Page
		if page == 0 {
			page = 1
		}
		view, ok := views[page]
		if !ok {
			var err error
			view, err = sess.RenderPage(ctx, page)
			if err != nil {
				return fmt.Errorf("edit %d: rendering page %d: %w", i+1, page, err)
			}
			views[page] = view
		}

		var x, y float64
		if len(e.At) == 2 {
			x, y = e.At[0], e.At[1]
		} else {
			pos, found := findTarget(view, e.Find, e.Occurrence)
			if !found {
				return fmt.Errorf("edit %d: %q not found on page %d", i+1, e.Find, page)
			}
			x, y = pos.Left+pos.Width/2, pos.Top+pos.Height/2
		}

		if _, ok := sess.ClickAt(page, x, y); !ok {
			return fmt.Errorf("edit %d: no text at (%v, %v) on page %d", i+1, x, y, page)
		}
		sess.Type(e.Replace)
		sess.FinishActive()
	}
	return nil
}

// findTarget locates the nth hotspot on the page whose run contains text.
func findTarget(view *editor.PageView, text string, occurrence int) (textrun.Position, bool) {
	if occurrence < 1 {
		occurrence = 1
	}
	n := 0
	for _, h := range view.Overlay.Hotspots {
		if strings.Contains(h.Run.Text, text) {
			n++
			if n == occurrence {
				return h.Pos, true
			}
		}
	}
	return textrun.Position{}, false
}

// collectRunPages extracts every page's runs through the active source.
func collectRunPages(ctx context.Context, doc *pdfdoc.Document, src textrun.Source) ([]hocr.RunPage, error) {
	var pages []hocr.RunPage
	for page := 1; page <= doc.PageCount(); page++ {
		w, h, err := doc.PageSize(page)
		if err != nil {
			return nil, err
		}
		runs, err := src.PageRuns(ctx, page)
		if err != nil {
			return nil, fmt.Errorf("extracting page %d: %w", page, err)
		}
		pages = append(pages, hocr.RunPage{Number: page, Width: w, Height: h, Runs: runs})
	}
	return pages, nil
}

func dumpRunsYAML(pages []hocr.RunPage) ([]byte, error) {
	var dumps []runDump
	for _, p := range pages {
		d := runDump{Page: p.Number, Width: p.Width, Height: p.Height}
		for _, r := range p.Runs {
			d.Runs = append(d.Runs, runEntry{
				Text:      r.Text,
				X:         r.Transform[4],
				Y:         r.Transform[5],
				Width:     r.Width,
				FontSize:  r.FontSize(),
				Font:      r.FontName,
				Dir:       string(r.Dir),
				EndOfLine: r.EndOfLine,
			})
		}
		dumps = append(dumps, d)
	}
	return yaml.Marshal(dumps)
}

func main() {
	pdfPath := flag.String("pdf", "", "Path to the input PDF file (required)")
	editsPath := flag.String("edits", "", "Path to the YAML edit list to apply (requires -o)")
	outPath := flag.String("o", "", "Path to save the edited PDF")
	dumpRunsPath := flag.String("dump-runs", "", "Path to save extracted text runs as YAML")
	dumpHOCRPath := flag.String("dump-hocr", "", "Path to save the extracted text as an hOCR document")
	textPath := flag.String("text", "", "Path to save the extracted plain text")
	info := flag.Bool("info", false, "Print page count, sizes and text layer probe as YAML")
	hocrPath := flag.String("hocr", "", "Path to an hOCR file to use as the text source")
	ocrConfigPath := flag.String("ocr-config", "", "Path to a Document AI YAML config; OCR the document and use the response as the text source")
	ocrJSONPath := flag.String("ocr-json", "", "Path to a saved Document AI response JSON to use as the text source")
	saveOCRPath := flag.String("save-ocr", "", "Path to save the raw Document AI response as JSON (requires -ocr-config)")
	scale := flag.Float64("scale", 1, "Zoom scale mapping document units to device pixels")
	maxRetries := flag.Int("max-retries", 3, "Retries after a failed document load attempt")
	debug := flag.Bool("debug", false, "Log retries, fallbacks and degraded pages to stderr")
	flag.Parse()

	fail := func(msg string) {
		fmt.Fprintln(os.Stderr, "Error:", msg)
		fmt.Fprintln(os.Stderr, "Usage:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	if *pdfPath == "" {
		fail("-pdf flag is required")
	}
	if (*editsPath == "") != (*outPath == "") {
		fail("-edits and -o must be provided together")
	}
	sources := 0
	for _, s := range []string{*hocrPath, *ocrConfigPath, *ocrJSONPath} {
		if s != "" {
			sources++
		}
	}
	if sources > 1 {
		fail("at most one of -hocr, -ocr-config and -ocr-json may be provided")
	}
	if *saveOCRPath != "" && *ocrConfigPath == "" {
		fail("-save-ocr requires -ocr-config")
	}
	if *editsPath == "" && *dumpRunsPath == "" && *dumpHOCRPath == "" &&
		*textPath == "" && !*info && *saveOCRPath == "" {
		fail("at least one action must be provided (-edits, -dump-runs, -dump-hocr, -text, -info or -save-ocr)")
	}

	cfg := editor.DefaultConfig()
	cfg.Scale = *scale
	cfg.Load.MaxRetries = *maxRetries
	if *debug {
		cfg.Logger = os.Stderr
	}

	ctx := context.Background()
	sess := editor.NewSession(cfg)
	defer sess.Close()

	if err := sess.Open(ctx, pdfdoc.FromFile(*pdfPath)); err != nil {
		log.Fatalf("Failed to load document: %v", err)
	}
	doc := sess.Document()

	// The document's own text layer is the default run source; the OCR flags
	// replace it.
	var source textrun.Source = doc
	switch {
	case *hocrPath != "":
		data, err := os.ReadFile(*hocrPath)
		if err != nil {
			log.Fatalf("Failed to read hOCR file: %v", err)
		}
		parsed, err := hocr.Parse(data)
		if err != nil {
			log.Fatalf("Failed to parse hOCR file: %v", err)
		}
		source = hocr.NewSource(parsed, doc.PageSize)
		sess.SetSource(source)

	case *ocrConfigPath != "":
		ocrCfg, err := loadOCRConfig(*ocrConfigPath)
		if err != nil {
			log.Fatalf("Failed to load Document AI config: %v", err)
		}
		pdfBytes, err := doc.Bytes()
		if err != nil {
			log.Fatalf("Failed to read document bytes: %v", err)
		}
		fmt.Println("Processing document with Document AI...")
		resp, err := docai.Process(ctx, pdfBytes, ocrCfg)
		if err != nil {
			log.Fatalf("Failed to process document: %v", err)
		}
		if *saveOCRPath != "" {
			raw, err := docai.DocumentJSON(resp)
			if err != nil {
				log.Fatalf("Failed to encode Document AI response: %v", err)
			}
			if err := os.WriteFile(*saveOCRPath, []byte(raw), 0644); err != nil {
				log.Fatalf("Failed to write Document AI response: %v", err)
			}
			fmt.Println("Document AI response saved to:", *saveOCRPath)
		}
		source = docai.NewSource(resp, doc.PageSize)
		sess.SetSource(source)

	case *ocrJSONPath != "":
		data, err := os.ReadFile(*ocrJSONPath)
		if err != nil {
			log.Fatalf("Failed to read Document AI response: %v", err)
		}
		resp, err := docai.DocumentFromJSON(data)
		if err != nil {
			log.Fatalf("Failed to decode Document AI response: %v", err)
		}
		source = docai.NewSource(resp, doc.PageSize)
		sess.SetSource(source)
	}

	if *info {
		out := docInfo{PageCount: doc.PageCount()}
		for page := 1; page <= doc.PageCount(); page++ {
			w, h, err := doc.PageSize(page)
			if err != nil {
				log.Fatalf("Failed to read page %d size: %v", page, err)
			}
			runs, err := source.PageRuns(ctx, page)
			if err != nil {
				log.Fatalf("Failed to extract page %d: %v", page, err)
			}
			out.Pages = append(out.Pages, pageInfo{
				Page: page, Width: w, Height: h,
				Text: doc.HasText(ctx, page), Runs: len(runs),
			})
		}
		data, err := yaml.Marshal(out)
		if err != nil {
			log.Fatalf("Failed to marshal document info: %v", err)
		}
		os.Stdout.Write(data)
	}

	if *dumpRunsPath != "" || *dumpHOCRPath != "" || *textPath != "" {
		pages, err := collectRunPages(ctx, doc, source)
		if err != nil {
			log.Fatalf("Failed to extract text runs: %v", err)
		}

		if *dumpRunsPath != "" {
			data, err := dumpRunsYAML(pages)
			if err != nil {
				log.Fatalf("Failed to marshal text runs: %v", err)
			}
			if err := os.WriteFile(*dumpRunsPath, data, 0644); err != nil {
				log.Fatalf("Failed to write text runs: %v", err)
			}
			fmt.Println("Text runs saved to:", *dumpRunsPath)
		}

		if *dumpHOCRPath != "" || *textPath != "" {
			hdoc := hocr.FromRuns(pages)
			if *dumpHOCRPath != "" {
				html, err := hocr.Generate(hdoc)
				if err != nil {
					log.Fatalf("Failed to render hOCR: %v", err)
				}
				if err := os.WriteFile(*dumpHOCRPath, []byte(html), 0644); err != nil {
					log.Fatalf("Failed to write hOCR output: %v", err)
				}
				fmt.Println("hOCR output saved to:", *dumpHOCRPath)
			}
			if *textPath != "" {
				if err := os.WriteFile(*textPath, []byte(hdoc.Text()), 0644); err != nil {
					log.Fatalf("Failed to write text output: %v", err)
				}
				fmt.Println("Document text saved to:", *textPath)
			}
		}
	}

	if *editsPath != "" {
		specs, err := loadEdits(*editsPath)
		if err != nil {
			log.Fatalf("Failed to load edit list: %v", err)
		}
		fmt.Printf("Applying %d edits...\n", len(specs))
		if err := applyEdits(ctx, sess, specs); err != nil {
			log.Fatalf("Failed to apply edits: %v", err)
		}
		out, err := sess.Export(ctx)
		if err != nil {
			log.Fatalf("Failed to export document: %v", err)
		}
		if err := os.WriteFile(*outPath, out, 0644); err != nil {
			log.Fatalf("Failed to write edited PDF: %v", err)
		}
		fmt.Println("Edited PDF saved to:", *outPath)
	}
}
