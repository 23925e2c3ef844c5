// Package hocr reads and writes hOCR, the HTML-based format for positioned
// page text, and adapts parsed documents into text runs for editing.
//
// The hierarchy follows the format: Document → Pages → Areas → Paragraphs →
// Lines → Words, each element carrying a top-down pixel bounding box parsed
// from its title attribute.
//
// Parse and Generate convert between raw hOCR HTML and the object model.
// Source converts a parsed document into per-page text runs in document
// units, and FromRuns assembles a document from runs, so positioned text can
// round trip through the format.
package hocr
