// Package extract pulls text, simple tables, and metadata out of PDF files.
package extract

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrNotPDF is returned when a file cannot be opened as a PDF at all.
var ErrNotPDF = errors.New("not a valid pdf")

// Result is the output of the extract stage.
type Result struct {
	Text           string   `json:"text"`
	PageCount      int      `json:"page_count"`
	PagesProcessed int      `json:"pages_processed"`
	Tables         []Table  `json:"tables,omitempty"`
	Metadata       Metadata `json:"metadata"`
}

// Table is a run of consecutive multi-cell rows found on one page.
type Table struct {
	Page int        `json:"page"`
	Rows [][]string `json:"rows"`
}

// Metadata carries the document info dictionary fields we surface.
type Metadata struct {
	Title  string `json:"title,omitempty"`
	Author string `json:"author,omitempty"`
}

// Extractor reads PDFs up to a page limit.
type Extractor struct {
	maxPages int
}

// New creates an Extractor processing at most maxPages pages (default 3
// if <= 0, matching the service default).
func New(maxPages int) *Extractor {
	if maxPages <= 0 {
		maxPages = 3
	}
	return &Extractor{maxPages: maxPages}
}

// FromFile extracts text (and tables when withTables is set) from the PDF
// at path. Table extraction failures are tolerated: the text result still
// stands, since tables are best-effort.
func (e *Extractor) FromFile(path string, withTables bool) (Result, error) {
	if _, err := os.Stat(path); err != nil {
		return Result{}, fmt.Errorf("pdf file not found: %w", err)
	}

	f, r, err := pdf.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("opening pdf: %w", err)
	}
	defer f.Close()

	total := r.NumPage()
	limit := total
	if limit > e.maxPages {
		limit = e.maxPages
	}

	var pages []string
	var tables []Table
	for n := 1; n <= limit; n++ {
		page := r.Page(n)
		if page.V.IsNull() {
			continue
		}

		rows, err := page.GetTextByRow()
		if err != nil {
			return Result{}, fmt.Errorf("reading page %d: %w", n, err)
		}

		text := rowsToText(rows)
		pages = append(pages, fmt.Sprintf("=== Page %d ===\n%s", n, text))

		if withTables {
			if t := rowsToTable(rows); len(t) > 0 {
				tables = append(tables, Table{Page: n, Rows: t})
			}
		}
	}

	return Result{
		Text:           strings.Join(pages, "\n\n"),
		PageCount:      total,
		PagesProcessed: limit,
		Tables:         tables,
		Metadata:       readMetadata(r),
	}, nil
}

// PageCount opens the PDF just far enough to validate it and count pages.
// Used by the upload handler before a document record is created.
func PageCount(path string) (int, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNotPDF, err)
	}
	defer f.Close()
	return r.NumPage(), nil
}

func readMetadata(r *pdf.Reader) Metadata {
	defer func() { recover() }() // malformed info dictionaries abound

	var m Metadata
	info := r.Trailer().Key("Info")
	if info.IsNull() {
		return m
	}
	m.Title = info.Key("Title").RawString()
	m.Author = info.Key("Author").RawString()
	return m
}

// rowsToText joins each row's text fragments with single spaces, rows with
// newlines. Rows arrive top-to-bottom from the reader.
func rowsToText(rows pdf.Rows) string {
	var b strings.Builder
	for i, row := range rows {
		if i > 0 {
			b.WriteByte('\n')
		}
		for j, cell := range rowCells(row) {
			if j > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(cell)
		}
	}
	return b.String()
}

// cellGap is the horizontal distance (in PDF units) between two text
// fragments that splits them into separate cells.
const cellGap = 18.0

// rowCells groups one row's fragments into cells by horizontal gaps.
func rowCells(row *pdf.Row) []string {
	var cells []string
	var cur strings.Builder
	var lastEnd float64

	for i, t := range row.Content {
		if i > 0 && t.X-lastEnd > cellGap {
			cells = append(cells, strings.TrimSpace(cur.String()))
			cur.Reset()
		}
		cur.WriteString(t.S)
		lastEnd = t.X + t.W
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		cells = append(cells, s)
	}
	return cells
}

// rowsToTable keeps the longest run of consecutive rows with two or more
// cells; shorter runs are treated as layout noise, not tables.
func rowsToTable(rows pdf.Rows) [][]string {
	var best, cur [][]string
	flush := func() {
		if len(cur) >= 2 && len(cur) > len(best) {
			best = cur
		}
		cur = nil
	}

	for _, row := range rows {
		cells := rowCells(row)
		if len(cells) >= 2 {
			cur = append(cur, cells)
			continue
		}
		flush()
	}
	flush()
	return best
}
