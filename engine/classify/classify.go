// Package classify inspects an uploaded file and decides whether it holds
// question/answer records the engine can store.
package classify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/xuri/excelize/v2"

	"github.com/WessleyAI/ragqa/engine/domain"
)

// Kind tells structured record files apart from everything else.
type Kind int

const (
	Unsupported Kind = iota
	Structured
)

func (k Kind) String() string {
	if k == Structured {
		return "structured"
	}
	return "unsupported"
}

// Recognised formats.
const (
	FormatJSON     = "json"
	FormatXLSX     = "xlsx"
	FormatPDF      = "pdf"
	FormatWord     = "word"
	FormatZip      = "zip"
	FormatMarkdown = "markdown"
	FormatUnknown  = "unknown"
)

const (
	mimePDF  = "application/pdf"
	mimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	mimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	mimeZip  = "application/zip"
)

// markdownSniffLen bounds how much of a text file the markdown check reads.
const markdownSniffLen = 1024

var markdownRe = regexp.MustCompile(`(?m)^#{1,6}\s|^\s*[-*+]\s|!\[[^\]]*\]\([^)]*\)|\[[^\]]+\]\([^)]+\)`)

// Document is the classifier verdict for one file.
type Document struct {
	Kind    Kind
	Format  string
	Records []domain.QARecord
}

// Classify reads path and sorts it into a Document. Files that are readable
// but not record-shaped come back as Unsupported with a nil error; an error
// means the file could not be read or claims a structured format it does
// not honour.
func Classify(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("classify: read %s: %w", path, err)
	}
	return ClassifyBytes(data)
}

// ClassifyBytes is Classify over content already in memory.
func ClassifyBytes(data []byte) (Document, error) {
	mt := mimetype.Detect(data)
	switch {
	case mt.Is(mimePDF):
		return unsupported(FormatPDF), nil
	case mt.Is(mimeDOCX):
		return unsupported(FormatWord), nil
	case mt.Is(mimeXLSX):
		recs, err := decodeXLSX(data)
		if err != nil {
			return Document{Format: FormatXLSX}, err
		}
		return structured(FormatXLSX, recs), nil
	case isZip(mt):
		// Some writers produce workbooks mimetype cannot tell from a plain archive.
		if recs, err := decodeXLSX(data); err == nil {
			return structured(FormatXLSX, recs), nil
		}
		return unsupported(FormatZip), nil
	}

	trimmed := bytes.TrimSpace(data)
	if json.Valid(trimmed) && len(trimmed) > 0 {
		recs, err := decodeJSON(trimmed)
		if err != nil {
			return Document{Format: FormatJSON}, err
		}
		return structured(FormatJSON, recs), nil
	}

	head := data
	if len(head) > markdownSniffLen {
		head = head[:markdownSniffLen]
	}
	if markdownRe.Match(head) {
		return unsupported(FormatMarkdown), nil
	}
	return unsupported(FormatUnknown), nil
}

func structured(format string, recs []domain.QARecord) Document {
	return Document{Kind: Structured, Format: format, Records: recs}
}

func unsupported(format string) Document {
	return Document{Kind: Unsupported, Format: format}
}

func isZip(mt *mimetype.MIME) bool {
	for m := mt; m != nil; m = m.Parent() {
		if m.Is(mimeZip) {
			return true
		}
	}
	return false
}

// decodeJSON accepts only a top-level array of objects. Unknown keys are
// ignored; missing fields are left for record validation to reject.
func decodeJSON(data []byte) ([]domain.QARecord, error) {
	if data[0] != '[' {
		return nil, fmt.Errorf("classify: json: %w: top level is not an array", domain.ErrUnsupportedFormat)
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("classify: json: %w", err)
	}
	recs := make([]domain.QARecord, 0, len(raw))
	for i, item := range raw {
		item = bytes.TrimSpace(item)
		if len(item) == 0 || item[0] != '{' {
			return nil, fmt.Errorf("classify: json: element %d: %w: not an object", i, domain.ErrUnsupportedFormat)
		}
		var r domain.QARecord
		if err := json.Unmarshal(item, &r); err != nil {
			return nil, fmt.Errorf("classify: json: element %d: %w", i, err)
		}
		recs = append(recs, r)
	}
	return recs, nil
}

// decodeXLSX reads the first sheet whose header row names both an
// instruction and an output column. Rows after the header become records;
// fully blank rows are skipped.
func decodeXLSX(data []byte) ([]domain.QARecord, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("classify: open workbook: %w", err)
	}
	defer f.Close()

	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("classify: rows for sheet %q: %w", sheet, err)
		}
		if len(rows) == 0 {
			continue
		}
		inCol, outCol := headerColumns(rows[0])
		if inCol < 0 || outCol < 0 {
			continue
		}
		var recs []domain.QARecord
		for _, row := range rows[1:] {
			r := domain.QARecord{Instruction: cell(row, inCol), Output: cell(row, outCol)}
			if r.Instruction == "" && r.Output == "" {
				continue
			}
			recs = append(recs, r)
		}
		return recs, nil
	}
	return nil, fmt.Errorf("classify: workbook: %w: no sheet with %s and %s columns",
		domain.ErrUnsupportedFormat, domain.FieldInstruction, domain.FieldOutput)
}

func headerColumns(header []string) (in, out int) {
	in, out = -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case domain.FieldInstruction:
			if in < 0 {
				in = i
			}
		case domain.FieldOutput:
			if out < 0 {
				out = i
			}
		}
	}
	return in, out
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}
