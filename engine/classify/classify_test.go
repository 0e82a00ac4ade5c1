package classify

import (
	"archive/zip"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/WessleyAI/ragqa/engine/domain"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func writeWorkbook(t *testing.T, rows [][]string) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for r, row := range rows {
		for c, v := range row {
			ref, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				t.Fatal(err)
			}
			if err := f.SetCellValue("Sheet1", ref, v); err != nil {
				t.Fatal(err)
			}
		}
	}
	p := filepath.Join(t.TempDir(), "qa.xlsx")
	if err := f.SaveAs(p); err != nil {
		t.Fatal(err)
	}
	return p
}

func zipBytes(t *testing.T, names ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, n := range names {
		w, err := zw.Create(n)
		if err != nil {
			t.Fatal(err)
		}
		w.Write([]byte("<x/>"))
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestClassify_JSONArray(t *testing.T) {
	p := writeFile(t, "qa.json", []byte(`[
		{"instruction": "what is go", "output": "a language", "source": "faq"},
		{"instruction": "who made it", "output": "google"}
	]`))
	doc, err := Classify(p)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if doc.Kind != Structured || doc.Format != FormatJSON {
		t.Fatalf("got %v/%s", doc.Kind, doc.Format)
	}
	if len(doc.Records) != 2 || doc.Records[1].Output != "google" {
		t.Fatalf("records = %+v", doc.Records)
	}
}

func TestClassify_LargeJSON(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i := 0; i < 500; i++ {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(`{"instruction":"question number padded out to make the file long","output":"answer"}`)
	}
	buf.WriteByte(']')
	doc, err := Classify(writeFile(t, "big.json", buf.Bytes()))
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if doc.Kind != Structured || len(doc.Records) != 500 {
		t.Fatalf("got %v with %d records", doc.Kind, len(doc.Records))
	}
}

func TestClassify_JSONWrongShape(t *testing.T) {
	cases := map[string]string{
		"object":       `{"instruction":"a","output":"b"}`,
		"array of int": `[1, 2, 3]`,
		"scalar":       `"hello"`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Classify(writeFile(t, "x.json", []byte(body)))
			if err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestClassify_JSONEmptyArray(t *testing.T) {
	doc, err := Classify(writeFile(t, "empty.json", []byte(`[]`)))
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if doc.Kind != Structured || len(doc.Records) != 0 {
		t.Fatalf("got %+v", doc)
	}
}

func TestClassify_XLSX(t *testing.T) {
	p := writeWorkbook(t, [][]string{
		{"id", "Instruction", "Output"},
		{"1", "what is go", "a language"},
		{"", "", ""},
		{"2", "who made it", "google"},
	})
	doc, err := Classify(p)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if doc.Kind != Structured || doc.Format != FormatXLSX {
		t.Fatalf("got %v/%s", doc.Kind, doc.Format)
	}
	if len(doc.Records) != 2 {
		t.Fatalf("records = %+v", doc.Records)
	}
	if doc.Records[0].Instruction != "what is go" || doc.Records[1].Output != "google" {
		t.Fatalf("records = %+v", doc.Records)
	}
}

func TestClassify_XLSXMissingColumns(t *testing.T) {
	p := writeWorkbook(t, [][]string{
		{"question", "answer"},
		{"a", "b"},
	})
	_, err := Classify(p)
	if !errors.Is(err, domain.ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestClassify_PDF(t *testing.T) {
	doc, err := Classify(writeFile(t, "a.pdf", []byte("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n1 0 obj\n<<>>\nendobj\n")))
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if doc.Kind != Unsupported || doc.Format != FormatPDF {
		t.Fatalf("got %v/%s", doc.Kind, doc.Format)
	}
}

func TestClassify_Word(t *testing.T) {
	data := zipBytes(t, "[Content_Types].xml", "_rels/.rels", "word/document.xml")
	doc, err := Classify(writeFile(t, "a.docx", data))
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if doc.Kind != Unsupported || doc.Format != FormatWord {
		t.Fatalf("got %v/%s", doc.Kind, doc.Format)
	}
}

func TestClassify_PlainZip(t *testing.T) {
	data := zipBytes(t, "notes/readme.txt")
	doc, err := Classify(writeFile(t, "a.zip", data))
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if doc.Kind != Unsupported || doc.Format != FormatZip {
		t.Fatalf("got %v/%s", doc.Kind, doc.Format)
	}
}

func TestClassify_Markdown(t *testing.T) {
	cases := []string{
		"# Title\n\nbody text\n",
		"intro\n- item one\n- item two\n",
		"see [the docs](https://example.com) for more\n",
		"![diagram](img.png)\n",
	}
	for _, body := range cases {
		doc, err := Classify(writeFile(t, "a.md", []byte(body)))
		if err != nil {
			t.Fatalf("classify %q: %v", body, err)
		}
		if doc.Kind != Unsupported || doc.Format != FormatMarkdown {
			t.Fatalf("%q: got %v/%s", body, doc.Kind, doc.Format)
		}
	}
}

func TestClassify_Unknown(t *testing.T) {
	for _, body := range []string{"just some words\nand more words", ""} {
		doc, err := Classify(writeFile(t, "a.txt", []byte(body)))
		if err != nil {
			t.Fatalf("classify %q: %v", body, err)
		}
		if doc.Kind != Unsupported || doc.Format != FormatUnknown {
			t.Fatalf("%q: got %v/%s", body, doc.Kind, doc.Format)
		}
	}
}

func TestClassify_Unreadable(t *testing.T) {
	_, err := Classify(filepath.Join(t.TempDir(), "missing.json"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestKindString(t *testing.T) {
	if Structured.String() != "structured" || Unsupported.String() != "unsupported" {
		t.Fatal("unexpected kind names")
	}
}
