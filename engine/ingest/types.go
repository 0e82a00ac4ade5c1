package ingest

import (
	"errors"
	"fmt"

	"github.com/WessleyAI/ragqa/engine/domain"
)

// Outcome is the end state of one ingested file.
type Outcome int

const (
	Failed Outcome = iota
	Stored
	FormatMismatch
)

var outcomeNames = [...]string{
	Failed:         "failed",
	Stored:         "stored",
	FormatMismatch: "format_mismatch",
}

func (o Outcome) String() string {
	if o < 0 || int(o) >= len(outcomeNames) {
		return "unknown"
	}
	return outcomeNames[o]
}

// MarshalText encodes the outcome by name.
func (o Outcome) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

// UnmarshalText decodes an outcome name.
func (o *Outcome) UnmarshalText(b []byte) error {
	for i, n := range outcomeNames {
		if n == string(b) {
			*o = Outcome(i)
			return nil
		}
	}
	return fmt.Errorf("ingest: unknown outcome %q", b)
}

// Report summarises one IngestFile call. Err is carried in-process only;
// Error is its text for JSON consumers.
type Report struct {
	Path    string  `json:"path"`
	Outcome Outcome `json:"outcome"`
	Format  string  `json:"format,omitempty"`
	Records int     `json:"records"`
	Error   string  `json:"error,omitempty"`
	Err     error   `json:"-"`
}

// FormatError reports that a file is not something the store accepts.
type FormatError struct {
	Format string
	Err    error
}

func (e *FormatError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", domain.ErrUnsupportedFormat, e.Format)
	}
	return fmt.Sprintf("%s: %s: %s", domain.ErrUnsupportedFormat, e.Format, e.Err)
}

func (e *FormatError) Unwrap() []error {
	if e.Err == nil {
		return []error{domain.ErrUnsupportedFormat}
	}
	return []error{domain.ErrUnsupportedFormat, e.Err}
}

func reportFor(path string, stored storedDoc, err error) Report {
	r := Report{Path: path, Format: stored.format, Records: stored.records, Err: err}
	var fe *FormatError
	switch {
	case err == nil:
		r.Outcome = Stored
	case errors.As(err, &fe):
		r.Outcome = FormatMismatch
		r.Format = fe.Format
	default:
		r.Outcome = Failed
	}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}
