// Package domain defines the record, search, and lookup types shared by the
// retrieval engine, plus the validation gate applied before anything is stored.
package domain

import (
	"strings"
	"unicode/utf16"
)

// Field bounds, counted in UTF-16 code units.
const (
	MaxInstructionLen = 512
	MaxOutputLen      = 4096
)

// Field names as they appear in the collection schema.
const (
	FieldID          = "id"
	FieldInstruction = "instruction"
	FieldOutput      = "output"
	FieldEmbedding   = "embedding"
)

// QARecord is a stored question/answer pair. Embedding is filled in by the
// coordinator during a bulk store.
type QARecord struct {
	Instruction string    `json:"instruction"`
	Output      string    `json:"output"`
	Embedding   []float32 `json:"-"`
}

// SearchResult is the nearest neighbour returned by the vector engine.
// Distance is the squared Euclidean (L2) distance.
type SearchResult struct {
	Distance    float32 `json:"distance"`
	Instruction string  `json:"instruction"`
	Output      string  `json:"output"`
}

// ValidateRecord checks a single record.
func ValidateRecord(r QARecord) error {
	return validateAt(0, r)
}

func validateAt(index int, r QARecord) error {
	if strings.TrimSpace(r.Instruction) == "" {
		return NewValidationError(index, FieldInstruction, ErrMissingField)
	}
	if strings.TrimSpace(r.Output) == "" {
		return NewValidationError(index, FieldOutput, ErrMissingField)
	}
	if codeUnits(r.Instruction) > MaxInstructionLen {
		return NewValidationError(index, FieldInstruction, ErrFieldTooLong)
	}
	if codeUnits(r.Output) > MaxOutputLen {
		return NewValidationError(index, FieldOutput, ErrFieldTooLong)
	}
	return nil
}

// ValidateBatch rejects the whole batch on the first invalid record.
func ValidateBatch(records []QARecord) error {
	if len(records) == 0 {
		return ErrEmptyBatch
	}
	for i, r := range records {
		if err := validateAt(i, r); err != nil {
			return err
		}
	}
	return nil
}

func codeUnits(s string) int {
	n := 0
	for _, r := range s {
		if l := utf16.RuneLen(r); l > 0 {
			n += l
		} else {
			n++
		}
	}
	return n
}
