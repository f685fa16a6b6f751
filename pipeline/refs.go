package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/aluiziolira/go-scrape-prints/models"
	"github.com/aluiziolira/go-scrape-prints/parser"
)

// ErrMalformedRefs is returned when a refs file cannot be decoded or holds
// entries without a positive unique rank, a title and an absolute URL.
var ErrMalformedRefs = errors.New("pipeline: malformed product refs")

// WriteRefs encodes refs as an indented JSON array. A nil slice is written as [].
func WriteRefs(w io.Writer, refs []models.ProductRef) error {
	if refs == nil {
		refs = []models.ProductRef{}
	}
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(refs); err != nil {
		return fmt.Errorf("encode refs: %w", err)
	}
	return nil
}

// ReadRefs decodes and validates a refs array. Unknown keys are ignored.
func ReadRefs(r io.Reader) ([]models.ProductRef, error) {
	var refs []models.ProductRef
	if err := json.NewDecoder(r).Decode(&refs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRefs, err)
	}
	if err := parser.ValidateRefs(refs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRefs, err)
	}
	if refs == nil {
		refs = []models.ProductRef{}
	}
	return refs, nil
}

// SaveRefs writes refs to path, creating parent directories as needed.
func SaveRefs(path string, refs []models.ProductRef) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create refs file: %w", err)
	}
	if err := WriteRefs(f, refs); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LoadRefs reads refs from path. A missing file keeps os.ErrNotExist in the
// error chain.
func LoadRefs(path string) ([]models.ProductRef, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open refs file: %w", err)
	}
	defer f.Close()

	refs, err := ReadRefs(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return refs, nil
}
