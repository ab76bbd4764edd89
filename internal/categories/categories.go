// Package categories serves the advisory list of expense categories.
//
// The list lives in an external JSON document that is returned verbatim and
// re-read on every call, so edits take effect without a restart. When the
// document is missing a built-in default list is served instead.
package categories

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// Defaults is served when no categories document exists.
var Defaults = []string{"Food", "Transport", "Housing", "Utilities", "Health", "Entertainment", "Other"}

type document struct {
	Categories []string `json:"categories"`
}

type Reader struct {
	path string
}

func NewReader(path string) *Reader {
	return &Reader{path: path}
}

// Path returns the location of the categories document.
func (r *Reader) Path() string {
	return r.path
}

// Read returns the categories document as JSON text.
func (r *Reader) Read() (string, error) {
	b, err := os.ReadFile(r.path)
	if err == nil {
		return string(b), nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("read categories file: %w", err)
	}

	out, err := json.MarshalIndent(document{Categories: Defaults}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode default categories: %w", err)
	}
	return string(out), nil
}

// ErrorDocument renders err as the JSON object returned to callers when Read fails.
func ErrorDocument(err error) string {
	b, _ := json.Marshal(map[string]string{"error": err.Error()})
	return string(b)
}
