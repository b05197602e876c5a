// Package document identifies the PDF currently being read.
package document

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// ErrMetadata marks a readable file whose PDF structure could not be
// parsed. The returned Document is still usable by its file name.
var ErrMetadata = errors.New("pdf metadata unavailable")

// Document is an opened PDF.
type Document struct {
	Path string
	// Title is the PDF info title, empty when the file has none.
	Title     string
	PageCount int
}

// DisplayName is the name shown to the user and sent with the prompt.
func (d Document) DisplayName() string {
	if t := strings.TrimSpace(d.Title); t != "" {
		return t
	}
	return BaseName(d.Path)
}

// BaseName is the file name without directory or extension.
func BaseName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Open reads metadata from the PDF at path. A file that exists but that
// pdfcpu cannot parse still opens under its file name, with ErrMetadata.
func Open(path string) (Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Document{}, fmt.Errorf("open %s: %w", path, err)
	}
	if info.IsDir() {
		return Document{}, fmt.Errorf("open %s: is a directory", path)
	}
	doc := Document{Path: path}

	ctx, err := api.ReadContextFile(path)
	if err != nil {
		return doc, fmt.Errorf("%w: %s: %v", ErrMetadata, filepath.Base(path), err)
	}
	doc.Title = ctx.Title
	doc.PageCount = ctx.PageCount
	if doc.PageCount == 0 {
		if n, err := api.PageCountFile(path); err == nil {
			doc.PageCount = n
		}
	}
	return doc, nil
}
