package formatter

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tordrt/docschema/internal/provision"
)

// FileFormatter writes a report to a file, creating its directory
type FileFormatter struct {
	Path   string
	Format string // text, markdown or json; empty picks by extension
}

// NewFileFormatter creates a new file formatter
func NewFileFormatter(path, format string) *FileFormatter {
	return &FileFormatter{Path: path, Format: format}
}

// Write renders r into the file, replacing any previous content
func (f *FileFormatter) Write(r *provision.Report) error {
	format := f.Format
	if format == "" {
		format = formatForExtension(f.Path)
	}

	if dir := filepath.Dir(f.Path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	file, err := os.Create(f.Path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}

	formatter, err := New(format, file)
	if err != nil {
		_ = file.Close()
		return err
	}

	if err := formatter.Format(r); err != nil {
		_ = file.Close()
		return err
	}

	return file.Close()
}

func formatForExtension(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return FormatMarkdown
	case ".json":
		return FormatJSON
	default:
		return FormatText
	}
}
