package formatter

import (
	"fmt"
	"io"

	"github.com/tordrt/docschema/internal/provision"
)

// TextFormatter formats a report as compact text
type TextFormatter struct {
	writer io.Writer
}

// NewTextFormatter creates a new text formatter
func NewTextFormatter(w io.Writer) *TextFormatter {
	return &TextFormatter{writer: w}
}

// Format writes the report in compact text format
func (f *TextFormatter) Format(r *provision.Report) error {
	mode := ""
	if r.DryRun {
		mode = " DRY RUN"
	}
	_, _ = fmt.Fprintf(f.writer, "DATABASE %s (%s)%s\n", r.Database, r.Target, mode)

	if collections := r.Collections(); len(collections) > 0 {
		_, _ = fmt.Fprintln(f.writer, "  COLLECTIONS:")
		for _, o := range collections {
			_, _ = fmt.Fprintf(f.writer, "    %s: %s\n", o.Collection, statusText(o))
		}
	}

	if indexes := r.Indexes(); len(indexes) > 0 {
		_, _ = fmt.Fprintln(f.writer, "  INDEXES:")
		for _, o := range indexes {
			_, _ = fmt.Fprintf(f.writer, "    %s.%s: %s\n", o.Collection, o.Index, statusText(o))
		}
	}

	return nil
}
