package formatter

import (
	"fmt"
	"io"
	"strings"

	"github.com/tordrt/docschema/internal/provision"
	"github.com/tordrt/docschema/internal/schema"
)

// MarkdownFormatter formats a report as markdown
type MarkdownFormatter struct {
	writer io.Writer
}

// NewMarkdownFormatter creates a new markdown formatter
func NewMarkdownFormatter(w io.Writer) *MarkdownFormatter {
	return &MarkdownFormatter{writer: w}
}

// Format writes the report in markdown format
func (f *MarkdownFormatter) Format(r *provision.Report) error {
	_, _ = fmt.Fprintf(f.writer, "# Database %s\n\n", r.Database)
	_, _ = fmt.Fprintf(f.writer, "- **Engine:** %s\n", r.Target)
	if r.DryRun {
		_, _ = fmt.Fprintln(f.writer, "- **Mode:** dry run")
	}
	_, _ = fmt.Fprintf(f.writer, "- **Created:** %d\n", r.Created())
	_, _ = fmt.Fprintf(f.writer, "- **Already present:** %d\n", r.Present())
	if r.DryRun {
		_, _ = fmt.Fprintf(f.writer, "- **Planned:** %d\n", r.Planned())
	}
	_, _ = fmt.Fprintln(f.writer)

	if collections := r.Collections(); len(collections) > 0 {
		_, _ = fmt.Fprintln(f.writer, "## Collections")
		_, _ = fmt.Fprintln(f.writer)
		for _, o := range collections {
			_, _ = fmt.Fprintf(f.writer, "- **%s:** %s\n", o.Collection, statusText(o))
		}
		_, _ = fmt.Fprintln(f.writer)
	}

	if indexes := r.Indexes(); len(indexes) > 0 {
		_, _ = fmt.Fprintln(f.writer, "## Indexes")
		_, _ = fmt.Fprintln(f.writer)
		_, _ = fmt.Fprintln(f.writer, "| Collection | Index | Keys | Unique | Status |")
		_, _ = fmt.Fprintln(f.writer, "|---|---|---|---|---|")
		for _, o := range indexes {
			unique := ""
			if o.Index.Unique {
				unique = "yes"
			}
			_, _ = fmt.Fprintf(f.writer, "| %s | %s | %s | %s | %s |\n",
				o.Collection,
				o.Index.Name,
				formatKeys(o.Index.Keys),
				unique,
				statusText(o))
		}
		_, _ = fmt.Fprintln(f.writer)
	}

	return nil
}

func formatKeys(keys []schema.Key) string {
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k.Field+" "+k.Direction.String())
	}
	return strings.Join(parts, ", ")
}
