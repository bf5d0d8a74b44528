// Package formatter renders provisioning reports for terminals, documents
// and machines.
package formatter

import (
	"fmt"
	"io"
	"strings"

	"github.com/tordrt/docschema/internal/provision"
)

const (
	FormatText     = "text"
	FormatMarkdown = "markdown"
	FormatJSON     = "json"
)

// Formatter writes a report
type Formatter interface {
	Format(r *provision.Report) error
}

// New returns the formatter for format, writing to w
func New(format string, w io.Writer) (Formatter, error) {
	switch strings.ToLower(format) {
	case "", FormatText:
		return NewTextFormatter(w), nil
	case FormatMarkdown, "md":
		return NewMarkdownFormatter(w), nil
	case FormatJSON:
		return NewJSONFormatter(w), nil
	default:
		return nil, fmt.Errorf("unsupported format: %s (must be text, markdown or json)", format)
	}
}

func statusText(o provision.Outcome) string {
	if o.MatchedAs != "" {
		return fmt.Sprintf("%s as %s", o.Status, o.MatchedAs)
	}
	return string(o.Status)
}
