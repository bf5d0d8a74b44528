package formatter

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/tordrt/docschema/internal/provision"
)

// JSONFormatter formats a report as a JSON document
type JSONFormatter struct {
	writer io.Writer
}

// NewJSONFormatter creates a new JSON formatter
func NewJSONFormatter(w io.Writer) *JSONFormatter {
	return &JSONFormatter{writer: w}
}

type jsonKey struct {
	Field     string `json:"field"`
	Direction int    `json:"direction"`
}

type jsonObject struct {
	Kind       string    `json:"kind"`
	Collection string    `json:"collection"`
	Index      string    `json:"index,omitempty"`
	Keys       []jsonKey `json:"keys,omitempty"`
	Unique     bool      `json:"unique,omitempty"`
	Status     string    `json:"status"`
	MatchedAs  string    `json:"matched_as,omitempty"`
}

type jsonReport struct {
	Database string       `json:"database"`
	Engine   string       `json:"engine"`
	DryRun   bool         `json:"dry_run"`
	Created  int          `json:"created"`
	Present  int          `json:"present"`
	Planned  int          `json:"planned"`
	Objects  []jsonObject `json:"objects"`
}

// Format writes the report as indented JSON
func (f *JSONFormatter) Format(r *provision.Report) error {
	out := jsonReport{
		Database: r.Database,
		Engine:   r.Target,
		DryRun:   r.DryRun,
		Created:  r.Created(),
		Present:  r.Present(),
		Planned:  r.Planned(),
		Objects:  make([]jsonObject, 0, len(r.Outcomes)),
	}

	for _, o := range r.Outcomes {
		obj := jsonObject{
			Kind:       string(o.Kind),
			Collection: o.Collection,
			Status:     string(o.Status),
			MatchedAs:  o.MatchedAs,
		}
		if o.Index != nil {
			obj.Index = o.Index.Name
			obj.Unique = o.Index.Unique
			for _, k := range o.Index.Keys {
				obj.Keys = append(obj.Keys, jsonKey{Field: k.Field, Direction: int(k.Direction)})
			}
		}
		out.Objects = append(out.Objects, obj)
	}

	enc := json.NewEncoder(f.writer)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}
