package provision

import "github.com/tordrt/docschema/internal/schema"

// ObjectKind is the type of a provisioned object
type ObjectKind string

const (
	ObjectCollection ObjectKind = "collection"
	ObjectIndex      ObjectKind = "index"
)

// Status is what Apply did with an object
type Status string

const (
	StatusCreated Status = "created"
	StatusPresent Status = "present"
	StatusPlanned Status = "planned" // dry run, would be created
)

// Outcome records one object handled by Apply
type Outcome struct {
	Kind       ObjectKind
	Collection string
	Index      *schema.Index // nil for collections
	Status     Status
	// MatchedAs holds the catalog name when an equivalent index exists under another name
	MatchedAs string
}

// Name is the collection name or "collection.index"
func (o Outcome) Name() string {
	if o.Index == nil {
		return o.Collection
	}
	return o.Collection + "." + o.Index.Name
}

// Report lists every object Apply handled, in plan order
type Report struct {
	Database string
	Target   string
	DryRun   bool
	Outcomes []Outcome
}

func (r *Report) add(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
}

func (r *Report) count(s Status) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == s {
			n++
		}
	}
	return n
}

// Created is the number of objects newly created
func (r *Report) Created() int { return r.count(StatusCreated) }

// Present is the number of objects that already existed
func (r *Report) Present() int { return r.count(StatusPresent) }

// Planned is the number of objects a dry run would create
func (r *Report) Planned() int { return r.count(StatusPlanned) }

// Collections returns the collection outcomes
func (r *Report) Collections() []Outcome {
	return r.filter(ObjectCollection)
}

// Indexes returns the index outcomes
func (r *Report) Indexes() []Outcome {
	return r.filter(ObjectIndex)
}

func (r *Report) filter(kind ObjectKind) []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Kind == kind {
			out = append(out, o)
		}
	}
	return out
}
