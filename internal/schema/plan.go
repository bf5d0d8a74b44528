package schema

import (
	"fmt"
	"strings"
)

// DefaultDatabase is the database the chat application stores its data in
const DefaultDatabase = "chat_app"

// DefaultPlan returns the chat application's collections and indexes
func DefaultPlan() *Plan {
	return &Plan{
		Database: DefaultDatabase,
		Collections: []CollectionSpec{
			{Name: "users"},
			{Name: "conversations"},
			{Name: "chat_messages"},
		},
		Indexes: []IndexSpec{
			{
				Collection: "chat_messages",
				Keys:       []Key{{Field: "conversation_id", Direction: Ascending}, {Field: "timestamp", Direction: Descending}},
			},
			{
				Collection: "conversations",
				Keys:       []Key{{Field: "participants", Direction: Ascending}},
			},
			{
				Collection: "conversations",
				Keys:       []Key{{Field: "last_message_time", Direction: Descending}},
			},
			{
				Collection: "users",
				Keys:       []Key{{Field: "email", Direction: Ascending}},
				Unique:     true,
			},
		},
	}
}

// Validate checks that the plan is internally consistent.
// Every index must target a collection declared in the same plan.
func (p *Plan) Validate() error {
	if p == nil {
		return fmt.Errorf("%w: plan is nil", ErrInvalidPlan)
	}

	declared := make(map[string]bool, len(p.Collections))
	for i, c := range p.Collections {
		name := c.Name
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("%w: collection #%d has an empty name", ErrInvalidPlan, i+1)
		}
		if strings.TrimSpace(name) != name {
			return fmt.Errorf("%w: collection %q has surrounding whitespace", ErrInvalidPlan, name)
		}
		if declared[name] {
			return fmt.Errorf("%w: collection %q declared twice", ErrInvalidPlan, name)
		}
		declared[name] = true
	}

	names := make(map[string]bool, len(p.Indexes))
	for i, idx := range p.Indexes {
		if !declared[idx.Collection] {
			return fmt.Errorf("%w: index #%d targets undeclared collection %q", ErrInvalidPlan, i+1, idx.Collection)
		}
		if len(idx.Keys) == 0 {
			return fmt.Errorf("%w: index #%d on %s has no keys", ErrInvalidPlan, i+1, idx.Collection)
		}
		fields := make(map[string]bool, len(idx.Keys))
		for _, k := range idx.Keys {
			if strings.TrimSpace(k.Field) == "" {
				return fmt.Errorf("%w: index #%d on %s has an empty field name", ErrInvalidPlan, i+1, idx.Collection)
			}
			if strings.TrimSpace(k.Field) != k.Field {
				return fmt.Errorf("%w: index #%d on %s: field %q has surrounding whitespace",
					ErrInvalidPlan, i+1, idx.Collection, k.Field)
			}
			if fields[k.Field] {
				return fmt.Errorf("%w: index #%d on %s repeats field %s", ErrInvalidPlan, i+1, idx.Collection, k.Field)
			}
			fields[k.Field] = true
			if k.Direction != Ascending && k.Direction != Descending {
				return fmt.Errorf("%w: index #%d on %s has invalid direction %d for field %s",
					ErrInvalidPlan, i+1, idx.Collection, k.Direction, k.Field)
			}
		}

		qualified := idx.Collection + "." + idx.IndexName()
		if names[qualified] {
			return fmt.Errorf("%w: index %s declared twice", ErrInvalidPlan, qualified)
		}
		names[qualified] = true
	}

	return nil
}

// ObjectCount is the number of collections plus indexes in the plan
func (p *Plan) ObjectCount() int {
	return len(p.Collections) + len(p.Indexes)
}
