package schema

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

type planFile struct {
	Database    string            `yaml:"database"`
	Collections []collectionEntry `yaml:"collections"`
	Indexes     []indexEntry      `yaml:"indexes"`
}

// collectionEntry accepts either "users" or {name: users}
type collectionEntry struct {
	Name string
}

func (c *collectionEntry) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		c.Name = n.Value
		return nil
	}

	var aux struct {
		Name string `yaml:"name"`
	}
	if err := n.Decode(&aux); err != nil {
		return err
	}
	c.Name = aux.Name
	return nil
}

type indexEntry struct {
	Collection string  `yaml:"collection"`
	Name       string  `yaml:"name"`
	Keys       keyList `yaml:"keys"`
	Unique     bool    `yaml:"unique"`
}

// keyList keeps key order. It accepts a list of single-entry maps
// ([{a: 1}, {b: -1}]) or one ordered map ({a: 1, b: -1}).
type keyList []Key

func (l *keyList) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.MappingNode:
		keys, err := keysFromMapping(n)
		if err != nil {
			return err
		}
		*l = keys
		return nil
	case yaml.SequenceNode:
		var keys []Key
		for _, item := range n.Content {
			if item.Kind != yaml.MappingNode {
				return fmt.Errorf("line %d: index key must be a {field: direction} entry", item.Line)
			}
			entry, err := keysFromMapping(item)
			if err != nil {
				return err
			}
			keys = append(keys, entry...)
		}
		*l = keys
		return nil
	default:
		return fmt.Errorf("line %d: keys must be a list of {field: direction} entries", n.Line)
	}
}

func keysFromMapping(n *yaml.Node) ([]Key, error) {
	keys := make([]Key, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		field, value := n.Content[i], n.Content[i+1]
		dir, err := ParseDirection(value.Value)
		if err != nil {
			return nil, fmt.Errorf("line %d: field %s: %w", value.Line, field.Value, err)
		}
		keys = append(keys, Key{Field: field.Value, Direction: dir})
	}
	return keys, nil
}

// LoadPlan reads and validates a YAML plan file
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}

	p, err := ParsePlan(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// ParsePlan decodes and validates a YAML plan
func ParsePlan(r io.Reader) (*Plan, error) {
	var f planFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: plan is empty", ErrInvalidPlan)
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidPlan, err)
	}

	p := &Plan{Database: f.Database}
	for _, c := range f.Collections {
		p.Collections = append(p.Collections, CollectionSpec{Name: c.Name})
	}
	for _, idx := range f.Indexes {
		p.Indexes = append(p.Indexes, IndexSpec{
			Collection: idx.Collection,
			Keys:       []Key(idx.Keys),
			Unique:     idx.Unique,
			Name:       idx.Name,
		})
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}
