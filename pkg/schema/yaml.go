package schema

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"entitygraph/pkg/domain"
)

// Document is the YAML form of a schema:
//
//	kinds:
//	  - name: module
//	    symbolic_key: [name]
//	    fields:
//	      - {name: name, type: string}
//	      - {name: dependencies, type: links, target: module, optional: true}
//	    connections:
//	      - {name: contentRoots, child: contentRoot, containment: true}
//	  - name: element
//	    abstract: true
//	    implementors: [file, directory]
type Document struct {
	Version string    `yaml:"version"`
	Kinds   []KindDoc `yaml:"kinds"`
}

// KindDoc is one kind entry of a Document.
type KindDoc struct {
	Name         string          `yaml:"name"`
	Abstract     bool            `yaml:"abstract,omitempty"`
	Implementors []string        `yaml:"implementors,omitempty"`
	SymbolicKey  []string        `yaml:"symbolic_key,omitempty"`
	Fields       []FieldDoc      `yaml:"fields,omitempty"`
	Connections  []ConnectionDoc `yaml:"connections,omitempty"`
}

// FieldDoc is one field entry of a KindDoc.
type FieldDoc struct {
	Name         string `yaml:"name"`
	Type         string `yaml:"type"`
	Target       string `yaml:"target,omitempty"`
	Optional     bool   `yaml:"optional,omitempty"`
	Default      any    `yaml:"default,omitempty"`
	NullOnDelete bool   `yaml:"null_on_delete,omitempty"`
}

// ConnectionDoc is one connection entry of a KindDoc.
type ConnectionDoc struct {
	Name           string `yaml:"name"`
	Child          string `yaml:"child"`
	Containment    bool   `yaml:"containment,omitempty"`
	One            bool   `yaml:"one,omitempty"`
	OptionalParent bool   `yaml:"optional_parent,omitempty"`
}

// DecodeDocument parses a YAML schema document.
func DecodeDocument(r io.Reader) (Document, error) {
	var doc Document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return Document{}, fmt.Errorf("parse schema YAML: empty document")
		}
		return Document{}, fmt.Errorf("parse schema YAML: %w", err)
	}
	return doc, nil
}

// LoadYAML decodes a YAML document and builds its registry.
func LoadYAML(r io.Reader) (*Registry, error) {
	doc, err := DecodeDocument(r)
	if err != nil {
		return nil, err
	}
	if problems := doc.Lint(); len(problems) > 0 {
		return nil, &domain.ConfigurationError{Detail: strings.Join(problems, "; ")}
	}
	return NewRegistry(doc.Builders()...)
}

// Lint reports document-level problems that do not depend on cross-kind
// resolution, sorted. Registry construction covers the rest.
func (d Document) Lint() []string {
	var errs []string
	if len(d.Kinds) == 0 {
		errs = append(errs, "kinds section must not be empty")
	}
	for i, k := range d.Kinds {
		label := k.Name
		if label == "" {
			label = fmt.Sprintf("#%d", i)
		}
		if !k.Abstract && len(k.Implementors) > 0 {
			errs = append(errs, fmt.Sprintf("kind %q lists implementors but is not abstract", label))
		}
		for j, f := range k.Fields {
			if f.Type == "" {
				errs = append(errs, fmt.Sprintf("kind %q fields[%d] missing type", label, j))
			}
			linking := domain.FieldType(f.Type).Linking()
			if f.Target != "" && !linking {
				errs = append(errs, fmt.Sprintf("kind %q field %q sets target on non-link type %s", label, f.Name, f.Type))
			}
			if f.NullOnDelete && !linking {
				errs = append(errs, fmt.Sprintf("kind %q field %q sets null_on_delete on non-link type %s", label, f.Name, f.Type))
			}
		}
		for j, c := range k.Connections {
			if c.Child == "" {
				errs = append(errs, fmt.Sprintf("kind %q connections[%d] missing child", label, j))
			}
		}
	}
	sort.Strings(errs)
	return errs
}

// Builders converts the document into registry declarations.
func (d Document) Builders() []*KindBuilder {
	out := make([]*KindBuilder, 0, len(d.Kinds))
	for _, k := range d.Kinds {
		var b *KindBuilder
		if k.Abstract {
			impls := make([]domain.Kind, len(k.Implementors))
			for i, impl := range k.Implementors {
				impls[i] = domain.Kind(impl)
			}
			b = Abstract(domain.Kind(k.Name), impls...)
		} else {
			b = Entity(domain.Kind(k.Name))
		}
		for _, f := range k.Fields {
			fb := TypedField(f.Name, domain.FieldType(f.Type), domain.Kind(f.Target))
			if f.Optional {
				fb.Optional()
			}
			if f.Default != nil {
				fb.Default(f.Default)
			}
			if f.NullOnDelete {
				fb.NullOnDelete()
			}
			b.Fields(fb)
		}
		b.SymbolicKey(k.SymbolicKey...)
		for _, c := range k.Connections {
			var e *EdgeBuilder
			if c.Containment {
				e = Contains(c.Name, domain.Kind(c.Child))
			} else {
				e = References(c.Name, domain.Kind(c.Child))
			}
			if c.One {
				e.One()
			}
			if c.OptionalParent {
				e.OptionalParent()
			}
			b.Connections(e)
		}
		out = append(out, b)
	}
	return out
}

// Problems returns every issue with the document, lint and registry
// construction combined, sorted. An empty result means the schema is valid.
func Problems(doc Document) []string {
	problems := doc.Lint()
	if len(problems) > 0 {
		return problems
	}
	if _, err := NewRegistry(doc.Builders()...); err != nil {
		var cfg *domain.ConfigurationError
		if errors.As(err, &cfg) {
			return strings.Split(cfg.Detail, "; ")
		}
		return []string{err.Error()}
	}
	return nil
}
