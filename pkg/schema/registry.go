// Package schema declares entity kinds, their typed fields and the interned
// connections between them. A Registry is immutable once built and safe for
// concurrent use.
package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"

	"entitygraph/pkg/domain"
)

// SymbolicKeySeparator joins multi-field symbolic keys.
const SymbolicKeySeparator = "/"

// Registry holds every kind and connection known to a store.
type Registry struct {
	kinds       map[domain.Kind]*KindInfo
	order       []domain.Kind
	connections []*Connection
	intern      map[connectionKey]ConnectionID
	byName      map[string]ConnectionID
	asParent    map[domain.Kind][]ConnectionID
	asChild     map[domain.Kind][]ConnectionID
	fingerprint string
}

// NewRegistry validates the declarations and interns their connections.
// Every problem found is reported in one ConfigurationError, sorted.
func NewRegistry(decls ...*KindBuilder) (*Registry, error) {
	r := &Registry{
		kinds:    make(map[domain.Kind]*KindInfo, len(decls)),
		intern:   make(map[connectionKey]ConnectionID),
		byName:   make(map[string]ConnectionID),
		asParent: make(map[domain.Kind][]ConnectionID),
		asChild:  make(map[domain.Kind][]ConnectionID),
	}
	var problems []string
	report := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	for _, d := range decls {
		if d == nil {
			report("nil kind declaration")
			continue
		}
		if strings.TrimSpace(string(d.name)) == "" {
			report("kind name must not be empty")
			continue
		}
		if _, dup := r.kinds[d.name]; dup {
			report("kind %q declared twice", d.name)
			continue
		}
		info := &KindInfo{
			Name:         d.name,
			Abstract:     d.abstract,
			Implementors: slices.Clone(d.implementors),
			SymbolicKey:  slices.Clone(d.symbolicKey),
			fieldIndex:   make(map[string]int, len(d.fields)),
		}
		for _, fb := range d.fields {
			f := fb.Descriptor()
			if f.Name == "" {
				report("kind %q declares a field without a name", d.name)
				continue
			}
			if _, dup := info.fieldIndex[f.Name]; dup {
				report("kind %q declares field %q twice", d.name, f.Name)
				continue
			}
			if !f.Type.Valid() {
				report("kind %q field %q has unknown type %q", d.name, f.Name, f.Type)
				continue
			}
			if f.HasDefault {
				v, err := domain.NormalizeValue(f.Type, f.Default)
				if err != nil {
					report("kind %q field %q default: %v", d.name, f.Name, err)
					continue
				}
				f.Default = v
			}
			info.fieldIndex[f.Name] = len(info.Fields)
			info.Fields = append(info.Fields, f)
		}
		r.kinds[d.name] = info
		r.order = append(r.order, d.name)
	}

	for _, name := range r.order {
		info := r.kinds[name]
		if info.Abstract {
			if len(info.Implementors) == 0 {
				report("abstract kind %q has no registered implementor", name)
			}
			for _, impl := range info.Implementors {
				target, ok := r.kinds[impl]
				switch {
				case !ok:
					report("abstract kind %q lists unknown implementor %q", name, impl)
				case target.Abstract:
					report("abstract kind %q lists abstract implementor %q", name, impl)
				default:
					target.Supertypes = append(target.Supertypes, name)
				}
			}
		}
		for _, key := range info.SymbolicKey {
			f, ok := info.Field(key)
			switch {
			case !ok:
				report("kind %q symbolic key names unknown field %q", name, key)
			case !f.Type.Scalar():
				report("kind %q symbolic key field %q must be scalar, got %s", name, key, f.Type)
			}
		}
		for _, f := range info.Fields {
			if !f.Type.Linking() {
				continue
			}
			target, ok := r.kinds[f.Target]
			switch {
			case f.Target == "":
				report("kind %q link field %q has no target kind", name, f.Name)
			case !ok:
				report("kind %q link field %q targets unknown kind %q", name, f.Name, f.Target)
			case !r.hasSymbolicTarget(target):
				report("kind %q link field %q targets %q which has no symbolic key", name, f.Name, f.Target)
			}
		}
	}

	for _, d := range decls {
		if d == nil || r.kinds[d.name] == nil {
			continue
		}
		seen := make(map[string]bool, len(d.edges))
		for _, e := range d.edges {
			if e == nil || e.name == "" {
				report("kind %q declares a connection without a name", d.name)
				continue
			}
			if seen[e.name] {
				report("kind %q declares connection %q twice", d.name, e.name)
				continue
			}
			seen[e.name] = true
			if err := r.declare(d.name, e); err != nil {
				problems = append(problems, err.Error())
			}
		}
	}

	if len(problems) > 0 {
		sort.Strings(problems)
		return nil, &domain.ConfigurationError{Detail: strings.Join(problems, "; ")}
	}
	r.fingerprint = r.computeFingerprint()
	return r, nil
}

// MustRegistry is NewRegistry that panics on error, for fixed schemas.
func MustRegistry(decls ...*KindBuilder) *Registry {
	r, err := NewRegistry(decls...)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Registry) hasSymbolicTarget(target *KindInfo) bool {
	if !target.Abstract {
		return target.HasSymbolicKey()
	}
	for _, impl := range target.Implementors {
		if k, ok := r.kinds[impl]; ok && k.HasSymbolicKey() {
			return true
		}
	}
	return false
}

func (r *Registry) declare(parent domain.Kind, e *EdgeBuilder) error {
	child, ok := r.kinds[e.child]
	if !ok {
		return fmt.Errorf("kind %q connection %q targets unknown kind %q", parent, e.name, e.child)
	}
	abstract := r.kinds[parent].Abstract || child.Abstract
	var card Cardinality
	switch {
	case e.single && abstract:
		card = AbstractOneToOne
	case e.single:
		card = OneToOne
	case abstract:
		card = AbstractOneToMany
	default:
		card = OneToMany
	}
	key := connectionKey{parent: parent, child: e.child, cardinality: card, containment: e.containment}
	name := string(parent) + "." + e.name
	if id, exists := r.intern[key]; exists {
		existing := r.connections[id-1]
		if existing.ParentRequired != !e.optionalParent {
			return fmt.Errorf("kind %q connection %q redeclares %s with a different parent requirement", parent, e.name, existing.Name)
		}
		r.byName[name] = id
		return nil
	}
	id := ConnectionID(len(r.connections) + 1)
	conn := &Connection{
		ID:             id,
		Name:           name,
		Parent:         parent,
		Child:          e.child,
		Cardinality:    card,
		Containment:    e.containment,
		ParentRequired: !e.optionalParent,
	}
	r.connections = append(r.connections, conn)
	r.intern[key] = id
	r.byName[name] = id
	r.asParent[parent] = append(r.asParent[parent], id)
	r.asChild[e.child] = append(r.asChild[e.child], id)
	return nil
}

// Kind returns the descriptor of a registered kind.
func (r *Registry) Kind(kind domain.Kind) (*KindInfo, bool) {
	info, ok := r.kinds[kind]
	return info, ok
}

// Kinds returns every kind in declaration order.
func (r *Registry) Kinds() []domain.Kind { return slices.Clone(r.order) }

// ConcreteKinds expands an abstract kind into its implementors; a concrete
// kind yields itself.
func (r *Registry) ConcreteKinds(kind domain.Kind) []domain.Kind {
	info, ok := r.kinds[kind]
	if !ok {
		return nil
	}
	if !info.Abstract {
		return []domain.Kind{kind}
	}
	return slices.Clone(info.Implementors)
}

// IsA reports whether concrete is kind or one of its implementors.
func (r *Registry) IsA(concrete, kind domain.Kind) bool {
	if concrete == kind {
		return true
	}
	info, ok := r.kinds[concrete]
	if !ok {
		return false
	}
	return slices.Contains(info.Supertypes, kind)
}

// Lookup returns the interned connection for a declaration tuple.
func (r *Registry) Lookup(parent, child domain.Kind, card Cardinality, containment bool) (ConnectionID, bool) {
	id, ok := r.intern[connectionKey{parent: parent, child: child, cardinality: card, containment: containment}]
	return id, ok
}

// ConnectionByName resolves "parentKind.connectionName".
func (r *Registry) ConnectionByName(name string) (ConnectionID, bool) {
	id, ok := r.byName[name]
	return id, ok
}

// Connection returns the descriptor for an interned id.
func (r *Registry) Connection(id ConnectionID) (*Connection, bool) {
	if id <= 0 || int(id) > len(r.connections) {
		return nil, false
	}
	return r.connections[id-1], true
}

// Connections returns every interned connection in registration order.
func (r *Registry) Connections() []*Connection { return slices.Clone(r.connections) }

// ParentConnections returns the connections in which entities of the concrete
// kind act as parent, including those declared on its abstract supertypes.
func (r *Registry) ParentConnections(kind domain.Kind) []ConnectionID {
	return r.participating(kind, r.asParent)
}

// ChildConnections returns the connections in which entities of the concrete
// kind act as child, including those targeting its abstract supertypes.
func (r *Registry) ChildConnections(kind domain.Kind) []ConnectionID {
	return r.participating(kind, r.asChild)
}

// ConnectionsOf returns every connection the kind participates in, parent
// side first, without duplicates.
func (r *Registry) ConnectionsOf(kind domain.Kind) []ConnectionID {
	out := r.ParentConnections(kind)
	for _, id := range r.ChildConnections(kind) {
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

func (r *Registry) participating(kind domain.Kind, index map[domain.Kind][]ConnectionID) []ConnectionID {
	out := slices.Clone(index[kind])
	if info, ok := r.kinds[kind]; ok {
		for _, super := range info.Supertypes {
			out = append(out, index[super]...)
		}
	}
	return out
}

// SymbolicID derives the symbolic id of an entity from its field values.
// It reports false when the kind has no symbolic key or a key field is unset.
func (r *Registry) SymbolicID(kind domain.Kind, fields map[string]any) (domain.SymbolicID, bool) {
	info, ok := r.kinds[kind]
	if !ok || !info.HasSymbolicKey() {
		return domain.SymbolicID{}, false
	}
	parts := make([]string, 0, len(info.SymbolicKey))
	for _, key := range info.SymbolicKey {
		v, ok := fields[key]
		if !ok {
			return domain.SymbolicID{}, false
		}
		parts = append(parts, formatKeyPart(v))
	}
	return domain.SymbolicID{Kind: kind, Key: strings.Join(parts, SymbolicKeySeparator)}, true
}

func formatKeyPart(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	}
	return fmt.Sprint(v)
}

// Fingerprint is a stable digest of every declaration. Dumps record it so a
// restore into a different schema is rejected.
func (r *Registry) Fingerprint() string { return r.fingerprint }

func (r *Registry) computeFingerprint() string {
	h := sha256.New()
	for _, name := range r.order {
		info := r.kinds[name]
		fmt.Fprintf(h, "kind %s abstract=%t impl=%v key=%v\n", info.Name, info.Abstract, info.Implementors, info.SymbolicKey)
		for _, f := range info.Fields {
			fmt.Fprintf(h, " field %s %s opt=%t def=%v target=%s nod=%t\n", f.Name, f.Type, f.Optional, f.Default, f.Target, f.NullOnDelete)
		}
	}
	for _, c := range r.connections {
		fmt.Fprintf(h, "conn %s %s %s %s contain=%t req=%t\n", c.Name, c.Parent, c.Child, c.Cardinality, c.Containment, c.ParentRequired)
	}
	return hex.EncodeToString(h.Sum(nil))
}
