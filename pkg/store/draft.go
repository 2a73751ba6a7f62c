package store

import (
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"

	"entitygraph/pkg/domain"
	"entitygraph/pkg/schema"
)

// Draft is an entity under construction that no builder owns yet. Field
// assignments are recorded as changed properties. A draft can be attached
// to exactly one builder; attaching also attaches every draft it links to.
type Draft struct {
	kind   domain.Kind
	source domain.EntitySource

	mu       sync.Mutex
	fields   map[string]any
	assigned []string
	links    []draftLink
	owner    uuid.UUID
	id       domain.EntityID
}

type draftLink struct {
	conn    schema.ConnectionID
	other   Ref
	asChild bool
}

// NewDraft starts a draft of the given concrete kind.
func NewDraft(kind domain.Kind, source domain.EntitySource) *Draft {
	return &Draft{kind: kind, source: source, fields: make(map[string]any)}
}

// Kind returns the draft's kind.
func (d *Draft) Kind() domain.Kind { return d.kind }

// Set assigns a field value. Values are validated when the draft is attached.
func (d *Draft) Set(field string, value any) *Draft {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fields[field] = domain.CloneValue(value)
	if !slices.Contains(d.assigned, field) {
		d.assigned = append(d.assigned, field)
	}
	return d
}

// AddChild links child under the draft in the connection.
func (d *Draft) AddChild(conn schema.ConnectionID, child Ref) *Draft {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.links = append(d.links, draftLink{conn: conn, other: child, asChild: true})
	return d
}

// SetParent links the draft under parent in the connection.
func (d *Draft) SetParent(conn schema.ConnectionID, parent Ref) *Draft {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.links = append(d.links, draftLink{conn: conn, other: parent})
	return d
}

// ChangedProperties lists assigned fields in assignment order.
func (d *Draft) ChangedProperties() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.assigned)
}

// ID returns the identity allocated when the draft was attached.
func (d *Draft) ID() (domain.EntityID, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.id, !d.id.IsZero()
}

// Ref returns a relation endpoint naming the draft.
func (d *Draft) Ref() Ref { return Ref{draft: d} }

func (d *Draft) snapshotFields() map[string]any {
	d.mu.Lock()
	defer d.mu.Unlock()
	return maps.Clone(d.fields)
}

func (d *Draft) snapshotLinks() []draftLink {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.links)
}

// claim takes ownership for builder. It fails when another builder owns
// the draft; claiming a draft already owned by builder reports false.
func (d *Draft) claim(builder uuid.UUID, id domain.EntityID) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch d.owner {
	case uuid.Nil:
		d.owner = builder
		d.id = id
		return true, nil
	case builder:
		return false, nil
	default:
		return false, &domain.AlreadyAttachedError{Kind: d.kind, Owner: d.owner.String()}
	}
}

func (d *Draft) release(builder uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.owner == builder {
		d.owner = uuid.Nil
		d.id = domain.EntityID{}
	}
}

func (d *Draft) ownedBy() (uuid.UUID, domain.EntityID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.owner, d.id
}

// Ref names a relation endpoint: either a live entity or a draft.
type Ref struct {
	id    domain.EntityID
	draft *Draft
}

// RefOf names a live entity.
func RefOf(id domain.EntityID) Ref { return Ref{id: id} }

// Kind returns the endpoint kind.
func (r Ref) Kind() domain.Kind {
	if r.draft != nil {
		return r.draft.kind
	}
	return r.id.Kind
}

// IsDraft reports whether the endpoint is a draft.
func (r Ref) IsDraft() bool { return r.draft != nil }
