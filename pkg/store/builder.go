package store

import (
	"errors"
	"iter"
	"slices"

	"github.com/google/uuid"

	"entitygraph/pkg/domain"
	"entitygraph/pkg/schema"
)

var (
	errUnknownField = errors.New("unknown field")
	errEmptySource  = errors.New("entity source is mandatory")
	errLinkTarget   = errors.New("link names the wrong kind")
)

// Builder is a mutable overlay on a snapshot. It holds the write lease of
// its lineage until Discard; a Builder must not be shared between
// goroutines without external locking.
type Builder struct {
	id       uuid.UUID
	base     *Snapshot
	lineage  *lineage
	tx       *txn
	deferred []deferredLink
	drafts   []*Draft
	released bool
}

type deferredLink struct {
	conn     schema.ConnectionID
	parent   Ref
	children []Ref
	add      bool
}

var _ Reader = (*Builder)(nil)

// NewBuilder starts a builder on base. A builder on the head of a lineage
// takes the lineage's write lease and fails with ModificationNotAllowed while
// another builder holds it. A builder on an older snapshot forks a new
// lineage.
func NewBuilder(base *Snapshot) (*Builder, error) {
	l := base.lineage
	l.mu.Lock()
	if l.head != base.version {
		l.mu.Unlock()
		l = newLineage("", base.version)
		l.mu.Lock()
	}
	defer l.mu.Unlock()
	if l.holder != uuid.Nil {
		return nil, &domain.ModificationNotAllowedError{Reason: "lineage " + l.id + " already has an active builder"}
	}
	b := &Builder{id: uuid.New(), base: base, lineage: l, tx: newTxn(base.st)}
	l.holder = b.id
	return b, nil
}

// ID identifies the builder; it appears in AlreadyAttached errors.
func (b *Builder) ID() string { return b.id.String() }

// Base returns the snapshot the builder currently sits on.
func (b *Builder) Base() *Snapshot { return b.base }

// Lineage identifies the commit chain the builder writes to.
func (b *Builder) Lineage() string { return b.lineage.id }

func (b *Builder) writable() error {
	if b.released {
		return &domain.ModificationNotAllowedError{Reason: "builder " + b.id.String() + " was discarded"}
	}
	return nil
}

// Registry returns the schema of the builder.
func (b *Builder) Registry() *schema.Registry { return b.tx.st.reg }

// Get returns the entity as seen by the builder.
func (b *Builder) Get(id domain.EntityID) (*domain.EntityData, bool) { return b.tx.st.get(id) }

// EntitiesOfKind iterates entities of a kind in insertion order.
func (b *Builder) EntitiesOfKind(kind domain.Kind) iter.Seq[*domain.EntityData] {
	return b.tx.st.entitiesOfKind(kind)
}

// Count returns the number of live entities of a kind.
func (b *Builder) Count(kind domain.Kind) int { return b.tx.st.count(kind) }

// ResolveSymbolic returns the entity claiming sid.
func (b *Builder) ResolveSymbolic(sid domain.SymbolicID) (*domain.EntityData, bool) {
	return b.tx.st.resolveSymbolic(sid)
}

// ParentOf returns the parent of child in the connection.
func (b *Builder) ParentOf(conn schema.ConnectionID, child domain.EntityID) (*domain.EntityData, bool) {
	return b.tx.st.parentOf(conn, child)
}

// ChildrenOf iterates the ordered children of parent.
func (b *Builder) ChildrenOf(conn schema.ConnectionID, parent domain.EntityID) iter.Seq[*domain.EntityData] {
	return b.tx.st.childrenOf(conn, parent)
}

// ChildIDs returns the ordered child identities of parent.
func (b *Builder) ChildIDs(conn schema.ConnectionID, parent domain.EntityID) []domain.EntityID {
	return slices.Clone(b.tx.st.childIDs(conn, parent))
}

// SoftLinksTo returns the holders of soft links to sid.
func (b *Builder) SoftLinksTo(sid domain.SymbolicID) []domain.EntityID {
	return b.tx.st.softLinksTo(sid)
}

// EntitiesBySource returns the entities tagged with source.
func (b *Builder) EntitiesBySource(source domain.EntitySource) []domain.EntityID {
	return b.tx.st.entitiesBySource(source)
}

// CreateEntity inserts a new entity and returns its allocated identity.
// Required fields are enforced at commit.
func (b *Builder) CreateEntity(kind domain.Kind, source domain.EntitySource, fields map[string]any) (domain.EntityID, error) {
	if err := b.writable(); err != nil {
		return domain.EntityID{}, err
	}
	return b.tx.create(kind, source, fields)
}

// ModifyEntity assigns one field. A nil value clears the field.
func (b *Builder) ModifyEntity(id domain.EntityID, field string, value any) error {
	if err := b.writable(); err != nil {
		return err
	}
	return b.tx.modify(id, field, value)
}

// ReplaceEntity overwrites every field of an entity. The replacement must
// carry all required fields.
func (b *Builder) ReplaceEntity(id domain.EntityID, fields map[string]any) error {
	if err := b.writable(); err != nil {
		return err
	}
	return b.tx.replaceAll(id, fields)
}

// SetRelation replaces the children of parent in the connection. When an
// endpoint is a draft not yet attached, the link is deferred to Commit.
func (b *Builder) SetRelation(conn schema.ConnectionID, parent Ref, children ...Ref) error {
	return b.relate(deferredLink{conn: conn, parent: parent, children: children})
}

// AddChild appends child to parent's children in the connection.
func (b *Builder) AddChild(conn schema.ConnectionID, parent, child Ref) error {
	return b.relate(deferredLink{conn: conn, parent: parent, children: []Ref{child}, add: true})
}

// RemoveRelation detaches child from its parent in the connection.
func (b *Builder) RemoveRelation(conn schema.ConnectionID, child domain.EntityID) error {
	if err := b.writable(); err != nil {
		return err
	}
	return b.tx.removeRelation(conn, child)
}

func (b *Builder) relate(link deferredLink) error {
	if err := b.writable(); err != nil {
		return err
	}
	conn, err := b.tx.connection(link.conn)
	if err != nil {
		return err
	}
	pending := false
	for i, ref := range append([]Ref{link.parent}, link.children...) {
		unattached, err := b.pending(ref)
		if err != nil {
			return err
		}
		if !unattached {
			continue
		}
		pending = true
		want := conn.Child
		if i == 0 {
			want = conn.Parent
		}
		if !b.tx.reg().IsA(ref.Kind(), want) {
			return &domain.CardinalityViolation{Connection: conn.Name, Reason: domain.ReasonIncompatibleKind, Detail: string(ref.Kind()) + " is not a " + string(want)}
		}
	}
	if conn.Cardinality.Single() && !link.add && len(link.children) > 1 {
		return &domain.CardinalityViolation{Connection: conn.Name, Reason: domain.ReasonSecondChild, Detail: "one-to-one connection given several children"}
	}
	if pending {
		b.deferred = append(b.deferred, link)
		return nil
	}
	return b.apply(b.tx, link)
}

// pending reports whether ref is a draft this builder has not attached yet.
func (b *Builder) pending(ref Ref) (bool, error) {
	if ref.draft == nil {
		return false, nil
	}
	owner, _ := ref.draft.ownedBy()
	switch owner {
	case b.id:
		return false, nil
	case uuid.Nil:
		return true, nil
	default:
		return false, &domain.AlreadyAttachedError{Kind: ref.draft.kind, Owner: owner.String()}
	}
}

func (b *Builder) resolve(ref Ref) (domain.EntityID, error) {
	if ref.draft == nil {
		return ref.id, nil
	}
	owner, id := ref.draft.ownedBy()
	if owner != b.id {
		if owner == uuid.Nil {
			return domain.EntityID{}, &domain.ModificationNotAllowedError{Reason: "draft " + string(ref.draft.kind) + " is not attached"}
		}
		return domain.EntityID{}, &domain.AlreadyAttachedError{Kind: ref.draft.kind, Owner: owner.String()}
	}
	return id, nil
}

func (b *Builder) apply(t *txn, link deferredLink) error {
	parent, err := b.resolve(link.parent)
	if err != nil {
		return err
	}
	children := make([]domain.EntityID, 0, len(link.children))
	for _, ref := range link.children {
		id, err := b.resolve(ref)
		if err != nil {
			return err
		}
		children = append(children, id)
	}
	if !link.add {
		return t.setRelation(link.conn, parent, children)
	}
	for _, child := range children {
		if err := t.addChild(link.conn, parent, child); err != nil {
			return err
		}
	}
	return nil
}

// RemoveEntity removes the entity and, through containment connections, its
// descendants. It returns every removed identity, root first.
func (b *Builder) RemoveEntity(id domain.EntityID) ([]domain.EntityID, error) {
	if err := b.writable(); err != nil {
		return nil, err
	}
	return b.tx.remove(id)
}

// RemoveBySource removes every entity tagged with source.
func (b *Builder) RemoveBySource(source domain.EntitySource) ([]domain.EntityID, error) {
	if err := b.writable(); err != nil {
		return nil, err
	}
	var removed []domain.EntityID
	for _, id := range b.tx.st.entitiesBySource(source) {
		if !b.tx.st.live(id) {
			continue
		}
		ids, err := b.tx.remove(id)
		if err != nil {
			return removed, err
		}
		removed = append(removed, ids...)
	}
	return removed, nil
}

// Attach adds a draft, and every draft reachable through its links, to the
// builder. Required fields are checked before anything is attached.
func (b *Builder) Attach(d *Draft) (domain.EntityID, error) {
	if err := b.writable(); err != nil {
		return domain.EntityID{}, err
	}
	work := b.tx.fork()
	claimed, err := b.attachInto(work, d)
	if err != nil {
		b.release(claimed)
		return domain.EntityID{}, err
	}
	b.tx = work
	b.drafts = append(b.drafts, claimed...)
	_, id := d.ownedBy()
	return id, nil
}

type preparedDraft struct {
	draft  *Draft
	fields map[string]any
	links  []draftLink
}

func (b *Builder) attachInto(t *txn, root *Draft) ([]*Draft, error) {
	var fresh []*Draft
	seen := map[*Draft]bool{root: true}
	for queue := []*Draft{root}; len(queue) > 0; queue = queue[1:] {
		d := queue[0]
		owner, _ := d.ownedBy()
		if owner == b.id {
			continue
		}
		if owner != uuid.Nil {
			return nil, &domain.AlreadyAttachedError{Kind: d.kind, Owner: owner.String()}
		}
		fresh = append(fresh, d)
		for _, l := range d.snapshotLinks() {
			if other := l.other.draft; other != nil && !seen[other] {
				seen[other] = true
				queue = append(queue, other)
			}
		}
	}

	prepared := make([]preparedDraft, 0, len(fresh))
	for _, d := range fresh {
		info, err := t.concreteKind(d.kind)
		if err != nil {
			return nil, err
		}
		if d.source == "" {
			return nil, &domain.ValidationError{Kind: d.kind, Field: "source", Err: errEmptySource}
		}
		fields, err := t.normalizeFields(info, d.snapshotFields(), true)
		if err != nil {
			return nil, err
		}
		for _, f := range info.Fields {
			if _, ok := fields[f.Name]; !ok && f.Required() {
				return nil, &domain.UninitializedFieldError{Entity: domain.EntityID{Kind: d.kind}, Field: f.Name}
			}
		}
		prepared = append(prepared, preparedDraft{draft: d, fields: fields, links: d.snapshotLinks()})
	}

	var claimed []*Draft
	for _, p := range prepared {
		id := t.allocate(p.draft.kind)
		if _, err := p.draft.claim(b.id, id); err != nil {
			return claimed, err
		}
		claimed = append(claimed, p.draft)
		t.insert(domain.NewEntityData(id, p.draft.source, p.fields))
	}
	for _, p := range prepared {
		self := p.draft.Ref()
		for _, l := range p.links {
			link := deferredLink{conn: l.conn, parent: l.other, children: []Ref{self}, add: true}
			if l.asChild {
				link.parent, link.children = self, []Ref{l.other}
			}
			if err := b.apply(t, link); err != nil {
				return claimed, err
			}
		}
	}
	return claimed, nil
}

func (b *Builder) release(drafts []*Draft) {
	for _, d := range drafts {
		d.release(b.id)
	}
}

// ChangedProperties lists the fields and relations ("@connection") changed
// on an entity since the builder's base.
func (b *Builder) ChangedProperties(id domain.EntityID) []string {
	return b.tx.changes.properties(id)
}

// HasChanges reports whether anything would be committed.
func (b *Builder) HasChanges() bool {
	return !b.tx.changes.empty() || len(b.deferred) > 0
}

// Changes describes the pending edits relative to the base snapshot.
func (b *Builder) Changes() []domain.Change { return collectChanges(b.tx) }

// Commit validates the pending edits and publishes them as a new snapshot.
// On failure the builder is left exactly as it was.
func (b *Builder) Commit() (*Snapshot, error) {
	snap, _, err := b.CommitWithChanges()
	return snap, err
}

// CommitWithChanges is Commit that also returns the committed change list.
func (b *Builder) CommitWithChanges() (*Snapshot, []domain.Change, error) {
	if err := b.writable(); err != nil {
		return nil, nil, err
	}
	if !b.HasChanges() {
		return b.base, nil, nil
	}
	work := b.tx.fork()
	var claimed []*Draft
	for _, link := range b.deferred {
		for _, ref := range append([]Ref{link.parent}, link.children...) {
			pending, err := b.pending(ref)
			if err == nil && pending {
				var c []*Draft
				c, err = b.attachInto(work, ref.draft)
				claimed = append(claimed, c...)
			}
			if err != nil {
				b.release(claimed)
				return nil, nil, &domain.CommitError{Phase: "deferred links", Err: err}
			}
		}
		if err := b.apply(work, link); err != nil {
			b.release(claimed)
			return nil, nil, &domain.CommitError{Phase: "deferred links", Err: err}
		}
	}
	if err := check(work.st, sortedScope(work.changes.touched)); err != nil {
		b.release(claimed)
		return nil, nil, err
	}
	changes := collectChanges(work)

	b.lineage.mu.Lock()
	b.lineage.head++
	version := b.lineage.head
	b.lineage.mu.Unlock()

	snap := &Snapshot{st: work.st, lineage: b.lineage, version: version}
	b.base = snap
	b.tx = newTxn(snap.st)
	b.deferred = nil
	b.drafts = nil
	return snap, changes, nil
}

// Discard releases the lineage lease and detaches drafts attached since the
// last commit. The builder rejects every write afterwards.
func (b *Builder) Discard() {
	if b.released {
		return
	}
	b.released = true
	b.release(b.drafts)
	b.drafts = nil
	b.lineage.mu.Lock()
	if b.lineage.holder == b.id {
		b.lineage.holder = uuid.Nil
	}
	b.lineage.mu.Unlock()
}
