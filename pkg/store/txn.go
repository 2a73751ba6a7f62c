package store

import (
	"fmt"
	"maps"
	"slices"
	"sort"

	"entitygraph/pkg/domain"
	"entitygraph/pkg/schema"
)

// changeSet records what a builder touched since its base snapshot.
type changeSet struct {
	created map[domain.EntityID]struct{}
	updated map[domain.EntityID]map[string]struct{}
	removed map[domain.EntityID]*domain.EntityData
	touched map[domain.EntityID]struct{}
}

func newChangeSet() *changeSet {
	return &changeSet{
		created: make(map[domain.EntityID]struct{}),
		updated: make(map[domain.EntityID]map[string]struct{}),
		removed: make(map[domain.EntityID]*domain.EntityData),
		touched: make(map[domain.EntityID]struct{}),
	}
}

func (c *changeSet) clone() *changeSet {
	cp := &changeSet{
		created: maps.Clone(c.created),
		updated: make(map[domain.EntityID]map[string]struct{}, len(c.updated)),
		removed: maps.Clone(c.removed),
		touched: maps.Clone(c.touched),
	}
	for id, props := range c.updated {
		cp.updated[id] = maps.Clone(props)
	}
	return cp
}

func (c *changeSet) record(id domain.EntityID, props ...string) {
	c.touched[id] = struct{}{}
	if len(props) == 0 {
		return
	}
	set, ok := c.updated[id]
	if !ok {
		set = make(map[string]struct{}, len(props))
		c.updated[id] = set
	}
	for _, p := range props {
		set[p] = struct{}{}
	}
}

func (c *changeSet) properties(id domain.EntityID) []string {
	props := make([]string, 0, len(c.updated[id]))
	for p := range c.updated[id] {
		props = append(props, p)
	}
	sort.Strings(props)
	return props
}

func (c *changeSet) empty() bool {
	return len(c.created) == 0 && len(c.updated) == 0 && len(c.removed) == 0 && len(c.touched) == 0
}

// txn applies graph edits on top of a base state. Write paths go through w()
// so the shared state is copied before the first edit.
type txn struct {
	st      *state
	owned   bool
	base    *state
	changes *changeSet
}

func newTxn(base *state) *txn {
	return &txn{st: base, base: base, changes: newChangeSet()}
}

func (t *txn) fork() *txn {
	return &txn{st: t.st, base: t.base, changes: t.changes.clone()}
}

func (t *txn) w() *state {
	if !t.owned {
		t.st = t.st.clone()
		t.owned = true
	}
	return t.st
}

func (t *txn) reg() *schema.Registry { return t.st.reg }

func (t *txn) put(ent *domain.EntityData) {
	st := t.w()
	id := ent.ID()
	st.kinds[id.Kind] = st.kinds[id.Kind].Set(id.Seq, ent)
}

func (t *txn) allocate(kind domain.Kind) domain.EntityID {
	st := t.w()
	st.seqs[kind]++
	return domain.EntityID{Kind: kind, Seq: st.seqs[kind]}
}

// normalizeFields validates raw values against the kind and applies
// defaults for absent fields.
func (t *txn) normalizeFields(info *schema.KindInfo, raw map[string]any, defaults bool) (map[string]any, error) {
	out := make(map[string]any, len(info.Fields))
	for name, v := range raw {
		f, ok := info.Field(name)
		if !ok {
			return nil, &domain.ValidationError{Kind: info.Name, Field: name, Err: errUnknownField}
		}
		if v == nil {
			continue
		}
		norm, err := t.normalizeField(info.Name, f, v)
		if err != nil {
			return nil, err
		}
		out[name] = norm
	}
	if defaults {
		for _, f := range info.Fields {
			if _, ok := out[f.Name]; !ok && f.HasDefault {
				out[f.Name] = domain.CloneValue(f.Default)
			}
		}
	}
	return out, nil
}

func (t *txn) concreteKind(kind domain.Kind) (*schema.KindInfo, error) {
	info, ok := t.reg().Kind(kind)
	if !ok {
		return nil, domain.NewConfigurationError(kind, "kind is not registered")
	}
	if info.Abstract {
		return nil, domain.NewConfigurationError(kind, "abstract kind cannot be instantiated")
	}
	return info, nil
}

// create inserts a new entity. Required fields are checked at commit.
func (t *txn) create(kind domain.Kind, source domain.EntitySource, raw map[string]any) (domain.EntityID, error) {
	info, err := t.concreteKind(kind)
	if err != nil {
		return domain.EntityID{}, err
	}
	if source == "" {
		return domain.EntityID{}, &domain.ValidationError{Kind: kind, Field: "source", Err: errEmptySource}
	}
	fields, err := t.normalizeFields(info, raw, true)
	if err != nil {
		return domain.EntityID{}, err
	}
	id := t.allocate(kind)
	t.insert(domain.NewEntityData(id, source, fields))
	return id, nil
}

// insert adds a fully formed record and indexes it.
func (t *txn) insert(ent *domain.EntityData) {
	id := ent.ID()
	t.put(ent)
	t.indexSource(ent.Source(), id)
	if sid, ok := t.reg().SymbolicID(id.Kind, ent.RawFields()); ok {
		t.claim(sid, id)
	}
	t.relinkHolder(id, nil, ent)
	t.changes.created[id] = struct{}{}
	t.changes.record(id, ent.FieldNames()...)
}

func (t *txn) indexSource(source domain.EntitySource, id domain.EntityID) {
	st := t.w()
	ids, _ := st.sources.Get(source)
	st.sources = st.sources.Set(source, withID(ids, id))
}

func (t *txn) unindexSource(source domain.EntitySource, id domain.EntityID) {
	st := t.w()
	ids, _ := st.sources.Get(source)
	ids = withoutID(ids, id)
	if len(ids) == 0 {
		st.sources = st.sources.Delete(source)
		return
	}
	st.sources = st.sources.Set(source, ids)
}

func (t *txn) claim(sid domain.SymbolicID, id domain.EntityID) {
	st := t.w()
	ids, _ := st.symbols.Get(sid)
	st.symbols = st.symbols.Set(sid, withID(ids, id))
}

func (t *txn) unclaim(sid domain.SymbolicID, id domain.EntityID) {
	st := t.w()
	ids, _ := st.symbols.Get(sid)
	ids = withoutID(ids, id)
	if len(ids) == 0 {
		st.symbols = st.symbols.Delete(sid)
		return
	}
	st.symbols = st.symbols.Set(sid, ids)
}

// live returns the current record or the error explaining why the entity
// cannot be written.
func (t *txn) live(id domain.EntityID) (*domain.EntityData, error) {
	if ent, ok := t.st.get(id); ok {
		return ent, nil
	}
	if _, removed := t.changes.removed[id]; removed {
		return nil, &domain.ModificationNotAllowedError{Entity: id, Reason: "entity was removed in this builder"}
	}
	return nil, &domain.NotFoundError{Entity: id}
}

// normalizeField converts v to the field's canonical form. Link values must
// name the field's target kind or one of its implementors; whether anything
// claims them is not checked.
func (t *txn) normalizeField(kind domain.Kind, f schema.Field, v any) (any, error) {
	norm, err := domain.NormalizeValue(f.Type, v)
	if err != nil {
		return nil, &domain.ValidationError{Kind: kind, Field: f.Name, Err: err}
	}
	for _, sid := range domain.LinksOf(norm) {
		if !t.reg().IsA(sid.Kind, f.Target) {
			return nil, &domain.ValidationError{
				Kind:  kind,
				Field: f.Name,
				Err:   fmt.Errorf("%w: %s is not a %s", errLinkTarget, sid, f.Target),
			}
		}
	}
	return norm, nil
}

func (t *txn) modify(id domain.EntityID, field string, value any) error {
	before, err := t.live(id)
	if err != nil {
		return err
	}
	info, _ := t.reg().Kind(id.Kind)
	f, ok := info.Field(field)
	if !ok {
		return &domain.ValidationError{Kind: id.Kind, Field: field, Err: errUnknownField}
	}
	fields := maps.Clone(before.RawFields())
	if value == nil {
		delete(fields, field)
	} else {
		v, err := t.normalizeField(id.Kind, f, value)
		if err != nil {
			return err
		}
		fields[field] = v
	}
	t.replace(before, before.WithFields(fields), []string{field})
	return nil
}

func (t *txn) replaceAll(id domain.EntityID, raw map[string]any) error {
	before, err := t.live(id)
	if err != nil {
		return err
	}
	info, _ := t.reg().Kind(id.Kind)
	fields, err := t.normalizeFields(info, raw, true)
	if err != nil {
		return err
	}
	for _, f := range info.Fields {
		if _, ok := fields[f.Name]; !ok && f.Required() {
			return &domain.ModificationNotAllowedError{
				Entity: id,
				Reason: "replacement omits required field " + f.Name,
				Err:    &domain.UninitializedFieldError{Entity: id, Field: f.Name},
			}
		}
	}
	props := changedFields(before.RawFields(), fields)
	t.replace(before, before.WithFields(fields), props)
	return nil
}

func changedFields(before, after map[string]any) []string {
	var props []string
	for name, v := range after {
		if old, ok := before[name]; !ok || !domain.ValuesEqual(old, v) {
			props = append(props, name)
		}
	}
	for name := range before {
		if _, ok := after[name]; !ok {
			props = append(props, name)
		}
	}
	slices.Sort(props)
	return props
}

// replace swaps an entity record and keeps the symbolic and soft-link
// indices in step, propagating symbolic renames to link holders. Clearing a
// symbolic key vacates the id the same way removal does.
func (t *txn) replace(before, after *domain.EntityData, props []string) {
	id := after.ID()
	t.put(after)
	t.changes.record(id, props...)
	if before.Source() != after.Source() {
		t.unindexSource(before.Source(), id)
		t.indexSource(after.Source(), id)
	}
	t.relinkHolder(id, before, after)

	oldSID, hadOld := t.reg().SymbolicID(id.Kind, before.RawFields())
	newSID, hasNew := t.reg().SymbolicID(id.Kind, after.RawFields())
	if hadOld == hasNew && oldSID == newSID {
		return
	}
	if hadOld {
		t.unclaim(oldSID, id)
	}
	if hasNew {
		t.claim(newSID, id)
	}
	switch {
	case hadOld && hasNew:
		t.renameLinks(t.followers(id, oldSID), oldSID, newSID)
	case hadOld:
		if _, still := t.st.symbols.Get(oldSID); !still {
			t.nullLinks(oldSID)
		}
	}
}
