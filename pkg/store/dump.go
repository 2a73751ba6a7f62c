package store

import (
	"fmt"
	"maps"
	"slices"

	"entitygraph/pkg/domain"
	"entitygraph/pkg/schema"
)

// Dump exports the snapshot in its serializable form. Entities are listed
// per kind in declaration order, each kind in insertion order; relations are
// listed per connection with children in their stored order.
func (s *Snapshot) Dump() domain.Dump {
	reg := s.st.reg
	d := domain.Dump{
		FormatVersion:     domain.DumpFormatVersion,
		SchemaFingerprint: reg.Fingerprint(),
		Lineage:           s.lineage.id,
		Version:           s.version,
		Sequences:         maps.Clone(s.st.seqs),
	}
	for _, kind := range reg.Kinds() {
		table, ok := s.st.kinds[kind]
		if !ok {
			continue
		}
		for itr := table.Iterator(); !itr.Done(); {
			_, ent, _ := itr.Next()
			entry := domain.DumpEntity{ID: ent.ID(), Source: ent.Source()}
			if len(ent.RawFields()) > 0 {
				entry.Fields = ent.Fields()
			}
			d.Entities = append(d.Entities, entry)
		}
	}
	for _, conn := range reg.Connections() {
		rel := s.st.relations[conn.ID-1]
		var parents []domain.EntityID
		for itr := rel.children.Iterator(); !itr.Done(); {
			parent, _, _ := itr.Next()
			parents = append(parents, parent)
		}
		slices.SortFunc(parents, compareIDs)
		for _, parent := range parents {
			children, _ := rel.children.Get(parent)
			d.Relations = append(d.Relations, domain.DumpRelation{
				Connection: conn.Name,
				Parent:     parent,
				Children:   slices.Clone(children),
			})
		}
	}
	return d
}

// Restore rebuilds a snapshot from a dump and runs every consistency check
// over the result. The restored snapshot heads a lineage carrying the dump's
// lineage id and version.
func Restore(reg *schema.Registry, d domain.Dump) (*Snapshot, error) {
	if d.FormatVersion != domain.DumpFormatVersion {
		return nil, fmt.Errorf("unsupported dump format version %d", d.FormatVersion)
	}
	if d.SchemaFingerprint != "" && d.SchemaFingerprint != reg.Fingerprint() {
		return nil, domain.NewConfigurationError("", "dump schema fingerprint %s does not match registry %s", d.SchemaFingerprint, reg.Fingerprint())
	}
	t := newTxn(newState(reg))
	maxSeq := make(map[domain.Kind]uint64)
	for _, e := range d.Entities {
		info, err := t.concreteKind(e.ID.Kind)
		if err != nil {
			return nil, err
		}
		if e.ID.Seq == 0 {
			return nil, fmt.Errorf("restore %s: sequence must be positive", e.ID)
		}
		if t.st.live(e.ID) {
			return nil, fmt.Errorf("restore %s: duplicate entity", e.ID)
		}
		if e.Source == "" {
			return nil, &domain.ValidationError{Kind: e.ID.Kind, Field: "source", Err: errEmptySource}
		}
		fields, err := t.normalizeFields(info, e.Fields, false)
		if err != nil {
			return nil, err
		}
		t.insert(domain.NewEntityData(e.ID, e.Source, fields))
		maxSeq[e.ID.Kind] = max(maxSeq[e.ID.Kind], e.ID.Seq)
	}
	st := t.w()
	for kind := range st.kinds {
		if seq := max(d.Sequences[kind], maxSeq[kind]); seq > 0 {
			st.seqs[kind] = seq
		}
	}
	for _, r := range d.Relations {
		connID, ok := reg.ConnectionByName(r.Connection)
		if !ok {
			return nil, domain.NewConfigurationError("", "dump references unknown connection %q", r.Connection)
		}
		if err := t.setRelation(connID, r.Parent, r.Children); err != nil {
			return nil, fmt.Errorf("restore %s: %w", r.Connection, err)
		}
	}
	if err := check(t.st, sortedScope(t.changes.touched)); err != nil {
		return nil, err
	}
	return &Snapshot{st: t.st, lineage: newLineage(d.Lineage, d.Version), version: d.Version}, nil
}
