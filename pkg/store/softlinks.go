package store

import (
	"maps"
	"slices"

	"entitygraph/pkg/domain"
	"entitygraph/pkg/schema"
)

func linkTargets(reg *schema.Registry, ent *domain.EntityData) []domain.SymbolicID {
	if ent == nil {
		return nil
	}
	info, ok := reg.Kind(ent.Kind())
	if !ok {
		return nil
	}
	var out []domain.SymbolicID
	for _, f := range info.LinkFields() {
		out = append(out, domain.LinksOf(ent.RawFields()[f.Name])...)
	}
	return symbolSet(out)
}

func containsSymbol(sorted []domain.SymbolicID, sid domain.SymbolicID) bool {
	_, found := slices.BinarySearchFunc(sorted, sid, compareSymbols)
	return found
}

// relinkHolder diffs the soft links carried by a record before and after an
// edit and updates both directions of the index. A nil record stands for an
// absent entity.
func (t *txn) relinkHolder(id domain.EntityID, before, after *domain.EntityData) {
	old := linkTargets(t.reg(), before)
	cur := linkTargets(t.reg(), after)
	if slices.Equal(old, cur) {
		return
	}
	st := t.w()
	for _, sid := range old {
		if containsSymbol(cur, sid) {
			continue
		}
		holders, _ := st.linksTo.Get(sid)
		holders = withoutID(holders, id)
		if len(holders) == 0 {
			st.linksTo = st.linksTo.Delete(sid)
		} else {
			st.linksTo = st.linksTo.Set(sid, holders)
		}
	}
	for _, sid := range cur {
		if containsSymbol(old, sid) {
			continue
		}
		holders, _ := st.linksTo.Get(sid)
		st.linksTo = st.linksTo.Set(sid, withID(holders, id))
	}
	if len(cur) == 0 {
		st.linksFrom = st.linksFrom.Delete(id)
	} else {
		st.linksFrom = st.linksFrom.Set(id, cur)
	}
}

// rewriteLinks applies fn to every link field of every holder of sid that
// passes include. fn returns the replacement value and whether to keep it.
func (t *txn) rewriteLinks(sid domain.SymbolicID, include func(schema.Field) bool, fn func(domain.SymbolicID) (domain.SymbolicID, bool)) {
	t.rewriteHolders(t.st.softLinksTo(sid), sid, include, fn)
}

// rewriteHolders is rewriteLinks restricted to the given holders. Holders
// that are gone or no longer carry sid are skipped.
func (t *txn) rewriteHolders(holders []domain.EntityID, sid domain.SymbolicID, include func(schema.Field) bool, fn func(domain.SymbolicID) (domain.SymbolicID, bool)) {
	for _, holder := range holders {
		before, ok := t.st.get(holder)
		if !ok {
			continue
		}
		info, _ := t.reg().Kind(holder.Kind)
		var fields map[string]any
		var props []string
		for _, f := range info.LinkFields() {
			if !include(f) {
				continue
			}
			raw, ok := before.RawFields()[f.Name]
			if !ok {
				continue
			}
			next, changed, keep := rewriteValue(raw, sid, fn)
			if !changed {
				continue
			}
			if fields == nil {
				fields = maps.Clone(before.RawFields())
			}
			if keep {
				fields[f.Name] = next
			} else {
				delete(fields, f.Name)
			}
			props = append(props, f.Name)
		}
		if fields != nil {
			t.replace(before, before.WithFields(fields), props)
		}
	}
}

func rewriteValue(raw any, sid domain.SymbolicID, fn func(domain.SymbolicID) (domain.SymbolicID, bool)) (next any, changed, keep bool) {
	switch v := raw.(type) {
	case domain.SymbolicID:
		if v != sid {
			return raw, false, true
		}
		repl, ok := fn(v)
		return repl, true, ok
	case []domain.SymbolicID:
		if !slices.Contains(v, sid) {
			return raw, false, true
		}
		out := make([]domain.SymbolicID, 0, len(v))
		for _, item := range v {
			if item != sid {
				out = append(out, item)
				continue
			}
			if repl, ok := fn(item); ok {
				out = append(out, repl)
			}
		}
		return out, true, true
	}
	return raw, false, true
}

// renameLinks rewrites the references to old held by holders so they point
// at renamed.
func (t *txn) renameLinks(holders []domain.EntityID, old, renamed domain.SymbolicID) {
	t.rewriteHolders(holders, old,
		func(schema.Field) bool { return true },
		func(domain.SymbolicID) (domain.SymbolicID, bool) { return renamed, true },
	)
}

// followers picks the holders that move with id when it leaves old. A
// claimant from the base snapshot takes the base holders of its base
// symbolic id, so names swapped inside one builder keep every link on the
// entity it resolved to. Holders created since then, and every holder when
// id itself is new, follow only once nobody else claims old.
func (t *txn) followers(id domain.EntityID, old domain.SymbolicID) []domain.EntityID {
	var out []domain.EntityID
	claimed := false
	if ent, ok := t.base.get(id); ok {
		if baseSID, ok := t.reg().SymbolicID(id.Kind, ent.RawFields()); ok {
			claimed = true
			out = append(out, t.base.softLinksTo(baseSID)...)
		}
	}
	if _, still := t.st.symbols.Get(old); still {
		return out
	}
	for _, holder := range t.st.softLinksTo(old) {
		if _, existed := t.base.get(holder); existed && claimed {
			continue
		}
		if !slices.Contains(out, holder) {
			out = append(out, holder)
		}
	}
	return out
}

// nullLinks drops references to sid from fields that opted into
// null-on-delete. Other fields keep their now-dangling value.
func (t *txn) nullLinks(sid domain.SymbolicID) {
	t.rewriteLinks(sid,
		func(f schema.Field) bool { return f.NullOnDelete },
		func(domain.SymbolicID) (domain.SymbolicID, bool) { return domain.SymbolicID{}, false },
	)
}
