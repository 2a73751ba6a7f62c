package store

import (
	"entitygraph/pkg/domain"
)

// remove tombstones id and every entity reachable from it through
// containment connections. Reference connections only lose their link.
// The removed ids are returned in cascade order, root first.
func (t *txn) remove(id domain.EntityID) ([]domain.EntityID, error) {
	if _, err := t.live(id); err != nil {
		return nil, err
	}
	reg := t.reg()
	doomed := map[domain.EntityID]bool{id: true}
	order := []domain.EntityID{id}
	for i := 0; i < len(order); i++ {
		cur := order[i]
		for _, connID := range reg.ParentConnections(cur.Kind) {
			conn, _ := reg.Connection(connID)
			if !conn.Containment {
				continue
			}
			for _, child := range t.st.childIDs(connID, cur) {
				if !doomed[child] {
					doomed[child] = true
					order = append(order, child)
				}
			}
		}
	}

	for _, victim := range order {
		t.unlinkRelations(victim, doomed)
	}
	var vacated []domain.SymbolicID
	for _, victim := range order {
		ent, _ := t.st.get(victim)
		if sid, ok := reg.SymbolicID(victim.Kind, ent.RawFields()); ok {
			t.unclaim(sid, victim)
			vacated = append(vacated, sid)
		}
		t.relinkHolder(victim, ent, nil)
		t.unindexSource(ent.Source(), victim)
		st := t.w()
		st.kinds[victim.Kind] = st.kinds[victim.Kind].Delete(victim.Seq)
		t.forget(victim)
	}
	for _, sid := range vacated {
		if _, claimed := t.st.symbols.Get(sid); !claimed {
			t.nullLinks(sid)
		}
	}
	return order, nil
}

// unlinkRelations drops every relation edge touching victim. Survivors that
// lose an edge are recorded so the checker revisits them.
func (t *txn) unlinkRelations(victim domain.EntityID, doomed map[domain.EntityID]bool) {
	reg := t.reg()
	for _, connID := range reg.ChildConnections(victim.Kind) {
		conn, _ := reg.Connection(connID)
		if _, ok := t.st.parentID(connID, victim); ok {
			t.detach(conn, victim)
		}
	}
	for _, connID := range reg.ParentConnections(victim.Kind) {
		conn, _ := reg.Connection(connID)
		for _, child := range t.st.childIDs(connID, victim) {
			if doomed[child] && conn.Containment {
				continue
			}
			t.detach(conn, child)
		}
	}
}

// forget moves an entity from the change set's live side to its removed
// side. Entities created and removed within the same builder vanish.
func (t *txn) forget(id domain.EntityID) {
	c := t.changes
	delete(c.touched, id)
	delete(c.updated, id)
	if _, created := c.created[id]; created {
		delete(c.created, id)
		return
	}
	if before, ok := t.base.get(id); ok {
		c.removed[id] = before
	}
}
