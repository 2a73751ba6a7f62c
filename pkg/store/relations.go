package store

import (
	"fmt"
	"slices"

	"entitygraph/pkg/domain"
	"entitygraph/pkg/schema"
)

func relationProp(conn *schema.Connection) string { return "@" + conn.Name }

func (t *txn) connection(id schema.ConnectionID) (*schema.Connection, error) {
	conn, ok := t.reg().Connection(id)
	if !ok {
		return nil, domain.NewConfigurationError("", "connection %d is not registered", id)
	}
	return conn, nil
}

// checkEndpoint verifies that id is live and compatible with the side of
// the connection it is placed on.
func (t *txn) checkEndpoint(conn *schema.Connection, id domain.EntityID, parentSide bool) error {
	if _, err := t.live(id); err != nil {
		return err
	}
	want := conn.Child
	if parentSide {
		want = conn.Parent
	}
	if !t.reg().IsA(id.Kind, want) {
		return &domain.CardinalityViolation{
			Connection: conn.Name,
			Entity:     id,
			Reason:     domain.ReasonIncompatibleKind,
			Detail:     fmt.Sprintf("%s is not a %s", id.Kind, want),
		}
	}
	return nil
}

func (t *txn) setTable(conn *schema.Connection, rel relationTable) {
	t.w().relations[conn.ID-1] = rel
}

// detach removes child from its current parent in the connection.
func (t *txn) detach(conn *schema.Connection, child domain.EntityID) {
	rel, _ := t.st.relation(conn.ID)
	parent, ok := rel.parents.Get(child)
	if !ok {
		return
	}
	list, _ := rel.children.Get(parent)
	list = removeOrdered(list, child)
	if len(list) == 0 {
		rel.children = rel.children.Delete(parent)
	} else {
		rel.children = rel.children.Set(parent, list)
	}
	rel.parents = rel.parents.Delete(child)
	t.setTable(conn, rel)
	prop := relationProp(conn)
	t.changes.record(parent, prop)
	t.changes.record(child, prop)
}

// setRelation replaces the ordered children of parent in the connection.
// Children previously listed but absent from the new list are detached;
// children held by another parent are moved.
func (t *txn) setRelation(connID schema.ConnectionID, parent domain.EntityID, children []domain.EntityID) error {
	conn, err := t.connection(connID)
	if err != nil {
		return err
	}
	if err := t.checkEndpoint(conn, parent, true); err != nil {
		return err
	}
	if conn.Cardinality.Single() && len(children) > 1 {
		return &domain.CardinalityViolation{
			Connection: conn.Name,
			Entity:     parent,
			Reason:     domain.ReasonSecondChild,
			Detail:     fmt.Sprintf("%d children supplied", len(children)),
		}
	}
	for i, child := range children {
		if err := t.checkEndpoint(conn, child, false); err != nil {
			return err
		}
		if slices.Index(children, child) != i {
			return &domain.CardinalityViolation{
				Connection: conn.Name,
				Entity:     child,
				Reason:     domain.ReasonAsymmetric,
				Detail:     "child listed twice",
			}
		}
	}

	prop := relationProp(conn)
	for _, old := range t.st.childIDs(connID, parent) {
		if !slices.Contains(children, old) {
			t.detach(conn, old)
		}
	}
	for _, child := range children {
		if pid, ok := t.st.parentID(connID, child); ok && pid != parent {
			t.detach(conn, child)
		}
	}
	rel, _ := t.st.relation(connID)
	if len(children) == 0 {
		rel.children = rel.children.Delete(parent)
	} else {
		rel.children = rel.children.Set(parent, slices.Clone(children))
	}
	for _, child := range children {
		rel.parents = rel.parents.Set(child, parent)
		t.changes.record(child, prop)
	}
	t.setTable(conn, rel)
	t.changes.record(parent, prop)
	return nil
}

// addChild appends child to parent's children. One-to-one parents reject a
// second child.
func (t *txn) addChild(connID schema.ConnectionID, parent, child domain.EntityID) error {
	conn, err := t.connection(connID)
	if err != nil {
		return err
	}
	if err := t.checkEndpoint(conn, parent, true); err != nil {
		return err
	}
	if err := t.checkEndpoint(conn, child, false); err != nil {
		return err
	}
	current := t.st.childIDs(connID, parent)
	if slices.Contains(current, child) {
		return nil
	}
	if conn.Cardinality.Single() && len(current) > 0 {
		return &domain.CardinalityViolation{
			Connection: conn.Name,
			Entity:     parent,
			Reason:     domain.ReasonSecondChild,
			Detail:     fmt.Sprintf("already holds %s", current[0]),
		}
	}
	return t.setRelation(connID, parent, appendOrdered(current, child))
}

// removeRelation detaches child from whichever parent holds it.
func (t *txn) removeRelation(connID schema.ConnectionID, child domain.EntityID) error {
	conn, err := t.connection(connID)
	if err != nil {
		return err
	}
	if _, err := t.live(child); err != nil {
		return err
	}
	t.detach(conn, child)
	return nil
}
