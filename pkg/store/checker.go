package store

import (
	"fmt"
	"maps"
	"slices"

	"entitygraph/pkg/domain"
)

// Check phases, in the order they run.
const (
	PhaseRequiredFields    = "required fields"
	PhaseRequiredRelations = "required relations"
	PhaseSymbolicIDs       = "symbolic ids"
	PhaseCardinality       = "cardinality"
)

type checkFunc func(st *state, ent *domain.EntityData) error

// check verifies the entities in scope phase by phase and returns the first
// violation wrapped in a CommitError.
func check(st *state, scope []domain.EntityID) error {
	live := make([]*domain.EntityData, 0, len(scope))
	for _, id := range scope {
		if ent, ok := st.get(id); ok {
			live = append(live, ent)
		}
	}
	phases := []struct {
		name string
		fn   checkFunc
	}{
		{PhaseRequiredFields, checkRequiredFields},
		{PhaseRequiredRelations, checkRequiredRelations},
		{PhaseSymbolicIDs, checkSymbolicID},
		{PhaseCardinality, checkCardinality},
	}
	for _, phase := range phases {
		for _, ent := range live {
			if err := phase.fn(st, ent); err != nil {
				return &domain.CommitError{Phase: phase.name, Err: err}
			}
		}
	}
	return nil
}

func sortedScope(set map[domain.EntityID]struct{}) []domain.EntityID {
	ids := slices.Collect(maps.Keys(set))
	slices.SortFunc(ids, compareIDs)
	return ids
}

func checkRequiredFields(st *state, ent *domain.EntityData) error {
	info, ok := st.reg.Kind(ent.Kind())
	if !ok {
		return domain.NewConfigurationError(ent.Kind(), "kind is not registered")
	}
	for _, f := range info.Fields {
		if f.Required() && !ent.Has(f.Name) {
			return &domain.UninitializedFieldError{Entity: ent.ID(), Field: f.Name}
		}
	}
	return nil
}

func checkRequiredRelations(st *state, ent *domain.EntityData) error {
	id := ent.ID()
	for _, connID := range st.reg.ChildConnections(id.Kind) {
		conn, _ := st.reg.Connection(connID)
		pid, ok := st.parentID(connID, id)
		switch {
		case !ok:
			if conn.ParentRequired {
				return &domain.CardinalityViolation{Connection: conn.Name, Entity: id, Reason: domain.ReasonMissingParent}
			}
		case !st.live(pid):
			return &domain.CardinalityViolation{Connection: conn.Name, Entity: id, Reason: domain.ReasonDanglingEndpoint, Detail: "parent " + pid.String() + " is not live"}
		case !st.reg.IsA(pid.Kind, conn.Parent):
			return &domain.CardinalityViolation{Connection: conn.Name, Entity: id, Reason: domain.ReasonIncompatibleKind, Detail: fmt.Sprintf("parent kind %s", pid.Kind)}
		}
	}
	for _, connID := range st.reg.ParentConnections(id.Kind) {
		conn, _ := st.reg.Connection(connID)
		for _, child := range st.childIDs(connID, id) {
			if !st.live(child) {
				return &domain.CardinalityViolation{Connection: conn.Name, Entity: id, Reason: domain.ReasonDanglingEndpoint, Detail: "child " + child.String() + " is not live"}
			}
			if !st.reg.IsA(child.Kind, conn.Child) {
				return &domain.CardinalityViolation{Connection: conn.Name, Entity: id, Reason: domain.ReasonIncompatibleKind, Detail: fmt.Sprintf("child kind %s", child.Kind)}
			}
		}
	}
	return nil
}

func checkSymbolicID(st *state, ent *domain.EntityData) error {
	sid, ok := st.reg.SymbolicID(ent.Kind(), ent.RawFields())
	if !ok {
		return nil
	}
	claimants, _ := st.symbols.Get(sid)
	if len(claimants) > 1 {
		return &domain.DuplicateSymbolicIDError{ID: sid, Entities: slices.Clone(claimants)}
	}
	return nil
}

func checkCardinality(st *state, ent *domain.EntityData) error {
	id := ent.ID()
	for _, connID := range st.reg.ParentConnections(id.Kind) {
		conn, _ := st.reg.Connection(connID)
		children := st.childIDs(connID, id)
		if conn.Cardinality.Single() && len(children) > 1 {
			return &domain.CardinalityViolation{Connection: conn.Name, Entity: id, Reason: domain.ReasonSecondChild, Detail: fmt.Sprintf("%d children", len(children))}
		}
		for i, child := range children {
			if slices.Index(children, child) != i {
				return &domain.CardinalityViolation{Connection: conn.Name, Entity: child, Reason: domain.ReasonAsymmetric, Detail: "child listed twice under " + id.String()}
			}
			if pid, ok := st.parentID(connID, child); !ok || pid != id {
				return &domain.CardinalityViolation{Connection: conn.Name, Entity: child, Reason: domain.ReasonAsymmetric, Detail: "listed under " + id.String() + " without back-reference"}
			}
		}
	}
	for _, connID := range st.reg.ChildConnections(id.Kind) {
		conn, _ := st.reg.Connection(connID)
		pid, ok := st.parentID(connID, id)
		if !ok {
			continue
		}
		if !slices.Contains(st.childIDs(connID, pid), id) {
			return &domain.CardinalityViolation{Connection: conn.Name, Entity: id, Reason: domain.ReasonAsymmetric, Detail: "parent " + pid.String() + " does not list it"}
		}
	}
	return nil
}
