package store

import (
	"slices"

	"entitygraph/pkg/domain"
)

func collectChanges(t *txn) []domain.Change {
	c := t.changes
	out := make([]domain.Change, 0, len(c.created)+len(c.updated)+len(c.removed))
	for id := range c.created {
		after, ok := t.st.get(id)
		if !ok {
			continue
		}
		out = append(out, domain.Change{Action: domain.ActionCreate, Entity: id, Properties: c.properties(id), After: after})
	}
	for id := range c.updated {
		if _, created := c.created[id]; created {
			continue
		}
		after, ok := t.st.get(id)
		if !ok {
			continue
		}
		before, _ := t.base.get(id)
		out = append(out, domain.Change{Action: domain.ActionUpdate, Entity: id, Properties: c.properties(id), Before: before, After: after})
	}
	for id, before := range c.removed {
		out = append(out, domain.Change{Action: domain.ActionRemove, Entity: id, Before: before})
	}
	slices.SortFunc(out, func(a, b domain.Change) int { return a.Entity.Compare(b.Entity) })
	return out
}
