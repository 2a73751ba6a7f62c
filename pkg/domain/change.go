package domain

// Action identifies how a change affected an entity.
type Action string

// Supported change actions.
const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionRemove Action = "remove"
)

// Change describes one entity-level difference produced by a commit.
// Properties lists the changed field names for updates; relation edits are
// reported with the connection name prefixed by "@".
type Change struct {
	Action     Action
	Entity     EntityID
	Properties []string
	Before     *EntityData
	After      *EntityData
}

// ChangeSummary counts changes by action.
type ChangeSummary struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Removed int `json:"removed"`
}

// Summarize tallies a change list.
func Summarize(changes []Change) ChangeSummary {
	var s ChangeSummary
	for _, c := range changes {
		switch c.Action {
		case ActionCreate:
			s.Created++
		case ActionUpdate:
			s.Updated++
		case ActionRemove:
			s.Removed++
		}
	}
	return s
}
