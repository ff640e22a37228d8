package entities

// ChangedEntity describes one audited record touched at a single revision:
// the concrete type that was written, its identity, the kind of mutation and
// the record state reconstructed at that revision.
type ChangedEntity struct {
	TypeName string         `json:"type"`
	Identity map[string]any `json:"identity"`
	RevType  RevType        `json:"revtype"`
	Entity   any            `json:"entity"`
}
