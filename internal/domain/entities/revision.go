package entities

import "time"

// RevType tags the kind of mutation a shadow row represents.
type RevType string

const (
	RevTypeInsert RevType = "INS"
	RevTypeUpdate RevType = "UPD"
	RevTypeDelete RevType = "DEL"
)

// Valid reports whether t is one of the known revision types.
func (t RevType) Valid() bool {
	switch t {
	case RevTypeInsert, RevTypeUpdate, RevTypeDelete:
		return true
	}
	return false
}

// Revision is one entry in the append-only revision ledger. A revision is
// created once per logical transaction that mutated at least one audited
// record; it is never updated or deleted afterwards.
type Revision struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Author    string    `json:"author,omitempty"`
}
