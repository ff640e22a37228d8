package services

import "fmt"

// NotAuditedError reports a request for a type without audit metadata. This
// is a caller error and never retried.
type NotAuditedError struct {
	TypeName string
}

func (e *NotAuditedError) Error() string {
	return fmt.Sprintf("type %q is not audited", e.TypeName)
}

// NoRevisionFoundError reports that no shadow row exists at or before the
// requested revision. This can be a legitimate "the record did not exist yet".
type NoRevisionFoundError struct {
	TypeName string
	Identity map[string]any
	Revision int64
}

func (e *NoRevisionFoundError) Error() string {
	return fmt.Sprintf("no revision of %s %v at or before revision %d", e.TypeName, e.Identity, e.Revision)
}

// DeletedError reports that the resolved shadow row is tagged as a deletion.
// It is only raised when the caller opted into strict deletions; without the
// option the deleted state is returned like any other.
type DeletedError struct {
	TypeName string
	Identity map[string]any
	Revision int64
}

func (e *DeletedError) Error() string {
	return fmt.Sprintf("%s %v was deleted at or before revision %d", e.TypeName, e.Identity, e.Revision)
}

// InvalidRevisionError reports that a ledger lookup by id did not match
// exactly one revision. The ledger is append-only with unique ids, so this is
// a data-integrity problem and always fatal to the call.
type InvalidRevisionError struct {
	Revision int64
	Count    int
}

func (e *InvalidRevisionError) Error() string {
	return fmt.Sprintf("revision %d matched %d ledger entries, want exactly 1", e.Revision, e.Count)
}
