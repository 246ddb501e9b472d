// Package store keeps a history of blur runs on disk.
package store

// Store defines the interface for run persistence.
// Implementations must be safe for concurrent use.
//
// Error handling conventions:
//   - Return ErrNotFound if the run doesn't exist (for Load/Delete)
//   - Wrap underlying errors with context using fmt.Errorf("context: %w", err)
type Store interface {
	// SaveRun atomically writes the record, overwriting an existing record
	// with the same ID.
	SaveRun(rec *RunRecord) error

	// LoadRun retrieves one record. Returns ErrNotFound if it doesn't exist.
	LoadRun(id string) (*RunRecord, error)

	// ListRuns returns the summaries of all readable records, newest first.
	ListRuns() ([]RunInfo, error)

	// DeleteRun removes the record and its trace.
	// Returns ErrNotFound if no record exists for id.
	DeleteRun(id string) error
}

// ErrNotFound is returned when a requested run does not exist.
// Use errors.Is(err, ErrNotFound) to check for this error.
var ErrNotFound = &NotFoundError{}

// NotFoundError represents a missing run.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return "run not found: " + e.ID
	}
	return "run not found"
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}
