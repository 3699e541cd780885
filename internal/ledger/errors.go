package ledger

import "errors"

// Ledger errors are business-rule violations. They are terminal for the write that
// triggered them and must reach the caller unchanged; never retry them.
var (
	ErrAlreadyInitialized  = errors.New("progress already initialized")
	ErrDuplicateSubmission = errors.New("duplicate submission")
	ErrProgressNotFound    = errors.New("progress not found")
	ErrTaskNotFound        = errors.New("task not found")
)
