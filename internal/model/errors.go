package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode categorizes store, graph and index failures.
type ErrorCode string

const (
	// CodeDuplicateID: add of an existing id without overwrite.
	CodeDuplicateID ErrorCode = "DUPLICATE_ID"

	// CodeNotFound: update or delete of an id that does not exist.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeMalformedDocument: a node document is missing required fields
	// or is structurally inconsistent.
	CodeMalformedDocument ErrorCode = "MALFORMED_DOCUMENT"

	// CodeCycleDetected: a dependency traversal found a cycle.
	CodeCycleDetected ErrorCode = "CYCLE_DETECTED"

	// CodeIndexStale: the secondary index is absent or behind the log.
	CodeIndexStale ErrorCode = "INDEX_STALE"

	// CodeTransactionAborted: a transaction was rejected or rolled back.
	CodeTransactionAborted ErrorCode = "TRANSACTION_ABORTED"
)

// Sentinels matched by errors.Is. Every *Error unwraps to the sentinel of
// its code, so errors.Is(err, ErrNotFound) works through any wrapping,
// including a TransactionAborted that wraps a NotFound cause.
var (
	ErrDuplicateID        = errors.New("duplicate id")
	ErrNotFound           = errors.New("not found")
	ErrMalformedDocument  = errors.New("malformed document")
	ErrCycleDetected      = errors.New("cycle detected")
	ErrIndexStale         = errors.New("index stale")
	ErrTransactionAborted = errors.New("transaction aborted")
)

var sentinels = map[ErrorCode]error{
	CodeDuplicateID:        ErrDuplicateID,
	CodeNotFound:           ErrNotFound,
	CodeMalformedDocument:  ErrMalformedDocument,
	CodeCycleDetected:      ErrCycleDetected,
	CodeIndexStale:         ErrIndexStale,
	CodeTransactionAborted: ErrTransactionAborted,
}

// Error is the structured error returned across package boundaries.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// ID is the node id involved, if any.
	ID string

	// Path is the cycle path for CodeCycleDetected, first id repeated last.
	Path []string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.ID != "" {
		fmt.Fprintf(&b, " (id=%s)", e.ID)
	}
	if len(e.Path) > 0 {
		fmt.Fprintf(&b, " [%s]", strings.Join(e.Path, " -> "))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes the code's sentinel and the cause.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if s, ok := sentinels[e.Code]; ok {
		out = append(out, s)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// CodeOf returns the code of the outermost *Error in err's chain, or ""
// when there is none.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsDuplicateID reports whether err is or wraps a duplicate id error.
func IsDuplicateID(err error) bool { return errors.Is(err, ErrDuplicateID) }

// IsNotFound reports whether err is or wraps a not found error.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsMalformed reports whether err is or wraps a malformed document error.
func IsMalformed(err error) bool { return errors.Is(err, ErrMalformedDocument) }

// IsCycle reports whether err is or wraps a cycle error.
func IsCycle(err error) bool { return errors.Is(err, ErrCycleDetected) }

// IsIndexStale reports whether err is or wraps an index stale error.
func IsIndexStale(err error) bool { return errors.Is(err, ErrIndexStale) }

// IsTxAborted reports whether err is or wraps a transaction abort.
func IsTxAborted(err error) bool { return errors.Is(err, ErrTransactionAborted) }

// NewDuplicateID creates the error for an add that would overwrite id.
func NewDuplicateID(id string) *Error {
	return &Error{Code: CodeDuplicateID, Message: "node already exists", ID: id}
}

// NewNotFound creates the error for a missing id.
func NewNotFound(id string) *Error {
	return &Error{Code: CodeNotFound, Message: "node does not exist", ID: id}
}

// NewMalformed creates a MalformedDocument error. id may be empty when the
// document did not yield one.
func NewMalformed(id, format string, args ...any) *Error {
	return &Error{Code: CodeMalformedDocument, Message: fmt.Sprintf(format, args...), ID: id}
}

// NewCycle creates a CycleDetected error for the given cycle path.
func NewCycle(path []string) *Error {
	id := ""
	if len(path) > 0 {
		id = path[0]
	}
	return &Error{Code: CodeCycleDetected, Message: "dependency cycle", ID: id, Path: path}
}

// NewIndexStale creates the error returned by index reads that would miss
// logged events.
func NewIndexStale(reason string) *Error {
	return &Error{Code: CodeIndexStale, Message: reason}
}

// NewTxAborted wraps the cause that rejected or rolled back a transaction.
func NewTxAborted(cause error) *Error {
	return &Error{Code: CodeTransactionAborted, Message: "transaction rolled back", Err: cause}
}
