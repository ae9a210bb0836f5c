package prov

import "fmt"

// ErrorKind classifies document-level validation failures. The kind drives
// the HTTP status the API layer surfaces; the message is the contract the
// response body carries verbatim.
type ErrorKind string

// Document error kinds.
const (
	// ErrParse marks a document that could not be deserialized.
	ErrParse ErrorKind = "parse"
	// ErrStructure marks a structural precondition failure: bundle or
	// main-activity cardinality, missing mandatory connector attributes.
	ErrStructure ErrorKind = "structure"
	// ErrReference marks a failed connector reference resolution or a
	// hash mismatch.
	ErrReference ErrorKind = "reference"
	// ErrConstraint marks a CPM rule violation. The message text is part
	// of the external contract and matched literally downstream.
	ErrConstraint ErrorKind = "constraint"
	// ErrNamespace marks identifier or namespace validity failures.
	ErrNamespace ErrorKind = "namespace"
	// ErrUnresolvable marks a reference the validator cannot classify at
	// all (ambiguous namespace, undecidable local-vs-remote). Surfaced as
	// a server-side fault rather than a client one.
	ErrUnresolvable ErrorKind = "unresolvable"
)

// DocumentError is a validation failure with a user-facing message.
type DocumentError struct {
	Kind    ErrorKind
	Message string
}

// Error implements the error interface.
func (e *DocumentError) Error() string { return e.Message }

// Errorf builds a DocumentError with a formatted message.
func Errorf(kind ErrorKind, format string, args ...any) *DocumentError {
	return &DocumentError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// AsDocumentError unwraps err into a DocumentError, if it is one.
func AsDocumentError(err error) (*DocumentError, bool) {
	de, ok := err.(*DocumentError)
	return de, ok
}
