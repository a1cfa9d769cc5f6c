// Package apierrors defines the stable coded errors this adapter returns
// to its callers (§7). There are two classes: 41xx client errors (bad
// input) and 51xx internal errors (adapter/store inconsistency).
package apierrors

import "fmt"

// Error codes, grouped by class.
const (
	CodeInvalidOpVersion         = 4101
	CodeInvalidCollectionName    = 4102
	CodeJSQueriesDisabled        = 4103
	CodeMapReduceDisabled        = 4104
	CodeAggregateDisabled        = 4105
	CodeLegacyQueryWrapper       = 4106
	CodeMalformedQueryOperator   = 4107
	CodeMultipleCollectionOps    = 4108
	CodeMultipleCursorOps        = 4109
	CodeCursorAfterCollectionOp  = 4110
	CodeQueryParseFailure        = 4111

	CodeAlreadyClosed        = 5101
	CodeMissingLastOperation = 5102
	CodeMissingOps           = 5103
)

// Error is a coded adapter error. Its Code is stable across releases so
// callers can branch on it instead of matching message text.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

func newErr(code int, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// IsCode reports whether err is an *Error with the given code.
func IsCode(err error, code int) bool {
	e, ok := err.(*Error)
	return ok && e.Code == code
}

// InvalidOpVersion reports that op.v was not usable as an integer
// version. Takes v directly from the caller's argument — the source
// adapter this spec is drawn from has a documented bug where its
// constructor for this error references an undefined identifier instead
// of the version it was given (§9); there is nothing analogous to
// reproduce here since v is simply the parameter.
func InvalidOpVersion(v int64) *Error {
	return newErr(CodeInvalidOpVersion, "invalid op version: %d", v)
}

// InvalidCollectionName reports use of a reserved collection name.
func InvalidCollectionName(name string) *Error {
	return newErr(CodeInvalidCollectionName, "invalid collection name: %q", name)
}

// JSQueriesDisabled reports use of $where while AllowJSQueries is false.
func JSQueriesDisabled() *Error {
	return newErr(CodeJSQueriesDisabled, "$where is disabled")
}

// MapReduceDisabled reports use of $mapReduce while AllowJSQueries is false.
func MapReduceDisabled() *Error {
	return newErr(CodeMapReduceDisabled, "$mapReduce is disabled")
}

// AggregateDisabled reports use of $aggregate while AllowAggregateQueries is false.
func AggregateDisabled() *Error {
	return newErr(CodeAggregateDisabled, "$aggregate is disabled")
}

// LegacyQueryWrapper reports use of the legacy {$query: ...} wrapper.
func LegacyQueryWrapper() *Error {
	return newErr(CodeLegacyQueryWrapper, "legacy $query wrapper is not supported")
}

// MalformedQueryOperator reports an unrecognized or malformed operator.
func MalformedQueryOperator(op string) *Error {
	return newErr(CodeMalformedQueryOperator, "malformed query operator: %q", op)
}

// MultipleCollectionOps reports more than one collection operation in a query.
func MultipleCollectionOps() *Error {
	return newErr(CodeMultipleCollectionOps, "at most one collection operation is allowed")
}

// MultipleCursorOps reports more than one cursor operation in a query.
func MultipleCursorOps() *Error {
	return newErr(CodeMultipleCursorOps, "at most one cursor operation is allowed")
}

// CursorMethodAfterCollectionOp reports a cursor method combined with a
// collection operation.
func CursorMethodAfterCollectionOp() *Error {
	return newErr(CodeCursorAfterCollectionOp, "cursor methods cannot be combined with a collection operation")
}

// QueryParseFailure reports a generic query-shape parse failure.
func QueryParseFailure(reason string) *Error {
	return newErr(CodeQueryParseFailure, "query parse failure: %s", reason)
}

// AlreadyClosed reports use of the adapter after Close.
func AlreadyClosed() *Error {
	return newErr(CodeAlreadyClosed, "adapter is already closed")
}

// MissingLastOperation reports a snapshot with no _o link when ops exist
// for the document. Implemented as a plain function regardless of any
// receiver, matching the intended behavior described for the source
// adapter's similarly-named (and misspelled) helper (§9).
func MissingLastOperation() *Error {
	return newErr(CodeMissingLastOperation, "snapshot is missing its last-operation link")
}

// MissingOps reports a gap between the requested version range and the
// ops actually reachable from the snapshot's op link.
func MissingOps() *Error {
	return newErr(CodeMissingOps, "requested operations are missing")
}
