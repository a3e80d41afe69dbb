package graph

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind is a stable code for each failure class a run can hit.
type ErrorKind string

const (
	// KindClassification: the router produced a label outside rag/sql/hybrid.
	KindClassification ErrorKind = "CLASSIFICATION_ERROR"
	// KindPlanning: empty or unusable search-query or constraint output.
	KindPlanning ErrorKind = "PLANNING_ERROR"
	// KindConstraint: an extracted constraint contradicts itself.
	KindConstraint ErrorKind = "CONSTRAINT_ERROR"
	// KindUnsafeQuery: generated query would mutate the store.
	KindUnsafeQuery ErrorKind = "UNSAFE_QUERY"
	// KindExecution: the store rejected the query. Only this kind is retried.
	KindExecution ErrorKind = "EXECUTION_ERROR"
	// KindSynthesisType: the answer could not be coerced to its declared type.
	KindSynthesisType ErrorKind = "SYNTHESIS_TYPE_ERROR"
	// KindCitationIntegrity: a citation named a source this run never used.
	KindCitationIntegrity ErrorKind = "CITATION_INTEGRITY_ERROR"
	// KindBackend: a collaborator (model, retriever, schema) failed.
	KindBackend ErrorKind = "BACKEND_ERROR"
	// KindInternal: cancellation, step limit or a recovered panic.
	KindInternal ErrorKind = "INTERNAL_ERROR"
)

// Error is the single error type produced by graph nodes.
type Error struct {
	Kind    ErrorKind
	Node    string
	Message string
	Err     error
}

func newError(kind ErrorKind, node, message string, err error) *Error {
	return &Error{Kind: kind, Node: node, Message: message, Err: err}
}

// backendError classifies a failed collaborator call. Once the run's
// context is done the failure is cancellation, not a backend fault.
func backendError(ctx context.Context, node, message string, err error) *Error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return newError(KindInternal, node, "run cancelled", ctxErr)
	}
	return newError(KindBackend, node, message, err)
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Node != "" {
		msg = e.Node + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Retryable() bool { return e.Kind == KindExecution }

// KindOf returns the kind of a graph error, or "" for anything else.
func KindOf(err error) ErrorKind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return ""
}
