package workflow

import (
	"errors"
	"fmt"
)

// Sentinel error classes. Use errors.Is to test a returned error.
var (
	// ErrInvalidGraph marks structural problems found while compiling a graph.
	ErrInvalidGraph = errors.New("invalid graph")
	// ErrRouting marks a conditional edge that could not pick a target.
	ErrRouting = errors.New("routing error")
	// ErrStepLimit marks a run that exceeded its step budget.
	ErrStepLimit = errors.New("step limit exceeded")
	// ErrNoInputProvider is returned by Runtime.Prompt when no provider is configured.
	ErrNoInputProvider = errors.New("no input provider configured")
)

// ErrorCode identifies the kind of GraphError
type ErrorCode string

const (
	CodeNoNodes        ErrorCode = "NO_NODES"
	CodeNoEntry        ErrorCode = "NO_ENTRY"
	CodeUnknownEntry   ErrorCode = "UNKNOWN_ENTRY"
	CodeDuplicateNode  ErrorCode = "DUPLICATE_NODE"
	CodeReservedName   ErrorCode = "RESERVED_NAME"
	CodeNilNode        ErrorCode = "NIL_NODE"
	CodeUnknownSource  ErrorCode = "UNKNOWN_SOURCE"
	CodeUnknownTarget  ErrorCode = "UNKNOWN_TARGET"
	CodeDuplicateEdge  ErrorCode = "DUPLICATE_EDGE"
	CodeMissingEdge    ErrorCode = "MISSING_EDGE"
	CodeNilRouter      ErrorCode = "NIL_ROUTER"
	CodeEmptyRoutes    ErrorCode = "EMPTY_ROUTES"
	CodeUnreachable    ErrorCode = "UNREACHABLE_NODE"
	CodeCycle          ErrorCode = "CYCLE"
	CodeUnmappedLabel  ErrorCode = "UNMAPPED_LABEL"
	CodeRouterFailed   ErrorCode = "ROUTER_FAILED"
	CodeStepLimit      ErrorCode = "STEP_LIMIT"
	CodeInvalidOptions ErrorCode = "INVALID_OPTIONS"
)

// GraphError is a structural failure: either the graph is misconfigured
// or a conditional edge produced a label it does not know.
type GraphError struct {
	Code    ErrorCode
	Node    string
	Label   string
	Message string
	Err     error
}

func (e *GraphError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Node != "" {
		msg += fmt.Sprintf(" (node=%s", e.Node)
		if e.Label != "" {
			msg += fmt.Sprintf(", label=%s", e.Label)
		}
		msg += ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *GraphError) Unwrap() error { return e.Err }

// Is maps error codes onto the sentinel classes.
func (e *GraphError) Is(target error) bool {
	switch target {
	case ErrRouting:
		return e.Code == CodeUnmappedLabel || e.Code == CodeRouterFailed
	case ErrStepLimit:
		return e.Code == CodeStepLimit
	case ErrInvalidGraph:
		switch e.Code {
		case CodeUnmappedLabel, CodeRouterFailed, CodeStepLimit:
			return false
		}
		return true
	}
	return false
}

func newGraphError(code ErrorCode, node, format string, args ...any) *GraphError {
	return &GraphError{Code: code, Node: node, Message: fmt.Sprintf(format, args...)}
}

// IsConfigError reports whether err is a fatal configuration error,
// as opposed to a run that merely produced degraded data.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrInvalidGraph) || errors.Is(err, ErrRouting)
}

// fatalError marks a node error that must abort the run.
type fatalError struct {
	err error
}

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

// Fatal wraps err so the executor aborts the run instead of degrading.
// A nil err stays nil.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &fatalError{err: err}
}

// IsFatal reports whether err was marked with Fatal
func IsFatal(err error) bool {
	var fe *fatalError
	return errors.As(err, &fe)
}
