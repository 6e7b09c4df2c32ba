package client

import (
	"fmt"
)

// The error taxonomy splits failures the way callers need to handle
// them: connection problems (transport never produced a service
// response), logon problems, service-level faults (api.Fault, with the
// reserved edit-lock code api.EditLockHeldCode), protocol misuse by the
// caller, and unknown operation names. Type-resolution failures during
// encoding surface as api.TypeResolutionError.

// ConnectionError wraps a transport-level failure. It is always fatal
// to the current call and never retried automatically.
type ConnectionError struct {
	// Op is the operation that was being attempted.
	Op string
	// Err is the underlying transport failure.
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("testtrackpro: %s: connection error: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// LogonError reports an authentication failure, or a logoff failure the
// caller did not ask to tolerate.
type LogonError struct {
	// Op is the logon or logoff operation that failed.
	Op string
	// Err is the underlying failure.
	Err error
}

func (e *LogonError) Error() string {
	return fmt.Sprintf("testtrackpro: %s failed: %v", e.Op, e.Err)
}

func (e *LogonError) Unwrap() error { return e.Err }

// ProtocolMisuseError reports that caller code used the client surface
// incorrectly: a commit or discard against the wrong table, an edit
// session from another client, or an entity with no owning session
// where one is required. No RPC is issued for a misuse.
type ProtocolMisuseError struct {
	// Op is the operation the caller attempted.
	Op string
	// Detail names what was wrong.
	Detail string
}

func (e *ProtocolMisuseError) Error() string {
	return fmt.Sprintf("testtrackpro: %s: %s", e.Op, e.Detail)
}

// OperationNotFoundError reports that the remote service does not
// declare the named operation.
type OperationNotFoundError struct {
	// Name is the operation that could not be resolved.
	Name string
}

func (e *OperationNotFoundError) Error() string {
	return fmt.Sprintf("testtrackpro: service has no operation %q", e.Name)
}
