package api

import (
	"errors"
	"fmt"
)

// EditLockHeldCode is the fault detail code the service returns when
// another session already holds the edit lock on an entity. It is the
// only fault code with reserved meaning at this layer; all others are
// opaque.
const EditLockHeldCode = "22"

// SessionDroppedMessage is the fault string the service returns when a
// logoff races its own session expiry. Logoff treats it as success.
const SessionDroppedMessage = "Session Dropped."

// Fault is a service-level rejection of a call. It carries the
// machine-readable fault code from the fault detail and the
// human-readable fault string.
type Fault struct {
	// Code is the fault detail code. EditLockHeldCode is reserved.
	Code string
	// Message is the service's fault string.
	Message string
	// Op is the operation that was rejected.
	Op string
}

func (f *Fault) Error() string {
	if f.Code != "" {
		return fmt.Sprintf("testtrackpro: %s rejected: %s (code %s)", f.Op, f.Message, f.Code)
	}
	return fmt.Sprintf("testtrackpro: %s rejected: %s", f.Op, f.Message)
}

// IsEditLockHeld reports whether err is a Fault carrying the reserved
// edit-lock-held code.
func IsEditLockHeld(err error) bool {
	var fault *Fault
	return errors.As(err, &fault) && fault.Code == EditLockHeldCode
}

// FaultCode returns the machine-readable code carried by err, or ""
// when err carries no structured fault.
func FaultCode(err error) string {
	var fault *Fault
	if errors.As(err, &fault) {
		return fault.Code
	}
	return ""
}

// Reason returns the human-readable reason for err: the fault string
// when a structured fault is present, falling back to the error's own
// message.
func Reason(err error) string {
	var fault *Fault
	if errors.As(err, &fault) {
		return fault.Message
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

// TypeResolutionError reports that a concrete type observed at runtime
// could not be resolved against the schema. It is fatal: guessing a
// wire type would corrupt the outbound request.
type TypeResolutionError struct {
	// TypeName is the type that failed to resolve.
	TypeName string
}

func (e *TypeResolutionError) Error() string {
	return fmt.Sprintf("testtrackpro: type %q not found in schema", e.TypeName)
}
