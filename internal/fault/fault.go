// Package fault defines the structured, machine-readable errors surfaced by
// the reconciliation and verification layers.
package fault

import (
	"errors"
	"fmt"
)

const (
	InvalidIR          = "INVALID_IR"
	InvalidParams      = "INVALID_PARAMS"
	DuplicateID        = "DUPLICATE_ID"
	NotFound           = "NOT_FOUND"
	PinNotFound        = "PIN_NOT_FOUND"
	AmbiguousPin       = "AMBIGUOUS_PIN"
	PlaceFailed        = "PLACE_FAILED"
	CreateFailed       = "CREATE_FAILED"
	WireCreateFailed   = "WIRE_CREATE_FAILED"
	StorageWriteFailed = "STORAGE_WRITE_FAILED"
	StorageReadFailed  = "STORAGE_READ_FAILED"
	NoActiveDocument   = "NO_ACTIVE_DOCUMENT"
	NotInSchematicPage = "NOT_IN_SCHEMATIC_PAGE"
	BridgeDisconnected = "BRIDGE_DISCONNECTED"
	Timeout            = "TIMEOUT"
	NotSupported       = "NOT_SUPPORTED"
	SourceUnavailable  = "SOURCE_UNAVAILABLE"
	Internal           = "INTERNAL"
)

type Fault struct {
	Code    string
	Message string
	Details any
	cause   error
}

func (f *Fault) Error() string {
	if f == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", f.Code, f.Message)
}

func (f *Fault) Unwrap() error {
	if f == nil {
		return nil
	}
	return f.cause
}

func New(code, message string) *Fault {
	return &Fault{Code: code, Message: message}
}

func Newf(code, format string, args ...any) *Fault {
	return &Fault{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithDetails attaches structured details and returns the same fault.
func (f *Fault) WithDetails(details any) *Fault {
	f.Details = details
	return f
}

// Wrap keeps cause reachable through errors.Is/As while presenting code and message.
func Wrap(code string, cause error, message string) *Fault {
	return &Fault{Code: code, Message: message, cause: cause}
}

// CodeOf returns the code of the first Fault in err's chain, or "" if there is none.
func CodeOf(err error) string {
	var f *Fault
	if errors.As(err, &f) {
		return f.Code
	}
	return ""
}

func Is(err error, code string) bool {
	return err != nil && CodeOf(err) == code
}
