package provisioning

import (
	"fmt"
	"slices"
)

// Kind classifies failures so operators can tell configuration problems
// from transient target failures and policy decisions.
type Kind string

// Error kinds.
const (
	KindConfiguration Kind = "configuration"
	KindTarget        Kind = "target"
	KindPolicy        Kind = "policy"
	// KindInternal covers failures of the provisioning service's own
	// stores. They are transient and retried like target failures.
	KindInternal      Kind = "internal"
	KindNone          Kind = ""
)

// Code is a stable, resolvable error code recorded on operation results.
type Code string

// Result codes.
const (
	CodeConnectorKeyMissing Code = "PROVISIONING_CONNECTOR_KEY_MISSING"
	CodeSystemNotFound      Code = "PROVISIONING_SYSTEM_NOT_FOUND"
	CodeMappingNotFound     Code = "PROVISIONING_MAPPING_NOT_FOUND"
	CodeMappingAmbiguous    Code = "PROVISIONING_MAPPING_AMBIGUOUS"
	CodeTransformFailed     Code = "PROVISIONING_TRANSFORM_FAILED"
	CodeApprovalFailed      Code = "PROVISIONING_APPROVAL_FAILED"

	CodeTargetReadFailed   Code = "PROVISIONING_TARGET_READ_FAILED"
	CodeTargetCreateFailed Code = "PROVISIONING_TARGET_CREATE_FAILED"
	CodeTargetUpdateFailed Code = "PROVISIONING_TARGET_UPDATE_FAILED"
	CodeTargetDeleteFailed Code = "PROVISIONING_TARGET_DELETE_FAILED"
	CodeTargetTimeout      Code = "PROVISIONING_TARGET_TIMEOUT"

	CodeSystemDisabled       Code = "PROVISIONING_SYSTEM_DISABLED"
	CodeProvisioningDisabled Code = "PROVISIONING_DISABLED"
	CodeSystemReadonly       Code = "PROVISIONING_SYSTEM_READONLY"
	CodeOperationBlocked     Code = "PROVISIONING_BREAK_OPERATION_BLOCKED"
	CodeApprovalRejected     Code = "PROVISIONING_APPROVAL_REJECTED"

	CodeInternal Code = "PROVISIONING_INTERNAL_ERROR"

	CodeExecuted       Code = "PROVISIONING_SUCCEED"
	CodeNothingChanged Code = "PROVISIONING_NOTHING_CHANGED"
	CodeCanceled       Code = "PROVISIONING_CANCELED"
	CodeAwaitApproval  Code = "PROVISIONING_AWAITING_APPROVAL"
)

type codeInfo struct {
	kind        Kind
	description string
}

var codes = map[Code]codeInfo{
	CodeConnectorKeyMissing: {KindConfiguration, "system has no connector configured"},
	CodeSystemNotFound:      {KindConfiguration, "target system does not exist"},
	CodeMappingNotFound:     {KindConfiguration, "no active attribute mapping for system and entity type"},
	CodeMappingAmbiguous:    {KindConfiguration, "more than one active attribute mapping for system and entity type"},
	CodeTransformFailed:     {KindConfiguration, "attribute transform failed"},
	CodeApprovalFailed:      {KindConfiguration, "approval process could not be started"},

	CodeTargetReadFailed:   {KindTarget, "reading the object from the target system failed"},
	CodeTargetCreateFailed: {KindTarget, "creating the object on the target system failed"},
	CodeTargetUpdateFailed: {KindTarget, "updating the object on the target system failed"},
	CodeTargetDeleteFailed: {KindTarget, "deleting the object on the target system failed"},
	CodeTargetTimeout:      {KindTarget, "target system did not answer in time"},

	CodeSystemDisabled:       {KindPolicy, "target system is disabled"},
	CodeProvisioningDisabled: {KindPolicy, "provisioning is disabled"},
	CodeSystemReadonly:       {KindPolicy, "target system is read only"},
	CodeOperationBlocked:     {KindPolicy, "operation type is blocked on the target system"},
	CodeApprovalRejected:     {KindPolicy, "operation was rejected by approval"},

	CodeInternal: {KindInternal, "provisioning state could not be read or written"},

	CodeExecuted:       {KindNone, "operation executed"},
	CodeNothingChanged: {KindNone, "target object already matches; nothing sent"},
	CodeCanceled:       {KindNone, "operation canceled"},
	CodeAwaitApproval:  {KindNone, "operation is waiting for approval"},
}

// Kind returns the taxonomy kind of the code.
func (c Code) Kind() Kind { return codes[c].kind }

// Retryable reports whether a failure with this code may succeed when the
// operation is run again unchanged.
func (c Code) Retryable() bool {
	kind := c.Kind()
	return kind == KindTarget || kind == KindInternal
}

// RetryableCodes lists every retryable code in a stable order.
func RetryableCodes() []Code {
	out := make([]Code, 0, len(codes))
	for c := range codes {
		if c.Retryable() {
			out = append(out, c)
		}
	}
	slices.Sort(out)
	return out
}

// Describe returns the default human readable description of the code.
func (c Code) Describe() string {
	if info, ok := codes[c]; ok {
		return info.description
	}
	return string(c)
}

// Error is a provisioning failure carrying a stable code.
type Error struct {
	Code Code
	Err  error
}

// NewError wraps err with a result code.
func NewError(code Code, err error) *Error { return &Error{Code: code, Err: err} }

// Errorf builds an *Error from a format string.
func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Kind returns the taxonomy kind of the error.
func (e *Error) Kind() Kind { return e.Code.Kind() }
