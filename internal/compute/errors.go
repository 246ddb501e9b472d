package compute

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure. Every kind is fatal for the run.
type Kind int

const (
	KindUnknown Kind = iota
	KindDeviceUnavailable
	KindQueueCreation
	KindImageDecode
	KindCompile
	KindEntryPointNotFound
	KindArgumentMismatch
	KindTransfer
	KindInvalidArgument
	KindDispatch
)

func (k Kind) String() string {
	switch k {
	case KindDeviceUnavailable:
		return "DeviceUnavailable"
	case KindQueueCreation:
		return "QueueCreationError"
	case KindImageDecode:
		return "ImageDecodeError"
	case KindCompile:
		return "CompileError"
	case KindEntryPointNotFound:
		return "EntryPointNotFound"
	case KindArgumentMismatch:
		return "ArgumentMismatch"
	case KindTransfer:
		return "TransferError"
	case KindInvalidArgument:
		return "InvalidArgument"
	case KindDispatch:
		return "DispatchError"
	default:
		return "Unknown"
	}
}

// Error is a failure of one pipeline stage.
// Use errors.Is(err, ErrTransfer) and friends to test the kind.
type Error struct {
	Kind  Kind
	Stage string // operation that failed, e.g. "upload filter"
	Err   error  // underlying driver or I/O error, may be nil
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Stage != "" {
		msg += " in " + e.Stage
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so the sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Stage == "" || t.Stage == e.Stage)
}

// Sentinels for errors.Is.
var (
	ErrDeviceUnavailable  = &Error{Kind: KindDeviceUnavailable}
	ErrQueueCreation      = &Error{Kind: KindQueueCreation}
	ErrImageDecode        = &Error{Kind: KindImageDecode}
	ErrCompile            = &Error{Kind: KindCompile}
	ErrEntryPointNotFound = &Error{Kind: KindEntryPointNotFound}
	ErrArgumentMismatch   = &Error{Kind: KindArgumentMismatch}
	ErrTransfer           = &Error{Kind: KindTransfer}
	ErrInvalidArgument    = &Error{Kind: KindInvalidArgument}
	ErrDispatch           = &Error{Kind: KindDispatch}
)

// Wrap tags err with a kind and stage. A nil err stays nil.
func Wrap(kind Kind, stage string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Stage: stage, Err: err}
}

// Errorf builds a tagged error from a message.
func Errorf(kind Kind, stage, format string, args ...any) error {
	return &Error{Kind: kind, Stage: stage, Err: fmt.Errorf(format, args...)}
}

// CompileError carries the device compiler diagnostic verbatim.
type CompileError struct {
	Log string
	Err error
}

func (e *CompileError) Error() string {
	if e.Log == "" {
		if e.Err != nil {
			return "CompileError: " + e.Err.Error()
		}
		return "CompileError"
	}
	return "CompileError: build log:\n" + e.Log
}

func (e *CompileError) Unwrap() error {
	return e.Err
}

func (e *CompileError) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == KindCompile && t.Stage == ""
}

// Ensure tags err with kind unless it already carries a kind.
func Ensure(kind Kind, stage string, err error) error {
	if err == nil {
		return nil
	}
	var tagged *Error
	if errors.As(err, &tagged) {
		return err
	}
	var cerr *CompileError
	if errors.As(err, &cerr) {
		return err
	}
	return Wrap(kind, stage, err)
}
