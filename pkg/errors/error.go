package errors

import (
	"fmt"

	pkgerrors "github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Kind classifies an Error. Callers match kinds with errors.Is against the
// exported sentinels below.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindInvalidArgument
	KindInvalidState
	KindDuplicateMessageType
	KindUnregisterableType
	KindUnserializableType
	KindUnsupportedCapability
	KindCorruptFrame
	KindUnknownMessageType
	KindTransport
	KindAborted
)

var kindNames = [...]string{
	KindUnknown:               "unknown",
	KindInvalidArgument:       "invalid argument",
	KindInvalidState:          "invalid state",
	KindDuplicateMessageType:  "duplicate message type",
	KindUnregisterableType:    "unregisterable type",
	KindUnserializableType:    "unserializable type",
	KindUnsupportedCapability: "unsupported capability",
	KindCorruptFrame:          "corrupt frame",
	KindUnknownMessageType:    "unknown message type",
	KindTransport:             "transport error",
	KindAborted:               "aborted",
}

var kindCodes = [...]int{
	KindUnknown:               500,
	KindInvalidArgument:       400,
	KindInvalidState:          409,
	KindDuplicateMessageType:  409,
	KindUnregisterableType:    422,
	KindUnserializableType:    422,
	KindUnsupportedCapability: 501,
	KindCorruptFrame:          400,
	KindUnknownMessageType:    404,
	KindTransport:             503,
	KindAborted:               499,
}

func (k Kind) String() string {
	if int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
	return kindNames[k]
}

// Fatal reports whether an error of this kind always tears a connection down.
func (k Kind) Fatal() bool {
	return k == KindCorruptFrame || k == KindTransport
}

// Sentinels for errors.Is.
var (
	ErrInvalidArgument       error = &genericErr{kind: KindInvalidArgument}
	ErrInvalidState          error = &genericErr{kind: KindInvalidState}
	ErrDuplicateMessageType  error = &genericErr{kind: KindDuplicateMessageType}
	ErrUnregisterableType    error = &genericErr{kind: KindUnregisterableType}
	ErrUnserializableType    error = &genericErr{kind: KindUnserializableType}
	ErrUnsupportedCapability error = &genericErr{kind: KindUnsupportedCapability}
	ErrCorruptFrame          error = &genericErr{kind: KindCorruptFrame}
	ErrUnknownMessageType    error = &genericErr{kind: KindUnknownMessageType}
	ErrTransport             error = &genericErr{kind: KindTransport}
	ErrAborted               error = &genericErr{kind: KindAborted}
)

type Error interface {
	error
	Kind() Kind
	Fatal() bool
	Temporary() bool
	Code() int
	Reason() string
	Caller() string
	Unwrap() error
	Log(logger log.FieldLogger)
}

// New builds an error of the given kind raised by caller.
func New(kind Kind, reason string, caller string) Error {
	return &genericErr{
		kind:   kind,
		reason: reason,
		caller: caller,
	}
}

// Newf is New with a formatted reason.
func Newf(kind Kind, caller string, format string, args ...interface{}) Error {
	return New(kind, fmt.Sprintf(format, args...), caller)
}

// Wrap attaches kind and caller to cause. The cause keeps a stack trace.
func Wrap(kind Kind, cause error, reason string, caller string) Error {
	if cause == nil {
		return New(kind, reason, caller)
	}
	return &genericErr{
		kind:   kind,
		reason: reason,
		caller: caller,
		cause:  pkgerrors.WithStack(cause),
	}
}

// KindOf returns the kind of err, or KindUnknown when err is not an Error.
func KindOf(err error) Kind {
	var e Error
	if pkgerrors.As(err, &e) {
		return e.Kind()
	}
	return KindUnknown
}

type genericErr struct {
	kind   Kind
	reason string
	caller string
	cause  error
}

func (err *genericErr) Error() string {
	msg := err.kind.String()
	if err.caller != "" {
		msg = fmt.Sprintf("[%s] %s", err.caller, msg)
	}
	if err.reason != "" {
		msg += ": " + err.reason
	}
	if err.cause != nil {
		msg += ": " + pkgerrors.Cause(err.cause).Error()
	}
	return msg
}

func (err *genericErr) Is(target error) bool {
	t, ok := target.(*genericErr)
	if !ok {
		return false
	}
	return t.kind == err.kind
}

func (err *genericErr) Unwrap() error {
	return err.cause
}

func (err *genericErr) Log(logger log.FieldLogger) {
	logger.Errorf("[%s]: Error type: %d (%s), Reason: %s", err.Caller(), err.Code(), err.kind, err.Reason())
}

func (err *genericErr) Kind() Kind {
	return err.kind
}

func (err *genericErr) Fatal() bool {
	return err.kind.Fatal()
}

func (err *genericErr) Temporary() bool {
	return err.kind == KindUnknownMessageType
}

func (err *genericErr) Code() int {
	if int(err.kind) >= len(kindCodes) {
		return 500
	}
	return kindCodes[err.kind]
}

func (err *genericErr) Caller() string {
	return err.caller
}

func (err *genericErr) Reason() string {
	return err.reason
}
