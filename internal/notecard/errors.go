package notecard

import (
	"fmt"
	"unicode/utf8"
)

// Kind classifies a driver failure. The set is closed.
type Kind int

const (
	KindWrite Kind = iota
	KindRead
	KindDeser
	KindSer
	// KindInvalidRequest: request does not end with '\n'.
	KindInvalidRequest
	KindRemainingData
	KindTimeout
	KindBufOverflow
	// KindWrongState: method called while the driver cannot serve it (e.g. after Suspend).
	KindWrongState
	KindDFUInProgress
	KindFileStorageFull
	KindAddingNote
	KindNotecard
)

var kindNames = [...]string{
	KindWrite:           "write error",
	KindRead:            "read error",
	KindDeser:           "deserialization error",
	KindSer:             "serialization error",
	KindInvalidRequest:  "invalid request",
	KindRemainingData:   "remaining data",
	KindTimeout:         "timeout",
	KindBufOverflow:     "buffer overflow",
	KindWrongState:      "wrong state",
	KindDFUInProgress:   "dfu in progress",
	KindFileStorageFull: "file storage full",
	KindAddingNote:      "error adding note",
	KindNotecard:        "notecard error",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// Error is the single error type returned by the driver. Msg is a bounded
// diagnostic (see Diagnostic); Err is the underlying cause when there is one.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	s := "notecard: " + e.Kind.String()
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the exported sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is classification.
var (
	ErrWrite           = &Error{Kind: KindWrite}
	ErrRead            = &Error{Kind: KindRead}
	ErrDeser           = &Error{Kind: KindDeser}
	ErrSer             = &Error{Kind: KindSer}
	ErrInvalidRequest  = &Error{Kind: KindInvalidRequest}
	ErrRemainingData   = &Error{Kind: KindRemainingData}
	ErrTimeout         = &Error{Kind: KindTimeout}
	ErrBufOverflow     = &Error{Kind: KindBufOverflow}
	ErrWrongState      = &Error{Kind: KindWrongState}
	ErrDFUInProgress   = &Error{Kind: KindDFUInProgress}
	ErrFileStorageFull = &Error{Kind: KindFileStorageFull}
	ErrAddingNote      = &Error{Kind: KindAddingNote}
	ErrNotecard        = &Error{Kind: KindNotecard}
)

func newError(k Kind, cause error) *Error { return &Error{Kind: k, Err: cause} }

// NewDeserError builds a deserialization error carrying an excerpt of the offending bytes.
func NewDeserError(payload []byte, cause error) *Error {
	return &Error{Kind: KindDeser, Msg: Diagnostic(payload), Err: cause}
}

// Diagnostic returns at most DiagnosticLen bytes of b as a string, cut on a rune
// boundary. Payloads that are not valid UTF-8 yield "[invalid utf8]".
func Diagnostic(b []byte) string {
	if len(b) > DiagnosticLen {
		cut := DiagnosticLen
		// back off to the start of the rune straddling the limit
		for cut > DiagnosticLen-utf8.UTFMax && !utf8.RuneStart(b[cut]) {
			cut--
		}
		b = b[:cut]
	}
	if !utf8.Valid(b) {
		return "[invalid utf8]"
	}
	return string(b)
}
