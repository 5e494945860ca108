package server

import (
	"encoding/json"
	"errors"

	"github.com/kstaniek/go-notecard-server/internal/hub"
	"github.com/kstaniek/go-notecard-server/internal/notecard"
)

// Request is one client line bound for the device, tagged with the client
// the response goes back to.
type Request struct {
	Client *hub.Client
	Line   []byte
}

// SubmitFunc hands a request to the device worker without blocking.
type SubmitFunc func(Request) error

// ErrorLine renders {"err":msg}.
func ErrorLine(msg string) []byte {
	b, _ := json.Marshal(struct {
		Err string `json:"err"`
	}{msg})
	return b
}

// ReplyForError renders err for a client. Errors the device reported keep
// the device's own text; driver failures are prefixed with their kind.
func ReplyForError(err error) []byte {
	var ne *notecard.Error
	if !errors.As(err, &ne) {
		return ErrorLine(err.Error())
	}
	switch ne.Kind {
	case notecard.KindNotecard, notecard.KindDFUInProgress, notecard.KindFileStorageFull, notecard.KindAddingNote:
		return ErrorLine(ne.Msg)
	}
	msg := ne.Kind.String()
	switch {
	case ne.Msg != "":
		msg += ": " + ne.Msg
	case ne.Err != nil:
		msg += ": " + ne.Err.Error()
	}
	return ErrorLine(msg)
}
