// Package huberr defines the error taxonomy shared by the Hub and the
// Client Runtime, so call sites can branch on Kind instead of matching
// strings.
package huberr

import "fmt"

// Kind identifies one of the recognized failure categories a Tool-Surface
// operation can report.
type Kind string

const (
	TimeoutTooLarge       Kind = "TimeoutTooLarge"
	WaitAlreadyActive     Kind = "WaitAlreadyActive"
	ThreadClosed          Kind = "ThreadClosed"
	NotAParticipant       Kind = "NotAParticipant"
	MentionNotParticipant Kind = "MentionNotParticipant"
	UnknownAgent          Kind = "UnknownAgent"
	DuplicateAgent        Kind = "DuplicateAgent"
	ProtocolError         Kind = "ProtocolError"
	TransportError        Kind = "TransportError"
)

// Error is a Hub- or Runtime-raised failure tagged with a Kind so callers
// can recover programmatically (see Is and its call sites) rather than
// parsing messages.
type Error struct {
	Kind    Kind
	Message string
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	he, ok := err.(*Error)
	return ok && he.Kind == kind
}
