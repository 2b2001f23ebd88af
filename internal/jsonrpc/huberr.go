package jsonrpc

import "meshhub/internal/huberr"

var kindToCode = map[huberr.Kind]int{
	huberr.TimeoutTooLarge:       ErrTimeoutTooLarge,
	huberr.WaitAlreadyActive:     ErrWaitAlreadyActive,
	huberr.ThreadClosed:          ErrThreadClosed,
	huberr.NotAParticipant:       ErrNotAParticipant,
	huberr.MentionNotParticipant: ErrMentionNotParticipant,
	huberr.UnknownAgent:          ErrUnknownAgent,
	huberr.DuplicateAgent:        ErrDuplicateAgent,
	huberr.ProtocolError:         ErrProtocolError,
	huberr.TransportError:        ErrTransportError,
}

// FromHubError converts a *huberr.Error into an RPCError carrying its Kind
// in Data, or a generic internal error for anything else.
func FromHubError(err error) *RPCError {
	if he, ok := err.(*huberr.Error); ok {
		code, known := kindToCode[he.Kind]
		if !known {
			code = ErrInternalError
		}
		return &RPCError{Code: code, Message: he.Message, Data: string(he.Kind)}
	}
	return &RPCError{Code: ErrInternalError, Message: err.Error()}
}
