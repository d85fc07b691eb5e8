package games

import (
	"errors"
	"fmt"
)

// ErrorKind is a machine-readable game error code.
type ErrorKind string

const (
	StateIncompatibility ErrorKind = "STATE_INCOMPATIBILITY"
	WrongPlayer          ErrorKind = "WRONG_PLAYER"
	ForbiddenAction      ErrorKind = "FORBIDDEN_ACTION"
	UnknownAction        ErrorKind = "UNKNOWN_ACTION"
	WrongPlayerCount     ErrorKind = "WRONG_PLAYER_COUNT"
	RoomFull             ErrorKind = "ROOM_FULL"
	// InvalidAction marks a payload that fails structural validation before
	// any game rule is consulted.
	InvalidAction ErrorKind = "INVALID_ACTION"
)

// Error is a rejected game operation. State is unchanged when one is returned.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of a game error anywhere in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr.Kind, true
	}
	return "", false
}
