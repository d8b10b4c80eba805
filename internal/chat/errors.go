package chat

import "errors"

var (
	// ErrNameInUse reports that another session already holds the requested name.
	ErrNameInUse = errors.New("name in use")
	// ErrInvalidName reports a display name that is empty, contains whitespace,
	// or collides with the reserved system label.
	ErrInvalidName = errors.New("invalid name")
	// ErrUsage reports a command with missing or malformed arguments.
	ErrUsage = errors.New("usage")
	// ErrSessionClosed is returned by Send once the owning worker has closed the session.
	ErrSessionClosed = errors.New("session closed")
)
