package errors

import "fmt"

var (
	ErrWorkerPanic      = fmt.Errorf("worker panic")
	ErrNotAMember       = fmt.Errorf("user is not a member of the room")
	ErrUnknownFrameType = fmt.Errorf("unknown frame type")
	ErrMissingField     = fmt.Errorf("frame payload is missing a required field")
	ErrSessionExpired   = fmt.Errorf("session token expired or invalid")
)
