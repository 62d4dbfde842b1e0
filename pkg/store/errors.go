package store

import "errors"

var (
	// ErrRoomNotFound reports a room that does not exist at gate time.
	ErrRoomNotFound = errors.New("store: room not found")

	// ErrRoomExpired reports a room that existed when the request was
	// admitted but had vanished by the time the write ran. Distinct from
	// ErrRoomNotFound so callers can surface the race explicitly.
	ErrRoomExpired = errors.New("store: room expired")
)
