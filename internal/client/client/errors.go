package client

import "errors"

// Errors returned by GRPCClient. Server-side rejections (unknown recipient,
// not a participant, empty message) wrap ErrRejected and keep the server's
// message text.
var (
	ErrUnavailable  = errors.New("server unavailable")
	ErrUnauthorized = errors.New("unauthorized, please log in again")
	ErrNotLoggedIn  = errors.New("not logged in")
	ErrRejected     = errors.New("rejected")
)

// rejected is ErrRejected carrying the server's reason as its text.
type rejected struct{ reason string }

func (e rejected) Error() string { return e.reason }

func (e rejected) Unwrap() error { return ErrRejected }
