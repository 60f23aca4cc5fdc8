package social

import "errors"

var (
	// ErrUserNotFound: the addressee of a request does not exist.
	ErrUserNotFound = errors.New("user does not exist")
	// ErrSelfRequest: a user tried to befriend themselves.
	ErrSelfRequest = errors.New("you cannot send a friend request to yourself")
	// ErrDuplicateRequest: an edge for the same ordered pair already exists.
	ErrDuplicateRequest = errors.New("you have already sent a friend request to this user")
	// ErrRateLimited: too many requests sent inside the rolling window.
	ErrRateLimited = errors.New("friend request rate limit exceeded")
	// ErrRequestNotFound: no pending request with that id is addressed to the caller.
	ErrRequestNotFound = errors.New("no friend request matches the given query")
)
