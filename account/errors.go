package account

import "errors"

var (
	ErrUserNotFound       = errors.New("user does not exist")
	ErrEmailTaken         = errors.New("email already exists")
	ErrPasswordMismatch   = errors.New("passwords do not match")
	ErrInvalidCredentials = errors.New("invalid credentials")
)
