package consent

import "errors"

var (
	ErrNotFound       = errors.New("consent record not found")
	ErrUserRequired   = errors.New("user id is required")
	ErrUnknownChannel = errors.New("unknown notification channel")
	ErrUserNotFound   = errors.New("user not found")
)
