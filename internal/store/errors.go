package store

import "errors"

var (
	ErrJobNotFound    = errors.New("job not found")
	ErrConflict       = errors.New("job state changed concurrently")
	ErrAmbiguousToken = errors.New("job token matches more than one record")
	ErrUserNotFound   = errors.New("user not found")
	ErrEmailTaken     = errors.New("email already registered")
	ErrUnavailable    = errors.New("store unavailable")
)
