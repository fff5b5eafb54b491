package domain

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrUnavailable    = errors.New("backend unavailable")
	ErrDuplicateEmail = errors.New("email already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInvalidInput   = errors.New("invalid input")
)
