package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrInvalidPayload  = errors.New("invalid payload")
	ErrProviderFailure = errors.New("provider failure")
	ErrAlreadyTerminal = errors.New("track already terminal")
)
