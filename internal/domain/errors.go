package domain

import "errors"

var (
	ErrBusy           = errors.New("a request is already in flight")
	ErrUnsupported    = errors.New("operation not available for this role")
	ErrClosed         = errors.New("chat screen closed")
	ErrNoRole         = errors.New("no role selected")
	ErrRoleSet        = errors.New("role already selected")
	ErrInvalidRole    = errors.New("role must be farmer or gardener")
	ErrNotImage       = errors.New("file is not an image")
	ErrAlreadyPlaying = errors.New("audio already playing")
)
