package domain

import "errors"

var (
	ErrMalformed         = errors.New("malformed input")
	ErrTargetOffline     = errors.New("target offline")
	ErrInvalidState      = errors.New("invalid state")
	ErrNoSession         = errors.New("no call session")
	ErrUnknownConnection = errors.New("unknown connection")
	ErrRateLimited       = errors.New("rate limited")
)
