package service

import "errors"

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrSessionNotFound = errors.New("session not found")
	ErrResultNotFound  = errors.New("result not found")
)
