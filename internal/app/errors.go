package app

import "errors"

var (
	ErrValidationFailed = errors.New("post-load validation failed")
	ErrRunInProgress    = errors.New("index run already in progress")
	ErrVectorMismatch   = errors.New("vector count does not match texts")
)
