package registry

import "errors"

var (
	ErrUnknownModel        = errors.New("model not found")
	ErrDuplicateIdentifier = errors.New("model already registered")
	ErrNotLoaded           = errors.New("model not loaded")
	ErrInvalidInput        = errors.New("invalid input")
	ErrInvalidModelState   = errors.New("invalid model state")
)
