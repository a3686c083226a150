package scope

import "errors"

var (
	ErrInvalidScope      = errors.New("invalid scope")
	ErrUnauthorizedScope = errors.New("unauthorized scope")
	ErrInvalidGrantScope = errors.New("authorized scope has no authorization-required fields")
)
