package registry

import "errors"

var (
	ErrClientNotFound = errors.New("client not found")
	ErrBusNotFound    = errors.New("bus not found")
	ErrOwnerNotFound  = errors.New("bus owner not found")
	ErrAlreadyExists  = errors.New("record already exists")
)
