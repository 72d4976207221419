package service

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrBusinessDisabled = errors.New("business disabled")
	ErrValidation       = errors.New("validation failed")
)
