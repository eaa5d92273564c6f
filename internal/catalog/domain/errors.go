package domain

import "errors"

var (
	ErrApplicationNotFound = errors.New("application_not_found")
	ErrApplicationInactive = errors.New("application_inactive")
	ErrSlugTaken           = errors.New("application_slug_taken")
	ErrInvalidName         = errors.New("invalid_name")
	ErrInvalidPrice        = errors.New("invalid_price")
	ErrNotSelected         = errors.New("application_not_selected")
)
