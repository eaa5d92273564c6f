package domain

import "errors"

var (
	ErrProjectNotFound  = errors.New("project_not_found")
	ErrSlugTaken        = errors.New("slug_taken")
	ErrDomainTaken      = errors.New("domain_taken")
	ErrInvalidName      = errors.New("invalid_name")
	ErrInvalidProjectID = errors.New("invalid_project_id")
	ErrInvalidDSN       = errors.New("invalid_database_dsn")
	ErrInvalidRole      = errors.New("invalid_role")
	ErrInvalidUser      = errors.New("invalid_user")
	ErrMemberNotFound   = errors.New("member_not_found")
)
