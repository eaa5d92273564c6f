package scheduler

import "errors"

var (
	ErrInvalidConfig = errors.New("invalid_scheduler_config")
	ErrRunInProgress = errors.New("run_in_progress")
)
