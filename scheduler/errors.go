package scheduler

import (
	"errors"
)

// Scheduler errors
var (
	ErrJobAlreadyRegistered = errors.New("job already registered")
	ErrJobNotFound          = errors.New("job not found")
	ErrSchedulerDisabled    = errors.New("scheduler is disabled")
	ErrNilJob               = errors.New("job cannot be nil")
)
