package scaffold

import (
	"errors"
)

// Framework errors
var (
	// Service registry errors
	ErrServiceAlreadyRegistered = errors.New("service already registered")
	ErrServiceNotFound          = errors.New("service not found")

	// Hook manager errors
	ErrUnknownHookPhase = errors.New("unknown hook phase")
	ErrNilHookFunc      = errors.New("hook callback cannot be nil")

	// Observer errors
	ErrNilObserver = errors.New("observer cannot be nil")

	// Configuration errors
	ErrConfigFileUnsupported = errors.New("unsupported config file format")
	ErrConfigInvalid         = errors.New("config validation failed")
	ErrJWTSecretMissing      = errors.New("auth.jwt.enabled requires auth.jwt.secret")
	ErrUnknownSchedulerMode  = errors.New("unknown scheduler mode")
)
