package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrActiveJobExists    = errors.New("chat already has an active turn job")
	ErrJobNotClaimable    = errors.New("job is not in a claimable state")
	ErrUnknownTool        = errors.New("unknown tool")
	ErrTenantRequired     = errors.New("tool requires tenant context")
	ErrAuthRequired       = errors.New("authentication required")
	ErrClientDisconnect   = errors.New("client_disconnected")
	ErrStaleTimeout       = errors.New("stale_timeout")
	ErrInvalidExecContext = errors.New("invalid executor context")
)
