package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound               = errors.New("entity not found")
	ErrAlreadyExists          = errors.New("entity already exists")
	ErrInvalidArgument        = errors.New("invalid argument")
	ErrInvalidExecContext     = errors.New("invalid execution context")
	ErrOperationFailed        = errors.New("operation failed")
	ErrReadDatabaseRow        = errors.New("failed to read database row")
	ErrCommunityNotConfigured = errors.New("community payout is not configured")
	ErrLockHeld               = errors.New("lock is held by another worker")
	ErrRateLimited            = errors.New("rate limit exceeded")

	// Lifecycle errors
	ErrTransientGateway      = errors.New("transient gateway error")
	ErrUnknownGatewayPayment = errors.New("gateway does not know this payment")
	ErrHorizonExceeded       = errors.New("payment horizon exceeded")
	ErrStoreConflict         = errors.New("concurrent transition lost")
	ErrEffectorFailed        = errors.New("role effector failed")
	ErrEffectorPermanent     = errors.New("role effector rejected the request")
	ErrNotificationFailed    = errors.New("notification delivery failed")
)
