package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Adapters map these to transport status codes.
var (
	ErrNotFound       = errors.New("not found")
	ErrValidation     = errors.New("validation failed")
	ErrAuthentication = errors.New("authentication failed")
	ErrConflict       = errors.New("conflict")
)

var (
	ErrUserNotFound = fmt.Errorf("user %w", ErrNotFound)
	ErrItemNotFound = fmt.Errorf("item %w", ErrNotFound)

	ErrInvalidQuantity  = fmt.Errorf("%w: quantity must be positive", ErrValidation)
	ErrCartFull         = fmt.Errorf("%w: cart cannot hold more than %d entries", ErrValidation, MaxCartEntries)
	ErrInvalidUsername  = fmt.Errorf("%w: username is required", ErrValidation)
	ErrPasswordTooShort = fmt.Errorf("%w: password must have at least %d characters", ErrValidation, MinPasswordLength)
	ErrPasswordMismatch = fmt.Errorf("%w: password and confirmation do not match", ErrValidation)

	ErrInvalidCredentials = fmt.Errorf("%w: invalid username or password", ErrAuthentication)
	ErrInvalidToken       = fmt.Errorf("%w: invalid or expired token", ErrAuthentication)

	ErrDuplicateUsername = fmt.Errorf("%w: username already taken", ErrConflict)
	ErrDuplicateRequest  = fmt.Errorf("%w: duplicate request", ErrConflict)
	ErrOptimisticLock    = fmt.Errorf("%w: optimistic lock conflict", ErrConflict)
)
