package port

import "context"

type CartLocker interface {
	// Lock blocks until the caller owns the per-user critical section or ctx is done.
	// The returned func releases it.
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

type IdempotencyStore interface {
	// SetIdempotency claims a key, returns false if already exists
	SetIdempotency(ctx context.Context, key string) (bool, error)

	// ReleaseIdempotency frees a key so the request can be retried
	ReleaseIdempotency(ctx context.Context, key string) error
}
