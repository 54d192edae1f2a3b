package domain

import "context"

// Repository persists tenants. It is the source of truth at start-up, and
// for every locked record when replicas share it.
type Repository interface {
	List(ctx context.Context) ([]*FinanceUser, error)
	// Get returns the stored record of p, or ErrNotFound.
	Get(ctx context.Context, p Principal) (*FinanceUser, error)
	// Save writes user if the stored revision still equals user.Version and
	// advances user.Version. A moved revision fails with ErrConflict and
	// leaves storage untouched.
	Save(ctx context.Context, user *FinanceUser) error
	Delete(ctx context.Context, p Principal) error
}
