package domain

import (
	"context"
	"time"
)

// Plan is the persisted definition of a finance plan.
type Plan struct {
	Name      string
	Type      PlanType
	Options   map[string]string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Repository interface {
	List(ctx context.Context) ([]Plan, error)
	// Create inserts a new plan and fails with ErrAlreadyExists when the
	// name is taken in storage.
	Create(ctx context.Context, plan Plan) error
	Save(ctx context.Context, plan Plan) error
	Delete(ctx context.Context, name string) error
}
