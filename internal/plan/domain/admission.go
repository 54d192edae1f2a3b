package domain

import (
	"sync"

	ierr "github.com/smallbiznis/fedbill/internal/errors"
)

// Admission gates new subscriptions to a plan. Once retired, Admit refuses
// work, and Retire returns only after every admitted call has finished.
type Admission struct {
	mu      sync.RWMutex
	retired bool
}

// Admit runs fn while the plan still accepts tenants.
func (a *Admission) Admit(fn func() error) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.retired {
		return ierr.NewError("plan is being removed").
			WithHint("plan no longer accepts users").
			Mark(ierr.ErrNotFound)
	}
	return fn()
}

func (a *Admission) Retire() {
	a.mu.Lock()
	a.retired = true
	a.mu.Unlock()
}

// Reinstate reopens a plan whose removal was abandoned.
func (a *Admission) Reinstate() {
	a.mu.Lock()
	a.retired = false
	a.mu.Unlock()
}
