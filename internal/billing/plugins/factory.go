// Package plugins builds plan plugins by plan type.
package plugins

import (
	"github.com/smallbiznis/fedbill/internal/billing"
	"github.com/smallbiznis/fedbill/internal/billing/postpaid"
	"github.com/smallbiznis/fedbill/internal/billing/prepaid"
	ierr "github.com/smallbiznis/fedbill/internal/errors"
	plandomain "github.com/smallbiznis/fedbill/internal/plan/domain"
)

// Factory turns plan records into plugins sharing one set of collaborators.
type Factory struct {
	deps billing.Deps
}

var _ plandomain.Factory = (*Factory)(nil)

func NewFactory(deps billing.Deps) *Factory {
	return &Factory{deps: deps}
}

func (f *Factory) Build(plan plandomain.Plan) (plandomain.Plugin, error) {
	switch plan.Type {
	case plandomain.PlanTypePostPaid:
		return asPlugin(postpaid.New(plan.Name, f.deps, plan.Options))
	case plandomain.PlanTypePrePaid:
		return asPlugin(prepaid.New(plan.Name, f.deps, plan.Options))
	default:
		return nil, ierr.NewErrorf("unknown plan type %q", plan.Type).
			WithHint("plan type must be prepaid or postpaid").
			Mark(ierr.ErrValidation)
	}
}

// asPlugin keeps a failed constructor from yielding a non-nil interface.
func asPlugin[P plandomain.Plugin](p P, err error) (plandomain.Plugin, error) {
	if err != nil {
		return nil, err
	}
	return p, nil
}
