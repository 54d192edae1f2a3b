package repository

import (
	"context"
	"fmt"
	"time"

	ierr "github.com/smallbiznis/fedbill/internal/errors"
	plandomain "github.com/smallbiznis/fedbill/internal/plan/domain"
	"github.com/smallbiznis/fedbill/pkg/db"
	"github.com/smallbiznis/fedbill/pkg/repository"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// FinancePlanRow is the persisted form of a plan.
type FinancePlanRow struct {
	Name      string            `gorm:"column:name;primaryKey;size:255"`
	Type      string            `gorm:"column:type;size:32;not null"`
	Options   datatypes.JSONMap `gorm:"column:options"`
	CreatedAt time.Time         `gorm:"column:created_at"`
	UpdatedAt time.Time         `gorm:"column:updated_at"`
}

func (FinancePlanRow) TableName() string { return "finance_plans" }

type repo struct {
	store repository.Repository[FinancePlanRow]
}

func Provide(db *gorm.DB) plandomain.Repository {
	return &repo{store: repository.ProvideStore[FinancePlanRow](db)}
}

func (r *repo) List(ctx context.Context) ([]plandomain.Plan, error) {
	rows, err := r.store.Find(ctx, &FinancePlanRow{})
	if err != nil {
		return nil, ierr.WithError(err).WithHint("failed to load plans").Mark(ierr.ErrDatabase)
	}

	plans := make([]plandomain.Plan, 0, len(rows))
	for _, row := range rows {
		options := make(map[string]string, len(row.Options))
		for k, v := range row.Options {
			options[k] = fmt.Sprint(v)
		}
		plans = append(plans, plandomain.Plan{
			Name:      row.Name,
			Type:      plandomain.PlanType(row.Type),
			Options:   options,
			CreatedAt: row.CreatedAt,
			UpdatedAt: row.UpdatedAt,
		})
	}
	return plans, nil
}

func toPlanRow(plan plandomain.Plan) *FinancePlanRow {
	options := datatypes.JSONMap{}
	for k, v := range plan.Options {
		options[k] = v
	}
	return &FinancePlanRow{
		Name:      plan.Name,
		Type:      string(plan.Type),
		Options:   options,
		CreatedAt: plan.CreatedAt,
		UpdatedAt: plan.UpdatedAt,
	}
}

func (r *repo) Create(ctx context.Context, plan plandomain.Plan) error {
	if err := r.store.Create(ctx, toPlanRow(plan)); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return ierr.WithError(err).WithHintf("plan %s already exists", plan.Name).Mark(ierr.ErrAlreadyExists)
		}
		return ierr.WithError(err).WithHintf("failed to create plan %s", plan.Name).Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *repo) Save(ctx context.Context, plan plandomain.Plan) error {
	row := toPlanRow(plan)
	if err := r.store.Upsert(ctx, row, []string{"name"}, []string{"type", "options", "updated_at"}); err != nil {
		return ierr.WithError(err).WithHintf("failed to save plan %s", plan.Name).Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *repo) Delete(ctx context.Context, name string) error {
	n, err := r.store.DeleteWhere(ctx, &FinancePlanRow{Name: name})
	if err != nil {
		return ierr.WithError(err).WithHintf("failed to delete plan %s", name).Mark(ierr.ErrDatabase)
	}
	if n == 0 {
		return ierr.NewErrorf("plan %s not found", name).Mark(ierr.ErrNotFound)
	}
	return nil
}
