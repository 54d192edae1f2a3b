package repository

import (
	"context"
	"strings"

	"github.com/smallbiznis/fedbill/internal/audit/domain"
	"github.com/smallbiznis/fedbill/pkg/repository"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type scope = func(*gorm.DB) *gorm.DB

type repo struct {
	db    *gorm.DB
	store repository.Repository[domain.AuditLog]
}

func Provide(db *gorm.DB) domain.Repository {
	return &repo{db: db, store: repository.ProvideStore[domain.AuditLog](db)}
}

func (r *repo) Insert(ctx context.Context, entry *domain.AuditLog) error {
	if entry == nil {
		return nil
	}
	return r.store.Create(ctx, entry)
}

func (r *repo) List(ctx context.Context, filter domain.ListFilter) ([]*domain.AuditLog, error) {
	stmt := r.db.WithContext(ctx).
		Model(&domain.AuditLog{}).
		Scopes(filterScopes(filter)...).
		Order(clause.OrderBy{Columns: []clause.OrderByColumn{
			{Column: clause.Column{Name: "created_at"}, Desc: true},
			{Column: clause.Column{Name: "id"}, Desc: true},
		}})
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit + 1)
	}

	var logs []*domain.AuditLog
	if err := stmt.Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}

// filterScopes has one scope per filter field that is set.
func filterScopes(f domain.ListFilter) []scope {
	var scopes []scope
	where := func(expr clause.Expression) {
		scopes = append(scopes, func(db *gorm.DB) *gorm.DB { return db.Where(expr) })
	}
	equals := func(column, value string) {
		if value = strings.TrimSpace(value); value != "" {
			where(clause.Eq{Column: clause.Column{Name: column}, Value: value})
		}
	}

	equals("action", f.Action)
	equals("target_type", f.TargetType)
	equals("target_id", f.TargetID)
	equals("actor_id", f.ActorID)
	if f.Tenant != nil {
		equals("target_type", domain.TargetTypeUser)
		equals("target_id", f.Tenant.String())
	}

	createdAt := clause.Column{Name: "created_at"}
	if f.StartAt != nil {
		where(clause.Gte{Column: createdAt, Value: f.StartAt.UTC()})
	}
	if f.EndAt != nil {
		where(clause.Lte{Column: createdAt, Value: f.EndAt.UTC()})
	}
	if c := f.Cursor; c != nil {
		// strictly after the cursor in (created_at desc, id desc) order
		where(clause.Or(
			clause.Lt{Column: createdAt, Value: c.CreatedAt},
			clause.And(
				clause.Eq{Column: createdAt, Value: c.CreatedAt},
				clause.Lt{Column: clause.Column{Name: "id"}, Value: c.ID},
			),
		))
	}
	return scopes
}
