package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	ierr "github.com/smallbiznis/fedbill/internal/errors"
	tenantdomain "github.com/smallbiznis/fedbill/internal/tenant/domain"
	"github.com/smallbiznis/fedbill/pkg/db"
	"github.com/smallbiznis/fedbill/pkg/repository"
	"gorm.io/gorm"
)

type repo struct {
	store repository.Repository[FinanceUserRow]
	node  *snowflake.Node
}

func Provide(db *gorm.DB, node *snowflake.Node) tenantdomain.Repository {
	return &repo{
		store: repository.ProvideStore[FinanceUserRow](db),
		node:  node,
	}
}

func (r *repo) List(ctx context.Context) ([]*tenantdomain.FinanceUser, error) {
	rows, err := r.store.Find(ctx, &FinanceUserRow{})
	if err != nil {
		return nil, ierr.WithError(err).WithHint("failed to load users").Mark(ierr.ErrDatabase)
	}

	users := make([]*tenantdomain.FinanceUser, 0, len(rows))
	for _, row := range rows {
		u, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}

// Get loads the stored row of p.
func (r *repo) Get(ctx context.Context, p tenantdomain.Principal) (*tenantdomain.FinanceUser, error) {
	row, err := r.store.FindOne(ctx, &FinanceUserRow{UserID: p.UserID, Provider: p.Provider})
	if err != nil {
		return nil, ierr.WithError(err).WithHintf("failed to load user %s", p).Mark(ierr.ErrDatabase)
	}
	if row == nil {
		return nil, ierr.NewErrorf("user %s not found", p).Mark(ierr.ErrNotFound)
	}
	return fromRow(row)
}

// Save inserts a new tenant or moves a stored one to its next revision. The
// update matches on (id, version), so a row another replica saved in the
// meantime is left alone and ErrConflict is returned. The caller holds the
// record lock.
func (r *repo) Save(ctx context.Context, u *tenantdomain.FinanceUser) error {
	if u.ID == 0 {
		u.ID = r.node.Generate().Int64()
	}
	row, err := toRow(u)
	if err != nil {
		return ierr.WithError(err).WithHint("failed to encode user").Mark(ierr.ErrInternal)
	}

	if u.Version == 0 {
		row.Version = 1
		if err := r.store.Create(ctx, row); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return conflict(u)
			}
			return ierr.WithError(err).
				WithHintf("failed to save user %s", u.Principal()).
				Mark(ierr.ErrDatabase)
		}
		u.Version = 1
		return nil
	}

	n, err := r.store.UpdateWhere(ctx, &FinanceUserRow{ID: u.ID, Version: u.Version}, row.changes())
	if err != nil {
		return ierr.WithError(err).
			WithHintf("failed to save user %s", u.Principal()).
			Mark(ierr.ErrDatabase)
	}
	if n == 0 {
		return conflict(u)
	}
	u.Version++
	return nil
}

func conflict(u *tenantdomain.FinanceUser) error {
	return ierr.NewErrorf("user %s changed in storage since revision %d", u.Principal(), u.Version).
		WithHint("user was updated concurrently, retry").
		Mark(ierr.ErrConflict)
}

func (r *repo) Delete(ctx context.Context, p tenantdomain.Principal) error {
	n, err := r.store.DeleteWhere(ctx, &FinanceUserRow{UserID: p.UserID, Provider: p.Provider})
	if err != nil {
		return ierr.WithError(err).WithHintf("failed to delete user %s", p).Mark(ierr.ErrDatabase)
	}
	if n == 0 {
		return ierr.NewErrorf("user %s not found", p).Mark(ierr.ErrNotFound)
	}
	return nil
}
