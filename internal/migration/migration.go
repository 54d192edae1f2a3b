package migration

import (
	"database/sql"
	"embed"
	"errors"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	auditdomain "github.com/smallbiznis/fedbill/internal/audit/domain"
	ierr "github.com/smallbiznis/fedbill/internal/errors"
	planrepo "github.com/smallbiznis/fedbill/internal/plan/repository"
	tenantrepo "github.com/smallbiznis/fedbill/internal/tenant/repository"
	"github.com/smallbiznis/fedbill/pkg/db"
	"gorm.io/gorm"
)

const migrationsDir = "migrations"

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// Run brings the finance and audit tables up to date. Postgres uses the embedded SQL
// migrations; the other dialects fall back to AutoMigrate.
func Run(conn *gorm.DB, dbType string) error {
	if conn == nil {
		return ierr.NewError("migration database handle is required").Mark(ierr.ErrInternal)
	}
	if dbType != db.TypePostgres {
		if err := conn.AutoMigrate(
			&tenantrepo.FinanceUserRow{},
			&planrepo.FinancePlanRow{},
			&auditdomain.AuditLog{},
		); err != nil {
			return ierr.WithError(err).WithHint("auto migration failed").Mark(ierr.ErrDatabase)
		}
		return nil
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return ierr.WithError(err).Mark(ierr.ErrDatabase)
	}
	return RunMigrations(sqlDB)
}

// RunMigrations applies the embedded postgres migrations on db.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return ierr.WithError(err).WithHint("open migrations").Mark(ierr.ErrInternal)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return ierr.WithError(err).WithHint("create migration source").Mark(ierr.ErrInternal)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return ierr.WithError(err).WithHint("create migration driver").Mark(ierr.ErrDatabase)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return ierr.WithError(err).WithHint("create migrator").Mark(ierr.ErrDatabase)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return ierr.WithError(upErr).WithHint("apply migrations").Mark(ierr.ErrDatabase)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}
