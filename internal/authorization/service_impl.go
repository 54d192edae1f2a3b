package authorization

import (
	"context"
	_ "embed"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"github.com/samber/lo"
	"github.com/smallbiznis/fedbill/internal/config"
	ierr "github.com/smallbiznis/fedbill/internal/errors"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

var (
	objects = []string{ObjectPlan, ObjectUser, ObjectFinanceState, ObjectPolicy, ObjectReload, ObjectAudit}
	actions = []string{ActionRead, ActionWrite}
	roles   = []string{RoleAdmin, RoleAuditor}
)

type Params struct {
	fx.In

	Enforcer *casbin.SyncedEnforcer
	Config   config.Config
	Log      *zap.Logger
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, ierr.WithError(err).WithHint("failed to create policy adapter").Mark(ierr.ErrDatabase)
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrInternal)
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrInternal)
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, ierr.WithError(err).WithHint("failed to load policies").Mark(ierr.ErrDatabase)
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrInternal)
	}
	return enforcer, nil
}

// NewService builds the service and grants the admin role to the bootstrap
// subject so a fresh installation can be administered.
func NewService(p Params) (Service, error) {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	s := &ServiceImpl{
		log:      log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
	if subject := strings.TrimSpace(p.Config.AdminBootstrapSubject); subject != "" {
		if err := s.GrantRole(context.Background(), subject, RoleAdmin); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *ServiceImpl) Authorize(ctx context.Context, subject, object, action string) error {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return ErrInvalidSubject
	}
	if !lo.Contains(objects, object) {
		return ErrInvalidObject
	}
	if !lo.Contains(actions, action) {
		return ErrInvalidAction
	}

	allowed, err := s.enforcer.Enforce(subject, object, action)
	if err != nil {
		return ierr.WithError(err).Mark(ierr.ErrInternal)
	}
	if !allowed {
		s.log.Info("authorization denied",
			zap.String("subject", subject),
			zap.String("object", object),
			zap.String("action", action),
		)
		return ErrForbidden
	}
	return nil
}

func (s *ServiceImpl) GrantRole(ctx context.Context, subject, role string) error {
	subject, roleName, err := roleRule(subject, role)
	if err != nil {
		return err
	}
	added, err := s.enforcer.AddGroupingPolicy(subject, roleName)
	if err != nil {
		return ierr.WithError(err).WithHint("failed to grant role").Mark(ierr.ErrDatabase)
	}
	if added {
		s.log.Info("role granted", zap.String("subject", subject), zap.String("role", role))
	}
	return nil
}

func (s *ServiceImpl) RevokeRole(ctx context.Context, subject, role string) error {
	subject, roleName, err := roleRule(subject, role)
	if err != nil {
		return err
	}
	removed, err := s.enforcer.RemoveGroupingPolicy(subject, roleName)
	if err != nil {
		return ierr.WithError(err).WithHint("failed to revoke role").Mark(ierr.ErrDatabase)
	}
	if !removed {
		return ierr.NewErrorf("subject %s does not hold role %s", subject, role).Mark(ierr.ErrNotFound)
	}
	s.log.Info("role revoked", zap.String("subject", subject), zap.String("role", role))
	return nil
}

func (s *ServiceImpl) Roles(subject string) ([]string, error) {
	names, err := s.enforcer.GetRolesForUser(strings.TrimSpace(subject))
	if err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrInternal)
	}
	return lo.Map(names, func(name string, _ int) string {
		return strings.TrimPrefix(name, "role:")
	}), nil
}

func roleRule(subject, role string) (string, string, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" || strings.HasPrefix(subject, "role:") {
		return "", "", ErrInvalidSubject
	}
	role = strings.ToLower(strings.TrimSpace(role))
	if !lo.Contains(roles, role) {
		return "", "", ierr.WithError(ErrUnknownRole).
			WithHintf("role must be one of %s", strings.Join(roles, ", ")).
			Mark(ierr.ErrValidation)
	}
	return subject, "role:" + role, nil
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := make([][]string, 0, len(objects)*3)
	for _, object := range objects {
		policies = append(policies,
			[]string{"role:admin", object, ActionRead},
			[]string{"role:admin", object, ActionWrite},
			[]string{"role:auditor", object, ActionRead},
		)
	}

	for _, policy := range policies {
		has, err := enforcer.HasPolicy(policy)
		if err != nil {
			return ierr.WithError(err).Mark(ierr.ErrInternal)
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return ierr.WithError(err).WithHint("failed to seed policies").Mark(ierr.ErrDatabase)
		}
	}
	return nil
}
