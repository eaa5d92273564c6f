package authorization

import (
	"context"
	_ "embed"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	tenantdomain "github.com/smallbiznis/tenantgate/internal/tenant/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

// MemberDirectory reports a user's role in a project. The tenant
// repository satisfies it.
type MemberDirectory interface {
	GetMemberRole(ctx context.Context, projectID snowflake.ID, userID string) (string, error)
}

type Params struct {
	fx.In

	Log      *zap.Logger
	Members  MemberDirectory
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	log      *zap.Logger
	members  MemberDirectory
	enforcer *casbin.SyncedEnforcer
}

// NewEnforcer loads the casbin policy from the control-plane database and
// seeds the role permissions on first start.
func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}

	for role, perms := range rolePermissions {
		for _, p := range perms {
			if _, err := enforcer.AddPolicy(role, p.object, p.action); err != nil {
				return nil, err
			}
		}
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization"),
		members:  p.Members,
		enforcer: p.Enforcer,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor string, projectID string, object string, action string) error {
	actor = strings.TrimSpace(actor)
	object = strings.TrimSpace(object)
	action = strings.TrimSpace(action)

	project, err := snowflake.ParseString(strings.TrimSpace(projectID))
	switch {
	case actor == "":
		return ErrInvalidActor
	case err != nil || project <= 0:
		return ErrInvalidProject
	case object == "":
		return ErrInvalidObject
	case action == "":
		return ErrInvalidAction
	}

	role, err := s.roleOf(ctx, actor, project)
	if err != nil {
		if errors.Is(err, ErrForbidden) {
			s.logDenied(actor, project, object, action, "not a member")
		}
		return err
	}

	domain := projectDomain(project.String())
	if err := s.linkRole(actor, role, domain); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(actor, domain, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.logDenied(actor, project, object, action, role)
		return ErrForbidden
	}
	return nil
}

// roleOf maps the actor to its casbin role for this project. A user with
// no membership row is forbidden rather than invalid.
func (s *ServiceImpl) roleOf(ctx context.Context, actor string, project snowflake.ID) (string, error) {
	if actor == ActorSystem {
		return roleSystem, nil
	}
	userID, ok := strings.CutPrefix(actor, userPrefix)
	userID = strings.TrimSpace(userID)
	if !ok || userID == "" {
		return "", ErrInvalidActor
	}

	role, err := s.members.GetMemberRole(ctx, project, userID)
	switch {
	case errors.Is(err, tenantdomain.ErrMemberNotFound):
		return "", ErrForbidden
	case err != nil:
		return "", err
	}
	return roleName(role), nil
}

// linkRole makes role the only grouping of subject inside domain, so a
// membership change applies on the next check.
func (s *ServiceImpl) linkRole(subject, role, domain string) error {
	links, err := s.enforcer.GetFilteredGroupingPolicy(0, subject, "", domain)
	if err != nil {
		return err
	}
	current := false
	for _, link := range links {
		if len(link) >= 2 && link[1] == role {
			current = true
			continue
		}
		if _, err := s.enforcer.RemoveFilteredGroupingPolicy(0, link...); err != nil {
			return err
		}
	}
	if current {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, role, domain)
	return err
}

func (s *ServiceImpl) logDenied(actor string, project snowflake.ID, object, action, reason string) {
	s.log.Warn("authorization denied",
		zap.String("actor", actor),
		zap.String("project_id", project.String()),
		zap.String("permission", object+":"+action),
		zap.String("reason", reason),
	)
}
