package authorization

import (
	"context"
	"testing"
	"time"

	tenantdomain "github.com/smallbiznis/tenantgate/internal/tenant/domain"
	tenantrepo "github.com/smallbiznis/tenantgate/internal/tenant/repository"
	"github.com/smallbiznis/tenantgate/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newAuthz(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	conn := testutil.ControlPlaneDB(t)
	enforcer, err := NewEnforcer(conn)
	require.NoError(t, err)
	return NewService(Params{
		Log:      zap.NewNop(),
		Members:  tenantrepo.NewRepository(conn),
		Enforcer: enforcer,
	}), conn
}

func addMember(t *testing.T, conn *gorm.DB, projectID, userID, role string) {
	t.Helper()
	node := testutil.Node(t)
	require.NoError(t, conn.Exec(
		`INSERT INTO project_members (id, project_id, user_id, role, created_at) VALUES (?, ?, ?, ?, ?)`,
		node.Generate().Int64(), projectID, userID, role, time.Now().UTC(),
	).Error)
}

func TestAuthorizeByProjectRole(t *testing.T) {
	svc, conn := newAuthz(t)
	ctx := context.Background()
	project := testutil.Node(t).Generate().String()

	addMember(t, conn, project, "alice", tenantdomain.RoleOwner)
	addMember(t, conn, project, "bob", tenantdomain.RoleAdmin)
	addMember(t, conn, project, "carol", tenantdomain.RoleMember)

	cases := []struct {
		actor   string
		object  string
		action  string
		allowed bool
	}{
		{UserActor("alice"), ObjectSubscription, ActionSubscriptionCreate, true},
		{UserActor("bob"), ObjectSubscription, ActionSubscriptionCreate, false},
		{UserActor("bob"), ObjectInvoice, ActionInvoicePay, true},
		{UserActor("bob"), ObjectApplication, ActionApplicationManage, true},
		{UserActor("carol"), ObjectBilling, ActionBillingView, true},
		{UserActor("carol"), ObjectInvoice, ActionInvoicePay, false},
		{UserActor("mallory"), ObjectBilling, ActionBillingView, false},
		{ActorSystem, ObjectSubscription, ActionSubscriptionCreate, true},
	}
	for _, tc := range cases {
		err := svc.Authorize(ctx, tc.actor, project, tc.object, tc.action)
		if tc.allowed {
			assert.NoError(t, err, "%s %s:%s", tc.actor, tc.object, tc.action)
		} else {
			assert.ErrorIs(t, err, ErrForbidden, "%s %s:%s", tc.actor, tc.object, tc.action)
		}
	}
}

func TestAuthorizeScopesRolesToProject(t *testing.T) {
	svc, conn := newAuthz(t)
	ctx := context.Background()
	node := testutil.Node(t)
	acme := node.Generate().String()
	globex := node.Generate().String()

	addMember(t, conn, acme, "alice", tenantdomain.RoleOwner)
	addMember(t, conn, globex, "alice", tenantdomain.RoleMember)

	require.NoError(t, svc.Authorize(ctx, UserActor("alice"), acme, ObjectSubscription, ActionSubscriptionCreate))
	assert.ErrorIs(t, svc.Authorize(ctx, UserActor("alice"), globex, ObjectSubscription, ActionSubscriptionCreate), ErrForbidden)
}

func TestAuthorizeFollowsRoleChanges(t *testing.T) {
	svc, conn := newAuthz(t)
	ctx := context.Background()
	project := testutil.Node(t).Generate().String()

	addMember(t, conn, project, "dave", tenantdomain.RoleOwner)
	require.NoError(t, svc.Authorize(ctx, UserActor("dave"), project, ObjectSubscription, ActionSubscriptionCreate))

	require.NoError(t, conn.Exec(`UPDATE project_members SET role = ? WHERE user_id = ?`, tenantdomain.RoleMember, "dave").Error)
	assert.ErrorIs(t, svc.Authorize(ctx, UserActor("dave"), project, ObjectSubscription, ActionSubscriptionCreate), ErrForbidden)
	assert.NoError(t, svc.Authorize(ctx, UserActor("dave"), project, ObjectBilling, ActionBillingView))
}

func TestAuthorizeValidatesInput(t *testing.T) {
	svc, _ := newAuthz(t)
	ctx := context.Background()

	assert.ErrorIs(t, svc.Authorize(ctx, "", "1", ObjectBilling, ActionBillingView), ErrInvalidActor)
	assert.ErrorIs(t, svc.Authorize(ctx, "robot", "1", ObjectBilling, ActionBillingView), ErrInvalidActor)
	assert.ErrorIs(t, svc.Authorize(ctx, "user:", "1", ObjectBilling, ActionBillingView), ErrInvalidActor)
	assert.ErrorIs(t, svc.Authorize(ctx, ActorSystem, "acme", ObjectBilling, ActionBillingView), ErrInvalidProject)
	assert.ErrorIs(t, svc.Authorize(ctx, ActorSystem, "1", "", ActionBillingView), ErrInvalidObject)
	assert.ErrorIs(t, svc.Authorize(ctx, ActorSystem, "1", ObjectBilling, " "), ErrInvalidAction)
}

func TestNewEnforcerSeedsPoliciesOnce(t *testing.T) {
	conn := testutil.ControlPlaneDB(t)
	_, err := NewEnforcer(conn)
	require.NoError(t, err)
	enforcer, err := NewEnforcer(conn)
	require.NoError(t, err)

	policies, err := enforcer.GetPolicy()
	require.NoError(t, err)
	want := 0
	for _, perms := range rolePermissions {
		want += len(perms)
	}
	assert.Len(t, policies, want)
}
