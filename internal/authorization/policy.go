package authorization

import (
	"strings"

	tenantdomain "github.com/smallbiznis/tenantgate/internal/tenant/domain"
)

const (
	ObjectSubscription = "subscription"
	ObjectBilling      = "billing"
	ObjectInvoice      = "invoice"
	ObjectApplication  = "application"
)

const (
	ActionSubscriptionCreate = "create"
	ActionBillingView        = "view"
	ActionInvoicePay         = "pay"
	ActionApplicationManage  = "manage"
)

// ActorSystem is the subject used by the scheduler and admin-token callers.
const ActorSystem = "system"

const (
	userPrefix = "user:"
	roleSystem = "role:system"
)

type permission struct {
	object string
	action string
}

var (
	viewBilling      = permission{ObjectBilling, ActionBillingView}
	payInvoice       = permission{ObjectInvoice, ActionInvoicePay}
	manageApps       = permission{ObjectApplication, ActionApplicationManage}
	subscribeProject = permission{ObjectSubscription, ActionSubscriptionCreate}
)

// rolePermissions is the seeded policy. Members read billing, admins also
// pay and manage applications, and only owners open a subscription.
var rolePermissions = map[string][]permission{
	roleName(tenantdomain.RoleMember): {viewBilling},
	roleName(tenantdomain.RoleAdmin):  {viewBilling, payInvoice, manageApps},
	roleName(tenantdomain.RoleOwner):  {viewBilling, payInvoice, manageApps, subscribeProject},
	roleSystem:                        {viewBilling, payInvoice, manageApps, subscribeProject},
}

// UserActor formats the subject for an end user.
func UserActor(userID string) string {
	return userPrefix + strings.TrimSpace(userID)
}

func roleName(role string) string {
	return "role:" + strings.ToLower(strings.TrimSpace(role))
}

func projectDomain(projectID string) string {
	return "project:" + projectID
}
