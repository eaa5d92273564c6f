package authorization

import (
	tenantdomain "github.com/smallbiznis/tenantgate/internal/tenant/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("authorization",
	fx.Provide(
		NewEnforcer,
		func(repo tenantdomain.Repository) MemberDirectory { return repo },
		NewService,
	),
)
