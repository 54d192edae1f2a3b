package audit

import (
	"github.com/smallbiznis/fedbill/internal/audit/repository"
	"github.com/smallbiznis/fedbill/internal/audit/service"
	"go.uber.org/fx"
)

// Module records admin mutations. It needs the database, snowflake node and
// clock supplied by the db and finance modules.
var Module = fx.Module("audit",
	fx.Provide(
		repository.Provide,
		service.NewService,
	),
)
