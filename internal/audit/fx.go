package audit

import (
	"github.com/dixis/taxengine/internal/audit/repository"
	"github.com/dixis/taxengine/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
