package invoice

import (
	"github.com/dixis/taxengine/internal/invoice/repository"
	"github.com/dixis/taxengine/internal/invoice/sequence"
	"github.com/dixis/taxengine/internal/invoice/service"
	"go.uber.org/fx"
)

var Module = fx.Module("invoice.service",
	sequence.Module,
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
