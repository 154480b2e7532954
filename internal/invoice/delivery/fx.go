package delivery

import (
	"github.com/dixis/taxengine/internal/invoice/render"
	"go.uber.org/fx"
)

var Module = fx.Module("invoice.delivery",
	fx.Provide(render.NewRenderer),
	fx.Provide(NewService),
)
