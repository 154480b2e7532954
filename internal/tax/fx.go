package tax

import (
	taxdomain "github.com/dixis/taxengine/internal/tax/domain"
	"github.com/dixis/taxengine/internal/tax/service"
	"go.uber.org/fx"
)

var Module = fx.Module("tax.service",
	fx.Provide(service.NewResolver),
	fx.Provide(
		fx.Annotate(
			service.NewIslandReducedRule,
			fx.As(new(taxdomain.ExemptionRule)),
			fx.ResultTags(`group:"tax.exemption_rules"`),
		),
	),
	fx.Provide(service.NewExemptionEngine),
	fx.Provide(service.NewCalculator),
)
