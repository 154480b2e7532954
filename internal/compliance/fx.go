package compliance

import (
	"github.com/dixis/taxengine/internal/compliance/repository"
	"github.com/dixis/taxengine/internal/compliance/service"
	"go.uber.org/fx"
)

var Module = fx.Module("compliance.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewReporter),
	fx.Provide(service.NewService),
)
