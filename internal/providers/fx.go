package providers

import (
	"github.com/dixis/taxengine/internal/providers/email"
	"github.com/dixis/taxengine/internal/providers/pdf"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	email.Module,
	pdf.Module,
)
