package pdf

import (
	"context"

	compliancedomain "github.com/dixis/taxengine/internal/compliance/domain"
	"github.com/dixis/taxengine/internal/config"
	invoicedomain "github.com/dixis/taxengine/internal/invoice/domain"
	"go.uber.org/fx"
)

// Provider renders ledger documents as PDF bytes.
type Provider interface {
	GenerateInvoice(ctx context.Context, invoice *invoicedomain.Invoice) ([]byte, error)
	GenerateReceipt(ctx context.Context, invoice *invoicedomain.Invoice) ([]byte, error)
	GenerateComplianceReport(ctx context.Context, report compliancedomain.Report) ([]byte, error)
}

var Module = fx.Module("providers.pdf",
	fx.Provide(func(cfg config.Config) Provider { return New(cfg.Seller) }),
)

type PDFProvider struct {
	seller config.SellerConfig
}

func New(seller config.SellerConfig) Provider {
	return &PDFProvider{seller: seller}
}
