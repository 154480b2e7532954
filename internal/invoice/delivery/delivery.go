package delivery

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/dixis/taxengine/internal/config"
	invoicedomain "github.com/dixis/taxengine/internal/invoice/domain"
	"github.com/dixis/taxengine/internal/invoice/format"
	"github.com/dixis/taxengine/internal/invoice/render"
	"github.com/dixis/taxengine/internal/providers/email"
	"github.com/dixis/taxengine/internal/providers/pdf"
	"github.com/dixis/taxengine/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidRecipient = errors.New("invalid_recipient")

// Invoices is the part of the ledger delivery depends on.
type Invoices interface {
	Get(ctx context.Context, id string) (*invoicedomain.Invoice, error)
	MarkSent(ctx context.Context, id string) (*invoicedomain.Invoice, error)
}

type Params struct {
	fx.In

	Config   config.Config
	Log      *zap.Logger
	Invoices invoicedomain.Service
	PDF      pdf.Provider
	Mailer   email.Provider
	Renderer render.Renderer
	Limiter  *ratelimit.Limiter `optional:"true"`
}

type Service struct {
	seller   config.SellerConfig
	log      *zap.Logger
	invoices Invoices
	pdf      pdf.Provider
	mailer   email.Provider
	renderer render.Renderer
	limiter  *ratelimit.Limiter
}

func NewService(p Params) *Service {
	svc := newService(p.Config.Seller, p.Log, p.Invoices, p.PDF, p.Mailer, p.Renderer)
	svc.limiter = p.Limiter
	return svc
}

func newService(seller config.SellerConfig, log *zap.Logger, invoices Invoices, pdfs pdf.Provider, mailer email.Provider, renderer render.Renderer) *Service {
	return &Service{
		seller:   seller,
		log:      log.Named("invoice.delivery"),
		invoices: invoices,
		pdf:      pdfs,
		mailer:   mailer,
		renderer: renderer,
	}
}

// Send emails the invoice PDF to recipient. A draft is marked sent once the
// mail is accepted; sent and viewed invoices are re-sent unchanged.
func (s *Service) Send(ctx context.Context, id, recipient string) (*invoicedomain.Invoice, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(recipient))
	if err != nil {
		return nil, ErrInvalidRecipient
	}

	inv, err := s.invoices.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch inv.Status {
	case invoicedomain.InvoiceStatusDraft, invoicedomain.InvoiceStatusSent, invoicedomain.InvoiceStatusViewed:
	default:
		return nil, invoicedomain.ErrInvalidTransition
	}

	release, err := s.limiter.LockInvoiceSend(ctx, inv.TenantID, inv.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	document, err := s.pdf.GenerateInvoice(ctx, inv)
	if err != nil {
		return nil, fmt.Errorf("render invoice pdf: %w", err)
	}
	input := render.Input{SellerName: s.seller.Name, SellerVATNumber: s.seller.VATNumber, Invoice: inv}
	body, err := s.renderer.RenderHTML(input)
	if err != nil {
		return nil, fmt.Errorf("render invoice email: %w", err)
	}

	msg := email.Message{
		To:      []string{addr.Address},
		Subject: s.renderer.Subject(input),
		HTML:    body,
		Attachments: []email.Attachment{{
			Filename:    format.DocumentFilename("invoice", inv.InvoiceNumber, "pdf"),
			ContentType: "application/pdf",
			Content:     document,
		}},
		Tags: map[string]string{"category": "invoice", "invoice_type": string(inv.Type)},
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		s.log.Error("invoice email failed", zap.String("invoice_id", inv.ID.String()), zap.Error(err))
		return nil, err
	}
	s.log.Info("invoice email sent",
		zap.String("invoice_id", inv.ID.String()),
		zap.String("invoice_number", inv.InvoiceNumber),
	)

	if inv.Status != invoicedomain.InvoiceStatusDraft {
		return inv, nil
	}
	return s.invoices.MarkSent(ctx, id)
}
