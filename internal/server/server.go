package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dixis/taxengine/internal/audit"
	auditdomain "github.com/dixis/taxengine/internal/audit/domain"
	"github.com/dixis/taxengine/internal/cache"
	"github.com/dixis/taxengine/internal/compliance"
	compliancedomain "github.com/dixis/taxengine/internal/compliance/domain"
	"github.com/dixis/taxengine/internal/config"
	"github.com/dixis/taxengine/internal/invoice"
	"github.com/dixis/taxengine/internal/invoice/delivery"
	invoicedomain "github.com/dixis/taxengine/internal/invoice/domain"
	"github.com/dixis/taxengine/internal/metricspush"
	"github.com/dixis/taxengine/internal/observability"
	obsmiddleware "github.com/dixis/taxengine/internal/observability/logger"
	obsmetrics "github.com/dixis/taxengine/internal/observability/metrics"
	obstracing "github.com/dixis/taxengine/internal/observability/tracing"
	"github.com/dixis/taxengine/internal/providers"
	"github.com/dixis/taxengine/internal/providers/pdf"
	"github.com/dixis/taxengine/internal/ratelimit"
	"github.com/dixis/taxengine/internal/tax"
	taxdomain "github.com/dixis/taxengine/internal/tax/domain"
	"github.com/dixis/taxengine/pkg/redisclient"
	"github.com/dixis/taxengine/pkg/validation"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	redisclient.Module,
	validation.Module,
	cache.Module,
	tax.Module,
	audit.Module,
	invoice.Module,
	delivery.Module,
	compliance.Module,
	providers.Module,
	ratelimit.Module,
	metricspush.Module,
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(cfg config.Config, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(corsMiddleware(cfg))
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine        *gin.Engine
	cfg           config.Config
	log           *zap.Logger
	calculator    taxdomain.Calculator
	resolver      taxdomain.RateResolver
	invoiceSvc    invoicedomain.Service
	deliverySvc   *delivery.Service
	complianceSvc compliancedomain.Service
	auditSvc      auditdomain.Service
	pdf           pdf.Provider
	limiter       *ratelimit.Limiter
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	Log           *zap.Logger
	Calculator    taxdomain.Calculator
	Resolver      taxdomain.RateResolver
	InvoiceSvc    invoicedomain.Service
	DeliverySvc   *delivery.Service
	ComplianceSvc compliancedomain.Service
	AuditSvc      auditdomain.Service
	PDF           pdf.Provider
	Limiter       *ratelimit.Limiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		log:           p.Log.Named("http.server"),
		calculator:    p.Calculator,
		resolver:      p.Resolver,
		invoiceSvc:    p.InvoiceSvc,
		deliverySvc:   p.DeliverySvc,
		complianceSvc: p.ComplianceSvc,
		auditSvc:      p.AuditSvc,
		pdf:           p.PDF,
		limiter:       p.Limiter,
	}

	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", TenantContext(), s.TenantRateLimit())

	// -------- Tax --------
	api.GET("/tax/rates", s.GetTaxRates)
	api.GET("/tax/postcodes/:postcode", s.GetPostcodeRates)
	api.POST("/tax/calculate", s.CalculateTax)

	// -------- Compliance --------
	api.GET("/compliance/reports", s.GetComplianceReport)
	api.POST("/compliance/reports", s.GenerateComplianceReport)

	// -------- Invoices --------
	api.GET("/invoices", s.ListInvoices)
	api.POST("/invoices", s.CreateInvoice)
	api.GET("/invoices/overdue", s.ListOverdueInvoices)
	api.GET("/invoices/statistics", s.GetInvoiceStatistics)
	api.GET("/invoices/:id", s.GetInvoiceByID)
	api.PATCH("/invoices/:id", s.UpdateDraftInvoice)
	api.DELETE("/invoices/:id", s.DeleteInvoice)

	api.POST("/invoices/:id/items", s.AddInvoiceItem)
	api.PATCH("/invoices/:id/items/:itemId", s.UpdateInvoiceItem)
	api.DELETE("/invoices/:id/items/:itemId", s.RemoveInvoiceItem)
	api.POST("/invoices/:id/recalculate", s.RecalculateInvoice)

	api.POST("/invoices/:id/send", s.MarkInvoiceSent)
	api.POST("/invoices/:id/view", s.MarkInvoiceViewed)
	api.POST("/invoices/:id/pay", s.MarkInvoicePaid)
	api.POST("/invoices/:id/cancel", s.CancelInvoice)
	api.POST("/invoices/:id/refund", s.RefundInvoice)
	api.POST("/invoices/:id/approve", s.ApproveInvoice)
	api.POST("/invoices/:id/credit-notes", s.CreateCreditNote)
	api.POST("/invoices/:id/email", s.EmailInvoice)

	api.GET("/invoices/:id/payments", s.ListInvoicePayments)
	api.GET("/invoices/:id/pdf", s.DownloadInvoicePDF)
	api.GET("/invoices/:id/receipt", s.DownloadInvoiceReceipt)

	// -------- Audit --------
	api.GET("/audit-logs", s.ListAuditLogs)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
