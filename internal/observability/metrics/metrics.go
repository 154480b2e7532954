package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes business-level instruments exported over OTLP.
type Metrics struct {
	taxCalculations    metric.Int64Counter
	exemptions         metric.Int64Counter
	invoiceEvents      metric.Int64Counter
	complianceReports  metric.Int64Counter
	invoiceCreateDelay metric.Float64Histogram
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}
	return provider, nil
}

// New configures the domain instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "taxengine"
	}
	meter := provider.Meter(name)

	taxCalculations, err := meter.Int64Counter("taxengine_tax_calculations_total")
	if err != nil {
		return nil, err
	}
	exemptions, err := meter.Int64Counter("taxengine_tax_exemptions_total")
	if err != nil {
		return nil, err
	}
	invoiceEvents, err := meter.Int64Counter("taxengine_invoice_events_total")
	if err != nil {
		return nil, err
	}
	complianceReports, err := meter.Int64Counter("taxengine_compliance_reports_total")
	if err != nil {
		return nil, err
	}
	invoiceCreateDelay, err := meter.Float64Histogram("taxengine_invoice_create_seconds", metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		taxCalculations:    taxCalculations,
		exemptions:         exemptions,
		invoiceEvents:      invoiceEvents,
		complianceReports:  complianceReports,
		invoiceCreateDelay: invoiceCreateDelay,
	}, nil
}

func (m *Metrics) RecordTaxCalculation(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("outcome", strings.TrimSpace(outcome)))
	m.taxCalculations.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordExemption(ctx context.Context, exemptionType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("exemption_type", strings.TrimSpace(exemptionType)))
	m.exemptions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordInvoiceEvent counts invoice lifecycle events such as created or paid.
func (m *Metrics) RecordInvoiceEvent(ctx context.Context, event string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("event_type", strings.TrimSpace(event)))
	m.invoiceEvents.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) ObserveInvoiceCreate(ctx context.Context, d time.Duration, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("outcome", strings.TrimSpace(outcome)))
	m.invoiceCreateDelay.Record(ctx, d.Seconds(), metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordComplianceReport(ctx context.Context, compliant bool) {
	if m == nil {
		return
	}
	outcome := "compliant"
	if !compliant {
		outcome = "non_compliant"
	}
	attrs := FilterAttributes(attribute.String("outcome", outcome))
	m.complianceReports.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"outcome":        {},
	"event_type":     {},
	"exemption_type": {},
	"backend":        {},
	"reason":         {},
}

// FilterAttributes strips labels that would blow up cardinality, such as tenant or invoice ids.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
