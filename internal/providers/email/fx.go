package email

import (
	"github.com/dixis/taxengine/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers.email",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg config.Config, log *zap.Logger) (Provider, error) {
	switch cfg.Email.Provider {
	case "smtp":
		return NewSMTP(SMTPConfig{
			Host:     cfg.Email.SMTPHost,
			Port:     cfg.Email.SMTPPort,
			Username: cfg.Email.SMTPUsername,
			Password: cfg.Email.SMTPPassword,
			From:     cfg.Email.From,
			FromName: cfg.Email.FromName,
		}), nil
	case "resend":
		return NewResend(cfg.Email.ResendAPIKey, cfg.Email.From, cfg.Email.FromName, log)
	default:
		log.Warn("email provider disabled, invoices will not be delivered", zap.String("provider", cfg.Email.Provider))
		return NoOpProvider{}, nil
	}
}
