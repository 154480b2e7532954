package email

import (
	"context"
	"errors"
	"fmt"

	"github.com/resend/resend-go/v2"
	"go.uber.org/zap"
)

var ErrMissingAPIKey = errors.New("email_missing_api_key")

type ResendProvider struct {
	client *resend.Client
	from   string
	log    *zap.Logger
}

func NewResend(apiKey, from, fromName string, log *zap.Logger) (*ResendProvider, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if fromName != "" {
		from = fmt.Sprintf("%s <%s>", fromName, from)
	}
	return &ResendProvider{
		client: resend.NewClient(apiKey),
		from:   from,
		log:    log.Named("email.resend"),
	}, nil
}

func (p *ResendProvider) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return ErrNoRecipient
	}

	params := &resend.SendEmailRequest{
		From:    p.from,
		To:      msg.To,
		Subject: msg.Subject,
		Html:    msg.HTML,
		Text:    msg.Text,
	}
	for _, a := range msg.Attachments {
		params.Attachments = append(params.Attachments, &resend.Attachment{
			Filename:    a.Filename,
			Content:     a.Content,
			ContentType: a.ContentType,
		})
	}
	for name, value := range msg.Tags {
		params.Tags = append(params.Tags, resend.Tag{Name: name, Value: value})
	}

	sent, err := p.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return fmt.Errorf("resend send: %w", err)
	}
	p.log.Info("email sent", zap.String("email_id", sent.Id), zap.Strings("to", msg.To))
	return nil
}
