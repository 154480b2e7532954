package email

import (
	"context"
	"errors"
)

var ErrNoRecipient = errors.New("email_no_recipient")

// Attachment is a file carried inline with a message.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

type Message struct {
	To          []string
	Subject     string
	HTML        string
	Text        string
	Attachments []Attachment
	// Tags are passed to transports that support message tagging.
	Tags map[string]string
}

type Provider interface {
	Send(ctx context.Context, msg Message) error
}

// NoOpProvider drops every message.
type NoOpProvider struct{}

func (NoOpProvider) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return ErrNoRecipient
	}
	return nil
}
