package email

import (
	"context"
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
	"net/smtp"
	"strings"
	"testing"

	"github.com/dixis/taxengine/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSMTPSendBuildsMultipartMessage(t *testing.T) {
	p := NewSMTP(SMTPConfig{Host: "mail.local", Port: 2525, From: "invoices@dixis.gr", FromName: "Dixis"})

	var (
		gotAddr string
		gotTo   []string
		raw     []byte
	)
	p.send = func(addr string, _ smtp.Auth, _ string, to []string, msg []byte) error {
		gotAddr, gotTo, raw = addr, to, msg
		return nil
	}

	err := p.Send(context.Background(), Message{
		To:          []string{"buyer@example.com"},
		Subject:     "Τιμολόγιο INV-202503-0001",
		HTML:        "<p>hello</p>",
		Attachments: []Attachment{{Filename: "INV-202503-0001.pdf", ContentType: "application/pdf", Content: []byte("%PDF-1.3")}},
	})
	require.NoError(t, err)
	assert.Equal(t, "mail.local:2525", gotAddr)
	assert.Equal(t, []string{"buyer@example.com"}, gotTo)

	parsed, err := mail.ReadMessage(strings.NewReader(string(raw)))
	require.NoError(t, err)
	subject, err := new(mime.WordDecoder).DecodeHeader(parsed.Header.Get("Subject"))
	require.NoError(t, err)
	assert.Equal(t, "Τιμολόγιο INV-202503-0001", subject)

	mediaType, params, err := mime.ParseMediaType(parsed.Header.Get("Content-Type"))
	require.NoError(t, err)
	assert.Equal(t, "multipart/mixed", mediaType)

	mr := multipart.NewReader(parsed.Body, params["boundary"])
	body, err := mr.NextPart()
	require.NoError(t, err)
	html, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "<p>hello</p>", string(html))

	attachment, err := mr.NextPart()
	require.NoError(t, err)
	assert.Equal(t, "INV-202503-0001.pdf", attachment.FileName())
	assert.Equal(t, "base64", attachment.Header.Get("Content-Transfer-Encoding"))
}

func TestSendRequiresRecipient(t *testing.T) {
	p := NewSMTP(SMTPConfig{Host: "mail.local", Port: 25})
	assert.ErrorIs(t, p.Send(context.Background(), Message{Subject: "x"}), ErrNoRecipient)
	assert.ErrorIs(t, NoOpProvider{}.Send(context.Background(), Message{}), ErrNoRecipient)
}

func TestNewFromConfig(t *testing.T) {
	cfg := config.Config{Email: config.EmailConfig{Provider: "resend"}}
	_, err := NewFromConfig(cfg, zap.NewNop())
	assert.ErrorIs(t, err, ErrMissingAPIKey)

	cfg.Email.ResendAPIKey = "re_test"
	p, err := NewFromConfig(cfg, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &ResendProvider{}, p)

	p, err = NewFromConfig(config.Config{}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, NoOpProvider{}, p)
}
