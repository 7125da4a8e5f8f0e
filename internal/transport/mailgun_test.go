package transport

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"receptionist/internal/model"
)

func TestIsSandboxDomain(t *testing.T) {
	assert.True(t, isSandboxDomain("sandbox1234.mailgun.org"))
	assert.False(t, isSandboxDomain("mg.acme.com"))
	assert.False(t, isSandboxDomain("sandbox.acme.com"))
	assert.False(t, isSandboxDomain("mailgun.org"))
}

func TestRecipientAuthorized(t *testing.T) {
	cfg := &model.ServiceConfig{AuthorizedRecipients: "alice@example.com, Bob@Example.com"}

	assert.True(t, recipientAuthorized(cfg, "alice@example.com"))
	assert.True(t, recipientAuthorized(cfg, "bob@example.com")) // 大小写不敏感
	assert.True(t, recipientAuthorized(cfg, " alice@example.com "))
	assert.False(t, recipientAuthorized(cfg, "mallory@example.com"))
	assert.False(t, recipientAuthorized(&model.ServiceConfig{}, "alice@example.com"))
}

func TestMailgunSandboxRejectsUnauthorizedRecipient(t *testing.T) {
	s := NewMailgunSender(zap.NewNop())
	cfg := &model.ServiceConfig{
		APIKey:               "key",
		Domain:               "sandbox1234.mailgun.org",
		AuthorizedRecipients: "alice@example.com",
	}

	err := s.Send(context.Background(), cfg, EmailParams{To: "mallory@example.com", From: "a@b", Subject: "x"})
	assert.ErrorContains(t, err, "unauthorized recipient")
}

func TestMailgunMissingConfig(t *testing.T) {
	s := NewMailgunSender(zap.NewNop())

	assert.Error(t, s.Send(context.Background(), nil, EmailParams{}))
	assert.Error(t, s.Send(context.Background(), &model.ServiceConfig{APIKey: "key"}, EmailParams{}))
}
