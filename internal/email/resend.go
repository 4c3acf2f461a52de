package email

import (
	"context"
	"fmt"
	"log"

	"github.com/resend/resend-go/v2"
)

// ResendProvider sends email through the Resend API
type ResendProvider struct {
	client *resend.Client
}

// NewResendProvider creates a Resend provider; an empty key leaves it unconfigured
func NewResendProvider(apiKey string) *ResendProvider {
	if apiKey == "" {
		return &ResendProvider{}
	}
	return &ResendProvider{client: resend.NewClient(apiKey)}
}

func (p *ResendProvider) Name() string {
	return "resend"
}

func (p *ResendProvider) IsConfigured() bool {
	return p.client != nil
}

func (p *ResendProvider) Send(ctx context.Context, req *EmailRequest) error {
	if p.client == nil {
		return fmt.Errorf("Resend client not initialized")
	}
	if err := req.Validate(); err != nil {
		return err
	}

	params := &resend.SendEmailRequest{
		From:    req.From,
		To:      req.To,
		Subject: req.Subject,
		Html:    req.HTML,
		Text:    req.Text,
	}

	result, err := p.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return fmt.Errorf("Resend send failed: %w", err)
	}

	log.Printf("Email: sent via Resend to %v (id=%s)", req.To, result.Id)
	return nil
}
