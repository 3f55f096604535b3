package delivery

import (
	"context"
	"fmt"
	"strings"

	"github.com/signin-api/internal/infrastructure/smtp"
	"github.com/signin-api/internal/infrastructure/sns"
)

// Sender delivers a plaintext sign-in secret to an identifier out-of-band.
type Sender interface {
	Send(ctx context.Context, identifier, secret string) error
}

// dispatcher routes by identifier shape: email addresses go over SMTP,
// E.164 phone numbers over SNS. Identifiers reach this point already
// validated as one of the two.
type dispatcher struct {
	mailer    smtp.Mailer
	smsSender sns.SMSSender
}

func NewDispatcher(mailer smtp.Mailer, smsSender sns.SMSSender) Sender {
	return &dispatcher{mailer: mailer, smsSender: smsSender}
}

func (d *dispatcher) Send(ctx context.Context, identifier, secret string) error {
	if strings.Contains(identifier, "@") {
		if d.mailer == nil {
			return fmt.Errorf("no mailer configured for email delivery")
		}
		return d.mailer.SendEmail(identifier, "Your sign-in code", "Your sign-in code: "+secret)
	}
	if d.smsSender == nil {
		return fmt.Errorf("no SMS sender configured for phone delivery")
	}
	return d.smsSender.SendSMS(ctx, identifier, "Your sign-in code: "+secret)
}
