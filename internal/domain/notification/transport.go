package notification

import "context"

// EmailSender is the email delivery port. Implementations live in
// infra/email (e.g., Resend).
//
// Ordinary delivery failures — provider rejection, network error,
// timeout — come back as an error so the processor can apply uniform
// retry logic across channels. Configuration problems (missing API key,
// missing from address) are constructor errors, never per-call ones.
type EmailSender interface {
	Send(ctx context.Context, recipient, subject, htmlBody string) error
}

// SMSSender is the SMS delivery port. Implementations live in
// infra/sms (e.g., Twilio). Same failure posture as EmailSender;
// there is no subject concept.
type SMSSender interface {
	Send(ctx context.Context, recipient, body string) error
}
