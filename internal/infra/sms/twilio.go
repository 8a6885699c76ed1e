package sms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"dispatchd/internal/common"
	"dispatchd/internal/domain/notification"
)

var _ notification.SMSSender = (*TwilioSender)(nil)

// TwilioSender delivers SMS through the Twilio Messages API. Same
// failure posture as the email transport: delivery failures are errors,
// configuration problems fail construction.
type TwilioSender struct {
	accountSID string
	authToken  string
	fromNumber string
	httpClient *http.Client
}

// NewTwilioSender creates a new Twilio SMS transport.
func NewTwilioSender(accountSID, authToken, fromNumber string) (*TwilioSender, error) {
	if accountSID == "" || authToken == "" {
		return nil, errors.New("twilio: account sid and auth token are required")
	}
	if fromNumber == "" {
		return nil, errors.New("twilio: from number is required")
	}
	return &TwilioSender{
		accountSID: accountSID,
		authToken:  authToken,
		fromNumber: fromNumber,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// Send delivers one SMS. Empty recipient or body is a delivery failure.
func (s *TwilioSender) Send(ctx context.Context, recipient, body string) error {
	if recipient == "" {
		slog.Error("sms send rejected: empty recipient")
		return common.NewTransportError("sms", "empty recipient")
	}
	if body == "" {
		slog.Error("sms send rejected: empty body", "recipient", recipient)
		return common.NewTransportError("sms", "empty body")
	}

	endpoint := fmt.Sprintf("https://api.twilio.com/2010-04-01/Accounts/%s/Messages.json", s.accountSID)

	form := url.Values{}
	form.Set("To", recipient)
	form.Set("From", s.fromNumber)
	form.Set("Body", body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(s.accountSID, s.authToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return common.NewTransportError("sms", err.Error())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // 1 MB max
	if err != nil {
		return common.NewTransportError("sms", "reading response: "+err.Error())
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Message string `json:"message"`
			Code    int    `json:"code"`
		}
		_ = json.Unmarshal(respBody, &errResp)

		msg := errResp.Message
		if msg == "" {
			msg = fmt.Sprintf("twilio API error: status %d", resp.StatusCode)
		}
		return common.NewTransportError("sms", msg)
	}

	return nil
}
