package email

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"dispatchd/internal/common"
	"dispatchd/internal/domain/notification"
)

var _ notification.EmailSender = (*ResendSender)(nil)

const resendEndpoint = "https://api.resend.com/emails"

// ResendSender delivers email through the Resend API. Delivery failures
// come back as errors; only construction fails for bad configuration.
type ResendSender struct {
	apiKey      string
	fromAddress string
	fromName    string
	httpClient  *http.Client
}

// NewResendSender creates a new Resend email transport. Missing
// credentials are a fatal setup error, not a per-call failure.
func NewResendSender(apiKey, fromAddress, fromName string) (*ResendSender, error) {
	if apiKey == "" {
		return nil, errors.New("resend: api key is required")
	}
	if fromAddress == "" {
		return nil, errors.New("resend: from address is required")
	}
	return &ResendSender{
		apiKey:      apiKey,
		fromAddress: fromAddress,
		fromName:    fromName,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// Send delivers one email. An empty recipient is a delivery failure; an
// empty subject is only worth a warning, the caller supplies the default.
func (s *ResendSender) Send(ctx context.Context, recipient, subject, htmlBody string) error {
	if recipient == "" {
		slog.Error("email send rejected: empty recipient")
		return common.NewTransportError("email", "empty recipient")
	}
	if subject == "" {
		slog.Warn("sending email without subject", "recipient", recipient)
	}

	from := s.fromAddress
	if s.fromName != "" {
		from = fmt.Sprintf("%s <%s>", s.fromName, s.fromAddress)
	}

	payload := map[string]any{
		"from":    from,
		"to":      []string{recipient},
		"subject": subject,
		"html":    htmlBody,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling email payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, resendEndpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return common.NewTransportError("email", err.Error())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // 1 MB max
	if err != nil {
		return common.NewTransportError("email", "reading response: "+err.Error())
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Message    string `json:"message"`
			StatusCode int    `json:"statusCode"`
		}
		_ = json.Unmarshal(respBody, &errResp)

		msg := errResp.Message
		if msg == "" {
			msg = fmt.Sprintf("resend API error: status %d", resp.StatusCode)
		}
		return common.NewTransportError("email", msg)
	}

	return nil
}
