package notification_test

import (
	"context"
	"testing"
	"time"

	"dispatchd/internal/common"
	"dispatchd/internal/domain/notification"
	"dispatchd/internal/infra/template"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockTemplateSource is a mock for notification.TemplateSource.
type MockTemplateSource struct {
	mock.Mock
}

func (m *MockTemplateSource) Load(templateName string, channel notification.Channel) (string, error) {
	args := m.Called(templateName, channel)
	return args.String(0), args.Error(1)
}

// MockEmailSender is a mock for notification.EmailSender.
type MockEmailSender struct {
	mock.Mock
}

func (m *MockEmailSender) Send(ctx context.Context, recipient, subject, htmlBody string) error {
	args := m.Called(ctx, recipient, subject, htmlBody)
	return args.Error(0)
}

// MockSMSSender is a mock for notification.SMSSender.
type MockSMSSender struct {
	mock.Mock
}

func (m *MockSMSSender) Send(ctx context.Context, recipient, body string) error {
	args := m.Called(ctx, recipient, body)
	return args.Error(0)
}

// MockLedger is a mock for notification.Ledger.
type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) MarkDelivered(ctx context.Context, id string, deliveredAt time.Time) error {
	args := m.Called(ctx, id, deliveredAt)
	return args.Error(0)
}

func (m *MockLedger) MarkFailed(ctx context.Context, id string, retryCount int) error {
	args := m.Called(ctx, id, retryCount)
	return args.Error(0)
}

func (m *MockLedger) UpdateRetryCount(ctx context.Context, id string, retryCount int) error {
	args := m.Called(ctx, id, retryCount)
	return args.Error(0)
}

// panicRenderer triggers the processor's unexpected-fault path.
type panicRenderer struct{}

func (panicRenderer) Render(tmpl string, data map[string]any) string {
	panic("renderer exploded")
}

type processorFixture struct {
	templates *MockTemplateSource
	email     *MockEmailSender
	sms       *MockSMSSender
	ledger    *MockLedger
	processor *notification.Processor
}

func newProcessorFixture() *processorFixture {
	f := &processorFixture{
		templates: new(MockTemplateSource),
		email:     new(MockEmailSender),
		sms:       new(MockSMSSender),
		ledger:    new(MockLedger),
	}
	f.processor = notification.NewProcessor(f.templates, template.NewRenderer(), f.email, f.sms, f.ledger)
	return f
}

func emailRequest(retryCount int) *notification.Request {
	return &notification.Request{
		ID:         "n-1",
		Template:   "welcome",
		Channel:    notification.ChannelEmail,
		RetryCount: retryCount,
		Recipient:  "a@b.com",
		Payload:    map[string]any{"firstName": "Ann"},
	}
}

func TestProcess_NilRequestNoLedgerWrite(t *testing.T) {
	f := newProcessorFixture()

	assert.False(t, f.processor.Process(context.Background(), nil))
	assert.False(t, f.processor.Process(context.Background(), &notification.Request{}))

	f.ledger.AssertNotCalled(t, "MarkDelivered", mock.Anything, mock.Anything, mock.Anything)
	f.ledger.AssertNotCalled(t, "MarkFailed", mock.Anything, mock.Anything, mock.Anything)
	f.ledger.AssertNotCalled(t, "UpdateRetryCount", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcess_RetryBudgetExhausted(t *testing.T) {
	f := newProcessorFixture()
	ctx := context.Background()

	req := emailRequest(notification.MaxRetries)
	f.ledger.On("MarkFailed", ctx, req.ID, notification.MaxRetries).Return(nil).Once()

	assert.False(t, f.processor.Process(ctx, req))

	// The gate fires before any template load or send attempt.
	f.templates.AssertNotCalled(t, "Load", mock.Anything, mock.Anything)
	f.email.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.ledger.AssertExpectations(t)
}

func TestProcess_RetryBudgetExhaustedAboveBoundary(t *testing.T) {
	f := newProcessorFixture()
	ctx := context.Background()

	req := emailRequest(7)
	f.ledger.On("MarkFailed", ctx, req.ID, 7).Return(nil).Once()

	assert.False(t, f.processor.Process(ctx, req))
	f.ledger.AssertExpectations(t)
}

func TestProcess_EmailDelivered(t *testing.T) {
	f := newProcessorFixture()
	ctx := context.Background()

	req := emailRequest(0)
	f.templates.On("Load", "welcome", notification.ChannelEmail).Return("Hi {{firstName}}", nil)
	f.email.On("Send", ctx, "a@b.com", notification.DefaultEmailSubject, "Hi Ann").Return(nil)
	f.ledger.On("MarkDelivered", ctx, req.ID, mock.Anything).Return(nil).Once()

	assert.True(t, f.processor.Process(ctx, req))

	f.email.AssertExpectations(t)
	f.ledger.AssertExpectations(t)
}

func TestProcess_EmailSendFailureIsRetryable(t *testing.T) {
	f := newProcessorFixture()
	ctx := context.Background()

	req := emailRequest(0)
	f.templates.On("Load", "welcome", notification.ChannelEmail).Return("Hi {{firstName}}", nil)
	f.email.On("Send", ctx, "a@b.com", notification.DefaultEmailSubject, "Hi Ann").
		Return(common.NewTransportError("email", "provider rejected"))
	f.ledger.On("UpdateRetryCount", ctx, req.ID, 1).Return(nil).Once()

	assert.False(t, f.processor.Process(ctx, req))

	f.ledger.AssertExpectations(t)
	f.ledger.AssertNotCalled(t, "MarkFailed", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcess_MissingTemplateIsTerminal(t *testing.T) {
	f := newProcessorFixture()
	ctx := context.Background()

	req := emailRequest(0)
	f.templates.On("Load", "welcome", notification.ChannelEmail).
		Return("", common.NewNotFoundError(common.NotFoundTemplateFile, "email/welcome.html"))
	f.ledger.On("MarkFailed", ctx, req.ID, 0).Return(nil).Once()

	assert.False(t, f.processor.Process(ctx, req))

	// Configuration failures never reach a transport and keep the
	// retry count unchanged.
	f.email.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.ledger.AssertExpectations(t)
}

func TestProcess_InvalidChannelIsTerminal(t *testing.T) {
	f := newProcessorFixture()
	ctx := context.Background()

	req := emailRequest(2)
	req.Channel = notification.Channel("pigeon")
	f.templates.On("Load", "welcome", notification.Channel("pigeon")).
		Return("", common.NewInvalidArgumentError("unsupported channel: pigeon"))
	f.ledger.On("MarkFailed", ctx, req.ID, 2).Return(nil).Once()

	assert.False(t, f.processor.Process(ctx, req))
	f.ledger.AssertExpectations(t)
}

func TestProcess_UnexpectedLoadErrorIsRetryable(t *testing.T) {
	f := newProcessorFixture()
	ctx := context.Background()

	req := emailRequest(1)
	f.templates.On("Load", "welcome", notification.ChannelEmail).
		Return("", assert.AnError)
	f.ledger.On("UpdateRetryCount", ctx, req.ID, 2).Return(nil).Once()

	assert.False(t, f.processor.Process(ctx, req))
	f.ledger.AssertExpectations(t)
}

func TestProcess_SMSDelivered(t *testing.T) {
	f := newProcessorFixture()
	ctx := context.Background()

	req := &notification.Request{
		ID:         "n-2",
		Template:   "welcome",
		Channel:    notification.ChannelSMS,
		Recipient:  "+15550100",
		Payload:    map[string]any{"firstName": "Ann"},
		RetryCount: 0,
	}
	f.templates.On("Load", "welcome", notification.ChannelSMS).Return("Hi {{firstName}}!", nil)
	f.sms.On("Send", ctx, "+15550100", "Hi Ann!").Return(nil)
	f.ledger.On("MarkDelivered", ctx, req.ID, mock.Anything).Return(nil).Once()

	assert.True(t, f.processor.Process(ctx, req))

	f.sms.AssertExpectations(t)
	f.ledger.AssertExpectations(t)
}

func TestProcess_InAppIsTransientFailure(t *testing.T) {
	f := newProcessorFixture()
	ctx := context.Background()

	req := &notification.Request{
		ID:         "n-3",
		Template:   "welcome",
		Channel:    notification.ChannelInApp,
		Recipient:  "user-42",
		RetryCount: 3,
	}
	f.templates.On("Load", "welcome", notification.ChannelInApp).Return("Welcome!", nil)
	f.ledger.On("UpdateRetryCount", ctx, req.ID, 4).Return(nil).Once()

	assert.False(t, f.processor.Process(ctx, req))

	// Treated as transient, not terminal: in-app requests exhaust
	// retries like any other send failure.
	f.ledger.AssertNotCalled(t, "MarkFailed", mock.Anything, mock.Anything, mock.Anything)
	f.ledger.AssertExpectations(t)
}

func TestProcess_UnknownChannelAtDispatchIsTerminal(t *testing.T) {
	f := newProcessorFixture()
	ctx := context.Background()

	// The template source accepting the channel should make this
	// unreachable; the dispatch switch still refuses to guess.
	req := emailRequest(0)
	req.Channel = notification.Channel("push")
	f.templates.On("Load", "welcome", notification.Channel("push")).Return("hello", nil)
	f.ledger.On("MarkFailed", ctx, req.ID, 0).Return(nil).Once()

	assert.False(t, f.processor.Process(ctx, req))
	f.ledger.AssertExpectations(t)
}

func TestProcess_SubjectFromPayload(t *testing.T) {
	f := newProcessorFixture()
	ctx := context.Background()

	req := emailRequest(0)
	req.Payload["subject"] = "Welcome!"
	f.templates.On("Load", "welcome", notification.ChannelEmail).Return("Hi {{firstName}}", nil)
	f.email.On("Send", ctx, "a@b.com", "Welcome!", "Hi Ann").Return(nil)
	f.ledger.On("MarkDelivered", ctx, req.ID, mock.Anything).Return(nil)

	assert.True(t, f.processor.Process(ctx, req))
	f.email.AssertExpectations(t)
}

func TestProcess_EmptySubjectFallsBackToDefault(t *testing.T) {
	f := newProcessorFixture()
	ctx := context.Background()

	req := emailRequest(0)
	req.Payload["subject"] = ""
	f.templates.On("Load", "welcome", notification.ChannelEmail).Return("Hi {{firstName}}", nil)
	f.email.On("Send", ctx, "a@b.com", notification.DefaultEmailSubject, "Hi Ann").Return(nil)
	f.ledger.On("MarkDelivered", ctx, req.ID, mock.Anything).Return(nil)

	assert.True(t, f.processor.Process(ctx, req))
	f.email.AssertExpectations(t)
}

func TestProcess_PanicLandsOnRetryablePath(t *testing.T) {
	f := newProcessorFixture()
	ctx := context.Background()

	req := emailRequest(2)
	f.templates.On("Load", "welcome", notification.ChannelEmail).Return("Hi {{firstName}}", nil)
	f.ledger.On("UpdateRetryCount", ctx, req.ID, 3).Return(nil).Once()

	p := notification.NewProcessor(f.templates, panicRenderer{}, f.email, f.sms, f.ledger)

	assert.NotPanics(t, func() {
		assert.False(t, p.Process(ctx, req))
	})
	f.ledger.AssertExpectations(t)
}

func TestProcess_LedgerWriteFailureDoesNotChangeResult(t *testing.T) {
	f := newProcessorFixture()
	ctx := context.Background()

	req := emailRequest(0)
	f.templates.On("Load", "welcome", notification.ChannelEmail).Return("Hi {{firstName}}", nil)
	f.email.On("Send", ctx, "a@b.com", notification.DefaultEmailSubject, "Hi Ann").Return(nil)
	f.ledger.On("MarkDelivered", ctx, req.ID, mock.Anything).Return(assert.AnError)

	// The ledger write is best-effort; delivery already happened.
	assert.True(t, f.processor.Process(ctx, req))
}
