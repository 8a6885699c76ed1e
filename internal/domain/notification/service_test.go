package notification_test

import (
	"context"
	"testing"
	"time"

	"dispatchd/internal/common"
	"dispatchd/internal/domain/notification"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockStore is a mock for the full notification.Store interface.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Create(ctx context.Context, rec *notification.Record) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockStore) GetByID(ctx context.Context, id string) (*notification.Record, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notification.Record), args.Error(1)
}

func (m *MockStore) GetByIdempotencyKey(ctx context.Context, key string) (*notification.Record, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notification.Record), args.Error(1)
}

func (m *MockStore) List(ctx context.Context, filter notification.ListFilter) ([]*notification.Record, int, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]*notification.Record), args.Int(1), args.Error(2)
}

func (m *MockStore) ListStale(ctx context.Context, olderThan time.Time, limit int) ([]*notification.Record, error) {
	args := m.Called(ctx, olderThan, limit)
	return args.Get(0).([]*notification.Record), args.Error(1)
}

func (m *MockStore) Requeue(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockStore) MarkDelivered(ctx context.Context, id string, deliveredAt time.Time) error {
	args := m.Called(ctx, id, deliveredAt)
	return args.Error(0)
}

func (m *MockStore) MarkFailed(ctx context.Context, id string, retryCount int) error {
	args := m.Called(ctx, id, retryCount)
	return args.Error(0)
}

func (m *MockStore) UpdateRetryCount(ctx context.Context, id string, retryCount int) error {
	args := m.Called(ctx, id, retryCount)
	return args.Error(0)
}

// MockEnqueuer is a mock for notification.Enqueuer.
type MockEnqueuer struct {
	mock.Mock
}

func (m *MockEnqueuer) EnqueueDispatch(req *notification.Request) error {
	args := m.Called(req)
	return args.Error(0)
}

// MockRateLimiter is a mock for notification.RecipientRateLimiter.
type MockRateLimiter struct {
	mock.Mock
}

func (m *MockRateLimiter) Allow(ctx context.Context, recipient string) (bool, error) {
	args := m.Called(ctx, recipient)
	return args.Bool(0), args.Error(1)
}

func sendRequest() *notification.SendRequest {
	return &notification.SendRequest{
		Template:  "welcome",
		Channel:   notification.ChannelEmail,
		Recipient: "a@b.com",
		Payload:   map[string]any{"firstName": "Ann"},
	}
}

func TestEnqueue_Success(t *testing.T) {
	ctx := context.Background()
	store := new(MockStore)
	enqueuer := new(MockEnqueuer)
	limiter := new(MockRateLimiter)

	limiter.On("Allow", ctx, "a@b.com").Return(true, nil)
	store.On("Create", ctx, mock.Anything).Return(nil)
	enqueuer.On("EnqueueDispatch", mock.MatchedBy(func(req *notification.Request) bool {
		return req.Template == "welcome" &&
			req.Channel == notification.ChannelEmail &&
			req.RetryCount == 0 &&
			req.ID != ""
	})).Return(nil)

	svc := notification.NewService(store, enqueuer, limiter)

	resp, err := svc.Enqueue(ctx, sendRequest())

	require.NoError(t, err)
	assert.Equal(t, string(notification.StatusQueued), resp.Status)
	assert.NotEmpty(t, resp.ID)
	store.AssertExpectations(t)
	enqueuer.AssertExpectations(t)
}

func TestEnqueue_InvalidChannelRejected(t *testing.T) {
	svc := notification.NewService(new(MockStore), new(MockEnqueuer), nil)

	req := sendRequest()
	req.Channel = notification.Channel("pigeon")

	_, err := svc.Enqueue(context.Background(), req)

	var validation *common.ValidationError
	assert.ErrorAs(t, err, &validation)
}

func TestEnqueue_IdempotentRequestReturnsExisting(t *testing.T) {
	ctx := context.Background()
	store := new(MockStore)
	enqueuer := new(MockEnqueuer)

	existing := &notification.Record{
		ID:             "existing-id",
		IdempotencyKey: "key-1",
		Channel:        "email",
		Status:         notification.StatusDelivered,
	}
	store.On("GetByIdempotencyKey", ctx, "key-1").Return(existing, nil)

	svc := notification.NewService(store, enqueuer, nil)

	req := sendRequest()
	req.IdempotencyKey = "key-1"

	resp, err := svc.Enqueue(ctx, req)

	require.NoError(t, err)
	assert.Equal(t, "existing-id", resp.ID)
	assert.Equal(t, string(notification.StatusDelivered), resp.Status)
	store.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	enqueuer.AssertNotCalled(t, "EnqueueDispatch", mock.Anything)
}

func TestEnqueue_RateLimited(t *testing.T) {
	ctx := context.Background()
	store := new(MockStore)
	limiter := new(MockRateLimiter)

	limiter.On("Allow", ctx, "a@b.com").Return(false, nil)

	svc := notification.NewService(store, new(MockEnqueuer), limiter)

	_, err := svc.Enqueue(ctx, sendRequest())

	var validation *common.ValidationError
	assert.ErrorAs(t, err, &validation)
	store.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestEnqueue_RateLimiterErrorFailsOpen(t *testing.T) {
	ctx := context.Background()
	store := new(MockStore)
	enqueuer := new(MockEnqueuer)
	limiter := new(MockRateLimiter)

	limiter.On("Allow", ctx, "a@b.com").Return(false, assert.AnError)
	store.On("Create", ctx, mock.Anything).Return(nil)
	enqueuer.On("EnqueueDispatch", mock.Anything).Return(nil)

	svc := notification.NewService(store, enqueuer, limiter)

	_, err := svc.Enqueue(ctx, sendRequest())

	assert.NoError(t, err)
	store.AssertExpectations(t)
}

func TestEnqueue_EnqueueFailureMarksRecordFailed(t *testing.T) {
	ctx := context.Background()
	store := new(MockStore)
	enqueuer := new(MockEnqueuer)

	store.On("Create", ctx, mock.Anything).Return(nil)
	enqueuer.On("EnqueueDispatch", mock.Anything).Return(assert.AnError)
	store.On("MarkFailed", ctx, mock.Anything, 0).Return(nil)

	svc := notification.NewService(store, enqueuer, nil)

	_, err := svc.Enqueue(ctx, sendRequest())

	assert.Error(t, err)
	store.AssertExpectations(t)
}

func TestGetNotification_NotFound(t *testing.T) {
	ctx := context.Background()
	store := new(MockStore)
	store.On("GetByID", ctx, "missing").Return(nil, nil)

	svc := notification.NewService(store, new(MockEnqueuer), nil)

	_, err := svc.GetNotification(ctx, "missing")

	var notFound *common.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}
