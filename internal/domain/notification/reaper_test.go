package notification

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubStore is a minimal in-package Store stub for reaper tests.
type stubStore struct {
	Ledger

	stale      []*Record
	staleErr   error
	requeued   []string
	requeueErr error
}

func (s *stubStore) Create(ctx context.Context, rec *Record) error { return nil }

func (s *stubStore) GetByID(ctx context.Context, id string) (*Record, error) { return nil, nil }

func (s *stubStore) GetByIdempotencyKey(ctx context.Context, key string) (*Record, error) {
	return nil, nil
}

func (s *stubStore) List(ctx context.Context, filter ListFilter) ([]*Record, int, error) {
	return nil, 0, nil
}

func (s *stubStore) ListStale(ctx context.Context, olderThan time.Time, limit int) ([]*Record, error) {
	return s.stale, s.staleErr
}

func (s *stubStore) Requeue(ctx context.Context, id string) error {
	if s.requeueErr != nil {
		return s.requeueErr
	}
	s.requeued = append(s.requeued, id)
	return nil
}

// stubEnqueuer records re-enqueued wire requests.
type stubEnqueuer struct {
	requests []*Request
	err      error
}

func (e *stubEnqueuer) EnqueueDispatch(req *Request) error {
	if e.err != nil {
		return e.err
	}
	e.requests = append(e.requests, req)
	return nil
}

func TestReaperSweep_RecoversStaleRequests(t *testing.T) {
	store := &stubStore{
		stale: []*Record{
			{
				ID:         "stale-1",
				Template:   "welcome",
				Channel:    "email",
				Recipient:  "a@b.com",
				Status:     StatusRetrying,
				RetryCount: 2,
				UpdatedAt:  time.Now().Add(-time.Hour),
			},
		},
	}
	enqueuer := &stubEnqueuer{}

	r := NewReaper(store, enqueuer, ReaperConfig{})
	r.sweep(context.Background())

	require.Len(t, enqueuer.requests, 1)
	req := enqueuer.requests[0]
	assert.Equal(t, "stale-1", req.ID)
	assert.Equal(t, ChannelEmail, req.Channel)
	// The recovered request resumes with the ledger's retry count.
	assert.Equal(t, 2, req.RetryCount)
	assert.Equal(t, []string{"stale-1"}, store.requeued)
}

func TestReaperSweep_RequeueFailureSkipsEnqueue(t *testing.T) {
	store := &stubStore{
		stale:      []*Record{{ID: "stale-1", Status: StatusQueued}},
		requeueErr: assert.AnError,
	}
	enqueuer := &stubEnqueuer{}

	r := NewReaper(store, enqueuer, ReaperConfig{})
	r.sweep(context.Background())

	assert.Empty(t, enqueuer.requests)
}

func TestReaperSweep_NothingStale(t *testing.T) {
	store := &stubStore{}
	enqueuer := &stubEnqueuer{}

	r := NewReaper(store, enqueuer, ReaperConfig{})
	r.sweep(context.Background())

	assert.Empty(t, enqueuer.requests)
	assert.Empty(t, store.requeued)
}

func TestNewReaper_Defaults(t *testing.T) {
	r := NewReaper(&stubStore{}, &stubEnqueuer{}, ReaperConfig{})

	assert.Equal(t, 5*time.Minute, r.config.Interval)
	assert.Equal(t, 15*time.Minute, r.config.StaleThreshold)
	assert.Equal(t, 50, r.config.BatchSize)
}
