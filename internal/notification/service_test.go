package notification

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"fraud-risk-engine/internal/riskcontrol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memRepo struct {
	mu            sync.Mutex
	notifications []*Notification
}

func (r *memRepo) CreateNotification(_ context.Context, n *Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n.ID = uint(len(r.notifications) + 1)
	r.notifications = append(r.notifications, n)
	return nil
}

func (r *memRepo) GetNotification(_ context.Context, id uint) (*Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.notifications[id-1], nil
}

func (r *memRepo) ListByAlert(_ context.Context, alertID string) ([]*Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Notification
	for _, n := range r.notifications {
		if n.AlertID == alertID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (r *memRepo) ListPendingNotifications(_ context.Context, limit int) ([]*Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Notification
	for _, n := range r.notifications {
		if n.Status == StatusPending && n.RetryCount < MaxRetries && len(out) < limit {
			out = append(out, n)
		}
	}
	return out, nil
}

func (r *memRepo) UpdateNotification(_ context.Context, _ *Notification) error {
	return nil
}

type recordingEmail struct {
	mu   sync.Mutex
	sent []string
}

func (e *recordingEmail) Send(_ context.Context, to, subject, _ string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sent = append(e.sent, to+"|"+subject)
	return nil
}

func testAlert() *riskcontrol.FraudAlert {
	return &riskcontrol.FraudAlert{
		ID:          "alert-1",
		CustomerID:  "cust-1",
		OrderID:     "ord-1",
		Type:        riskcontrol.AlertTypeBlacklistMatch,
		Severity:    riskcontrol.SeverityCritical,
		Score:       100,
		Description: "customer email is blacklisted",
		Factors: []riskcontrol.FraudFactor{
			{Kind: "blacklisted_email", Description: "email on blacklist"},
		},
	}
}

func TestNotifySignsWebhookAndLogsEmail(t *testing.T) {
	const secret = "s3cret"
	var got struct {
		body      []byte
		signature string
		timestamp string
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.body, _ = io.ReadAll(r.Body)
		got.signature = r.Header.Get(HeaderSignature)
		got.timestamp = r.Header.Get(HeaderTimestamp)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	repo := &memRepo{}
	email := &recordingEmail{}
	svc := NewService(repo, Config{
		WebhookURLs:    []string{srv.URL},
		WebhookSecret:  secret,
		FraudTeamEmail: "fraud@example.com",
		Email:          email,
	})

	require.NoError(t, svc.Notify(context.Background(), testAlert()))

	assert.True(t, Verify(secret, got.timestamp, got.body, got.signature))
	assert.False(t, Verify("other", got.timestamp, got.body, got.signature))

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(got.body, &payload))
	assert.Equal(t, EventAlertCreated, payload["event"])

	require.Len(t, email.sent, 1)
	assert.Equal(t, "fraud@example.com|[critical] blacklist_match alert for customer cust-1", email.sent[0])

	notifications, err := svc.GetAlertNotifications(context.Background(), "alert-1")
	require.NoError(t, err)
	require.Len(t, notifications, 2)
	for _, n := range notifications {
		assert.Equal(t, StatusSent, n.Status)
		assert.NotNil(t, n.SendAt)
	}
}

func TestFailedWebhookIsRetriedUntilLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	repo := &memRepo{}
	svc := NewService(repo, Config{WebhookURLs: []string{srv.URL}, Timeout: time.Second})
	ctx := context.Background()

	assert.Error(t, svc.Notify(ctx, testAlert()))
	require.Len(t, repo.notifications, 1)
	n := repo.notifications[0]
	assert.Equal(t, StatusPending, n.Status)
	assert.Equal(t, 1, n.RetryCount)

	sent, err := svc.ProcessPendingNotifications(ctx)
	require.NoError(t, err)
	assert.Zero(t, sent)
	sent, err = svc.ProcessPendingNotifications(ctx)
	require.NoError(t, err)
	assert.Zero(t, sent)

	assert.Equal(t, StatusFailed, n.Status)
	assert.Equal(t, MaxRetries, n.RetryCount)
	assert.Contains(t, n.ErrorMsg, "502")

	sent, err = svc.ProcessPendingNotifications(ctx)
	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.Equal(t, int32(MaxRetries), calls.Load())
}

func TestPendingNotificationRecovers(t *testing.T) {
	var healthy atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if !healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	repo := &memRepo{}
	svc := NewService(repo, Config{WebhookURLs: []string{srv.URL}})
	ctx := context.Background()

	assert.Error(t, svc.Notify(ctx, testAlert()))
	healthy.Store(true)

	sent, err := svc.ProcessPendingNotifications(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, StatusSent, repo.notifications[0].Status)
	assert.Empty(t, repo.notifications[0].ErrorMsg)
}

func TestNotifyWithoutTargetsIsNoop(t *testing.T) {
	repo := &memRepo{}
	svc := NewService(repo, Config{})
	require.NoError(t, svc.Notify(context.Background(), testAlert()))
	assert.Empty(t, repo.notifications)
}
