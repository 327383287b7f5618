package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memRepo struct {
	logs []*AuditLog
	err  error
}

func (r *memRepo) Create(_ context.Context, log *AuditLog) error {
	if r.err != nil {
		return r.err
	}
	log.ID = uint(len(r.logs) + 1)
	r.logs = append(r.logs, log)
	return nil
}

func (r *memRepo) GetByID(_ context.Context, id uint) (*AuditLog, error) {
	for _, l := range r.logs {
		if l.ID == id {
			return l, nil
		}
	}
	return nil, errors.New("not found")
}

func (r *memRepo) List(_ context.Context, filter *ListFilter) ([]*AuditLog, int64, error) {
	var out []*AuditLog
	for _, l := range r.logs {
		if filter.Action != "" && l.Action != filter.Action {
			continue
		}
		if filter.CustomerID != "" && l.CustomerID != filter.CustomerID {
			continue
		}
		out = append(out, l)
	}
	return out, int64(len(out)), nil
}

func (r *memRepo) CountByAction(_ context.Context, module, action string, _, _ time.Time) (int64, error) {
	var n int64
	for _, l := range r.logs {
		if l.Module == module && l.Action == action {
			n++
		}
	}
	return n, nil
}

func TestLogRiskEvent(t *testing.T) {
	repo := &memRepo{}
	svc := NewService(repo)
	ctx := context.Background()

	require.NoError(t, svc.Log(ctx, "order_analyzed", map[string]interface{}{
		"order_id":    "ord-1",
		"customer_id": "cust-1",
		"risk_score":  42.5,
	}))
	require.NoError(t, svc.Log(ctx, "analysis_timeout", map[string]interface{}{
		"customer_id": "cust-1",
	}))
	require.NoError(t, svc.Log(ctx, "alert_status_updated", map[string]interface{}{
		"alert_id":    "a-1",
		"reviewed_by": "analyst",
	}))

	require.Len(t, repo.logs, 3)
	first := repo.logs[0]
	assert.Equal(t, ModuleRisk, first.Module)
	assert.Equal(t, "ord-1", first.ResourceID)
	assert.Equal(t, "cust-1", first.CustomerID)
	assert.Equal(t, 1, first.Status)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(first.Payload), &payload))
	assert.Equal(t, 42.5, payload["risk_score"])

	assert.Equal(t, 0, repo.logs[1].Status)
	assert.Equal(t, "a-1", repo.logs[2].ResourceID)
	assert.Equal(t, "analyst", repo.logs[2].Operator)

	n, err := svc.CountEvents(ctx, "analysis_timeout", time.Time{}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestLogRejectsUnencodablePayload(t *testing.T) {
	svc := NewService(&memRepo{})
	err := svc.Log(context.Background(), "order_analyzed", map[string]interface{}{
		"bad": make(chan int),
	})
	assert.Error(t, err)
}

func TestListLogsAppliesPaging(t *testing.T) {
	repo := &memRepo{}
	svc := NewService(repo)
	ctx := context.Background()
	require.NoError(t, svc.LogAdminAction(ctx, "admin-1", "export", "", "exported audit logs", nil))

	filter := &ListFilter{PageSize: 1000}
	logs, total, err := svc.ListLogs(ctx, filter)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, ModuleAdmin, logs[0].Module)
	assert.Equal(t, 1, filter.Page)
	assert.Equal(t, 20, filter.PageSize)

	data, err := svc.ExportLogs(ctx, &ListFilter{})
	require.NoError(t, err)
	assert.Contains(t, string(data), "exported audit logs")
}
