package riskcontrol

import (
	"context"
	"sync"
	"time"

	"fraud-risk-engine/pkg/logger"
)

// auditor 异步写审计，失败只记日志，不阻塞决策路径
type auditor struct {
	sink    AuditSink
	timeout time.Duration
	wg      sync.WaitGroup
}

func newAuditor(sink AuditSink, timeout time.Duration) *auditor {
	return &auditor{sink: sink, timeout: timeout}
}

func (a *auditor) emit(event string, payload map[string]interface{}) {
	if a == nil || a.sink == nil {
		return
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()
		if err := a.sink.Log(ctx, event, payload); err != nil {
			logger.Warnf("audit log %s failed: %v", event, err)
		}
	}()
}

func (a *auditor) wait() {
	if a != nil {
		a.wg.Wait()
	}
}
