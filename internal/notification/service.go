package notification

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strconv"
	"time"

	"fraud-risk-engine/internal/riskcontrol"
	"fraud-risk-engine/pkg/logger"
	"fraud-risk-engine/pkg/metrics"
)

const (
	HeaderSignature = "X-Risk-Signature"
	HeaderTimestamp = "X-Risk-Timestamp"

	EventAlertCreated = "fraud_alert.created"
)

// EmailSender 邮件发送
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Config 通知配置
type Config struct {
	WebhookURLs    []string
	WebhookSecret  string
	FraudTeamEmail string
	Timeout        time.Duration
	HTTPClient     *http.Client
	Email          EmailSender
}

// Service 通知服务接口
type Service interface {
	// Notify 实现告警出口，失败的投递留给 ProcessPendingNotifications 重试
	Notify(ctx context.Context, alert *riskcontrol.FraudAlert) error
	SendWebhook(ctx context.Context, url string, payload []byte) error
	SendEmail(ctx context.Context, to, subject, content string) error
	GetAlertNotifications(ctx context.Context, alertID string) ([]*Notification, error)
	ProcessPendingNotifications(ctx context.Context) (int, error)
}

type service struct {
	repo   Repository
	cfg    Config
	client *http.Client
	email  EmailSender
	now    func() time.Time
}

// NewService 创建通知服务
func NewService(repo Repository, cfg Config) Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	email := cfg.Email
	if email == nil {
		email = logSender{}
	}
	return &service{repo: repo, cfg: cfg, client: client, email: email, now: time.Now}
}

type webhookPayload struct {
	Event     string                  `json:"event"`
	Alert     *riskcontrol.FraudAlert `json:"alert"`
	Timestamp int64                   `json:"timestamp"`
}

var (
	titleTmpl   = template.Must(template.New("title").Parse(`[{{.Severity}}] {{.Type}} alert for customer {{.CustomerID}}`))
	contentTmpl = template.Must(template.New("content").Parse(`<p>Alert {{.ID}} ({{.Severity}}) was raised for customer {{.CustomerID}}{{if .OrderID}} on order {{.OrderID}}{{end}}.</p>
<p>{{.Description}}</p>
<ul>{{range .Factors}}<li>{{.Kind}}: {{.Description}}</li>{{end}}</ul>`))
)

func render(alert *riskcontrol.FraudAlert) (string, string) {
	var titleBuf, contentBuf bytes.Buffer
	if err := titleTmpl.Execute(&titleBuf, alert); err != nil {
		return string(alert.Type), alert.Description
	}
	if err := contentTmpl.Execute(&contentBuf, alert); err != nil {
		return titleBuf.String(), alert.Description
	}
	return titleBuf.String(), contentBuf.String()
}

// Notify 为每个 webhook 与风控邮箱建立通知记录并立即投递一次
func (s *service) Notify(ctx context.Context, alert *riskcontrol.FraudAlert) error {
	body, err := json.Marshal(webhookPayload{
		Event:     EventAlertCreated,
		Alert:     alert,
		Timestamp: s.now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode alert: %w", err)
	}
	title, content := render(alert)

	var notifications []*Notification
	for _, url := range s.cfg.WebhookURLs {
		notifications = append(notifications, &Notification{
			AlertID: alert.ID,
			Type:    NotificationTypeFraudAlert,
			Channel: ChannelWebhook,
			Target:  url,
			Title:   title,
			Content: content,
			Data:    string(body),
			Status:  StatusPending,
		})
	}
	if s.cfg.FraudTeamEmail != "" {
		notifications = append(notifications, &Notification{
			AlertID: alert.ID,
			Type:    NotificationTypeFraudAlert,
			Channel: ChannelEmail,
			Target:  s.cfg.FraudTeamEmail,
			Title:   title,
			Content: content,
			Status:  StatusPending,
		})
	}

	var errs []error
	for _, n := range notifications {
		if err := s.repo.CreateNotification(ctx, n); err != nil {
			logger.Errorf("Failed to create notification for alert %s: %v", alert.ID, err)
			errs = append(errs, err)
			continue
		}
		if err := s.deliver(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// deliver 投递一次并回写状态
func (s *service) deliver(ctx context.Context, n *Notification) error {
	var sendErr error
	switch n.Channel {
	case ChannelWebhook:
		sendErr = s.SendWebhook(ctx, n.Target, []byte(n.Data))
	case ChannelEmail:
		sendErr = s.SendEmail(ctx, n.Target, n.Title, n.Content)
	default:
		sendErr = fmt.Errorf("unsupported channel %q", n.Channel)
	}

	if sendErr != nil {
		n.RetryCount++
		n.ErrorMsg = sendErr.Error()
		result := "retry"
		if n.RetryCount >= MaxRetries {
			n.Status = StatusFailed
			result = "failed"
		}
		metrics.NotificationsTotal.WithLabelValues(result).Inc()
		logger.Warnf("Notification %d via %s to %s failed (attempt %d): %v", n.ID, n.Channel, n.Target, n.RetryCount, sendErr)
	} else {
		now := s.now()
		n.Status = StatusSent
		n.SendAt = &now
		n.ErrorMsg = ""
		metrics.NotificationsTotal.WithLabelValues("sent").Inc()
	}

	if err := s.repo.UpdateNotification(ctx, n); err != nil {
		logger.Errorf("Failed to update notification %d: %v", n.ID, err)
	}
	return sendErr
}

// Sign 计算 webhook 签名: hex(HMAC-SHA256(secret, timestamp + "." + body))
func Sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify 校验 webhook 签名
func Verify(secret, timestamp string, body []byte, signature string) bool {
	expected := "sha256=" + Sign(secret, timestamp, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// SendWebhook 发送签名 webhook
func (s *service) SendWebhook(ctx context.Context, url string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	if s.cfg.WebhookSecret != "" {
		ts := strconv.FormatInt(s.now().Unix(), 10)
		req.Header.Set(HeaderTimestamp, ts)
		req.Header.Set(HeaderSignature, "sha256="+Sign(s.cfg.WebhookSecret, ts, payload))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook %s returned status %d", url, resp.StatusCode)
	}
	logger.Infof("Webhook sent to %s, status: %d", url, resp.StatusCode)
	return nil
}

// SendEmail 发送邮件
func (s *service) SendEmail(ctx context.Context, to, subject, content string) error {
	return s.email.Send(ctx, to, subject, content)
}

// GetAlertNotifications 获取告警的通知记录
func (s *service) GetAlertNotifications(ctx context.Context, alertID string) ([]*Notification, error) {
	return s.repo.ListByAlert(ctx, alertID)
}

// ProcessPendingNotifications 重试待发送的通知，返回本轮成功数
func (s *service) ProcessPendingNotifications(ctx context.Context) (int, error) {
	notifications, err := s.repo.ListPendingNotifications(ctx, 100)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, n := range notifications {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}
		if err := s.deliver(ctx, n); err == nil {
			sent++
		}
	}
	return sent, nil
}

// logSender 只写日志的邮件发送器
type logSender struct{}

func (logSender) Send(_ context.Context, to, subject, _ string) error {
	logger.WithFields(map[string]interface{}{
		"to":      to,
		"subject": subject,
	}).Info("Sending fraud alert email")
	return nil
}
