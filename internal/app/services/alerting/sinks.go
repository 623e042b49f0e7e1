package alerting

import (
	"context"

	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/domain/alert"
	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/domain/dq"
	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/httputil"
	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/pkg/logger"
)

// Sink delivers an alert to a notification channel.
type Sink interface {
	Name() string
	Send(ctx context.Context, a alert.Alert, rule dq.Rule) error
}

// LogSink writes alerts to the application log.
type LogSink struct {
	log *logger.Logger
}

func NewLogSink(log *logger.Logger) *LogSink {
	if log == nil {
		log = logger.NewDefault("alerts")
	}
	return &LogSink{log: log}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Send(_ context.Context, a alert.Alert, rule dq.Rule) error {
	s.log.WithFields(map[string]interface{}{
		"alert_id": a.ID,
		"rule":     rule.Name,
		"dataset":  rule.Dataset,
		"severity": string(a.Severity),
	}).Warn(a.Message)
	return nil
}

// WebhookSink POSTs alerts to a configured endpoint.
type WebhookSink struct {
	client *httputil.Client
	path   string
}

// NewWebhookSink creates a sink delivering to url. The URL is split into the
// client base and request path by the caller's configuration.
func NewWebhookSink(client *httputil.Client, path string) *WebhookSink {
	return &WebhookSink{client: client, path: path}
}

func (s *WebhookSink) Name() string { return "webhook" }

type webhookPayload struct {
	AlertID  string            `json:"alert_id"`
	RuleID   string            `json:"rule_id"`
	RuleName string            `json:"rule_name"`
	Dataset  string            `json:"dataset"`
	Check    string            `json:"check"`
	RunID    string            `json:"run_id"`
	Severity string            `json:"severity"`
	Message  string            `json:"message"`
	Params   map[string]string `json:"params,omitempty"`
}

func (s *WebhookSink) Send(ctx context.Context, a alert.Alert, rule dq.Rule) error {
	resp, err := s.client.Post(ctx, s.path, webhookPayload{
		AlertID:  a.ID,
		RuleID:   rule.ID,
		RuleName: rule.Name,
		Dataset:  rule.Dataset,
		Check:    string(rule.Check),
		RunID:    a.RunID,
		Severity: string(a.Severity),
		Message:  a.Message,
		Params:   rule.Params,
	})
	if err != nil {
		return err
	}
	return httputil.DecodeResponse(resp, nil)
}
