// Package alert publishes operational events (circuit breaker transitions,
// warm-up summaries) to an SNS topic for on-call visibility.
package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gatti/quote-cache/internal/platform/aws"
	"github.com/gatti/quote-cache/internal/platform/observability"
)

// Notifier receives operational events. Implementations must not block the
// caller for long; callers fire events from hot paths.
type Notifier interface {
	// BreakerStateChanged reports a circuit breaker transition for a chain.
	BreakerStateChanged(chain, from, to string)

	// WarmupCompleted reports the outcome of startup cache warm-up.
	WarmupCompleted(pairs, failures int, took time.Duration)
}

// SNSNotifier publishes events to an SNS topic. Publishing is asynchronous;
// a failed publish is logged and dropped.
type SNSNotifier struct {
	client   *aws.SNSClient
	topicARN string
	service  string
	logger   *observability.Logger
}

// SNSNotifierConfig holds notifier configuration.
type SNSNotifierConfig struct {
	Client   *aws.SNSClient
	TopicARN string
	Service  string
	Logger   *observability.Logger
}

// NewSNSNotifier creates a notifier publishing to the configured topic.
func NewSNSNotifier(cfg SNSNotifierConfig) (*SNSNotifier, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("SNS client is required")
	}
	if cfg.TopicARN == "" {
		return nil, fmt.Errorf("SNS topic ARN is required")
	}

	return &SNSNotifier{
		client:   cfg.Client,
		topicARN: cfg.TopicARN,
		service:  cfg.Service,
		logger:   cfg.Logger,
	}, nil
}

type event struct {
	Service   string `json:"service"`
	Event     string `json:"event"`
	Chain     string `json:"chain,omitempty"`
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
	Pairs     int    `json:"pairs,omitempty"`
	Failures  int    `json:"failures,omitempty"`
	TookMs    int64  `json:"tookMs,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// BreakerStateChanged publishes a breaker transition event.
func (n *SNSNotifier) BreakerStateChanged(chain, from, to string) {
	n.publish(event{
		Service:   n.service,
		Event:     "circuit_breaker_state_changed",
		Chain:     chain,
		From:      from,
		To:        to,
		Timestamp: time.Now().UnixMilli(),
	}, map[string]string{
		"event": "circuit_breaker_state_changed",
		"chain": chain,
		"to":    to,
	})
}

// WarmupCompleted publishes a warm-up summary event.
func (n *SNSNotifier) WarmupCompleted(pairs, failures int, took time.Duration) {
	n.publish(event{
		Service:   n.service,
		Event:     "warmup_completed",
		Pairs:     pairs,
		Failures:  failures,
		TookMs:    took.Milliseconds(),
		Timestamp: time.Now().UnixMilli(),
	}, map[string]string{
		"event": "warmup_completed",
	})
}

func (n *SNSNotifier) publish(ev event, attrs map[string]string) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := n.client.Publish(ctx, n.topicARN, string(payload), attrs); err != nil {
			if n.logger != nil {
				n.logger.LogWarn(ctx, "failed to publish alert", "event", ev.Event, "error", err.Error())
			}
		}
	}()
}

// NoopNotifier discards all events. Used when alerting is disabled.
type NoopNotifier struct{}

// NewNoopNotifier returns a notifier that does nothing.
func NewNoopNotifier() *NoopNotifier { return &NoopNotifier{} }

func (*NoopNotifier) BreakerStateChanged(_, _, _ string)        {}
func (*NoopNotifier) WarmupCompleted(_, _ int, _ time.Duration) {}
