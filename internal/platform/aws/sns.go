package aws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/gatti/quote-cache/internal/platform/observability"
	"github.com/gatti/quote-cache/internal/platform/resilience"
)

// SNSClient wraps the AWS SNS client with retry and a circuit breaker so a
// broken notification path cannot stall its callers.
type SNSClient struct {
	client         *sns.Client
	circuitBreaker *resilience.CircuitBreaker
	retryConfig    resilience.RetryConfig
	logger         *observability.Logger
}

// SNSClientConfig holds SNS client configuration.
type SNSClientConfig struct {
	AWSConfig   aws.Config
	Logger      *observability.Logger
	RetryConfig *resilience.RetryConfig
}

// NewSNSClient creates a resilient SNS client.
func NewSNSClient(cfg SNSClientConfig) *SNSClient {
	retryConfig := resilience.DefaultRetryConfig()
	if cfg.RetryConfig != nil {
		retryConfig = *cfg.RetryConfig
	}

	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:             "sns",
		FailureThreshold: 5,
		SuccessThreshold: 2,
		ResetTimeout:     30 * time.Second,
		OnStateChange: func(from, to resilience.State) {
			if cfg.Logger != nil {
				cfg.Logger.Info("SNS circuit breaker state changed",
					"from", from.String(),
					"to", to.String(),
				)
			}
		},
	})

	return &SNSClient{
		client:         sns.NewFromConfig(cfg.AWSConfig),
		circuitBreaker: breaker,
		retryConfig:    retryConfig,
		logger:         cfg.Logger,
	}
}

// Publish publishes a message to the topic with retry and circuit breaking.
func (s *SNSClient) Publish(ctx context.Context, topicARN, message string, attributes map[string]string) error {
	var msgAttrs map[string]types.MessageAttributeValue
	if len(attributes) > 0 {
		msgAttrs = make(map[string]types.MessageAttributeValue, len(attributes))
		for k, v := range attributes {
			msgAttrs[k] = types.MessageAttributeValue{
				DataType:    aws.String("String"),
				StringValue: aws.String(v),
			}
		}
	}

	input := &sns.PublishInput{
		TopicArn:          aws.String(topicARN),
		Message:           aws.String(message),
		MessageAttributes: msgAttrs,
	}

	err := s.circuitBreaker.Execute(ctx, func(ctx context.Context) error {
		return resilience.Retry(ctx, s.retryConfig, func(ctx context.Context) error {
			_, err := s.client.Publish(ctx, input)
			return err
		})
	})
	if err != nil {
		return fmt.Errorf("SNS publish failed: %w", err)
	}

	return nil
}
