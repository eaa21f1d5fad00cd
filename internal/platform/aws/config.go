package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
)

// Config holds AWS client configuration.
type Config struct {
	Region   string
	Endpoint string // optional override, e.g. localstack
}

// LoadAWSConfig loads SDK configuration using the default credential chain
// (environment variables, shared credentials file, IAM roles).
func LoadAWSConfig(ctx context.Context, cfg Config) (aws.Config, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return aws.Config{}, err
	}
	if cfg.Endpoint != "" {
		awsCfg.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return awsCfg, nil
}
