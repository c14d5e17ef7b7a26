package assets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	cftypes "github.com/aws/aws-sdk-go-v2/service/cloudfront/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/storegen/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// Publisher ships optimized variants and deployable files to the
// content-distribution target and returns their public URLs.
type Publisher interface {
	// Publish uploads one immutable, content-addressed payload and
	// returns its public URL.
	Publish(ctx context.Context, key string, payload []byte, contentType string) (string, error)

	// PublishMutable uploads a payload under a stable key that later
	// deploys rewrite in place, with caching headers to match.
	PublishMutable(ctx context.Context, key string, payload []byte, contentType string) (string, error)

	// Invalidate purges downstream CDN caches for a key prefix.
	Invalidate(ctx context.Context, prefix string) error
}

// Ensure S3Publisher implements Publisher
var _ Publisher = (*S3Publisher)(nil)

// S3Publisher publishes variants to any S3-compatible object store
// fronted by a CDN.
type S3Publisher struct {
	client         *s3.Client
	cdn            *cloudfront.Client
	distributionID string
	bucket         string
	baseURL        string
	logger         *zap.Logger
}

// S3PublisherOption is a functional option for configuring S3Publisher
type S3PublisherOption func(*S3Publisher)

// WithPublisherLogger sets a custom logger for S3Publisher
func WithPublisherLogger(logger *zap.Logger) S3PublisherOption {
	return func(p *S3Publisher) {
		p.logger = logger
	}
}

// NewS3Publisher creates a publisher from configuration. It is
// compatible with any S3-compatible storage (AWS S3, MinIO, RustFS).
func NewS3Publisher(cfg *config.CDNConfig, opts ...S3PublisherOption) (*S3Publisher, error) {
	if cfg == nil {
		return nil, errors.New("cdn configuration is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("cdn bucket is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, errors.New("cdn credentials are required")
	}

	endpoint := cfg.Endpoint
	if endpoint != "" && !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "https://" + endpoint
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	baseURL := strings.TrimSuffix(cfg.PublicBaseURL, "/")
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
	}

	p := &S3Publisher{
		client:         client,
		distributionID: cfg.DistributionID,
		bucket:         cfg.Bucket,
		baseURL:        baseURL,
		logger:         zap.NewNop(),
	}
	if cfg.DistributionID != "" {
		p.cdn = cloudfront.NewFromConfig(awsCfg)
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Publish uploads the payload under the given key. Keys are content
// hashes, so re-publishing an existing key writes an equivalent value;
// the race between concurrent jobs is harmless.
func (p *S3Publisher) Publish(ctx context.Context, key string, payload []byte, contentType string) (string, error) {
	return p.put(ctx, key, payload, contentType, "public, max-age=31536000, immutable")
}

// PublishMutable uploads the payload under a stable key that later
// deploys rewrite, so caches must revalidate it.
func (p *S3Publisher) PublishMutable(ctx context.Context, key string, payload []byte, contentType string) (string, error) {
	return p.put(ctx, key, payload, contentType, "public, max-age=60, must-revalidate")
}

func (p *S3Publisher) put(ctx context.Context, key string, payload []byte, contentType, cacheControl string) (string, error) {
	_, err := p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(p.bucket),
		Key:          aws.String(key),
		Body:         bytes.NewReader(payload),
		ContentType:  aws.String(contentType),
		CacheControl: aws.String(cacheControl),
	})
	if err != nil {
		return "", fmt.Errorf("publishing %s: %w", key, err)
	}
	return p.baseURL + "/" + key, nil
}

// Invalidate purges the CDN cache for a key prefix. Without a
// configured distribution the bucket endpoint serves directly and there
// is no cache ahead of it to purge.
func (p *S3Publisher) Invalidate(ctx context.Context, prefix string) error {
	if p.cdn == nil {
		return nil
	}
	path := "/" + strings.Trim(prefix, "/") + "/*"
	_, err := p.cdn.CreateInvalidation(ctx, &cloudfront.CreateInvalidationInput{
		DistributionId: aws.String(p.distributionID),
		InvalidationBatch: &cftypes.InvalidationBatch{
			CallerReference: aws.String(fmt.Sprintf("storegen-%d", time.Now().UnixNano())),
			Paths: &cftypes.Paths{
				Quantity: aws.Int32(1),
				Items:    []string{path},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("invalidating %s: %w", path, err)
	}
	p.logger.Info("CDN invalidation created",
		zap.String("distribution", p.distributionID),
		zap.String("path", path),
	)
	return nil
}
