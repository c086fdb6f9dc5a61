package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/config"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/order"
)

// ObjectPutter is the part of the S3 client the archive needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Sink архивирует каждый заказ отдельным JSON-объектом. Только запись,
// админка отсюда не читает.
type S3Sink struct {
	client ObjectPutter
	bucket string
	region string
	now    func() time.Time
}

func NewS3Sink(ctx context.Context, cfg config.S3Config) (*S3Sink, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage: failed to load aws config: %w", err)
	}

	return NewS3SinkWithClient(s3.NewFromConfig(awsCfg), cfg.Bucket, cfg.Region), nil
}

func NewS3SinkWithClient(client ObjectPutter, bucket, region string) *S3Sink {
	return &S3Sink{
		client: client,
		bucket: bucket,
		region: region,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *S3Sink) Name() string {
	return "s3"
}

func (s *S3Sink) Put(ctx context.Context, o *order.Order) (string, error) {
	body, err := json.MarshalIndent(o, "", "  ")
	if err != nil {
		return "", fmt.Errorf("storage: failed to encode order %s: %w", o.OrderID, err)
	}

	key := ObjectKey(o.OrderID, s.now())
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"order-id":   o.OrderID,
			"order-date": o.CreatedAt.UTC().Format(isoMillis),
		},
	})
	if err != nil {
		return "", fmt.Errorf("storage: failed to put %s to bucket %s: %w", key, s.bucket, err)
	}

	return s.ObjectURL(key), nil
}

func (s *S3Sink) ObjectURL(key string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
}

const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// ObjectKey строит ключ вида orders/<orderId>/2024-05-01T12-00-00-000Z.json.
func ObjectKey(orderID string, at time.Time) string {
	stamp := strings.NewReplacer(":", "-", ".", "-").Replace(at.UTC().Format(isoMillis))
	return fmt.Sprintf("orders/%s/%s.json", orderID, stamp)
}
