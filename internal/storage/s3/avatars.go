// Package s3 stores profile avatars in an S3-compatible bucket.
package s3

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gofrs/uuid/v5"
)

// Config describes the bucket.
type Config struct {
	Region        string
	Endpoint      string // custom endpoint (MinIO); empty means AWS
	AccessKey     string
	SecretKey     string
	Bucket        string
	PublicBaseURL string // base of public object URLs; derived from Endpoint when empty
}

type putObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// AvatarStore uploads avatars keyed by user id.
type AvatarStore struct {
	api     putObjectAPI
	bucket  string
	baseURL string
	now     func() time.Time
}

// New builds an AvatarStore from cfg.
func New(ctx context.Context, cfg Config) (*AvatarStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3: bucket is required")
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3: load config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newStore(client, cfg), nil
}

func newStore(api putObjectAPI, cfg Config) *AvatarStore {
	base := strings.TrimRight(cfg.PublicBaseURL, "/")
	if base == "" {
		if cfg.Endpoint != "" {
			base = strings.TrimRight(cfg.Endpoint, "/") + "/" + cfg.Bucket
		} else {
			base = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
		}
	}
	return &AvatarStore{api: api, bucket: cfg.Bucket, baseURL: base, now: time.Now}
}

// Key returns the object key of a user's avatar.
func Key(userID uuid.UUID) string { return "avatars/" + userID.String() }

// Upload stores body as the avatar of userID, replacing any previous one, and
// returns its public URL with a cache-busting parameter.
func (s *AvatarStore) Upload(ctx context.Context, userID uuid.UUID, contentType string, body io.Reader) (string, error) {
	key := Key(userID)
	in := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	if _, err := s.api.PutObject(ctx, in); err != nil {
		return "", fmt.Errorf("s3: put %s: %w", key, err)
	}
	return fmt.Sprintf("%s/%s?t=%d", s.baseURL, key, s.now().UnixMilli()), nil
}
