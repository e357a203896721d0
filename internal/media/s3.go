package media

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"line2discord/internal/domain"
)

const BackendS3 = "s3"

// s3API is the subset of *s3.Client used by S3Store.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

type S3Config struct {
	Bucket        string
	Region        string
	Endpoint      string // non-empty enables path-style addressing (MinIO and similar)
	Prefix        string // key prefix, e.g. "line2discord/"
	PublicBaseURL string // where objects are readable, e.g. a CDN in front of the bucket
	MaxBytes      int64
	Index         *Index
	Logger        *slog.Logger
	Now           func() time.Time
}

// S3Store uploads media to an S3-compatible bucket. Links point at
// PublicBaseURL instead of the relay.
type S3Store struct {
	client     s3API
	bucket     string
	prefix     string
	publicBase string
	maxBytes   int64
	index      *Index
	logger     *slog.Logger
	now        func() time.Time
}

func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var s3opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3opts = append(s3opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}
	return newS3Store(s3.NewFromConfig(awsCfg, s3opts...), cfg), nil
}

func newS3Store(client s3API, cfg S3Config) *S3Store {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &S3Store{
		client:     client,
		bucket:     cfg.Bucket,
		prefix:     strings.Trim(cfg.Prefix, "/"),
		publicBase: strings.TrimRight(cfg.PublicBaseURL, "/"),
		maxBytes:   cfg.MaxBytes,
		index:      cfg.Index,
		logger:     cfg.Logger,
		now:        cfg.Now,
	}
}

func (s *S3Store) PublicBase() string { return s.publicBase }

// key maps a relative path ("/images/x.jpg") to an object key.
func (s *S3Store) key(relativePath string) string {
	return path.Join(s.prefix, strings.TrimPrefix(relativePath, "/"))
}

func (s *S3Store) Save(ctx context.Context, kind domain.MessageKind, originalName, contentType string, data []byte) (*domain.StoredMedia, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty content", domain.ErrStorage)
	}
	if s.maxBytes > 0 && int64(len(data)) > s.maxBytes {
		return nil, fmt.Errorf("%w: file too large: %d bytes (max: %d)", domain.ErrStorage, len(data), s.maxBytes)
	}

	now := s.now()
	name := NewName(kind, originalName, now)
	rel := RelativePath(kind, name)
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(rel)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: s3 put object: %v", domain.ErrStorage, err)
	}

	m := &domain.StoredMedia{
		ID:           uuid.NewString(),
		Name:         name,
		Kind:         kind,
		Size:         int64(len(data)),
		ContentType:  contentType,
		RelativePath: rel,
		Backend:      BackendS3,
		CreatedAt:    now,
	}
	if s.index != nil {
		if err := s.index.Record(ctx, *m); err != nil {
			s.logger.Warn("failed to record media in index", "name", name, "err", err)
		}
	}

	s.logger.Info("media uploaded", "bucket", s.bucket, "key", s.key(rel), "size", m.Size)
	return m, nil
}

func (s *S3Store) Delete(ctx context.Context, m domain.StoredMedia) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(m.RelativePath)),
	})
	if err != nil {
		return fmt.Errorf("%w: s3 delete object: %v", domain.ErrStorage, err)
	}
	return nil
}

// CheckWritable verifies the bucket is reachable with the current credentials.
func (s *S3Store) CheckWritable(ctx context.Context) error {
	if _, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)}); err != nil {
		return fmt.Errorf("%w: bucket %s: %v", domain.ErrStorage, s.bucket, err)
	}
	return nil
}
