package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

// Compile-time check to ensure s3Store implements Store
var _ Store = (*s3Store)(nil)

type s3Store struct {
	client    *s3.Client
	presigner *s3.PresignClient
	bucket    string
	baseURL   string
	logger    *zap.Logger
}

// NewS3Store creates an S3-backed Store. endpoint переопределяет адрес
// API для S3-совместимых хранилищ (MinIO и т.п.).
func NewS3Store(ctx context.Context, bucket, region, endpoint, baseURL string, logger *zap.Logger) (Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	return &s3Store{
		client:    client,
		presigner: s3.NewPresignClient(client),
		bucket:    bucket,
		baseURL:   strings.TrimRight(baseURL, "/"),
		logger:    logger.Named("S3Store"),
	}, nil
}

func (s *s3Store) Save(ctx context.Context, data []byte, contentType string) (string, error) {
	ref := newRef(contentType)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(ref),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		s.logger.Error("Failed to put object", zap.Error(err), zap.String("ref", ref))
		return "", fmt.Errorf("s3 put object %s: %w", ref, err)
	}
	s.logger.Debug("Blob saved", zap.String("ref", ref), zap.Int("size", len(data)))
	return ref, nil
}

func (s *s3Store) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(ref),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 get object %s: %w", ref, err)
	}
	return result.Body, nil
}

func (s *s3Store) URL(ref string) string {
	if s.baseURL != "" {
		return s.baseURL + "/" + ref
	}
	return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", s.bucket, ref)
}

func (s *s3Store) Delete(ctx context.Context, ref string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(ref),
	})
	if err != nil {
		s.logger.Error("Failed to delete object", zap.Error(err), zap.String("ref", ref))
		return fmt.Errorf("s3 delete object %s: %w", ref, err)
	}
	return nil
}

// PresignUpload выдает временный URL для прямой загрузки клиентом.
// Используется пайплайном декорирования.
func (s *s3Store) PresignUpload(ctx context.Context, ref string, expires time.Duration) (string, error) {
	req, err := s.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(ref),
	}, s3.WithPresignExpires(expires))
	if err != nil {
		return "", fmt.Errorf("s3 presign upload %s: %w", ref, err)
	}
	return req.URL, nil
}
