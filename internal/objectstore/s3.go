package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/splicevod/splicevod/internal/apperr"
)

// S3Config configures the S3 (or S3-compatible) backend.
type S3Config struct {
	Region          string
	Endpoint        string // set for MinIO/other S3-compatible endpoints
	AccessKeyID     string
	SecretAccessKey string
}

// S3Store is a Store backed by an S3-compatible object store, using
// byte-range GETs so the assembler never reads more of an asset than
// the exact sample range it needs.
type S3Store struct {
	client *s3.Client
}

func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	var awsCfg aws.Config
	var err error

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		awsCfg, err = config.LoadDefaultConfig(ctx,
			config.WithRegion(cfg.Region),
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
		)
	} else {
		awsCfg, err = config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	}
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	opts := []func(*s3.Options){
		func(o *s3.Options) { o.UsePathStyle = true },
	}
	if cfg.Endpoint != "" {
		opts = append(opts, func(o *s3.Options) { o.BaseEndpoint = aws.String(cfg.Endpoint) })
	}

	return &S3Store{client: s3.NewFromConfig(awsCfg, opts...)}, nil
}

// Read issues a single ranged GetObject so the backing read is exactly
// [offset, offset+length), matching the assembler's byte-range
// tightness property. length < 0 reads to end of object (used for
// metadata blobs, whose size isn't known ahead of time).
func (s *S3Store) Read(ctx context.Context, bucket, key string, offset, length int64) ([]byte, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	if length >= 0 {
		input.Range = aws.String(fmt.Sprintf("bytes=%d-%d", offset, offset+length-1))
	} else if offset > 0 {
		input.Range = aws.String(fmt.Sprintf("bytes=%d-", offset))
	}

	result, err := s.client.GetObject(ctx, input)
	if err != nil {
		if isNotFoundError(err) {
			return nil, wrapNotFound(bucket, key)
		}
		return nil, apperr.Wrap(apperr.KindStoreTransient, "S3 GetObject failed", err)
	}
	defer result.Body.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, result.Body); err != nil {
		return nil, apperr.Wrap(apperr.KindStoreTransient, "reading S3 object body", err)
	}
	return buf.Bytes(), nil
}

func (s *S3Store) Write(ctx context.Context, bucket, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return apperr.Wrap(apperr.KindStoreTransient, "S3 PutObject failed", err)
	}
	return nil
}

func isNotFoundError(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NoSuchKey" || code == "NotFound"
	}
	return false
}
