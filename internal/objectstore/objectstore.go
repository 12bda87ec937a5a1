// Package objectstore is the S3-compatible blob store spec §6 describes
// as "put(path, bytes) -> etag, get(path) -> bytes" — used to persist
// rendered invoice PDFs. Grounded on
// vidinfra-flexprice/internal/s3/service.go's aws-sdk-go-v2 usage, trimmed
// to the two operations the spec actually names (the teacher's
// presigned-URL/per-document-type bucket routing is an API-layer concern
// this core doesn't own).
package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/meteroid-oss/meteroid-sub006/internal/ierr"
)

// Store is the capability trait core code depends on.
type Store interface {
	Put(ctx context.Context, path string, data []byte, contentType string) (etag string, err error)
	Get(ctx context.Context, path string) ([]byte, error)
}

// S3Store implements Store against an S3-compatible bucket.
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// New builds an S3Store, loading AWS credentials/region the standard way
// (env, shared config, IAM role) per aws-sdk-go-v2's default chain.
func New(ctx context.Context, region, bucket, prefix string) (*S3Store, error) {
	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, awsConfig.WithRegion(region))
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("loading aws config").Mark(ierr.ErrInitialization)
	}
	return &S3Store{client: s3.NewFromConfig(awsCfg), bucket: bucket, prefix: prefix}, nil
}

func (s *S3Store) key(path string) string {
	if s.prefix == "" {
		return path
	}
	return s.prefix + "/" + path
}

func (s *S3Store) Put(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	key := s.key(path)
	out, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", ierr.WithError(err).WithMessage(fmt.Sprintf("putting object bucket=%s key=%s", s.bucket, key)).Mark(ierr.ErrSystem)
	}
	return aws.ToString(out.ETag), nil
}

func (s *S3Store) Get(ctx context.Context, path string) ([]byte, error) {
	key := s.key(path)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, ierr.WithError(err).WithMessage(fmt.Sprintf("getting object bucket=%s key=%s", s.bucket, key)).Mark(ierr.ErrSystem)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}
