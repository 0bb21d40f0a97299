// Package archive stores raw meal photos in S3, keyed by idempotency
// key. Archival is best-effort: the pipeline never fails a job over a
// missing archive copy.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectPutter is the slice of the S3 client the store uses.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Config holds configuration for the photo archive.
type Config struct {
	// Bucket is the S3 bucket name (required).
	Bucket string
	// Prefix is the key prefix within the bucket (optional).
	Prefix string
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("archive bucket is required")
	}
	return nil
}

// Store writes photo objects.
type Store struct {
	client ObjectPutter
	config Config

	now func() time.Time
}

// NewStore creates a photo archive over the given S3 client.
func NewStore(client ObjectPutter, cfg Config) (*Store, error) {
	if client == nil {
		return nil, errors.New("archive requires an s3 client")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Store{client: client, config: cfg, now: time.Now}, nil
}

// Store writes one photo under <prefix>/<yyyy>/<mm>/<dd>/<key>.jpg.
// The day partition keeps lifecycle rules and manual inspection sane.
func (s *Store) Store(ctx context.Context, key string, image []byte) error {
	day := s.now().UTC().Format("2006/01/02")
	objectKey := path.Join(s.config.Prefix, day, key+extension(image))

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.config.Bucket),
		Key:         aws.String(objectKey),
		Body:        bytes.NewReader(image),
		ContentType: aws.String(http.DetectContentType(image)),
	})
	if err != nil {
		return fmt.Errorf("archive put %s: %w", objectKey, err)
	}
	return nil
}

func extension(image []byte) string {
	if http.DetectContentType(image) == "image/png" {
		return ".png"
	}
	return ".jpg"
}
