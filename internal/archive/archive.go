// Package archive stores sealed license exports in S3-compatible object
// storage.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ErrDisabled is returned when no bucket or credentials are configured.
var ErrDisabled = errors.New("archive storage not configured")

// s3Client is the subset of the S3 API the archive uses.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Config holds S3-compatible storage settings. Endpoint is optional and
// selects a non-AWS provider.
type Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
}

func (c Config) enabled() bool {
	return c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

type Archiver struct {
	client s3Client
	bucket string
	now    func() time.Time
}

// New returns an Archiver. Every call on it fails with ErrDisabled when cfg
// lacks a bucket or credentials.
func New(cfg Config) *Archiver {
	a := &Archiver{bucket: cfg.Bucket, now: time.Now}
	if cfg.enabled() {
		a.client = newS3Client(cfg)
	}
	return a
}

func newS3Client(cfg Config) *s3.Client {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	opts := s3.Options{
		Region:       region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

func (a *Archiver) Enabled() bool {
	return a.client != nil
}

// ObjectKey names an export for developerID. Exports are grouped by
// developer and stamped with the UTC time of the upload.
func (a *Archiver) ObjectKey(developerID, format string) string {
	stamp := a.now().UTC().Format("20060102T150405Z")
	return path.Join(developerID, fmt.Sprintf("licenses-%s.%s.sealed", stamp, format))
}

// Put uploads a sealed export and returns its object key.
func (a *Archiver) Put(ctx context.Context, developerID, format string, sealed []byte) (string, error) {
	if a.client == nil {
		return "", ErrDisabled
	}
	if strings.TrimSpace(developerID) == "" {
		return "", errors.New("developer id is required")
	}

	key := a.ObjectKey(developerID, format)
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(sealed),
		ContentLength: aws.Int64(int64(len(sealed))),
		ContentType:   aws.String("application/octet-stream"),
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return key, nil
}

// Get downloads the object stored under key.
func (a *Archiver) Get(ctx context.Context, key string) ([]byte, error) {
	if a.client == nil {
		return nil, ErrDisabled
	}
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

func (a *Archiver) Delete(ctx context.Context, key string) error {
	if a.client == nil {
		return ErrDisabled
	}
	if _, err := a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}
