// Package media stores account avatar images and derives default avatar URLs.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gabriel-vasile/mimetype"
)

// ErrUnsupportedImage is returned when an upload is not a recognised image
// format.
var ErrUnsupportedImage = errors.New("unsupported image format")

// ErrStoreDisabled is returned by NoopStore uploads.
var ErrStoreDisabled = errors.New("media store disabled")

var allowedImageTypes = map[string]struct{}{
	"image/png":  {},
	"image/jpeg": {},
	"image/gif":  {},
	"image/webp": {},
}

// Store persists uploaded avatar images and returns their public URL.
type Store interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader) (string, error)
	Enabled() bool
}

// DetectImageType sniffs the payload and returns its MIME type, rejecting
// anything that is not an allowed image format.
func DetectImageType(data []byte) (string, error) {
	detected := mimetype.Detect(data)
	if _, ok := allowedImageTypes[detected.String()]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedImage, detected.String())
	}
	return detected.String(), nil
}

// AvatarKey returns the object key used for an account's avatar. One key per
// account, so re-uploads replace the previous image.
func AvatarKey(accountID string) string {
	return "avatars/" + accountID
}

// S3Config describes the bucket avatars are written to. Endpoint is optional
// and supports S3-compatible stores such as MinIO.
type S3Config struct {
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	Endpoint  string
	PublicURL string
}

// S3Store uploads avatars to an S3 bucket.
type S3Store struct {
	client    *s3.Client
	bucket    string
	publicURL string
}

// NewS3Store builds a store from static credentials. When AccessKey is empty
// the default AWS credential chain is used.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("s3 bucket required")
	}
	awsConf, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	if cfg.AccessKey != "" {
		awsConf.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
	}
	client := s3.NewFromConfig(awsConf, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	publicURL := strings.TrimRight(cfg.PublicURL, "/")
	if publicURL == "" {
		publicURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
	}
	return &S3Store{client: client, bucket: cfg.Bucket, publicURL: publicURL}, nil
}

func (s *S3Store) Upload(ctx context.Context, key, contentType string, body io.Reader) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	return s.publicURL + "/" + key, nil
}

func (s *S3Store) Enabled() bool { return true }

// NoopStore rejects uploads. Used when no object storage is configured, so
// avatar uploads return a clear error instead of silently vanishing.
type NoopStore struct{}

func (NoopStore) Upload(context.Context, string, string, io.Reader) (string, error) {
	return "", ErrStoreDisabled
}

func (NoopStore) Enabled() bool { return false }
