// Package s3 implements the blob uploader over S3-compatible object storage
// using the aws-sdk-go-v2 upload manager. Uploaded objects are publicly
// readable under a configured base URL.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/huminex/t4chat/runtime/chat/tools"
)

// Options configures the uploader.
type Options struct {
	// Client is the S3 API client. Required.
	Client manager.UploadAPIClient
	// Bucket receives the uploaded objects. Required.
	Bucket string
	// Prefix is prepended to object keys.
	Prefix string
	// PublicBaseURL is the base under which uploaded objects are reachable,
	// e.g. a CDN origin. Required.
	PublicBaseURL string
}

// Uploader implements tools.Uploader over S3.
type Uploader struct {
	up      *manager.Uploader
	bucket  string
	prefix  string
	baseURL string
}

var _ tools.Uploader = (*Uploader)(nil)

// New builds an Uploader from the provided options.
func New(opts Options) (*Uploader, error) {
	if opts.Client == nil {
		return nil, errors.New("s3 client is required")
	}
	if opts.Bucket == "" {
		return nil, errors.New("bucket is required")
	}
	if opts.PublicBaseURL == "" {
		return nil, errors.New("public base url is required")
	}
	return &Uploader{
		up:      manager.NewUploader(opts.Client),
		bucket:  opts.Bucket,
		prefix:  strings.Trim(opts.Prefix, "/"),
		baseURL: strings.TrimRight(opts.PublicBaseURL, "/"),
	}, nil
}

// Connect loads the default AWS configuration and builds an Uploader.
func Connect(ctx context.Context, bucket, prefix, publicBaseURL string) (*Uploader, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return New(Options{
		Client:        awss3.NewFromConfig(cfg),
		Bucket:        bucket,
		Prefix:        prefix,
		PublicBaseURL: publicBaseURL,
	})
}

// Upload stores data under filename and returns the public URL.
func (u *Uploader) Upload(ctx context.Context, filename string, data []byte, contentType string) (string, error) {
	key := filename
	if u.prefix != "" {
		key = u.prefix + "/" + filename
	}
	_, err := u.up.Upload(ctx, &awss3.PutObjectInput{
		Bucket:      &u.bucket,
		Key:         &key,
		Body:        bytes.NewReader(data),
		ContentType: &contentType,
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return u.baseURL + "/" + key, nil
}
