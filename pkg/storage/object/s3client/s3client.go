// Package s3client adapts the AWS SDK v2 S3 client to object.Client.
package s3client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/marmos91/dittodav/internal/logger"
	"github.com/marmos91/dittodav/pkg/storage/object"
)

// Type is the configuration name of S3 mounts.
const Type = "s3"

const defaultMaxRetries = 10

// Config holds the S3 connection settings of a mount.
type Config struct {
	Bucket          string `mapstructure:"bucket" validate:"required" json:"bucket"`
	Root            string `mapstructure:"root" json:"root,omitempty"`
	Region          string `mapstructure:"region" validate:"required" json:"region"`
	Endpoint        string `mapstructure:"endpoint" validate:"omitempty,url" json:"endpoint,omitempty"`
	AccessKeyID     string `mapstructure:"access_key_id" json:"access_key_id,omitempty"`
	SecretAccessKey string `mapstructure:"secret_access_key" json:"secret_access_key,omitempty"`
	UsePathStyle    bool   `mapstructure:"use_path_style" json:"use_path_style,omitempty"`
	MaxRetries      int    `mapstructure:"max_retries" validate:"gte=0" json:"max_retries,omitempty"`
}

// API is the subset of *s3.Client used here.
type API interface {
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	CopyObject(ctx context.Context, in *s3.CopyObjectInput, opts ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Client implements object.Client for one bucket.
type Client struct {
	api    API
	bucket string
}

var _ object.Client = (*Client)(nil)

// New wraps an existing S3 API client.
func New(api API, bucket string) *Client {
	return &Client{api: api, bucket: bucket}
}

// NewFromConfig builds the AWS configuration and the S3 client.
//
// Static credentials are used when both keys are set, otherwise the default
// credential chain applies. A custom endpoint (MinIO, Localstack) forces
// path-style addressing.
func NewFromConfig(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 client: bucket is required")
	}

	// ========================================================================
	// Step 1: Build AWS config
	// ========================================================================

	var configOptions []func(*awsConfig.LoadOptions) error

	if cfg.Region != "" {
		configOptions = append(configOptions, awsConfig.WithRegion(cfg.Region))
	}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		credProvider := credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(credProvider))
	}

	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = defaultMaxRetries
	}
	configOptions = append(configOptions, awsConfig.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = maxRetries
		})
	}))

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// ========================================================================
	// Step 2: Create S3 client
	// ========================================================================

	api := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
		if cfg.UsePathStyle {
			o.UsePathStyle = true
		}
	})

	logger.Info("S3 client initialized: bucket=%s region=%s endpoint=%s", cfg.Bucket, cfg.Region, cfg.Endpoint)

	return New(api, cfg.Bucket), nil
}

// List implements object.Client.
func (c *Client) List(ctx context.Context, prefix, token string, maxKeys int) (*object.ListPage, error) {
	input := &s3.ListObjectsV2Input{
		Bucket:  aws.String(c.bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int32(int32(maxKeys)),
	}
	if token != "" {
		input.ContinuationToken = aws.String(token)
	}

	out, err := c.api.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("list %q: %w", prefix, err)
	}

	page := &object.ListPage{Objects: make([]object.Object, 0, len(out.Contents))}
	for _, item := range out.Contents {
		page.Objects = append(page.Objects, object.Object{
			Key:          aws.ToString(item.Key),
			Size:         aws.ToInt64(item.Size),
			LastModified: aws.ToTime(item.LastModified),
		})
	}
	if aws.ToBool(out.IsTruncated) {
		page.NextToken = aws.ToString(out.NextContinuationToken)
	}

	return page, nil
}

// Head implements object.Client.
func (c *Client) Head(ctx context.Context, key string) (*object.Object, error) {
	out, err := c.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, mapError("head", key, err)
	}

	return &object.Object{
		Key:          key,
		Size:         aws.ToInt64(out.ContentLength),
		LastModified: aws.ToTime(out.LastModified),
		ContentType:  aws.ToString(out.ContentType),
	}, nil
}

// Get implements object.Client.
func (c *Client) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, mapError("get", key, err)
	}
	return out.Body, nil
}

// Put implements object.Client.
func (c *Client) Put(ctx context.Context, key string, body []byte, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := c.api.PutObject(ctx, input); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// Copy implements object.Client. With a content type the metadata is
// replaced, otherwise it is copied from the source.
func (c *Client) Copy(ctx context.Context, src, dst, contentType string) error {
	input := &s3.CopyObjectInput{
		Bucket:            aws.String(c.bucket),
		Key:               aws.String(dst),
		CopySource:        aws.String(copySource(c.bucket, src)),
		MetadataDirective: types.MetadataDirectiveCopy,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
		input.MetadataDirective = types.MetadataDirectiveReplace
	}

	if _, err := c.api.CopyObject(ctx, input); err != nil {
		return mapError("copy", src, err)
	}
	return nil
}

// Delete implements object.Client.
func (c *Client) Delete(ctx context.Context, key string) error {
	_, err := c.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return mapError("delete", key, err)
	}
	return nil
}

// copySource renders "bucket/key" with every key segment URL-encoded.
func copySource(bucket, key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return bucket + "/" + strings.Join(segments, "/")
}

// mapError translates S3 missing-key errors into object.ErrObjectNotFound.
// GetObject reports NoSuchKey while HeadObject, which has no body, reports
// NotFound.
func mapError(op, key string, err error) error {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return fmt.Errorf("%s %s: %w", op, key, object.ErrObjectNotFound)
	}
	return fmt.Errorf("%s %s: %w", op, key, err)
}
