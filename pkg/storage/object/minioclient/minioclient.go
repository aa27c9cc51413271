// Package minioclient adapts minio-go to object.Client for S3-compatible
// services (MinIO, Ceph RGW, Garage, ...).
package minioclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/marmos91/dittodav/internal/logger"
	"github.com/marmos91/dittodav/pkg/storage/object"
)

// Type is the configuration name of MinIO mounts.
const Type = "minio"

// Config holds the connection settings of a MinIO mount.
type Config struct {
	Endpoint        string `mapstructure:"endpoint" validate:"required,hostname_port" json:"endpoint"`
	Bucket          string `mapstructure:"bucket" validate:"required" json:"bucket"`
	Root            string `mapstructure:"root" json:"root,omitempty"`
	Region          string `mapstructure:"region" json:"region,omitempty"`
	AccessKeyID     string `mapstructure:"access_key_id" json:"access_key_id,omitempty"`
	SecretAccessKey string `mapstructure:"secret_access_key" json:"secret_access_key,omitempty"`
	UseSSL          bool   `mapstructure:"use_ssl" json:"use_ssl,omitempty"`
}

// Client implements object.Client over a minio-go client.
type Client struct {
	client *minio.Client
	bucket string
}

var _ object.Client = (*Client)(nil)

// New connects to the endpoint described by cfg. No request is made until
// the first operation.
func New(cfg Config) (*Client, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("minio client: bucket is required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure:       cfg.UseSSL,
		Region:       cfg.Region,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	logger.Info("MinIO client initialized: endpoint=%s bucket=%s ssl=%v", cfg.Endpoint, cfg.Bucket, cfg.UseSSL)

	return &Client{client: client, bucket: cfg.Bucket}, nil
}

// List implements object.Client. minio-go streams listings over a
// channel, so the page is cut after maxKeys objects and the last key seen
// becomes the continuation token (StartAfter of the next call).
func (c *Client) List(ctx context.Context, prefix, token string, maxKeys int) (*object.ListPage, error) {
	listCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	objects := c.client.ListObjects(listCtx, c.bucket, minio.ListObjectsOptions{
		Prefix:     prefix,
		Recursive:  true,
		StartAfter: token,
		MaxKeys:    maxKeys,
	})

	page := &object.ListPage{}
	for info := range objects {
		if info.Err != nil {
			return nil, fmt.Errorf("list %q: %w", prefix, info.Err)
		}
		if len(page.Objects) == maxKeys {
			page.NextToken = page.Objects[len(page.Objects)-1].Key
			break
		}
		page.Objects = append(page.Objects, toObject(info))
	}

	return page, nil
}

// Head implements object.Client.
func (c *Client) Head(ctx context.Context, key string) (*object.Object, error) {
	info, err := c.client.StatObject(ctx, c.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return nil, mapError("head", key, err)
	}
	obj := toObject(info)
	return &obj, nil
}

// Get implements object.Client. minio-go opens objects lazily, so the
// object is stat'ed first to surface a missing key here rather than on the
// first Read.
func (c *Client) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := c.client.GetObject(ctx, c.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, mapError("get", key, err)
	}
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, mapError("get", key, err)
	}
	return obj, nil
}

// Put implements object.Client.
func (c *Client) Put(ctx context.Context, key string, body []byte, contentType string) error {
	_, err := c.client.PutObject(ctx, c.bucket, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// Copy implements object.Client.
func (c *Client) Copy(ctx context.Context, src, dst, contentType string) error {
	dest := minio.CopyDestOptions{Bucket: c.bucket, Object: dst}
	if contentType != "" {
		dest.ReplaceMetadata = true
		dest.UserMetadata = map[string]string{"Content-Type": contentType}
	}

	_, err := c.client.CopyObject(ctx, dest, minio.CopySrcOptions{Bucket: c.bucket, Object: src})
	if err != nil {
		return mapError("copy", src, err)
	}
	return nil
}

// Delete implements object.Client.
func (c *Client) Delete(ctx context.Context, key string) error {
	if err := c.client.RemoveObject(ctx, c.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return mapError("delete", key, err)
	}
	return nil
}

func toObject(info minio.ObjectInfo) object.Object {
	return object.Object{
		Key:          info.Key,
		Size:         info.Size,
		LastModified: info.LastModified,
		ContentType:  info.ContentType,
	}
}

func mapError(op, key string, err error) error {
	if isNotFound(err) {
		return fmt.Errorf("%s %s: %w", op, key, object.ErrObjectNotFound)
	}
	return fmt.Errorf("%s %s: %w", op, key, err)
}

func isNotFound(err error) bool {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NotFound":
		return true
	default:
		return false
	}
}
