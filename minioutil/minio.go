package minioutil

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config describes s3-compatible storage
type Config struct {
	Access   string
	Secret   string
	Bucket   string
	Endpoint string
	Region   string
	// if true, talk http instead of https (e.g. local minio)
	Insecure     bool
	RequestTrace io.Writer
}

// Validate returns an error if a required field is missing
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("must provide config")
	}
	var missing []string
	if c.Access == "" {
		missing = append(missing, "access")
	}
	if c.Secret == "" {
		missing = append(missing, "secret")
	}
	if c.Bucket == "" {
		missing = append(missing, "bucket")
	}
	if c.Endpoint == "" {
		missing = append(missing, "endpoint")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing s3 config fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

type Client struct {
	Client *minio.Client
	Bucket string
}

// New creates a client and verifies that the bucket exists
func New(ctx context.Context, config *Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	c := config
	mc, err := minio.New(c.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(c.Access, c.Secret, ""),
		Region: c.Region,
		Secure: !c.Insecure,
	})
	if err != nil {
		return nil, err
	}
	if c.RequestTrace != nil {
		mc.TraceOn(c.RequestTrace)
	}
	found, err := mc.BucketExists(ctx, c.Bucket)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("bucket '%s' doesn't exist", c.Bucket)
	}
	return &Client{
		Client: mc,
		Bucket: c.Bucket,
	}, nil
}

// ContentTypeForPath returns content type based on file extension,
// looking through compression extensions (foo.json.br => application/json)
func ContentTypeForPath(remotePath string) (contentType string, encoding string) {
	ext := strings.ToLower(filepath.Ext(remotePath))
	switch ext {
	case ".br":
		encoding = "br"
	case ".zstd", ".zst":
		encoding = "zstd"
	}
	if encoding != "" {
		remotePath = strings.TrimSuffix(remotePath, filepath.Ext(remotePath))
		ext = strings.ToLower(filepath.Ext(remotePath))
	}
	contentType = mime.TypeByExtension(ext)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return contentType, encoding
}

func (c *Client) UploadData(ctx context.Context, remotePath string, data []byte) (minio.UploadInfo, error) {
	contentType, encoding := ContentTypeForPath(remotePath)
	opts := minio.PutObjectOptions{
		ContentType:     contentType,
		ContentEncoding: encoding,
	}
	r := bytes.NewReader(data)
	return c.Client.PutObject(ctx, c.Bucket, remotePath, r, int64(len(data)), opts)
}

func (c *Client) DownloadData(ctx context.Context, remotePath string) ([]byte, error) {
	obj, err := c.Client.GetObject(ctx, c.Bucket, remotePath, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	return io.ReadAll(obj)
}

// ListObjects returns keys of objects with a given prefix
func (c *Client) ListObjects(ctx context.Context, prefix string) ([]string, error) {
	opts := minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}
	var res []string
	for obj := range c.Client.ListObjects(ctx, c.Bucket, opts) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		res = append(res, obj.Key)
	}
	return res, nil
}

func (c *Client) Remove(ctx context.Context, remotePath string) error {
	return c.Client.RemoveObject(ctx, c.Bucket, remotePath, minio.RemoveObjectOptions{})
}
