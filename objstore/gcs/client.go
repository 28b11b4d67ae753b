// Package gcs implements objstore.Uploader on Google Cloud Storage.
package gcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/adcraftlabs/adcraft/objstore"
	"github.com/adcraftlabs/adcraft/resilience"
)

type Client struct {
	client *storage.Client
	bucket string
	prefix string
}

type Option func(*Client)

// WithPrefix namespaces all uploads under an object path prefix.
func WithPrefix(prefix string) Option {
	return func(c *Client) {
		c.prefix = strings.Trim(prefix, "/")
	}
}

func New(ctx context.Context, bucket string, credentialsFile string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("gcs bucket is required")
	}

	var clientOpts []option.ClientOption
	if credentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(credentialsFile))
	}
	sc, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gcs client: %w", err)
	}

	c := &Client{client: sc, bucket: bucket}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) Upload(ctx context.Context, name, mimeType string, data []byte) (objstore.ObjectRef, error) {
	if name == "" {
		return objstore.ObjectRef{}, fmt.Errorf("object name is required")
	}
	path := name
	if c.prefix != "" {
		path = c.prefix + "/" + name
	}

	obj := c.client.Bucket(c.bucket).Object(path)
	w := obj.NewWriter(ctx)
	w.ContentType = mimeType

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return objstore.ObjectRef{}, fmt.Errorf("failed to write object %s: %w", path, mapError(err))
	}
	if err := w.Close(); err != nil {
		return objstore.ObjectRef{}, fmt.Errorf("failed to finalize object %s: %w", path, mapError(err))
	}

	return objstore.ObjectRef{
		URL:      fmt.Sprintf("gs://%s/%s", c.bucket, path),
		Name:     path,
		Size:     int64(len(data)),
		MIMEType: mimeType,
		Stored:   true,
	}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// mapError translates GCS API failures into the typed boundary errors the
// resilience layer classifies on.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	switch apiErr.Code {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", resilience.ErrUnauthorized, apiErr.Message)
	case http.StatusForbidden:
		return fmt.Errorf("%w: %s", resilience.ErrForbidden, apiErr.Message)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", resilience.ErrNotFound, apiErr.Message)
	case http.StatusTooManyRequests:
		return fmt.Errorf("storage throttled: %w", &resilience.RateLimitError{})
	case http.StatusServiceUnavailable:
		return fmt.Errorf("%w: %s", resilience.ErrServiceUnavailable, apiErr.Message)
	case http.StatusInternalServerError:
		return fmt.Errorf("%w: %s", resilience.ErrInternal, apiErr.Message)
	}
	return err
}
