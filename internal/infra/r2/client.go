// Package r2 mirrors conversion artifacts to a Cloudflare R2 bucket.
package r2

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// deleteBatch is the DeleteObjects per-request key limit.
const deleteBatch = 1000

var contentTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".mp4":  "video/mp4",
	".webm": "video/webm",
}

// Config holds the bucket credentials.
type Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	// PublicURL, when set, is a public bucket domain used instead of
	// presigned links.
	PublicURL string
}

// Enabled reports whether enough is set to create a client.
func (c *Config) Enabled() bool {
	return c != nil && c.AccountID != "" && c.AccessKeyID != "" && c.SecretAccessKey != "" && c.BucketName != ""
}

func (c *Config) endpoint() string {
	return "https://" + c.AccountID + ".r2.cloudflarestorage.com"
}

// objectAPI is the part of the S3 API the mirror touches.
type objectAPI interface {
	s3.ListObjectsV2APIClient
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, opts ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// Client stores artifacts under per-job keys and hands out links to them.
type Client struct {
	api       objectAPI
	presigner *s3.PresignClient
	bucket    *string
	publicURL string
	now       func() time.Time
}

// NewClient connects to the bucket described by cfg.
func NewClient(ctx context.Context, cfg *Config) (*Client, error) {
	if !cfg.Enabled() {
		return nil, errors.New("r2: account, credentials and bucket are required")
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion("auto"),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("r2: load sdk config: %w", err)
	}

	endpoint := cfg.endpoint()
	api := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})

	slog.Info("Artifact mirror ready", "bucket", cfg.BucketName, "public", cfg.PublicURL != "")

	return &Client{
		api:       api,
		presigner: s3.NewPresignClient(api),
		bucket:    aws.String(cfg.BucketName),
		publicURL: strings.TrimRight(cfg.PublicURL, "/"),
		now:       time.Now,
	}, nil
}

// Upload copies the artifact at filePath to key. Browsers following the
// link save it as displayName.
func (c *Client) Upload(ctx context.Context, filePath, key, displayName string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("r2: open artifact: %w", err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return fmt.Errorf("r2: stat artifact: %w", err)
	}

	ctype := contentType(filePath)
	started := c.now()
	if _, err := c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:             c.bucket,
		Key:                aws.String(key),
		Body:               f,
		ContentLength:      aws.Int64(st.Size()),
		ContentType:        aws.String(ctype),
		ContentDisposition: aws.String(ContentDisposition(displayName)),
		CacheControl:       aws.String("private, no-store"),
	}); err != nil {
		return fmt.Errorf("r2: put %s: %w", key, err)
	}

	slog.Info("Artifact mirrored",
		"key", key,
		"bytes", st.Size(),
		"content_type", ctype,
		"took", c.now().Sub(started),
	)
	return nil
}

// GeneratePresignedURL links to key for expiry. A public bucket domain
// takes precedence and never expires.
func (c *Client) GeneratePresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if c.publicURL != "" {
		return c.publicURL + "/" + key, nil
	}

	req, err := c.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: c.bucket,
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", fmt.Errorf("r2: presign %s: %w", key, err)
	}
	return req.URL, nil
}

// Delete removes a single object.
func (c *Client) Delete(ctx context.Context, key string) error {
	if _, err := c.api.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: c.bucket, Key: aws.String(key)}); err != nil {
		return fmt.Errorf("r2: delete %s: %w", key, err)
	}
	slog.Debug("Mirrored artifact deleted", "key", key)
	return nil
}

// ListOlderThan returns the keys last written more than age ago.
func (c *Client) ListOlderThan(ctx context.Context, age time.Duration) ([]string, error) {
	cutoff := c.now().Add(-age)

	var keys []string
	pages := s3.NewListObjectsV2Paginator(c.api, &s3.ListObjectsV2Input{Bucket: c.bucket})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("r2: list: %w", err)
		}
		for _, obj := range page.Contents {
			if obj.Key == nil || obj.LastModified == nil {
				continue
			}
			if obj.LastModified.Before(cutoff) {
				keys = append(keys, *obj.Key)
			}
		}
	}
	return keys, nil
}

// DeleteOlderThan sweeps expired artifacts in batches and reports how many
// were removed. Per-key failures are logged and skipped.
func (c *Client) DeleteOlderThan(ctx context.Context, age time.Duration) (int, error) {
	keys, err := c.ListOlderThan(ctx, age)
	if err != nil {
		return 0, err
	}

	removed := 0
	for start := 0; start < len(keys); start += deleteBatch {
		end := min(start+deleteBatch, len(keys))

		ids := make([]types.ObjectIdentifier, 0, end-start)
		for _, k := range keys[start:end] {
			ids = append(ids, types.ObjectIdentifier{Key: aws.String(k)})
		}

		out, err := c.api.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: c.bucket,
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return removed, fmt.Errorf("r2: batch delete: %w", err)
		}
		for _, e := range out.Errors {
			slog.Warn("Failed to delete expired artifact",
				"key", aws.ToString(e.Key),
				"error", aws.ToString(e.Message),
			)
		}
		removed += len(ids) - len(out.Errors)
	}
	return removed, nil
}

// ContentDisposition renders an attachment header for filename.
func ContentDisposition(filename string) string {
	if filename == "" {
		return "attachment"
	}
	return mime.FormatMediaType("attachment", map[string]string{"filename": filename})
}

func contentType(path string) string {
	if t, ok := contentTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return t
	}
	return "application/octet-stream"
}
