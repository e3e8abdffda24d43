// Package objectstore uploads finished media to S3-compatible storage.
package objectstore

import (
	"context"
	"fmt"
	"mime"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	log "github.com/sirupsen/logrus"
)

// Config describes the target bucket.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Prefix    string
}

// MinioPublisher implements ports.Publisher.
type MinioPublisher struct {
	client *minio.Client
	bucket string
	prefix string
	logger log.FieldLogger
}

// NewMinioPublisher creates a publisher. No request is made until Publish.
func NewMinioPublisher(cfg Config, logger log.FieldLogger) (*MinioPublisher, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio connection: %w", err)
	}
	return &MinioPublisher{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		logger: logger,
	}, nil
}

// ObjectKey returns the key a file is stored under for jobID.
func ObjectKey(prefix, jobID, file string) string {
	return path.Join(strings.Trim(prefix, "/"), jobID, filepath.Base(file))
}

// Publish uploads each path, creating the bucket on first use.
func (p *MinioPublisher) Publish(ctx context.Context, jobID string, paths ...string) error {
	exists, err := p.client.BucketExists(ctx, p.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", p.bucket, err)
	}
	if !exists {
		if err := p.client.MakeBucket(ctx, p.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", p.bucket, err)
		}
	}

	for _, fp := range paths {
		key := ObjectKey(p.prefix, jobID, fp)
		info, err := p.client.FPutObject(ctx, p.bucket, key, fp, minio.PutObjectOptions{
			ContentType: contentType(fp),
		})
		if err != nil {
			return fmt.Errorf("upload %s: %w", filepath.Base(fp), err)
		}
		p.logger.Infof("Uploaded %s to %s/%s (%d bytes)", filepath.Base(fp), p.bucket, key, info.Size)
	}
	return nil
}

func contentType(file string) string {
	switch strings.ToLower(filepath.Ext(file)) {
	case ".mp4":
		return "video/mp4"
	case ".m4a":
		return "audio/mp4"
	case ".mp3":
		return "audio/mpeg"
	}
	if ct := mime.TypeByExtension(filepath.Ext(file)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
