package sync

import (
	"context"
	"fmt"
	"io/fs"
	"mime"
	"path"
	"path/filepath"
	"strings"

	"github.com/courseops/mimeo/ports"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Options configure an S3-compatible sync target.
type S3Options struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string

	// Prefix is prepended to every object key, so one bucket can hold
	// several publish roots.
	Prefix string

	UseSSL bool
}

// S3 mirrors the publish root into a bucket.
type S3 struct {
	client *minio.Client
	bucket string
	prefix string
	region string
}

// NewS3 creates an S3 sync target.
func NewS3(opts S3Options) (*S3, error) {
	endpoint := strings.TrimSpace(opts.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("s3 sync: endpoint is required")
	}
	access := strings.TrimSpace(opts.AccessKey)
	secret := strings.TrimSpace(opts.SecretKey)
	if access == "" || secret == "" {
		return nil, fmt.Errorf("s3 sync: access key and secret key are required")
	}
	bucket := strings.TrimSpace(opts.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("s3 sync: bucket is required")
	}
	region := strings.TrimSpace(opts.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: opts.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 sync: init client: %w", err)
	}

	return &S3{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(opts.Prefix, "/"),
		region: region,
	}, nil
}

// Name identifies the target.
func (s *S3) Name() string { return "s3" }

// Sync uploads every file under dir and removes objects under the
// prefix that no longer exist locally.
func (s *S3) Sync(ctx context.Context, dir string) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("s3 sync: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return fmt.Errorf("s3 sync: make bucket %s: %w", s.bucket, err)
		}
	}

	uploaded := map[string]bool{}
	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		key := s.key(filepath.ToSlash(rel))
		contentType := mime.TypeByExtension(filepath.Ext(p))
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		if _, err := s.client.FPutObject(ctx, s.bucket, key, p, minio.PutObjectOptions{ContentType: contentType}); err != nil {
			return fmt.Errorf("put %s: %w", key, err)
		}
		uploaded[key] = true
		return nil
	})
	if err != nil {
		return fmt.Errorf("s3 sync: %w", err)
	}

	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: s.prefix, Recursive: true}) {
		if obj.Err != nil {
			return fmt.Errorf("s3 sync: list objects: %w", obj.Err)
		}
		if uploaded[obj.Key] {
			continue
		}
		if err := s.client.RemoveObject(ctx, s.bucket, obj.Key, minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("s3 sync: remove %s: %w", obj.Key, err)
		}
	}
	return nil
}

func (s *S3) key(rel string) string {
	if s.prefix == "" {
		return rel
	}
	return path.Join(s.prefix, rel)
}

var _ ports.SyncTarget = (*S3)(nil)
