// Package archive stores exported entries in an S3-compatible bucket and
// hands out presigned download links.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const DefaultLinkTTL = 24 * time.Hour

var ErrNotConfigured = errors.New("archive storage not configured")

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

func (c Config) Enabled() bool {
	return c.Endpoint != "" && c.Bucket != ""
}

// Object describes an uploaded archive.
type Object struct {
	Bucket    string    `json:"bucket"`
	Key       string    `json:"key"`
	Size      int64     `json:"size"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type Store struct {
	client  *minio.Client
	bucket  string
	region  string
	linkTTL time.Duration
	now     func() time.Time
}

func New(cfg Config) (*Store, error) {
	if !cfg.Enabled() {
		return nil, ErrNotConfigured
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("archive client: %w", err)
	}
	return &Store{client: client, bucket: cfg.Bucket, region: region, linkTTL: DefaultLinkTTL, now: time.Now}, nil
}

// EnsureBucket creates the bucket when it does not exist yet.
func (s *Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return fmt.Errorf("create bucket: %w", err)
	}
	return nil
}

// Put uploads data under key and returns a presigned GET link for it.
func (s *Store) Put(ctx context.Context, key string, data []byte, contentType string) (Object, error) {
	if err := s.EnsureBucket(ctx); err != nil {
		return Object{}, err
	}
	info, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return Object{}, fmt.Errorf("upload %s: %w", key, err)
	}

	link, err := s.PresignedURL(ctx, key)
	if err != nil {
		return Object{}, err
	}
	return Object{
		Bucket:    s.bucket,
		Key:       key,
		Size:      info.Size,
		URL:       link,
		ExpiresAt: s.now().Add(s.linkTTL).UTC(),
	}, nil
}

func (s *Store) PresignedURL(ctx context.Context, key string) (string, error) {
	params := url.Values{}
	params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", path.Base(key)))
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.linkTTL, params)
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return u.String(), nil
}

func (s *Store) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucket)
	return err
}

// Key builds a per-user object key. A random component keeps repeated
// archives of the same entry from overwriting each other.
func Key(userID, entryID, filename string, at time.Time) string {
	name := strings.TrimSpace(path.Base("/" + filename))
	if name == "" || name == "/" || name == "." {
		name = "entry"
	}
	return fmt.Sprintf("%s/%s/%s-%s-%s",
		userID, entryID, at.UTC().Format("20060102T150405Z"), uuid.NewString()[:8], name)
}
