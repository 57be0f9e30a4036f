package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"docvault/internal/config"
)

const sharePrefix = "shared/"

// minioStorage implements BlobStore using an S3-compatible backend (MinIO, AWS S3, etc.).
// It is safe for concurrent use by multiple goroutines.
type minioStorage struct {
	client       *minio.Client
	bucket       string
	tempLinkTTL  time.Duration
	shareLinkTTL time.Duration
}

// NewMinIO creates a new S3-compatible blob store backed by MinIO.
// It validates connectivity and ensures the bucket exists (creates it if missing).
func NewMinIO(cfg config.MinIOConfig, rc config.RetrievalConfig) (BlobStore, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("minio credentials are required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("minio bucket is required")
	}

	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	ms := &minioStorage{
		client:       cli,
		bucket:       cfg.Bucket,
		tempLinkTTL:  rc.TempLinkTTL,
		shareLinkTTL: rc.ShareLinkTTL,
	}
	if ms.tempLinkTTL <= 0 {
		ms.tempLinkTTL = 5 * time.Minute
	}
	if ms.shareLinkTTL <= 0 {
		ms.shareLinkTTL = 15 * time.Minute
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Ensure bucket exists.
	exists, err := cli.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket existence: %w", err)
	}
	if !exists {
		if err := cli.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}

	return ms, nil
}

// Put uploads an object using streaming I/O only (no local disk).
func (m *minioStorage) Put(ctx context.Context, key string, r io.Reader, opt PutObjectOptions) (ObjectInfo, error) {
	putOpts := minio.PutObjectOptions{
		ContentType:  opt.ContentType,
		UserMetadata: opt.Metadata,
	}
	info, err := m.client.PutObject(ctx, m.bucket, key, r, opt.Size, putOpts)
	if err != nil {
		return ObjectInfo{}, classifyMinio("put", key, err)
	}
	id := info.VersionID
	if id == "" {
		id = info.ETag
	}
	return ObjectInfo{
		Key:          key,
		ID:           id,
		Size:         info.Size,
		ETag:         info.ETag,
		ContentType:  opt.ContentType,
		LastModified: time.Now(), // MinIO PutObjectInfo doesn't return LastModified
		Metadata:     opt.Metadata,
	}, nil
}

// Get downloads the whole object; read errors surface the remote error response.
func (m *minioStorage) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, classifyMinio("get", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, classifyMinio("get", key, err)
	}
	return data, nil
}

// TemporaryLink presigns a GET for the object with the short link TTL.
func (m *minioStorage) TemporaryLink(ctx context.Context, key string) (string, error) {
	u, err := m.client.PresignedGetObject(ctx, m.bucket, key, m.tempLinkTTL, url.Values{})
	if err != nil {
		return "", classifyMinio("temporary_link", key, err)
	}
	return u.String(), nil
}

// CreateShareLink copies the object under a random shared/ key and presigns that copy.
// Revoking removes the copy, which kills the link even before it expires.
func (m *minioStorage) CreateShareLink(ctx context.Context, key string) (string, error) {
	shareKey := sharePrefix + uuid.NewString() + "/" + path.Base(key)
	_, err := m.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: m.bucket, Object: shareKey},
		minio.CopySrcOptions{Bucket: m.bucket, Object: key},
	)
	if err != nil {
		return "", classifyMinio("create_share_link", key, err)
	}

	u, err := m.client.PresignedGetObject(ctx, m.bucket, shareKey, m.shareLinkTTL, url.Values{})
	if err != nil {
		_ = m.client.RemoveObject(ctx, m.bucket, shareKey, minio.RemoveObjectOptions{})
		return "", classifyMinio("create_share_link", key, err)
	}
	return u.String(), nil
}

// RevokeShareLink deletes the shared copy addressed by link.
func (m *minioStorage) RevokeShareLink(ctx context.Context, link string) error {
	shareKey, err := shareKeyFromLink(m.bucket, link)
	if err != nil {
		return NewError("revoke_share_link", "", KindUnknown, err)
	}
	if err := m.client.RemoveObject(ctx, m.bucket, shareKey, minio.RemoveObjectOptions{}); err != nil {
		return classifyMinio("revoke_share_link", shareKey, err)
	}
	return nil
}

// Delete removes an object by key.
func (m *minioStorage) Delete(ctx context.Context, key string) error {
	if err := m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return classifyMinio("delete", key, err)
	}
	return nil
}

// Probe checks the bucket, which exercises both connectivity and credentials.
func (m *minioStorage) Probe(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return classifyMinio("probe", "", err)
	}
	if !exists {
		return NewError("probe", "", KindNotFound, fmt.Errorf("bucket %q does not exist", m.bucket))
	}
	return nil
}

// shareKeyFromLink recovers the object key from either path-style
// (/bucket/shared/...) or virtual-host style (/shared/...) URLs.
func shareKeyFromLink(bucket, link string) (string, error) {
	u, err := url.Parse(link)
	if err != nil {
		return "", fmt.Errorf("parse share link: %w", err)
	}
	key := strings.TrimPrefix(u.Path, "/")
	key = strings.TrimPrefix(key, bucket+"/")
	if !strings.HasPrefix(key, sharePrefix) || len(key) == len(sharePrefix) {
		return "", errors.New("link does not address a shared object")
	}
	return key, nil
}

func classifyMinio(op, key string, err error) *Error {
	var se *Error
	if errors.As(err, &se) {
		return se
	}

	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey", "NoSuchBucket", "NoSuchVersion":
		return NewError(op, key, KindNotFound, err)
	case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken", "InvalidToken":
		return NewError(op, key, KindUnauthorized, err)
	case "SlowDown", "TooManyRequests", "RequestLimitExceeded":
		return NewError(op, key, KindRateLimited, err)
	case "InternalError", "ServiceUnavailable", "RequestTimeout":
		return NewError(op, key, KindTransient, err)
	}
	if resp.StatusCode != 0 {
		if kind := KindFromStatus(resp.StatusCode); kind != KindUnknown {
			return NewError(op, key, kind, err)
		}
	}
	return classifyTransport(op, key, err)
}
