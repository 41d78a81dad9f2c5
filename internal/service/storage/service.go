package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"wadesk-backend/pkg/config"
)

// Media folders
const (
	FolderOutbound = "outbound"
	FolderInbound  = "inbound"
)

// ObjectStorage is the subset of *minio.Client used by the blob store
type ObjectStorage interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
}

// Object is a payload to store
type Object struct {
	Name        string
	Size        int64
	ContentType string
	Body        io.Reader
}

// Service is the blob store for message media
type Service struct {
	storage    ObjectStorage
	bucketName string
}

// NewMinioStorage connects to MinIO/S3
func NewMinioStorage(cfg *config.MinIOConfig) (*minio.Client, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}
	return client, nil
}

// NewService creates the blob store and ensures its bucket exists
func NewService(ctx context.Context, storage ObjectStorage, bucketName string) (*Service, error) {
	exists, err := storage.BucketExists(ctx, bucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := storage.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return &Service{
		storage:    storage,
		bucketName: bucketName,
	}, nil
}

// ObjectKey returns folder/<uuid><ext> for a file name
func ObjectKey(folder, name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	return path.Join(folder, uuid.NewString()+ext)
}

// Put uploads obj under folder and returns its storage key
func (s *Service) Put(ctx context.Context, folder string, obj *Object) (string, error) {
	key := ObjectKey(folder, obj.Name)

	contentType := obj.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := s.storage.PutObject(ctx, s.bucketName, key, obj.Body, obj.Size, minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: map[string]string{"original-name": obj.Name},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload object: %w", err)
	}
	return key, nil
}

// SignedURL returns a short-lived download URL for key
func (s *Service) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	u, err := s.storage.PresignedGetObject(ctx, s.bucketName, key, ttl, nil)
	if err != nil {
		return "", fmt.Errorf("failed to sign object URL: %w", err)
	}
	return u.String(), nil
}

// Delete removes key from the bucket
func (s *Service) Delete(ctx context.Context, key string) error {
	if err := s.storage.RemoveObject(ctx, s.bucketName, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}
