package storage

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockObjectStorage struct {
	mock.Mock
}

func (m *MockObjectStorage) BucketExists(ctx context.Context, bucketName string) (bool, error) {
	args := m.Called(ctx, bucketName)
	return args.Bool(0), args.Error(1)
}

func (m *MockObjectStorage) MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error {
	args := m.Called(ctx, bucketName, opts)
	return args.Error(0)
}

func (m *MockObjectStorage) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	args := m.Called(ctx, bucketName, objectName, reader, objectSize, opts)
	return args.Get(0).(minio.UploadInfo), args.Error(1)
}

func (m *MockObjectStorage) PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error) {
	args := m.Called(ctx, bucketName, objectName, expires, reqParams)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*url.URL), args.Error(1)
}

func (m *MockObjectStorage) RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error {
	args := m.Called(ctx, bucketName, objectName, opts)
	return args.Error(0)
}

func newTestService(t *testing.T, m *MockObjectStorage) *Service {
	t.Helper()
	m.On("BucketExists", mock.Anything, "media").Return(true, nil).Once()
	svc, err := NewService(context.Background(), m, "media")
	require.NoError(t, err)
	return svc
}

func TestNewService_CreatesMissingBucket(t *testing.T) {
	m := new(MockObjectStorage)
	m.On("BucketExists", mock.Anything, "media").Return(false, nil)
	m.On("MakeBucket", mock.Anything, "media", mock.Anything).Return(nil)

	_, err := NewService(context.Background(), m, "media")

	require.NoError(t, err)
	m.AssertExpectations(t)
}

func TestNewService_BucketCheckFails(t *testing.T) {
	m := new(MockObjectStorage)
	m.On("BucketExists", mock.Anything, "media").Return(false, errors.New("dial"))

	_, err := NewService(context.Background(), m, "media")

	assert.ErrorContains(t, err, "failed to check bucket")
}

func TestPut(t *testing.T) {
	m := new(MockObjectStorage)
	svc := newTestService(t, m)
	body := strings.NewReader("pdf-bytes")

	m.On("PutObject", mock.Anything, "media",
		mock.MatchedBy(func(key string) bool {
			return strings.HasPrefix(key, "outbound/") && strings.HasSuffix(key, ".pdf")
		}),
		body, int64(9),
		mock.MatchedBy(func(o minio.PutObjectOptions) bool { return o.ContentType == "application/pdf" }),
	).Return(minio.UploadInfo{}, nil)

	key, err := svc.Put(context.Background(), FolderOutbound, &Object{
		Name: "Invoice.PDF", Size: 9, ContentType: "application/pdf", Body: body,
	})

	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "outbound/"))
	m.AssertExpectations(t)
}

func TestPut_Error(t *testing.T) {
	m := new(MockObjectStorage)
	svc := newTestService(t, m)
	m.On("PutObject", mock.Anything, "media", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(minio.UploadInfo{}, errors.New("quota"))

	_, err := svc.Put(context.Background(), FolderInbound, &Object{Name: "a.jpg", Size: 1, Body: strings.NewReader("x")})

	assert.ErrorContains(t, err, "failed to upload object")
}

func TestSignedURL(t *testing.T) {
	m := new(MockObjectStorage)
	svc := newTestService(t, m)
	signed, _ := url.Parse("https://blob.example.com/media/inbound/x.jpg?X-Amz-Signature=abc")
	m.On("PresignedGetObject", mock.Anything, "media", "inbound/x.jpg", 15*time.Minute, url.Values(nil)).Return(signed, nil)

	got, err := svc.SignedURL(context.Background(), "inbound/x.jpg", 15*time.Minute)

	require.NoError(t, err)
	assert.Equal(t, signed.String(), got)
}

func TestDelete(t *testing.T) {
	m := new(MockObjectStorage)
	svc := newTestService(t, m)
	m.On("RemoveObject", mock.Anything, "media", "outbound/x.jpg", mock.Anything).Return(nil)

	require.NoError(t, svc.Delete(context.Background(), "outbound/x.jpg"))
	m.AssertExpectations(t)
}

func TestObjectKey(t *testing.T) {
	a := ObjectKey("inbound", "photo.JPG")
	b := ObjectKey("inbound", "photo.JPG")
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasSuffix(a, ".jpg"))
	assert.Equal(t, "inbound", strings.Split(a, "/")[0])
}
