package storage_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"stock-sync/core/storage"
	"stock-sync/core/storage/mocks"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestEnsureBucket(t *testing.T) {
	ctx := context.Background()

	t.Run("Exists", func(t *testing.T) {
		client := new(mocks.Client)
		client.On("BucketExists", ctx, "b").Return(true, nil)
		require.NoError(t, storage.EnsureBucket(ctx, client, "b", ""))
		client.AssertNotCalled(t, "MakeBucket", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Creates", func(t *testing.T) {
		client := new(mocks.Client)
		client.On("BucketExists", ctx, "b").Return(false, nil)
		client.On("MakeBucket", ctx, "b", minio.MakeBucketOptions{Region: "eu"}).Return(nil)
		require.NoError(t, storage.EnsureBucket(ctx, client, "b", "eu"))
		client.AssertExpectations(t)
	})

	t.Run("Error", func(t *testing.T) {
		client := new(mocks.Client)
		client.On("BucketExists", ctx, "b").Return(false, errors.New("denied"))
		assert.ErrorContains(t, storage.EnsureBucket(ctx, client, "b", ""), "denied")
	})
}

func TestReadJSON(t *testing.T) {
	ctx := context.Background()
	client := new(mocks.Client)
	client.On("GetObject", ctx, "b", "x.json", mock.Anything).
		Return(io.NopCloser(strings.NewReader(`{"a":1}`)), nil)

	var v map[string]int
	require.NoError(t, storage.ReadJSON(ctx, client, "b", "x.json", &v))
	assert.Equal(t, 1, v["a"])
}

func TestReadObject_NotFound(t *testing.T) {
	ctx := context.Background()
	client := new(mocks.Client)
	client.On("GetObject", ctx, "b", "missing", mock.Anything).
		Return(nil, minio.ErrorResponse{Code: "NoSuchKey"})

	_, err := storage.ReadObject(ctx, client, "b", "missing")
	assert.ErrorIs(t, err, storage.ErrObjectNotFound)
}

func TestWriteJSON(t *testing.T) {
	ctx := context.Background()
	client := new(mocks.Client)
	client.On("PutObject", ctx, "b", "out.json", mock.Anything, int64(7), minio.PutObjectOptions{ContentType: "application/json"}).
		Return(minio.UploadInfo{}, nil)

	require.NoError(t, storage.WriteJSON(ctx, client, "b", "out.json", map[string]int{"a": 1}))
	client.AssertExpectations(t)
}

func TestListNames(t *testing.T) {
	ctx := context.Background()
	client := new(mocks.Client)
	client.On("ListObjects", ctx, "b", minio.ListObjectsOptions{Prefix: "backups/", Recursive: true}).
		Return([]minio.ObjectInfo{{Key: "backups/2.json"}, {Key: "backups/1.json"}})

	names, err := storage.ListNames(ctx, client, "b", "backups/")
	require.NoError(t, err)
	assert.Equal(t, []string{"backups/1.json", "backups/2.json"}, names)
}

func TestListNames_Error(t *testing.T) {
	ctx := context.Background()
	client := new(mocks.Client)
	client.On("ListObjects", ctx, "b", mock.Anything).
		Return([]minio.ObjectInfo{{Key: "a"}, {Err: errors.New("denied")}})

	_, err := storage.ListNames(ctx, client, "b", "")
	assert.ErrorContains(t, err, "denied")
}

func TestRemoveObject(t *testing.T) {
	ctx := context.Background()

	t.Run("Missing", func(t *testing.T) {
		client := new(mocks.Client)
		client.On("RemoveObject", ctx, "b", "x", mock.Anything).
			Return(minio.ErrorResponse{Code: "NoSuchKey"})
		assert.NoError(t, storage.RemoveObject(ctx, client, "b", "x"))
	})

	t.Run("Failure", func(t *testing.T) {
		client := new(mocks.Client)
		client.On("RemoveObject", ctx, "b", "x", mock.Anything).Return(errors.New("denied"))
		assert.ErrorContains(t, storage.RemoveObject(ctx, client, "b", "x"), "denied")
	})
}
