package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/minio/minio-go/v7"

	"github.com/hszk-dev/avatarrelay/internal/domain/repository"
)

// mockObjectReader implements objectReader interface for testing.
type mockObjectReader struct {
	closeFunc func() error
	statFunc  func() (minio.ObjectInfo, error)
	data      []byte
	offset    int
	closed    bool
}

func (m *mockObjectReader) Read(p []byte) (n int, err error) {
	if m.offset >= len(m.data) {
		return 0, io.EOF
	}
	n = copy(p, m.data[m.offset:])
	m.offset += n
	return n, nil
}

func (m *mockObjectReader) Close() error {
	m.closed = true
	if m.closeFunc != nil {
		return m.closeFunc()
	}
	return nil
}

func (m *mockObjectReader) Stat() (minio.ObjectInfo, error) {
	if m.statFunc != nil {
		return m.statFunc()
	}
	return minio.ObjectInfo{}, nil
}

// mockMinioClient implements minioClient interface for testing.
type mockMinioClient struct {
	bucketExistsFunc func(ctx context.Context, bucketName string) (bool, error)
	makeBucketFunc   func(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	putObjectFunc    func(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	getObjectFunc    func(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (objectReader, error)
	statObjectFunc   func(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
}

func (m *mockMinioClient) BucketExists(ctx context.Context, bucketName string) (bool, error) {
	if m.bucketExistsFunc != nil {
		return m.bucketExistsFunc(ctx, bucketName)
	}
	return true, nil
}

func (m *mockMinioClient) MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error {
	if m.makeBucketFunc != nil {
		return m.makeBucketFunc(ctx, bucketName, opts)
	}
	return nil
}

func (m *mockMinioClient) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if m.putObjectFunc != nil {
		return m.putObjectFunc(ctx, bucketName, objectName, reader, objectSize, opts)
	}
	return minio.UploadInfo{}, nil
}

func (m *mockMinioClient) GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (objectReader, error) {
	if m.getObjectFunc != nil {
		return m.getObjectFunc(ctx, bucketName, objectName, opts)
	}
	return nil, nil
}

func (m *mockMinioClient) StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error) {
	if m.statObjectFunc != nil {
		return m.statObjectFunc(ctx, bucketName, objectName, opts)
	}
	return minio.ObjectInfo{}, nil
}

func TestNewClientWithMinioClient(t *testing.T) {
	tests := []struct {
		name        string
		cfg         ClientConfig
		mockClient  *mockMinioClient
		wantErr     error
		errContains string
		wantMade    bool
	}{
		{
			name:       "bucket exists",
			cfg:        ClientConfig{Bucket: "speech"},
			mockClient: &mockMinioClient{},
		},
		{
			name: "bucket does not exist",
			cfg:  ClientConfig{Bucket: "missing"},
			mockClient: &mockMinioClient{
				bucketExistsFunc: func(ctx context.Context, bucketName string) (bool, error) {
					return false, nil
				},
			},
			wantErr: repository.ErrBucketNotFound,
		},
		{
			name: "bucket created on demand",
			cfg:  ClientConfig{Bucket: "speech", CreateBucket: true},
			mockClient: &mockMinioClient{
				bucketExistsFunc: func(ctx context.Context, bucketName string) (bool, error) {
					return false, nil
				},
			},
			wantMade: true,
		},
		{
			name: "bucket creation fails",
			cfg:  ClientConfig{Bucket: "speech", CreateBucket: true},
			mockClient: &mockMinioClient{
				bucketExistsFunc: func(ctx context.Context, bucketName string) (bool, error) {
					return false, nil
				},
				makeBucketFunc: func(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error {
					return errors.New("access denied")
				},
			},
			errContains: "failed to create bucket",
		},
		{
			name: "bucket check error",
			cfg:  ClientConfig{Bucket: "speech"},
			mockClient: &mockMinioClient{
				bucketExistsFunc: func(ctx context.Context, bucketName string) (bool, error) {
					return false, errors.New("connection refused")
				},
			},
			errContains: "failed to check bucket existence",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			made := false
			if tt.mockClient.makeBucketFunc == nil {
				tt.mockClient.makeBucketFunc = func(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error {
					made = true
					return nil
				}
			}

			client, err := newClientWithMinioClient(context.Background(), tt.mockClient, tt.cfg)

			switch {
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("newClientWithMinioClient() error = %v, wantErr %v", err, tt.wantErr)
				}
				return
			case tt.errContains != "":
				if err == nil || !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("newClientWithMinioClient() error = %v, want containing %q", err, tt.errContains)
				}
				return
			}

			if err != nil {
				t.Fatalf("newClientWithMinioClient() unexpected error = %v", err)
			}
			if client.Bucket() != tt.cfg.Bucket {
				t.Errorf("Bucket() = %v, want %v", client.Bucket(), tt.cfg.Bucket)
			}
			if made != tt.wantMade {
				t.Errorf("MakeBucket called = %v, want %v", made, tt.wantMade)
			}
		})
	}
}

func TestClient_Upload(t *testing.T) {
	tests := []struct {
		name       string
		reader     io.Reader
		prefix     string
		putErr     error
		wantSize   int64
		wantObject string
		wantErr    bool
	}{
		{
			name:       "sized reader",
			reader:     strings.NewReader("mp3-bytes"),
			wantSize:   9,
			wantObject: "speech/abc.mp3",
		},
		{
			name:       "unsized reader streams",
			reader:     io.MultiReader(strings.NewReader("mp3")),
			wantSize:   -1,
			wantObject: "speech/abc.mp3",
		},
		{
			name:       "key prefix applied",
			reader:     strings.NewReader("x"),
			prefix:     "relay",
			wantSize:   1,
			wantObject: "relay/speech/abc.mp3",
		},
		{
			name:    "upload error",
			reader:  strings.NewReader("x"),
			putErr:  errors.New("upload failed"),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotSize int64
			var gotObject, gotType, gotCache string
			client := &Client{
				client: &mockMinioClient{
					putObjectFunc: func(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
						gotSize = objectSize
						gotObject = objectName
						gotType = opts.ContentType
						gotCache = opts.CacheControl
						return minio.UploadInfo{Bucket: bucketName, Key: objectName}, tt.putErr
					},
				},
				bucket:       "speech",
				prefix:       tt.prefix,
				cacheControl: DefaultCacheControl,
			}

			err := client.Upload(context.Background(), "speech/abc.mp3", tt.reader, "audio/mpeg")

			if (err != nil) != tt.wantErr {
				t.Fatalf("Upload() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if gotSize != tt.wantSize {
				t.Errorf("objectSize = %d, want %d", gotSize, tt.wantSize)
			}
			if gotObject != tt.wantObject {
				t.Errorf("objectName = %q, want %q", gotObject, tt.wantObject)
			}
			if gotType != "audio/mpeg" {
				t.Errorf("ContentType = %q, want audio/mpeg", gotType)
			}
			if gotCache != DefaultCacheControl {
				t.Errorf("CacheControl = %q, want %q", gotCache, DefaultCacheControl)
			}
		})
	}
}

func TestClient_Download(t *testing.T) {
	tests := []struct {
		name        string
		mockClient  *mockMinioClient
		wantContent string
		wantErr     error
		errContains string
	}{
		{
			name: "successful download",
			mockClient: &mockMinioClient{
				getObjectFunc: func(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (objectReader, error) {
					return &mockObjectReader{data: []byte("mp3-bytes")}, nil
				},
			},
			wantContent: "mp3-bytes",
		},
		{
			name: "object not found",
			mockClient: &mockMinioClient{
				getObjectFunc: func(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (objectReader, error) {
					return &mockObjectReader{
						statFunc: func() (minio.ObjectInfo, error) {
							return minio.ObjectInfo{}, minio.ErrorResponse{Code: "NoSuchKey"}
						},
					}, nil
				},
			},
			wantErr: repository.ErrObjectNotFound,
		},
		{
			name: "get object error",
			mockClient: &mockMinioClient{
				getObjectFunc: func(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (objectReader, error) {
					return nil, errors.New("connection refused")
				},
			},
			errContains: "failed to get object",
		},
		{
			name: "stat error",
			mockClient: &mockMinioClient{
				getObjectFunc: func(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (objectReader, error) {
					return &mockObjectReader{
						statFunc: func() (minio.ObjectInfo, error) {
							return minio.ObjectInfo{}, errors.New("stat failed")
						},
					}, nil
				},
			},
			errContains: "failed to stat object",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &Client{client: tt.mockClient, bucket: "speech"}

			reader, err := client.Download(context.Background(), "speech/abc.mp3")

			switch {
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Download() error = %v, wantErr %v", err, tt.wantErr)
				}
				return
			case tt.errContains != "":
				if err == nil || !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("Download() error = %v, want containing %q", err, tt.errContains)
				}
				return
			}

			if err != nil {
				t.Fatalf("Download() unexpected error = %v", err)
			}
			defer reader.Close()

			content, err := io.ReadAll(reader)
			if err != nil {
				t.Fatalf("failed to read content: %v", err)
			}
			if string(content) != tt.wantContent {
				t.Errorf("Download() content = %v, want %v", string(content), tt.wantContent)
			}
		})
	}
}

func TestClient_Download_ClosesOnStatError(t *testing.T) {
	obj := &mockObjectReader{
		statFunc: func() (minio.ObjectInfo, error) {
			return minio.ObjectInfo{}, minio.ErrorResponse{Code: "NoSuchKey"}
		},
	}
	client := &Client{
		client: &mockMinioClient{
			getObjectFunc: func(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (objectReader, error) {
				return obj, nil
			},
		},
		bucket: "speech",
	}

	_, _ = client.Download(context.Background(), "missing.mp3")

	if !obj.closed {
		t.Error("expected object to be closed after failed stat")
	}
}

func TestClient_Exists(t *testing.T) {
	tests := []struct {
		name    string
		statErr error
		want    bool
		wantErr bool
	}{
		{name: "object exists", want: true},
		{name: "object does not exist", statErr: minio.ErrorResponse{Code: "NoSuchKey"}, want: false},
		{name: "stat error", statErr: errors.New("connection error"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &Client{
				client: &mockMinioClient{
					statObjectFunc: func(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error) {
						if tt.statErr != nil {
							return minio.ObjectInfo{}, tt.statErr
						}
						return minio.ObjectInfo{Key: objectName, Size: 1024}, nil
					},
				},
				bucket: "speech",
			}

			got, err := client.Exists(context.Background(), "speech/abc.mp3")

			if (err != nil) != tt.wantErr {
				t.Fatalf("Exists() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Exists() = %v, want %v", got, tt.want)
			}
		})
	}
}
