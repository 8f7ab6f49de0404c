package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// ---------------------------------------------------------------------------
// mock S3 client
// ---------------------------------------------------------------------------

// apiError implements smithy.APIError for test assertions.
type apiError struct {
	code string
	msg  string
}

func (e *apiError) Error() string                 { return e.msg }
func (e *apiError) ErrorCode() string             { return e.code }
func (e *apiError) ErrorMessage() string          { return e.msg }
func (e *apiError) ErrorFault() smithy.ErrorFault { return smithy.FaultClient }

var errNoSuchKey = &apiError{code: "NoSuchKey", msg: "no such key"}
var errNotFound = &apiError{code: "NotFound", msg: "not found"}

// mockS3 is a thread-safe in-memory S3 backend for testing.
type mockS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    int

	// Optional hooks to inject errors.
	getErr    error
	putErr    error
	deleteErr error
	headErr   error
}

func newMockS3() *mockS3 {
	return &mockS3{objects: make(map[string][]byte)}
}

func (m *mockS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[*in.Key]
	if !ok {
		return nil, errNoSuchKey
	}
	return &s3.GetObjectOutput{
		Body: io.NopCloser(bytes.NewReader(data)),
	}, nil
}

func (m *mockS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	if in.ContentLength != nil && *in.ContentLength != int64(len(data)) {
		return nil, errors.New("content length mismatch")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[*in.Key] = data
	m.puts++
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if m.deleteErr != nil {
		return nil, m.deleteErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (m *mockS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if m.headErr != nil {
		return nil, m.headErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[*in.Key]; !ok {
		return nil, errNotFound
	}
	return &s3.HeadObjectOutput{}, nil
}

// ---------------------------------------------------------------------------
// S3Store tests
// ---------------------------------------------------------------------------

func TestS3WriteFileReadFile(t *testing.T) {
	mock := newMockS3()
	store := NewS3(mock, "models", "/birdatlas/")
	ctx := context.Background()

	if err := WriteFile(ctx, store, "custom/model.msgpack", []byte("weights")); err != nil {
		t.Fatal(err)
	}
	if _, ok := mock.objects["birdatlas/custom/model.msgpack"]; !ok {
		t.Fatalf("objects = %v, want prefixed key", mock.objects)
	}
	got, err := ReadFile(ctx, store, "custom/model.msgpack")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "weights" {
		t.Fatalf("got %q", got)
	}
}

func TestS3UploadsOnlyOnClose(t *testing.T) {
	mock := newMockS3()
	store := NewS3(mock, "models", "")
	ctx := context.Background()

	w, err := store.Write(ctx, "labels.json")
	if err != nil {
		t.Fatal(err)
	}
	io.WriteString(w, "[]")
	if ok, _ := store.Exists(ctx, "labels.json"); ok {
		t.Fatal("object visible before Close")
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if mock.puts != 1 {
		t.Fatalf("puts = %d, want 1", mock.puts)
	}
}

func TestS3Abort(t *testing.T) {
	mock := newMockS3()
	store := NewS3(mock, "models", "")
	w, _ := store.Write(context.Background(), "model.msgpack")
	io.WriteString(w, "partial")
	if err := w.(interface{ Abort() error }).Abort(); err != nil {
		t.Fatal(err)
	}
	w.Close()
	if mock.puts != 0 {
		t.Fatalf("aborted write uploaded %d objects", mock.puts)
	}
}

func TestS3ReadNotExist(t *testing.T) {
	store := NewS3(newMockS3(), "models", "")
	_, err := store.Read(context.Background(), "missing")
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected os.ErrNotExist, got %v", err)
	}
}

func TestS3ReadOtherError(t *testing.T) {
	mock := newMockS3()
	mock.getErr = errors.New("network timeout")
	store := NewS3(mock, "models", "pfx")

	_, err := store.Read(context.Background(), "x")
	if err == nil || errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v, want a non-NotExist error", err)
	}
	if !errors.Is(err, mock.getErr) {
		t.Fatalf("err = %v, should wrap the client error", err)
	}
}

func TestS3Exists(t *testing.T) {
	mock := newMockS3()
	store := NewS3(mock, "models", "")
	ctx := context.Background()

	if ok, err := store.Exists(ctx, "missing"); err != nil || ok {
		t.Fatalf("Exists(missing) = %v, %v", ok, err)
	}
	mock.objects["present"] = []byte("data")
	if ok, err := store.Exists(ctx, "present"); err != nil || !ok {
		t.Fatalf("Exists(present) = %v, %v", ok, err)
	}

	mock.headErr = errors.New("network failure")
	if _, err := store.Exists(ctx, "present"); err == nil {
		t.Fatal("expected head error")
	}
}

func TestS3DeleteIdempotent(t *testing.T) {
	mock := newMockS3()
	store := NewS3(mock, "models", "")
	ctx := context.Background()

	if err := store.Delete(ctx, "ghost"); err != nil {
		t.Fatal(err)
	}
	mock.objects["tmp"] = []byte("x")
	if err := store.Delete(ctx, "tmp"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := store.Exists(ctx, "tmp"); ok {
		t.Fatal("key should be gone after delete")
	}
}

func TestS3WriteUploadError(t *testing.T) {
	mock := newMockS3()
	mock.putErr = errors.New("upload failed")
	store := NewS3(mock, "models", "")

	err := WriteFile(context.Background(), store, "obj", []byte("data"))
	if !errors.Is(err, mock.putErr) {
		t.Fatalf("err = %v, want upload error", err)
	}
}

func TestS3RejectsEscapingPath(t *testing.T) {
	store := NewS3(newMockS3(), "models", "pfx")
	if _, err := store.Read(context.Background(), "../other/model"); !errors.Is(err, ErrInvalidPath) {
		t.Fatalf("err = %v, want ErrInvalidPath", err)
	}
}

func TestNewS3ClientRequiresBucket(t *testing.T) {
	if _, err := NewS3Client(S3Config{}); err == nil {
		t.Fatal("expected error without bucket")
	}
	c, err := NewS3Client(S3Config{Bucket: "b", Endpoint: "http://localhost:9000", PathStyle: true, AccessKey: "k", SecretKey: "s"})
	if err != nil || c == nil {
		t.Fatalf("NewS3Client = %v, %v", c, err)
	}
}

func TestIsS3NotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"NoSuchKey", errNoSuchKey, true},
		{"NotFound", errNotFound, true},
		{"other api error", &apiError{code: "AccessDenied", msg: "denied"}, false},
		{"plain error", errors.New("timeout"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isS3NotFound(tt.err); got != tt.want {
				t.Fatalf("isS3NotFound(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
