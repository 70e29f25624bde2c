package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

const noSuchKeyXML = `<?xml version="1.0" encoding="UTF-8"?>
<Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`

const accessDeniedXML = `<?xml version="1.0" encoding="UTF-8"?>
<Error><Code>AccessDenied</Code><Message>Access Denied</Message></Error>`

// fakeS3 answers path-style object requests from memory. Keys under
// "locked/" are refused.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	path := strings.TrimPrefix(r.URL.Path, "/")
	w.Header().Set("x-amz-request-id", "test")

	if strings.Contains(path, "/locked/") {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, accessDeniedXML)
		return
	}

	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[path] = body
		f.types[path] = r.Header.Get("Content-Type")
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodGet, http.MethodHead:
		body, ok := f.objects[path]
		if !ok {
			if r.Method == http.MethodHead {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, noSuchKeyXML)
			return
		}
		w.Header().Set("Content-Type", f.types[path])
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			_, _ = w.Write(body)
		}
	case http.MethodDelete:
		delete(f.objects, path)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestS3Store(t *testing.T, prefix string) (*S3Store, *fakeS3) {
	t.Helper()
	fake := &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client := s3.New(s3.Options{
		Region:       "us-east-1",
		BaseEndpoint: aws.String(srv.URL),
		UsePathStyle: true,
		Retryer:      aws.NopRetryer{},
		Credentials: aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return aws.Credentials{AccessKeyID: "AKIDTEST", SecretAccessKey: "secret", Source: "test"}, nil
		}),
	})
	return NewS3StoreFromClient(client, "bucket", prefix, slog.New(slog.NewTextHandler(io.Discard, nil))), fake
}

func TestS3StoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s, fake := newTestS3Store(t, "tenant")
	key := OutputKey(uuid.New())

	if _, err := s.Get(ctx, key); !errors.Is(err, ErrBlobNotFound) {
		t.Fatalf("Get missing err = %v, want ErrBlobNotFound", err)
	}
	if ok, err := s.Exists(ctx, key); err != nil || ok {
		t.Fatalf("Exists missing = %v, %v", ok, err)
	}
	if err := s.Put(ctx, key, []byte("%PDF-1.7"), "application/pdf"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, ok := fake.objects["bucket/tenant/"+key]; !ok {
		t.Fatalf("object not stored under prefix: %v", fake.objects)
	}
	if fake.types["bucket/tenant/"+key] != "application/pdf" {
		t.Fatalf("content type = %q", fake.types["bucket/tenant/"+key])
	}
	if ok, err := s.Exists(ctx, key); err != nil || !ok {
		t.Fatalf("Exists = %v, %v", ok, err)
	}
	b, err := s.Get(ctx, key)
	if err != nil || string(b) != "%PDF-1.7" {
		t.Fatalf("Get = %q, %v", b, err)
	}
	if err := s.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, key); !errors.Is(err, ErrBlobNotFound) {
		t.Fatalf("second Delete err = %v, want ErrBlobNotFound", err)
	}
}

func TestS3StoreKeepsOtherErrors(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestS3Store(t, "")
	key := "locked/" + uuid.NewString()

	if _, err := s.Get(ctx, key); err == nil || errors.Is(err, ErrBlobNotFound) {
		t.Fatalf("Get forbidden err = %v, want access error", err)
	}
	if ok, err := s.Exists(ctx, key); err == nil || ok {
		t.Fatalf("Exists forbidden = %v, %v, want error", ok, err)
	}
	if err := s.Delete(ctx, key); err == nil || errors.Is(err, ErrBlobNotFound) {
		t.Fatalf("Delete forbidden err = %v", err)
	}
	if _, err := s.Get(ctx, "../escape"); err == nil {
		t.Fatalf("Get accepted a dot-segment key")
	}
}

func TestS3StorePresignGet(t *testing.T) {
	s, _ := newTestS3Store(t, "tenant")
	key := OutputKey(uuid.New())
	url, err := s.PresignGet(context.Background(), key, 5*time.Minute)
	if err != nil {
		t.Fatalf("PresignGet: %v", err)
	}
	if !strings.Contains(url, "/bucket/tenant/"+key) || !strings.Contains(url, "X-Amz-Signature=") || !strings.Contains(url, "X-Amz-Expires=300") {
		t.Fatalf("presigned url = %s", url)
	}
}
