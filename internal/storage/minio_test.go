package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMinIOStoragePut(t *testing.T) {
	var mu sync.Mutex
	var requests []string
	var body string
	var contentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		requests = append(requests, r.Method+" "+r.URL.Path)
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		contentType = r.Header.Get("Content-Type")
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	s, err := NewMinIOStorage(context.Background(), MinIOConfig{
		Endpoint:  strings.TrimPrefix(server.URL, "http://"),
		AccessKey: "lacus",
		SecretKey: "lacus-secret",
		Bucket:    "captures",
		Region:    "us-east-1",
	})
	if err != nil {
		t.Fatal(err)
	}

	location, err := s.Put(context.Background(), "uuid/har.json", []byte(`{"log": {}}`))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff("minio://captures/uuid/har.json", location); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}

	mu.Lock()
	defer mu.Unlock()
	if diff := cmp.Diff([]string{"PUT /captures/uuid/har.json"}, requests); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(`{"log": {}}`, body); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("application/json", contentType); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestMinIOStorageRequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{Backend: BackendMinIO, MinIO: MinIOConfig{Endpoint: "127.0.0.1:9000"}}); err == nil {
		t.Error("expected an error without a bucket")
	}
}
