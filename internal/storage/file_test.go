package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFileStorage(t *testing.T) {
	directory := t.TempDir()
	s, err := New(context.Background(), Config{Backend: BackendFile, File: FileConfig{Directory: directory}})
	if err != nil {
		t.Fatal(err)
	}

	location, err := s.Put(context.Background(), "uuid/screenshot.png", []byte("png"))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(filepath.Join(directory, "uuid", "screenshot.png"), location); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}

	for _, l := range []string{location, "uuid/screenshot.png"} {
		got, err := s.Get(context.Background(), l)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff([]byte("png"), got); diff != "" {
			t.Errorf("(-want +got):\n%s", diff)
		}
	}
}

func TestFileStorageRejectsEscapingKeys(t *testing.T) {
	s, err := NewFileStorage(context.Background(), FileConfig{Directory: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}

	for _, key := range []string{"../outside", "uuid/../../outside"} {
		if _, err := s.Put(context.Background(), key, []byte("x")); err == nil {
			t.Errorf("expected %q to be rejected", key)
		}
	}
}

func TestNewUnknownBackend(t *testing.T) {
	if _, err := New(context.Background(), Config{Backend: "gcs"}); err == nil {
		t.Error("expected an error for an unknown backend")
	}
}

func TestContentType(t *testing.T) {
	tests := []struct {
		name string
		key  string
		data []byte
		want string
	}{
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			"uuid/har.json",
			[]byte(`{"log": {}}`),
			"application/json",
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			"uuid/favicon-0",
			[]byte("\x89PNG\r\n\x1a\n"),
			"image/png",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if diff := cmp.Diff(tt.want, contentType(tt.key, tt.data)); diff != "" {
				t.Errorf("(-want +got):\n%s", diff)
			}
		})
	}
}
