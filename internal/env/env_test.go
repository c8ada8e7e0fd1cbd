package env

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestOrDefault(t *testing.T) {
	t.Setenv("LACUS_TEST_STRING", "http://127.0.0.1:7100")
	t.Setenv("LACUS_TEST_LIST", " a, ,b ")
	t.Setenv("LACUS_TEST_INT", "12")
	t.Setenv("LACUS_TEST_UINT", "-1")
	t.Setenv("LACUS_TEST_BOOL", "true")
	t.Setenv("LACUS_TEST_DURATION", "1m30s")

	tests := []struct {
		name string
		got  any
		want any
	}{
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			OrDefault("LACUS_TEST_STRING", ""),
			"http://127.0.0.1:7100",
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			OrDefault("LACUS_TEST_LIST", []string(nil)),
			[]string{"a", "b"},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			OrDefault("LACUS_TEST_INT", 3),
			12,
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			OrDefault("LACUS_TEST_UINT", uint(5)),
			uint(5),
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			OrDefault("LACUS_TEST_BOOL", false),
			true,
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			OrDefault("LACUS_TEST_DURATION", time.Second),
			90 * time.Second,
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			OrDefault("LACUS_TEST_UNSET", "fallback"),
			"fallback",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, tt.got); diff != "" {
				t.Errorf("(-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("LACUS_TEST_PRESET", "kept")

	filename := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(filename, []byte("LACUS_TEST_FROM_FILE=loaded\nLACUS_TEST_PRESET=overwritten\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Unsetenv("LACUS_TEST_FROM_FILE") })

	if err := Load(filename, filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff("loaded", os.Getenv("LACUS_TEST_FROM_FILE")); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("kept", os.Getenv("LACUS_TEST_PRESET")); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}
