package lacus_test

import (
	"encoding/base64"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"testing"

	v1 "lacus-client/api/v1"
	"lacus-client/lacus"

	"github.com/google/go-cmp/cmp"
)

func TestDecode(t *testing.T) {
	runtimeSeconds := 1.5

	tests := []struct {
		name string
		in   *v1.CaptureResponseJSON
		want *v1.CaptureResponse
	}{
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			&v1.CaptureResponseJSON{
				Status:            v1.CaptureStatusDone,
				LastRedirectedURL: "https://www.circl.lu/",
				HTML:              "<html></html>",
				Png:               "aGVsbG8=",
				Runtime:           &runtimeSeconds,
			},
			&v1.CaptureResponse{
				Status:            v1.CaptureStatusDone,
				LastRedirectedURL: "https://www.circl.lu/",
				HTML:              "<html></html>",
				Png:               []byte("hello"),
				Runtime:           &runtimeSeconds,
			},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			&v1.CaptureResponseJSON{
				Status:             v1.CaptureStatusDone,
				DownloadedFilename: "report.pdf",
				DownloadedFile:     "JVBERi0=",
			},
			&v1.CaptureResponse{
				Status:             v1.CaptureStatusDone,
				DownloadedFilename: "report.pdf",
				DownloadedFile:     []byte("%PDF-"),
			},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			&v1.CaptureResponseJSON{
				Status:            v1.CaptureStatusDone,
				PotentialFavicons: []string{"aGVsbG8=", "aGVsbG8="},
			},
			&v1.CaptureResponse{
				Status:            v1.CaptureStatusDone,
				PotentialFavicons: [][]byte{[]byte("hello")},
			},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			&v1.CaptureResponseJSON{
				Status:            v1.CaptureStatusDone,
				PotentialFavicons: []string{"d29ybGQ=", "aGVsbG8=", "d29ybGQ="},
			},
			&v1.CaptureResponse{
				Status:            v1.CaptureStatusDone,
				PotentialFavicons: [][]byte{[]byte("world"), []byte("hello")},
			},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			&v1.CaptureResponseJSON{
				Status: v1.CaptureStatusDone,
				Png:    "aGVsbG8=",
				Children: []v1.CaptureResponseJSON{
					{
						Status: v1.CaptureStatusDone,
						Png:    "d29ybGQ=",
						Children: []v1.CaptureResponseJSON{
							{Status: v1.CaptureStatusDone, Error: "timeout"},
						},
					},
				},
			},
			&v1.CaptureResponse{
				Status: v1.CaptureStatusDone,
				Png:    []byte("hello"),
				Children: []v1.CaptureResponse{
					{
						Status: v1.CaptureStatusDone,
						Png:    []byte("world"),
						Children: []v1.CaptureResponse{
							{Status: v1.CaptureStatusDone, Error: "timeout"},
						},
					},
				},
			},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			&v1.CaptureResponseJSON{
				Status: v1.CaptureStatusUnknown,
				Error:  "no capture",
			},
			&v1.CaptureResponse{
				Status: v1.CaptureStatusUnknown,
				Error:  "no capture",
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := lacus.Decode(tt.in)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("(-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeWithoutBinaryFieldsIsStable(t *testing.T) {
	in := &v1.CaptureResponseJSON{
		Status:  v1.CaptureStatusDone,
		HTML:    "<html></html>",
		Cookies: []map[string]any{{"name": "session", "domain": "circl.lu"}},
	}

	first, err := lacus.Decode(in)
	if err != nil {
		t.Fatal(err)
	}
	second, err := lacus.Decode(lacus.Encode(first))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if first.Png != nil || first.DownloadedFile != nil || first.PotentialFavicons != nil || first.Children != nil {
		t.Errorf("decoding fabricated binary fields: %+v", first)
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	in := &v1.CaptureResponseJSON{
		Status:            v1.CaptureStatusDone,
		Png:               "aGVsbG8=",
		DownloadedFile:    base64.StdEncoding.EncodeToString([]byte{0, 1, 2, 255}),
		PotentialFavicons: []string{"aGVsbG8="},
		Children: []v1.CaptureResponseJSON{
			{Status: v1.CaptureStatusDone, Png: "d29ybGQ="},
		},
	}

	decoded, err := lacus.Decode(in)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]byte("hello"), decoded.Png); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(in, lacus.Encode(decoded)); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestDecodeMalformedBase64(t *testing.T) {
	tests := []struct {
		name            string
		in              *v1.CaptureResponseJSON
		wantErrorString string
	}{
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			&v1.CaptureResponseJSON{Png: "not base64!"},
			"failed to decode png",
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			&v1.CaptureResponseJSON{PotentialFavicons: []string{"aGVsbG8=", "%%%"}},
			"failed to decode potential_favicons[1]",
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			&v1.CaptureResponseJSON{
				Png: "aGVsbG8=",
				Children: []v1.CaptureResponseJSON{
					{},
					{DownloadedFile: "@@"},
				},
			},
			"failed to decode children[1].downloaded_file",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := lacus.Decode(tt.in)
			if err == nil {
				t.Fatalf("expected an error, got %+v", got)
			}
			if got != nil {
				t.Errorf("expected no partial result, got %+v", got)
			}
			var corrupt base64.CorruptInputError
			if !errors.As(err, &corrupt) {
				t.Errorf("expected a base64.CorruptInputError, got %T", err)
			}
			if !strings.HasPrefix(err.Error(), tt.wantErrorString) {
				t.Errorf("expected %q to start with %q", err.Error(), tt.wantErrorString)
			}
		})
	}
}

func TestDecodeTooDeep(t *testing.T) {
	root := &v1.CaptureResponseJSON{}
	node := root
	for i := 0; i <= lacus.MaxDecodeDepth; i++ {
		node.Children = []v1.CaptureResponseJSON{{}}
		node = &node.Children[0]
	}

	if _, err := lacus.Decode(root); !errors.Is(err, lacus.ErrTooDeep) {
		t.Errorf("expected ErrTooDeep, got %v", err)
	}
}
