package lacus

import (
	"encoding/base64"
	"errors"
	"fmt"

	v1 "lacus-client/api/v1"

	"golang.org/x/xerrors"
)

// MaxDecodeDepth bounds how deeply nested children are decoded. Lacus only
// produces trees, this guards against a misbehaving server.
const MaxDecodeDepth = 64

var ErrTooDeep = errors.New("capture children are nested too deeply")

// Decode turns the base64 encoded screenshot, downloaded file and favicons of
// a capture, and of all its children, into bytes. Absent or empty fields stay
// absent. Duplicate favicons collapse into one entry.
func Decode(capture *v1.CaptureResponseJSON) (*v1.CaptureResponse, error) {
	if capture == nil {
		return nil, nil
	}
	decoded, err := decode(capture, "", 0)
	if err != nil {
		return nil, err
	}
	return &decoded, nil
}

func decode(capture *v1.CaptureResponseJSON, path string, depth int) (v1.CaptureResponse, error) {
	if depth > MaxDecodeDepth {
		return v1.CaptureResponse{}, xerrors.Errorf("%s: %w", path, ErrTooDeep)
	}

	decoded := v1.CaptureResponse{
		Status:             capture.Status,
		LastRedirectedURL:  capture.LastRedirectedURL,
		HAR:                capture.HAR,
		Cookies:            capture.Cookies,
		Storage:            capture.Storage,
		Error:              capture.Error,
		HTML:               capture.HTML,
		DownloadedFilename: capture.DownloadedFilename,
		Runtime:            capture.Runtime,
	}

	var err error
	if capture.Png != "" {
		if decoded.Png, err = decodeField(capture.Png, path, "png"); err != nil {
			return v1.CaptureResponse{}, err
		}
	}
	if capture.DownloadedFile != "" {
		if decoded.DownloadedFile, err = decodeField(capture.DownloadedFile, path, "downloaded_file"); err != nil {
			return v1.CaptureResponse{}, err
		}
	}

	if len(capture.PotentialFavicons) > 0 {
		seen := make(map[string]struct{}, len(capture.PotentialFavicons))
		for i, favicon := range capture.PotentialFavicons {
			b, err := decodeField(favicon, path, fmt.Sprintf("potential_favicons[%d]", i))
			if err != nil {
				return v1.CaptureResponse{}, err
			}
			if _, ok := seen[string(b)]; ok {
				continue
			}
			seen[string(b)] = struct{}{}
			decoded.PotentialFavicons = append(decoded.PotentialFavicons, b)
		}
	}

	if len(capture.Children) > 0 {
		decoded.Children = make([]v1.CaptureResponse, 0, len(capture.Children))
		for i := range capture.Children {
			child, err := decode(&capture.Children[i], join(path, fmt.Sprintf("children[%d]", i)), depth+1)
			if err != nil {
				return v1.CaptureResponse{}, err
			}
			decoded.Children = append(decoded.Children, child)
		}
	}

	return decoded, nil
}

func decodeField(s string, path string, field string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, xerrors.Errorf("failed to decode %s: %w", join(path, field), err)
	}
	return b, nil
}

func join(path string, field string) string {
	if path == "" {
		return field
	}
	return path + "." + field
}

// Encode is the inverse of Decode, producing the wire form again.
func Encode(capture *v1.CaptureResponse) *v1.CaptureResponseJSON {
	if capture == nil {
		return nil
	}
	encoded := encode(capture)
	return &encoded
}

func encode(capture *v1.CaptureResponse) v1.CaptureResponseJSON {
	encoded := v1.CaptureResponseJSON{
		Status:             capture.Status,
		LastRedirectedURL:  capture.LastRedirectedURL,
		HAR:                capture.HAR,
		Cookies:            capture.Cookies,
		Storage:            capture.Storage,
		Error:              capture.Error,
		HTML:               capture.HTML,
		DownloadedFilename: capture.DownloadedFilename,
		Runtime:            capture.Runtime,
	}
	if len(capture.Png) > 0 {
		encoded.Png = base64.StdEncoding.EncodeToString(capture.Png)
	}
	if len(capture.DownloadedFile) > 0 {
		encoded.DownloadedFile = base64.StdEncoding.EncodeToString(capture.DownloadedFile)
	}
	for _, favicon := range capture.PotentialFavicons {
		encoded.PotentialFavicons = append(encoded.PotentialFavicons, base64.StdEncoding.EncodeToString(favicon))
	}
	for i := range capture.Children {
		encoded.Children = append(encoded.Children, encode(&capture.Children[i]))
	}
	return encoded
}
