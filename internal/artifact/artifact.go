// Package artifact writes the decoded parts of a capture to a storage backend.
package artifact

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"sync"

	v1 "lacus-client/api/v1"
	"lacus-client/internal/storage"

	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"
)

// Manifest lists where each artifact of a capture was stored.
type Manifest struct {
	UUID              string     `json:"uuid,omitempty"`
	Status            string     `json:"status"`
	LastRedirectedURL string     `json:"last_redirected_url,omitempty"`
	Error             string     `json:"error,omitempty"`
	Screenshot        string     `json:"screenshot,omitempty"`
	HTML              string     `json:"html,omitempty"`
	HAR               string     `json:"har,omitempty"`
	Cookies           string     `json:"cookies,omitempty"`
	Storage           string     `json:"storage,omitempty"`
	DownloadedFile    string     `json:"downloaded_file,omitempty"`
	Favicons          []string   `json:"favicons,omitempty"`
	Children          []Manifest `json:"children,omitempty"`
}

type Exporter struct {
	Storage storage.Storage
	// Concurrency bounds parallel uploads, unlimited when zero.
	Concurrency int
}

// Export stores every artifact of capture under uuid/ and finally writes the
// manifest itself as uuid/manifest.json.
func (e *Exporter) Export(ctx context.Context, uuid string, capture *v1.CaptureResponse) (*Manifest, error) {
	if uuid == "" {
		return nil, xerrors.New("capture identifier is required")
	}
	if capture == nil {
		return nil, xerrors.New("capture is required")
	}

	eg, egCtx := errgroup.WithContext(ctx)
	if e.Concurrency > 0 {
		eg.SetLimit(e.Concurrency)
	}

	manifest := Manifest{UUID: uuid}
	var mu sync.Mutex
	if err := e.schedule(egCtx, eg, &mu, uuid, capture, &manifest); err != nil {
		_ = eg.Wait()
		return nil, err
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	b, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, xerrors.Errorf("failed to marshal manifest: %w", err)
	}
	if _, err := e.Storage.Put(ctx, path.Join(uuid, "manifest.json"), b); err != nil {
		return nil, xerrors.Errorf("failed to upload manifest: %w", err)
	}

	return &manifest, nil
}

// schedule queues the uploads of capture and its children. Every goroutine
// writes its location into manifest under mu.
func (e *Exporter) schedule(ctx context.Context, eg *errgroup.Group, mu *sync.Mutex, prefix string, capture *v1.CaptureResponse, manifest *Manifest) error {
	manifest.Status = capture.Status.String()
	manifest.LastRedirectedURL = capture.LastRedirectedURL
	manifest.Error = capture.Error

	put := func(name string, data []byte, location *string) {
		eg.Go(func() error {
			url, err := e.Storage.Put(ctx, path.Join(prefix, name), data)
			if err != nil {
				return xerrors.Errorf("failed to upload %s: %w", path.Join(prefix, name), err)
			}
			mu.Lock()
			defer mu.Unlock()
			*location = url
			return nil
		})
	}

	if len(capture.Png) > 0 {
		put("screenshot.png", capture.Png, &manifest.Screenshot)
	}
	if capture.HTML != "" {
		put("page.html", []byte(capture.HTML), &manifest.HTML)
	}
	putJSON := func(name string, value any, location *string) error {
		b, err := json.MarshalIndent(value, "", "  ")
		if err != nil {
			return xerrors.Errorf("failed to marshal %s: %w", path.Join(prefix, name), err)
		}
		put(name, b, location)
		return nil
	}
	if len(capture.HAR) > 0 {
		if err := putJSON("har.json", capture.HAR, &manifest.HAR); err != nil {
			return err
		}
	}
	if len(capture.Cookies) > 0 {
		if err := putJSON("cookies.json", capture.Cookies, &manifest.Cookies); err != nil {
			return err
		}
	}
	if len(capture.Storage) > 0 {
		if err := putJSON("storage.json", capture.Storage, &manifest.Storage); err != nil {
			return err
		}
	}
	if len(capture.DownloadedFile) > 0 {
		put(path.Join("downloads", downloadName(capture.DownloadedFilename)), capture.DownloadedFile, &manifest.DownloadedFile)
	}

	if len(capture.PotentialFavicons) > 0 {
		manifest.Favicons = make([]string, len(capture.PotentialFavicons))
		for i, favicon := range capture.PotentialFavicons {
			put(fmt.Sprintf("favicons/%d.ico", i), favicon, &manifest.Favicons[i])
		}
	}

	if len(capture.Children) > 0 {
		manifest.Children = make([]Manifest, len(capture.Children))
		for i := range capture.Children {
			if err := e.schedule(ctx, eg, mu, path.Join(prefix, "children", fmt.Sprint(i)), &capture.Children[i], &manifest.Children[i]); err != nil {
				return err
			}
		}
	}
	return nil
}

// downloadName keeps the base name Lacus reported, falling back to a fixed
// name when it is missing or unusable as a key.
func downloadName(filename string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == "/" || name == ".." || name == "" {
		return "file"
	}
	return name
}
