package v1

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Browser is the engine used by Lacus to render a capture.
type Browser string

const (
	BrowserChromium Browser = "chromium"
	BrowserFirefox  Browser = "firefox"
	BrowserWebkit   Browser = "webkit"
)

// CaptureStatus is the status of a capture as reported by Lacus.
type CaptureStatus int

const (
	CaptureStatusUnknown CaptureStatus = -1
	CaptureStatusQueued  CaptureStatus = 0
	CaptureStatusDone    CaptureStatus = 1
	CaptureStatusOngoing CaptureStatus = 2
)

func (s CaptureStatus) String() string {
	switch s {
	case CaptureStatusQueued:
		return "queued"
	case CaptureStatusDone:
		return "done"
	case CaptureStatusOngoing:
		return "ongoing"
	default:
		return "unknown"
	}
}

// Proxy is the proxy the capture goes through. Lacus accepts either a plain URL
// or an object with credentials.
type Proxy struct {
	URL      string
	Server   string
	Username string
	Password string
}

type proxyObject struct {
	Server   string `json:"server"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

func (p Proxy) MarshalJSON() ([]byte, error) {
	if p.Server == "" && p.Username == "" && p.Password == "" {
		return json.Marshal(p.URL)
	}
	return json.Marshal(proxyObject{
		Server:   p.Server,
		Username: p.Username,
		Password: p.Password,
	})
}

func (p *Proxy) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty proxy")
	}
	if data[0] == '"' {
		var u string
		if err := json.Unmarshal(data, &u); err != nil {
			return err
		}
		*p = Proxy{URL: u}
		return nil
	}
	var o proxyObject
	if err := json.Unmarshal(data, &o); err != nil {
		return err
	}
	*p = Proxy{Server: o.Server, Username: o.Username, Password: o.Password}
	return nil
}

type HTTPCredentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type Geolocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// CaptureSettings are the settings that can be passed to Lacus. Every field is
// optional and omitted from the payload when unset, leaving the server default.
type CaptureSettings struct {
	// URL is the page to capture. Takes precedence over Document.
	URL string `json:"url,omitempty"`
	// DocumentName is the filename of an inline document, required with Document.
	DocumentName string `json:"document_name,omitempty"`
	// Document is the base64 encoded content of an inline document.
	Document string `json:"document,omitempty"`
	// Depth is how many levels of links are followed and captured as children.
	Depth *int `json:"depth,omitempty"`

	Browser    Browser `json:"browser,omitempty"`
	DeviceName string  `json:"device_name,omitempty"`
	UserAgent  string  `json:"user_agent,omitempty"`
	Proxy      *Proxy  `json:"proxy,omitempty"`
	// GeneralTimeoutInSec may legitimately be zero, so presence is the pointer.
	GeneralTimeoutInSec *int `json:"general_timeout_in_sec,omitempty"`

	Cookies         []map[string]any  `json:"cookies,omitempty"`
	Storage         map[string]any    `json:"storage,omitempty"`
	Headers         map[string]string `json:"headers,omitempty"`
	HTTPCredentials *HTTPCredentials  `json:"http_credentials,omitempty"`
	Geolocation     *Geolocation      `json:"geolocation,omitempty"`
	TimezoneID      string            `json:"timezone_id,omitempty"`
	Locale          string            `json:"locale,omitempty"`
	ColorScheme     string            `json:"color_scheme,omitempty"`
	Viewport        *Viewport         `json:"viewport,omitempty"`
	Referer         string            `json:"referer,omitempty"`

	JavaScriptEnabled *bool `json:"java_script_enabled,omitempty"`
	WithScreenshot    *bool `json:"with_screenshot,omitempty"`
	WithFavicon       *bool `json:"with_favicon,omitempty"`
	AllowTracking     *bool `json:"allow_tracking,omitempty"`
	Headless          *bool `json:"headless,omitempty"`
	// RenderedHostnameOnly only matters when Depth is greater than zero.
	RenderedHostnameOnly *bool `json:"rendered_hostname_only,omitempty"`

	// Force triggers a new capture even if a recent one exists.
	Force             *bool `json:"force,omitempty"`
	RecaptureInterval *int  `json:"recapture_interval,omitempty"`
	Priority          *int  `json:"priority,omitempty"`
	MaxRetries        *int  `json:"max_retries,omitempty"`
	// UUID is a caller supplied identifier for the capture.
	UUID string `json:"uuid,omitempty"`
}

// CaptureResponseJSON is a capture made by Lacus, as sent on the wire: the
// screenshot, downloaded file and favicons are base64 encoded.
type CaptureResponseJSON struct {
	Status             CaptureStatus         `json:"status"`
	LastRedirectedURL  string                `json:"last_redirected_url,omitempty"`
	HAR                map[string]any        `json:"har,omitempty"`
	Cookies            []map[string]any      `json:"cookies,omitempty"`
	Storage            map[string]any        `json:"storage,omitempty"`
	Error              string                `json:"error,omitempty"`
	HTML               string                `json:"html,omitempty"`
	Png                string                `json:"png,omitempty"`
	DownloadedFilename string                `json:"downloaded_filename,omitempty"`
	DownloadedFile     string                `json:"downloaded_file,omitempty"`
	Children           []CaptureResponseJSON `json:"children,omitempty"`
	Runtime            *float64              `json:"runtime,omitempty"`
	PotentialFavicons  []string              `json:"potential_favicons,omitempty"`
}

// CaptureResponse is a capture made by Lacus with the binary fields decoded.
type CaptureResponse struct {
	Status             CaptureStatus
	LastRedirectedURL  string
	HAR                map[string]any
	Cookies            []map[string]any
	Storage            map[string]any
	Error              string
	HTML               string
	Png                []byte
	DownloadedFilename string
	DownloadedFile     []byte
	Children           []CaptureResponse
	Runtime            *float64
	// PotentialFavicons holds distinct favicon candidates in first-seen order.
	PotentialFavicons [][]byte
}
