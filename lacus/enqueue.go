package lacus

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"

	v1 "lacus-client/api/v1"

	"golang.org/x/xerrors"
)

func Bool(b bool) *bool {
	return &b
}

func Int(i int) *int {
	return &i
}

// DefaultCaptureSettings returns the settings Enqueue starts from before
// applying options.
func DefaultCaptureSettings() *v1.CaptureSettings {
	return &v1.CaptureSettings{
		Depth:                Int(0),
		JavaScriptEnabled:    Bool(true),
		WithScreenshot:       Bool(true),
		WithFavicon:          Bool(false),
		AllowTracking:        Bool(false),
		Headless:             Bool(true),
		RenderedHostnameOnly: Bool(true),
		Force:                Bool(false),
		RecaptureInterval:    Int(300),
		Priority:             Int(0),
	}
}

// EnqueueOption overlays one setting on top of DefaultCaptureSettings. Options
// given an empty string, map or slice leave the setting unset.
type EnqueueOption func(*v1.CaptureSettings)

func WithURL(u string) EnqueueOption {
	return func(s *v1.CaptureSettings) {
		if u != "" {
			s.URL = u
		}
	}
}

// WithDocument captures an inline document instead of a URL. Both the name and
// the content are required, and a URL given with WithURL wins.
func WithDocument(name string, content []byte) EnqueueOption {
	return func(s *v1.CaptureSettings) {
		if name != "" && len(content) > 0 {
			s.DocumentName = name
			s.Document = base64.StdEncoding.EncodeToString(content)
		}
	}
}

func WithDepth(depth int) EnqueueOption {
	return func(s *v1.CaptureSettings) {
		s.Depth = Int(depth)
	}
}

func WithBrowser(browser v1.Browser) EnqueueOption {
	return func(s *v1.CaptureSettings) {
		if browser != "" {
			s.Browser = browser
		}
	}
}

func WithDeviceName(deviceName string) EnqueueOption {
	return func(s *v1.CaptureSettings) {
		if deviceName != "" {
			s.DeviceName = deviceName
		}
	}
}

func WithUserAgent(userAgent string) EnqueueOption {
	return func(s *v1.CaptureSettings) {
		if userAgent != "" {
			s.UserAgent = userAgent
		}
	}
}

func WithProxy(proxyURL string) EnqueueOption {
	return func(s *v1.CaptureSettings) {
		if proxyURL != "" {
			s.Proxy = &v1.Proxy{URL: proxyURL}
		}
	}
}

func WithAuthenticatedProxy(server string, username string, password string) EnqueueOption {
	return func(s *v1.CaptureSettings) {
		if server != "" {
			s.Proxy = &v1.Proxy{Server: server, Username: username, Password: password}
		}
	}
}

// WithGeneralTimeout is sent even when zero.
func WithGeneralTimeout(seconds int) EnqueueOption {
	return func(s *v1.CaptureSettings) {
		s.GeneralTimeoutInSec = Int(seconds)
	}
}

func WithCookies(cookies []map[string]any) EnqueueOption {
	return func(s *v1.CaptureSettings) {
		if len(cookies) > 0 {
			s.Cookies = cookies
		}
	}
}

// WithStorage replays a storage state, as returned in CaptureResponse.Storage.
func WithStorage(storage map[string]any) EnqueueOption {
	return func(s *v1.CaptureSettings) {
		if len(storage) > 0 {
			s.Storage = storage
		}
	}
}

func WithHeaders(headers map[string]string) EnqueueOption {
	return func(s *v1.CaptureSettings) {
		if len(headers) > 0 {
			s.Headers = headers
		}
	}
}

// WithHeadersString sets the headers from raw "Name: value" lines.
func WithHeadersString(raw string) EnqueueOption {
	return WithHeaders(ParseHeaders(raw))
}

// ParseHeaders reads "Name: value" lines. Blank lines and lines without a
// colon are skipped, a repeated name keeps the last value.
func ParseHeaders(raw string) map[string]string {
	headers := make(map[string]string)
	for _, line := range strings.Split(raw, "\n") {
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		headers[name] = strings.TrimSpace(value)
	}
	return headers
}

// ParseCookies reads cookies encoded as JSON, either a list of cookies or a
// single cookie object.
func ParseCookies(data []byte) ([]map[string]any, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}
	if data[0] == '{' {
		var cookie map[string]any
		if err := json.Unmarshal(data, &cookie); err != nil {
			return nil, xerrors.Errorf("failed to parse cookie: %w", err)
		}
		return []map[string]any{cookie}, nil
	}
	var cookies []map[string]any
	if err := json.Unmarshal(data, &cookies); err != nil {
		return nil, xerrors.Errorf("failed to parse cookies: %w", err)
	}
	return cookies, nil
}

func WithHTTPCredentials(username string, password string) EnqueueOption {
	return func(s *v1.CaptureSettings) {
		if username != "" || password != "" {
			s.HTTPCredentials = &v1.HTTPCredentials{Username: username, Password: password}
		}
	}
}

func WithGeolocation(latitude float64, longitude float64) EnqueueOption {
	return func(s *v1.CaptureSettings) {
		s.Geolocation = &v1.Geolocation{Latitude: latitude, Longitude: longitude}
	}
}

func WithTimezoneID(timezoneID string) EnqueueOption {
	return func(s *v1.CaptureSettings) {
		if timezoneID != "" {
			s.TimezoneID = timezoneID
		}
	}
}

func WithLocale(locale string) EnqueueOption {
	return func(s *v1.CaptureSettings) {
		if locale != "" {
			s.Locale = locale
		}
	}
}

func WithColorScheme(colorScheme string) EnqueueOption {
	return func(s *v1.CaptureSettings) {
		if colorScheme != "" {
			s.ColorScheme = colorScheme
		}
	}
}

func WithViewport(width int, height int) EnqueueOption {
	return func(s *v1.CaptureSettings) {
		if width > 0 && height > 0 {
			s.Viewport = &v1.Viewport{Width: width, Height: height}
		}
	}
}

func WithReferer(referer string) EnqueueOption {
	return func(s *v1.CaptureSettings) {
		if referer != "" {
			s.Referer = referer
		}
	}
}

func WithJavaScript(enabled bool) EnqueueOption {
	return func(s *v1.CaptureSettings) {
		s.JavaScriptEnabled = Bool(enabled)
	}
}

func WithScreenshot(enabled bool) EnqueueOption {
	return func(s *v1.CaptureSettings) {
		s.WithScreenshot = Bool(enabled)
	}
}

func WithFavicon(enabled bool) EnqueueOption {
	return func(s *v1.CaptureSettings) {
		s.WithFavicon = Bool(enabled)
	}
}

func WithTracking(allowed bool) EnqueueOption {
	return func(s *v1.CaptureSettings) {
		s.AllowTracking = Bool(allowed)
	}
}

func WithHeadless(headless bool) EnqueueOption {
	return func(s *v1.CaptureSettings) {
		s.Headless = Bool(headless)
	}
}

func WithRenderedHostnameOnly(only bool) EnqueueOption {
	return func(s *v1.CaptureSettings) {
		s.RenderedHostnameOnly = Bool(only)
	}
}

func WithForce(force bool) EnqueueOption {
	return func(s *v1.CaptureSettings) {
		s.Force = Bool(force)
	}
}

func WithRecaptureInterval(seconds int) EnqueueOption {
	return func(s *v1.CaptureSettings) {
		s.RecaptureInterval = Int(seconds)
	}
}

func WithPriority(priority int) EnqueueOption {
	return func(s *v1.CaptureSettings) {
		s.Priority = Int(priority)
	}
}

// WithMaxRetries is sent even when zero.
func WithMaxRetries(maxRetries int) EnqueueOption {
	return func(s *v1.CaptureSettings) {
		s.MaxRetries = Int(maxRetries)
	}
}

func WithUUID(uuid string) EnqueueOption {
	return func(s *v1.CaptureSettings) {
		if uuid != "" {
			s.UUID = uuid
		}
	}
}

// BuildSettings applies opts on top of DefaultCaptureSettings.
func BuildSettings(opts ...EnqueueOption) *v1.CaptureSettings {
	settings := DefaultCaptureSettings()
	for _, opt := range opts {
		opt(settings)
	}

	if settings.URL != "" || settings.DocumentName == "" || settings.Document == "" {
		settings.DocumentName = ""
		settings.Document = ""
	}
	return settings
}

// Enqueue submits a capture built from opts and returns its identifier.
func (c *Client) Enqueue(ctx context.Context, opts ...EnqueueOption) (string, error) {
	return c.EnqueueSettings(ctx, BuildSettings(opts...))
}

// EnqueueSettings submits settings as they are, without applying defaults.
func (c *Client) EnqueueSettings(ctx context.Context, settings *v1.CaptureSettings) (string, error) {
	if settings == nil {
		return "", xerrors.New("capture settings are required")
	}

	var uuid string
	if err := c.post(ctx, "enqueue", settings, &uuid, "enqueue"); err != nil {
		return "", err
	}
	if uuid == "" {
		return "", ErrEmptyIdentifier
	}

	c.logger.Debug("capture enqueued", "uuid", uuid, "url", settings.URL)
	return uuid, nil
}
