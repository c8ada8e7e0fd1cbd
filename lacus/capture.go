package lacus

import (
	"context"
	"encoding/json"
	"time"

	v1 "lacus-client/api/v1"

	"golang.org/x/xerrors"
)

func (c *Client) GetCaptureStatus(ctx context.Context, uuid string) (v1.CaptureStatus, error) {
	if uuid == "" {
		return v1.CaptureStatusUnknown, ErrEmptyIdentifier
	}
	var status v1.CaptureStatus
	if err := c.get(ctx, "capture_status", nil, &status, "capture_status", uuid); err != nil {
		return v1.CaptureStatusUnknown, err
	}
	return status, nil
}

// GetCaptureRaw returns the capture result body exactly as sent by Lacus,
// including fields CaptureResponseJSON does not model.
func (c *Client) GetCaptureRaw(ctx context.Context, uuid string) (json.RawMessage, error) {
	if uuid == "" {
		return nil, ErrEmptyIdentifier
	}
	var capture json.RawMessage
	if err := c.get(ctx, "capture_result", nil, &capture, "capture_result", uuid); err != nil {
		return nil, err
	}
	return capture, nil
}

// GetCaptureJSON returns the capture as sent by Lacus, base64 fields untouched.
func (c *Client) GetCaptureJSON(ctx context.Context, uuid string) (*v1.CaptureResponseJSON, error) {
	if uuid == "" {
		return nil, ErrEmptyIdentifier
	}
	var capture v1.CaptureResponseJSON
	if err := c.get(ctx, "capture_result", nil, &capture, "capture_result", uuid); err != nil {
		return nil, err
	}
	return &capture, nil
}

// GetCapture returns the capture with the screenshot, downloaded file and
// favicons decoded to bytes.
func (c *Client) GetCapture(ctx context.Context, uuid string) (*v1.CaptureResponse, error) {
	capture, err := c.GetCaptureJSON(ctx, uuid)
	if err != nil {
		return nil, err
	}
	decoded, err := Decode(capture)
	if err != nil {
		return nil, xerrors.Errorf("failed to decode capture %s: %w", uuid, err)
	}
	return decoded, nil
}

// WaitForCapture polls the status of a capture every interval until it is
// done, then returns the decoded capture.
func (c *Client) WaitForCapture(ctx context.Context, uuid string, interval time.Duration) (*v1.CaptureResponse, error) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		status, err := c.GetCaptureStatus(ctx, uuid)
		if err != nil {
			return nil, err
		}
		if status == v1.CaptureStatusDone {
			return c.GetCapture(ctx, uuid)
		}
		c.logger.Debug("waiting for capture", "uuid", uuid, "status", status.String())

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
