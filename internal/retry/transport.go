package retry

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/xerrors"
)

// Transport retries requests according to RetryOn, sleeping as RetryStrategy
// says between attempts. Requests with a body are only retried when the body
// can be rewound through Request.GetBody.
type Transport struct {
	Base          http.RoundTripper
	RetryStrategy Strategy
	RetryOn       *On
	Logger        *slog.Logger
}

func (t *Transport) RoundTrip(request *http.Request) (*http.Response, error) {
	attempt := request
	for retryCount := uint(0); ; retryCount++ {
		if retryCount > 0 {
			var err error
			if attempt, err = rewind(request); err != nil {
				return nil, err
			}
		}

		response, err := t.base().RoundTrip(attempt)

		sleep, exceeded := t.retryStrategy().Sleep(retryCount)
		if exceeded || t.RetryOn == nil || !t.retryable(request) {
			return response, err
		}

		if err != nil {
			if !t.RetryOn.CheckError(err) {
				return nil, err
			}
			t.logger().Debug("retrying request", "method", request.Method, "url", request.URL.String(), "attempt", retryCount+1, "error", err)
		} else {
			if !t.RetryOn.CheckResponse(response) {
				return response, nil
			}
			t.logger().Debug("retrying request", "method", request.Method, "url", request.URL.String(), "attempt", retryCount+1, "status", response.StatusCode)
			discard(response)
		}

		if err := request.Context().Err(); err != nil {
			return nil, err
		}
		timer := time.NewTimer(sleep)
		select {
		case <-request.Context().Done():
			timer.Stop()
			return nil, request.Context().Err()
		case <-timer.C:
		}
	}
}

func (t *Transport) retryable(request *http.Request) bool {
	return request.Body == nil || request.Body == http.NoBody || request.GetBody != nil
}

// rewind clones the request with a fresh body; RoundTrippers must not modify
// the request they were given.
func rewind(request *http.Request) (*http.Request, error) {
	attempt := request.Clone(request.Context())
	if request.Body == nil || request.Body == http.NoBody {
		return attempt, nil
	}
	body, err := request.GetBody()
	if err != nil {
		return nil, xerrors.Errorf("failed to rewind request body: %w", err)
	}
	attempt.Body = body
	return attempt, nil
}

// discard drains a bit of the body so the connection can be reused.
func discard(response *http.Response) {
	_, _ = io.CopyN(io.Discard, response.Body, 4<<10)
	_ = response.Body.Close()
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *Transport) retryStrategy() Strategy {
	if t.RetryStrategy != nil {
		return t.RetryStrategy
	}
	return NewNever()
}

func (t *Transport) logger() *slog.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return slog.Default()
}
