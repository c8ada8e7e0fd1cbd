package retry

import (
	"errors"
	"io"
	"net"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/xerrors"
)

// On decides which failed attempts are worth another try.
type On struct {
	serverError    bool
	gatewayError   bool
	connectFailure bool
	retriable4xx   bool
	statusCodes    []int
}

// NewDefaultRetryOn retries the status codes a Lacus instance answers with
// while it restarts or sits behind an overloaded proxy, and connect failures.
func NewDefaultRetryOn() *On {
	return &On{
		connectFailure: true,
		statusCodes: []int{
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
		},
	}
}

// NewRetryOnFromString parses a comma separated list of conditions, e.g.
// "gateway-error,connect-failure,429".
func NewRetryOnFromString(s string) (*On, error) {
	o := &On{}
	for _, s := range strings.Split(s, ",") {
		s = strings.TrimSpace(s)
		switch s {
		case "":
		case "5xx":
			o.serverError = true
		case "gateway-error":
			o.gatewayError = true
		case "connect-failure":
			o.connectFailure = true
		case "retriable-4xx":
			o.retriable4xx = true
		default:
			statusCode, err := strconv.Atoi(s)
			if err != nil {
				return nil, xerrors.Errorf("invalid retryOn: %s", s)
			}
			if statusCode < 100 || statusCode > 599 {
				return nil, xerrors.Errorf("invalid retryOn status code: %d", statusCode)
			}
			o.statusCodes = append(o.statusCodes, statusCode)
		}
	}
	return o, nil
}

func (o *On) String() string {
	var conditions []string
	if o.serverError {
		conditions = append(conditions, "5xx")
	}
	if o.gatewayError {
		conditions = append(conditions, "gateway-error")
	}
	if o.connectFailure {
		conditions = append(conditions, "connect-failure")
	}
	if o.retriable4xx {
		conditions = append(conditions, "retriable-4xx")
	}
	for _, statusCode := range o.statusCodes {
		conditions = append(conditions, strconv.Itoa(statusCode))
	}
	return strings.Join(conditions, ",")
}

// semantics follow https://www.envoyproxy.io/docs/envoy/latest/configuration/http/http_filters/router_filter#x-envoy-retry-on
func (o *On) CheckResponse(response *http.Response) bool {
	if (o.serverError && response.StatusCode >= 500 && response.StatusCode < 600) ||
		(o.gatewayError && response.StatusCode >= 502 && response.StatusCode < 505) ||
		(o.retriable4xx && response.StatusCode == http.StatusConflict) {
		return true
	}

	return slices.Contains(o.statusCodes, response.StatusCode)
}

func (o *On) CheckError(err error) bool {
	if !o.connectFailure && !o.serverError {
		return false
	}

	type temporary interface{ Temporary() bool }
	var terr temporary
	if errors.As(err, &terr) && terr.Temporary() {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}
