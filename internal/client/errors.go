package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrNetwork                = errors.New("network error")
	ErrHTTPServer             = errors.New("http server error")
	ErrHTTPClient             = errors.New("http client error")
	ErrAuthenticationRequired = errors.New("authentication required")
)

// FetchError describes a failed physical fetch. Kind is one of the Err*
// sentinels above and is matched by errors.Is.
type FetchError struct {
	URL        string
	StatusCode int
	Retryable  bool
	Kind       error
	Err        error
}

func (e *FetchError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.URL != "" {
		fmt.Fprintf(&b, " fetching %s", e.URL)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *FetchError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// IsRetryable reports whether err is a fetch failure worth another attempt.
func IsRetryable(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Retryable
}

func networkError(url string, err error) *FetchError {
	return &FetchError{URL: url, Retryable: true, Kind: ErrNetwork, Err: err}
}

func authError(url string, status int, reason string) *FetchError {
	return &FetchError{URL: url, StatusCode: status, Kind: ErrAuthenticationRequired, Err: errors.New(reason)}
}

// classifyStatus maps a response status onto the error taxonomy. Success yields nil.
func classifyStatus(url string, status int) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return authError(url, status, "session cookies rejected or expired")
	case status == http.StatusTooManyRequests || status >= 500:
		return &FetchError{URL: url, StatusCode: status, Retryable: true, Kind: ErrHTTPServer}
	case status >= 400:
		return &FetchError{URL: url, StatusCode: status, Kind: ErrHTTPClient}
	default:
		return nil
	}
}

// ErrorClass names the taxonomy class of err for operator reports. Errors from
// other packages take part by implementing Class() string.
func ErrorClass(err error) string {
	var classed interface{ Class() string }
	switch {
	case err == nil:
		return ""
	case errors.As(err, &classed):
		return classed.Class()
	case errors.Is(err, ErrAuthenticationRequired):
		return "AuthenticationRequired"
	case errors.Is(err, ErrHTTPServer):
		return "HttpServerError"
	case errors.Is(err, ErrHTTPClient):
		return "HttpClientError"
	case errors.Is(err, ErrNetwork), errors.Is(err, context.DeadlineExceeded):
		return "NetworkError"
	default:
		return "UnknownError"
	}
}

// Remediation returns an actionable hint for err, or "" when there is none.
func Remediation(err error) string {
	switch ErrorClass(err) {
	case "AuthenticationRequired":
		return "authentication required: cookies not configured or expired for this source, refresh them in the cookie env var or file"
	case "HttpServerError":
		return "upstream is failing or rate limiting, retry later or raise fetch.min_delay"
	case "NetworkError":
		return "network problem or timeout, check connectivity or raise fetch.timeout"
	case "HttpClientError":
		return "upstream rejected the request, check the catalog id and source.catalog_url"
	case "ParseError":
		return "page markup did not contain a recognizable pricing table, check parser.table_selectors"
	case "DiscoveryError":
		return "catalog tree endpoint failed, check source.discovery_url"
	default:
		return ""
	}
}
