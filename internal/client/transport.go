package client

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"resty.dev/v3"
)

// Request is one physical request. Form switches the HTTP transport to a form POST.
type Request struct {
	URL     string
	Form    map[string]string
	Cookies string
}

type Response struct {
	StatusCode int
	Body       string
}

// Transport performs physical requests. Only transport-level failures are
// returned as errors; HTTP statuses are reported in the Response.
type Transport interface {
	Name() string
	Do(ctx context.Context, req *Request) (*Response, error)
	Close() error
}

type httpTransport struct {
	httpClient *resty.Client
}

// NewHTTPTransport builds the plain request/response transport. Retries are
// owned by the fetch client, so resty's own retry is disabled.
func NewHTTPTransport(userAgent string) Transport {
	client := resty.New().
		SetRetryCount(0).
		SetHeader("User-Agent", userAgent).
		SetHeader("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8").
		SetHeader("Accept-Language", "en-US,en;q=0.5").
		SetTLSClientConfig(&tls.Config{
			MinVersion: tls.VersionTLS12,
		})

	return &httpTransport{httpClient: client}
}

func (t *httpTransport) Name() string {
	return "http"
}

func (t *httpTransport) Do(ctx context.Context, req *Request) (*Response, error) {
	r := t.httpClient.R().SetContext(ctx)
	if req.Cookies != "" {
		r.SetHeader("Cookie", req.Cookies)
	}

	var (
		resp *resty.Response
		err  error
	)
	if req.Form != nil {
		resp, err = r.
			SetHeader("X-Requested-With", "XMLHttpRequest").
			SetFormData(req.Form).
			Post(req.URL)
	} else {
		resp, err = r.Get(req.URL)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode(),
		Body:       resp.String(),
	}, nil
}

func (t *httpTransport) Close() error {
	return nil
}

// timeoutTransport bounds every physical request of the wrapped transport.
type timeoutTransport struct {
	Transport
	timeout time.Duration
}

func withTimeout(t Transport, timeout time.Duration) Transport {
	if timeout <= 0 {
		return t
	}
	return &timeoutTransport{Transport: t, timeout: timeout}
}

func (t *timeoutTransport) Do(ctx context.Context, req *Request) (*Response, error) {
	reqCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.Transport.Do(reqCtx, req)
}
