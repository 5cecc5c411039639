package util

import (
	"bytes"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var passwordField = regexp.MustCompile(`"password"\s*:\s*"[^"]*"`)

// LoggingTransport is an http.RoundTripper that logs request and response
// bodies when the global level is debug.
type LoggingTransport struct {
	Base http.RoundTripper
}

func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	if zerolog.GlobalLevel() > zerolog.DebugLevel {
		return base.RoundTrip(req)
	}

	var reqBody []byte
	if req.Body != nil {
		reqBody, _ = io.ReadAll(req.Body)
		req.Body = io.NopCloser(bytes.NewBuffer(reqBody))
	}

	ev := log.Debug().Str("method", req.Method).Str("url", req.URL.String())
	if req.Header.Get("Authorization") != "" {
		ev = ev.Str("authorization", "<redacted>")
	}
	if len(reqBody) > 0 {
		ev = ev.Str("body", passwordField.ReplaceAllString(string(reqBody), `"password":"<redacted>"`))
	}
	ev.Msg("outbound request")

	resp, err := base.RoundTrip(req)
	if err != nil {
		return resp, err
	}

	respBody, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewBuffer(respBody))

	log.Debug().
		Int("status", resp.StatusCode).
		Str("url", req.URL.String()).
		Str("body", strings.TrimSpace(string(respBody))).
		Msg("outbound response")

	return resp, nil
}

// RetryTransport retries idempotent requests on transport errors, 429 and
// 5xx responses, with exponential backoff starting at BaseDelay.
type RetryTransport struct {
	Base       http.RoundTripper
	MaxRetries int
	BaseDelay  time.Duration
}

func (t *RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	if !isIdempotent(req.Method) {
		return base.RoundTrip(req)
	}

	delay := t.BaseDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}

	var (
		resp *http.Response
		err  error
	)
	for attempt := 0; ; attempt++ {
		resp, err = base.RoundTrip(req)
		if !shouldRetry(resp, err) || attempt >= t.MaxRetries {
			return resp, err
		}
		if resp != nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}

		log.Warn().
			Str("url", req.URL.String()).
			Int("attempt", attempt+1).
			Dur("backoff", delay).
			Msg("retrying request")

		select {
		case <-time.After(delay):
		case <-req.Context().Done():
			return nil, req.Context().Err()
		}
		delay *= 2
	}
}

func isIdempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

func shouldRetry(resp *http.Response, err error) bool {
	if err != nil {
		return true
	}
	return resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
}

// NewHTTPClient builds the client shared by the remote adapters: debug
// logging on the wire, bounded retries for reads and a per-call timeout.
func NewHTTPClient(timeout time.Duration, maxRetries int) *http.Client {
	return &http.Client{
		Transport: &RetryTransport{
			Base:       &LoggingTransport{Base: http.DefaultTransport},
			MaxRetries: maxRetries,
		},
		Timeout: timeout,
	}
}
