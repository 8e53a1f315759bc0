// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package backend

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"

	"github.com/pkg/errors"
	"golang.org/x/net/publicsuffix"

	"github.com/autobrr/unitorrent/internal/buildinfo"
)

const maxErrorBody = 512

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// StatusCode extracts the HTTP status of err, 0 when err carries none.
func StatusCode(err error) int {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	return 0
}

// NewHTTPClient builds a client with a cookie jar and the configured timeout.
func NewHTTPClient(opts *Options) (*http.Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, errors.Wrap(err, "could not create cookie jar")
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.TLSSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} // #nosec G402
	}

	return &http.Client{
		Jar:       jar,
		Timeout:   opts.Timeout,
		Transport: &userAgentTransport{base: transport, userAgent: buildinfo.UserAgent},
	}, nil
}

// userAgentTransport identifies requests that do not already carry a User-Agent.
type userAgentTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return t.base.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.userAgent)
	return t.base.RoundTrip(req)
}

// Cookie returns the value of the named cookie the jar holds for rawURL.
func Cookie(client *http.Client, rawURL, name string) string {
	if client.Jar == nil {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	for _, c := range client.Jar.Cookies(u) {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

// DoRequest executes req and returns the body of a 2xx response. Non-2xx
// responses become a StatusError; 401 and 403 additionally wrap ErrUnauthorized
// unless authCodes overrides which codes signal a rejected session.
func DoRequest(ctx context.Context, client *http.Client, req *http.Request, authCodes ...int) ([]byte, *http.Response, error) {
	resp, err := client.Do(req.WithContext(ctx))
	if err != nil {
		return nil, nil, errors.Wrapf(err, "%s %s", req.Method, req.URL.Path)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp, errors.Wrap(err, "could not read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := string(body)
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		statusErr := &StatusError{StatusCode: resp.StatusCode, Body: snippet}

		if len(authCodes) == 0 {
			authCodes = []int{http.StatusUnauthorized, http.StatusForbidden}
		}
		for _, code := range authCodes {
			if resp.StatusCode == code {
				return nil, resp, fmt.Errorf("%w: %w", ErrUnauthorized, statusErr)
			}
		}
		return nil, resp, statusErr
	}

	return body, resp, nil
}
