package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"

	"github.com/klauspost/compress/gzhttp"
	"golang.org/x/net/publicsuffix"
)

// newHTTPClient builds the HTTP client shared by the transports. The web
// session transport needs a cookie jar to keep its session id.
func newHTTPClient(opts Options, withJar bool) (*http.Client, error) {
	base := http.DefaultTransport.(*http.Transport).Clone()
	if opts.Insecure {
		base.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	var rt http.RoundTripper = base
	if opts.Compression {
		rt = gzhttp.Transport(base)
	}

	client := &http.Client{
		Timeout:   opts.Timeout,
		Transport: rt,
	}
	if withJar {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("creating cookie jar: %w", err)
		}
		client.Jar = jar
	}
	return client, nil
}

// post sends body to url and returns the response body. Non-2xx statuses
// are errors.
func post(ctx context.Context, client *http.Client, url, contentType string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("request to %s failed: %s", url, resp.Status)
	}
	return data, nil
}
