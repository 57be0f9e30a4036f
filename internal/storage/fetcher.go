package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// LinkFetcher downloads signed or shared URLs with a plain HTTP GET.
type LinkFetcher struct {
	client *http.Client
}

// NewLinkFetcher builds a fetcher, wrapping the client transport with otelhttp.
// A nil client uses a fresh http.Client; timeouts come from the request context.
func NewLinkFetcher(client *http.Client) *LinkFetcher {
	if client == nil {
		client = &http.Client{}
	}
	base := client.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	wrapped := *client
	wrapped.Transport = otelhttp.NewTransport(base)
	return &LinkFetcher{client: &wrapped}
}

var _ Fetcher = (*LinkFetcher)(nil)

// Fetch GETs link and returns the full body.
func (f *LinkFetcher) Fetch(ctx context.Context, link string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, NewError("fetch_link", "", KindUnknown, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, classifyTransport("fetch_link", "", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, NewError("fetch_link", "", KindFromStatus(resp.StatusCode),
			fmt.Errorf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet)))
	}

	var buf bytes.Buffer
	if resp.ContentLength > 0 {
		buf.Grow(int(resp.ContentLength))
	}
	if _, err := io.Copy(&buf, resp.Body); err != nil {
		return nil, classifyTransport("fetch_link", "", err)
	}
	return buf.Bytes(), nil
}
