package registry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const defaultGoProxyURL = "https://proxy.golang.org"

// GoProxyFetcher extracts signals from a Go module proxy. The proxy exposes
// far less metadata than the other registries, so most signals stay absent.
type GoProxyFetcher struct {
	client  *http.Client
	baseURL string
}

// NewGoProxyFetcher creates a Go proxy fetcher. If baseURL is empty the
// public proxy is used.
func NewGoProxyFetcher(baseURL string) *GoProxyFetcher {
	if baseURL == "" {
		baseURL = defaultGoProxyURL
	}
	return &GoProxyFetcher{
		client:  newHTTPClient(),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (f *GoProxyFetcher) FetchSignals(ctx context.Context, name string) Signals {
	reqURL := fmt.Sprintf("%s/%s/@v/list", f.baseURL, escapeModulePath(name))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return Signals{Exists: false}
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return Signals{Exists: false}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Signals{Exists: false}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Signals{Exists: false}
	}
	count := 0
	for _, line := range strings.Split(string(body), "\n") {
		if strings.TrimSpace(line) != "" {
			count++
		}
	}

	return Signals{
		Exists:       true,
		ReleaseCount: count,
		// Module paths embed their repository host.
		HasRepo: strings.Contains(name, "."),
	}
}

// escapeModulePath applies the proxy protocol's case encoding: uppercase
// letters become "!" followed by the lowercase letter.
func escapeModulePath(path string) string {
	var b strings.Builder
	for _, r := range path {
		if r >= 'A' && r <= 'Z' {
			b.WriteByte('!')
			b.WriteRune(r + ('a' - 'A'))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
