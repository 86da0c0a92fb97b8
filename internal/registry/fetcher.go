package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// DefaultTimeout bounds every registry request. Absence of evidence must not
// stall scoring, so the window is deliberately short.
const DefaultTimeout = 3 * time.Second

// Fetcher extracts metadata signals for package names in one ecosystem.
//
// Implementations never surface transport errors: a registry that is down,
// slow, or returns a non-2xx status yields Signals{Exists: false}. Whether
// that absence means "hallucinated package" or "registry hiccup" is the
// scorer's problem, not the fetcher's.
type Fetcher interface {
	FetchSignals(ctx context.Context, name string) Signals
}

// DefaultFetchers returns the production fetcher for every supported
// ecosystem, all pointed at the public registries.
func DefaultFetchers() map[Ecosystem]Fetcher {
	return map[Ecosystem]Fetcher{
		EcosystemPython:     NewPyPIFetcher(""),
		EcosystemJavaScript: NewNPMFetcher("", ""),
		EcosystemRust:       NewCratesFetcher(""),
		EcosystemGo:         NewGoProxyFetcher(""),
	}
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: DefaultTimeout}
}

// fetchJSON performs a GET and decodes the body into out. Any transport
// error or non-200 status is returned so callers can collapse it to
// "signal absent".
func fetchJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: registry returned status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s: %w", url, err)
	}
	return nil
}
