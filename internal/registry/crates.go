package registry

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultCratesURL = "https://crates.io"

// CratesFetcher extracts signals from the crates.io API.
type CratesFetcher struct {
	client  *http.Client
	baseURL string
}

// NewCratesFetcher creates a crates.io fetcher. If baseURL is empty the
// public registry is used.
func NewCratesFetcher(baseURL string) *CratesFetcher {
	if baseURL == "" {
		baseURL = defaultCratesURL
	}
	return &CratesFetcher{
		client:  newHTTPClient(),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

type cratesResponse struct {
	Crate struct {
		CreatedAt  string `json:"created_at"`
		UpdatedAt  string `json:"updated_at"`
		Downloads  int    `json:"downloads"`
		Repository string `json:"repository"`
		Homepage   string `json:"homepage"`
	} `json:"crate"`
	Versions []struct {
		License string `json:"license"`
	} `json:"versions"`
}

func (f *CratesFetcher) FetchSignals(ctx context.Context, name string) Signals {
	var resp cratesResponse
	reqURL := f.baseURL + "/api/v1/crates/" + url.PathEscape(name)
	if err := fetchJSON(ctx, f.client, reqURL, &resp); err != nil {
		return Signals{Exists: false}
	}

	sig := Signals{
		Exists:         true,
		ReleaseCount:   len(resp.Versions),
		Downloads:      resp.Crate.Downloads,
		DownloadsKnown: true,
		HasRepo:        resp.Crate.Repository != "" || resp.Crate.Homepage != "",
	}
	if t, err := time.Parse(time.RFC3339, resp.Crate.CreatedAt); err == nil {
		sig.FirstRelease = &t
	}
	if t, err := time.Parse(time.RFC3339, resp.Crate.UpdatedAt); err == nil {
		sig.LastRelease = &t
	}
	for _, v := range resp.Versions {
		if v.License != "" {
			sig.HasLicense = true
			break
		}
	}
	return sig
}
