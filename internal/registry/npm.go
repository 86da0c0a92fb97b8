package registry

import (
	"context"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

const (
	defaultNPMRegistryURL  = "https://registry.npmjs.org"
	defaultNPMDownloadsURL = "https://api.npmjs.org"
)

// NPMFetcher extracts signals from the npm registry and its downloads API.
type NPMFetcher struct {
	client       *http.Client
	registryURL  string
	downloadsURL string
}

// NewNPMFetcher creates an npm fetcher. Empty URLs select the public
// endpoints.
func NewNPMFetcher(registryURL, downloadsURL string) *NPMFetcher {
	if registryURL == "" {
		registryURL = defaultNPMRegistryURL
	}
	if downloadsURL == "" {
		downloadsURL = defaultNPMDownloadsURL
	}
	return &NPMFetcher{
		client:       newHTTPClient(),
		registryURL:  strings.TrimRight(registryURL, "/"),
		downloadsURL: strings.TrimRight(downloadsURL, "/"),
	}
}

type npmPackument struct {
	DistTags map[string]string     `json:"dist-tags"`
	Time     map[string]string     `json:"time"`
	Versions map[string]npmVersion `json:"versions"`
}

type npmVersion struct {
	Scripts          map[string]string `json:"scripts"`
	Repository       any               `json:"repository"`
	Homepage         string            `json:"homepage"`
	License          any               `json:"license"`
	HasInstallScript bool              `json:"hasInstallScript"`
}

type npmDownloads struct {
	Downloads int `json:"downloads"`
}

func (f *NPMFetcher) FetchSignals(ctx context.Context, name string) Signals {
	var pack npmPackument
	reqURL := f.registryURL + "/" + url.PathEscape(name)
	if err := fetchJSON(ctx, f.client, reqURL, &pack); err != nil {
		return Signals{Exists: false}
	}

	var dates []time.Time
	for key, v := range pack.Time {
		if key == "created" || key == "modified" {
			continue
		}
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			dates = append(dates, t)
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	sig := Signals{
		Exists:       true,
		ReleaseCount: len(dates),
	}
	if len(dates) > 0 {
		first, last := dates[0], dates[len(dates)-1]
		sig.FirstRelease = &first
		sig.LastRelease = &last
	}

	if latestTag, ok := pack.DistTags["latest"]; ok {
		if latest, ok := pack.Versions[latestTag]; ok {
			sig.HasRepo = latest.Repository != nil || latest.Homepage != ""
			sig.HasLicense = latest.License != nil
			sig.HasInstallHooks = hasInstallScripts(latest)
		}
	}

	// Downloads come from a separate API; failure there degrades to
	// "popularity unknown" rather than "package absent".
	var dl npmDownloads
	dlURL := f.downloadsURL + "/downloads/point/last-week/" + url.PathEscape(name)
	if err := fetchJSON(ctx, f.client, dlURL, &dl); err == nil {
		sig.Downloads = dl.Downloads
		sig.DownloadsKnown = true
	}

	return sig
}

func hasInstallScripts(v npmVersion) bool {
	if v.HasInstallScript {
		return true
	}
	for _, name := range []string{"preinstall", "install", "postinstall"} {
		if _, ok := v.Scripts[name]; ok {
			return true
		}
	}
	return false
}
