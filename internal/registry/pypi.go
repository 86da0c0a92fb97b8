package registry

import (
	"context"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

const defaultPyPIURL = "https://pypi.org"

// PyPIFetcher extracts signals from the PyPI JSON API.
type PyPIFetcher struct {
	client  *http.Client
	baseURL string
}

// NewPyPIFetcher creates a PyPI fetcher. If baseURL is empty the public
// registry is used.
func NewPyPIFetcher(baseURL string) *PyPIFetcher {
	if baseURL == "" {
		baseURL = defaultPyPIURL
	}
	return &PyPIFetcher{
		client:  newHTTPClient(),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

type pypiProject struct {
	Info struct {
		HomePage    string            `json:"home_page"`
		License     string            `json:"license"`
		ProjectURLs map[string]string `json:"project_urls"`
	} `json:"info"`
	Releases map[string][]pypiFile `json:"releases"`
}

type pypiFile struct {
	PackageType string `json:"packagetype"`
	UploadTime  string `json:"upload_time"`
}

func (f *PyPIFetcher) FetchSignals(ctx context.Context, name string) Signals {
	var project pypiProject
	reqURL := f.baseURL + "/pypi/" + url.PathEscape(name) + "/json"
	if err := fetchJSON(ctx, f.client, reqURL, &project); err != nil {
		return Signals{Exists: false}
	}

	var dates []time.Time
	for _, files := range project.Releases {
		for _, file := range files {
			if file.UploadTime == "" {
				continue
			}
			if t, err := parseReleaseTime(file.UploadTime); err == nil {
				dates = append(dates, t)
			}
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	sig := Signals{
		Exists:       true,
		ReleaseCount: len(project.Releases),
		HasRepo:      hasAnyProjectURL(project),
		HasLicense:   isRealLicense(project.Info.License),
	}
	if len(dates) > 0 {
		first, last := dates[0], dates[len(dates)-1]
		sig.FirstRelease = &first
		sig.LastRelease = &last
	}

	// Wheel-only distributions hide their source from casual review.
	if latest := latestReleaseFiles(project.Releases); len(latest) > 0 {
		hasSdist := false
		allWheels := true
		for _, file := range latest {
			switch file.PackageType {
			case "sdist":
				hasSdist = true
				allWheels = false
			case "bdist_wheel":
			default:
				allWheels = false
			}
		}
		sig.WheelOnly = allWheels && !hasSdist
	}

	return sig
}

func hasAnyProjectURL(project pypiProject) bool {
	if project.Info.HomePage != "" {
		return true
	}
	for _, v := range project.Info.ProjectURLs {
		if strings.TrimSpace(v) != "" {
			return true
		}
	}
	return false
}

// isRealLicense rejects empty, "UNKNOWN", and other non-answers PyPI
// metadata is full of.
func isRealLicense(license string) bool {
	trimmed := strings.TrimSpace(license)
	return len(trimmed) > 3 && !strings.Contains(strings.ToLower(trimmed), "unknown")
}

func latestReleaseFiles(releases map[string][]pypiFile) []pypiFile {
	if len(releases) == 0 {
		return nil
	}
	versions := make([]string, 0, len(releases))
	for v := range releases {
		versions = append(versions, v)
	}
	sort.Strings(versions)
	return releases[versions[len(versions)-1]]
}

func parseReleaseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	// PyPI upload_time omits the zone suffix.
	return time.Parse("2006-01-02T15:04:05", s)
}
