package heuristics

import (
	"sort"
	"strings"
	"time"

	"github.com/slopspotter/slopscan/internal/registry"
)

// RiskLevel buckets a score for display.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Weights configures the scorer. The numbers are tuning knobs, not
// invariants: nothing outside this package may assume their exact values
// beyond "higher = riskier".
type Weights struct {
	Name            float64
	Freshness       float64
	Popularity      float64
	MaintainerTrust float64
	InstallHook     float64

	RepoBonus    float64
	LicenseBonus float64

	// Normalizer divides the weighted sum before clamping to [0,1].
	Normalizer float64

	HighThreshold   float64
	MediumThreshold float64
}

// DefaultWeights returns the stock tuning.
func DefaultWeights() Weights {
	return Weights{
		Name:            0.9,
		Freshness:       0.6,
		Popularity:      0.5,
		MaintainerTrust: 0.4,
		InstallHook:     0.6,
		RepoBonus:       0.3,
		LicenseBonus:    0.1,
		Normalizer:      3.0,
		HighThreshold:   0.7,
		MediumThreshold: 0.4,
	}
}

// SubSignal is one component risk with a short human-readable reason.
type SubSignal struct {
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}

// Verdict is the heuristic assessment of one package. It is derived purely
// from the name and already-resolved registry signals.
type Verdict struct {
	RiskLevel   RiskLevel            `json:"riskLevel"`
	Score       float64              `json:"score"`
	Summary     string               `json:"summary"`
	MetadataURL string               `json:"metadataUrl,omitempty"`
	Signals     map[string]SubSignal `json:"signals,omitempty"`
}

// Scorer turns registry signals into a heuristic verdict. Scoring performs
// no I/O; the clock is injected so results are reproducible in tests.
type Scorer struct {
	weights Weights
	now     func() time.Time
}

// NewScorer creates a scorer with the given weights.
func NewScorer(w Weights) *Scorer {
	return &Scorer{weights: w, now: time.Now}
}

// NewScorerAt creates a scorer with a fixed clock, for deterministic tests.
func NewScorerAt(w Weights, now time.Time) *Scorer {
	return &Scorer{weights: w, now: func() time.Time { return now }}
}

// Score computes the heuristic verdict for ref given its registry signals.
func (s *Scorer) Score(ref registry.PackageRef, sig registry.Signals) Verdict {
	if IsStandardLibrary(ref) {
		return Verdict{
			RiskLevel:   RiskLow,
			Score:       0.05,
			Summary:     string(ref.Ecosystem) + " standard library module",
			MetadataURL: registry.MetadataURL(ref),
		}
	}

	// A package the registry has never heard of is the core
	// hallucination/dependency-confusion signal; nothing else matters.
	if !sig.Exists {
		return Verdict{
			RiskLevel:   RiskHigh,
			Score:       0.9,
			Summary:     "Package not found in registry",
			MetadataURL: registry.MetadataURL(ref),
			Signals: map[string]SubSignal{
				"existence": {Score: 1.0, Reason: "Package not found in registry"},
			},
		}
	}

	signals := map[string]SubSignal{
		"name":       NameShapeRisk(ref.Name),
		"freshness":  s.freshnessRisk(sig),
		"popularity": popularityRisk(sig),
		"maintainer": maintainerRisk(sig),
		"install":    installRisk(sig),
	}

	w := s.weights
	total := w.Name*signals["name"].Score +
		w.Freshness*signals["freshness"].Score +
		w.Popularity*signals["popularity"].Score +
		w.MaintainerTrust*signals["maintainer"].Score +
		w.InstallHook*signals["install"].Score
	if sig.HasRepo {
		total -= w.RepoBonus
	}
	if sig.HasLicense {
		total -= w.LicenseBonus
	}
	score := clamp01(total / w.Normalizer)

	return Verdict{
		RiskLevel:   s.mapLevel(score),
		Score:       score,
		Summary:     buildSummary(signals),
		MetadataURL: registry.MetadataURL(ref),
		Signals:     signals,
	}
}

func (s *Scorer) mapLevel(score float64) RiskLevel {
	switch {
	case score >= s.weights.HighThreshold:
		return RiskHigh
	case score >= s.weights.MediumThreshold:
		return RiskMedium
	default:
		return RiskLow
	}
}

// buildSummary joins the reasons of every non-zero signal, in a stable
// order so repeated scoring produces identical text.
func buildSummary(signals map[string]SubSignal) string {
	keys := make([]string, 0, len(signals))
	for k := range signals {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var reasons []string
	for _, k := range keys {
		if sig := signals[k]; sig.Score > 0 && sig.Reason != "" {
			reasons = append(reasons, sig.Reason)
		}
	}
	if len(reasons) == 0 {
		return "No strong red flags detected"
	}
	return strings.Join(reasons, "; ")
}

// suspiciousNameTokens are substrings that show up disproportionately in
// squatting campaigns.
var suspiciousNameTokens = []string{"installer", "updater", "crypto", "mining", "hack", "typo"}

// NameShapeRisk scores the lexical shape of a package name: suspicious
// tokens, digits, hyphens, excessive length. It is also the only signal
// available to the simulated fallback tier.
func NameShapeRisk(name string) SubSignal {
	lowered := strings.ToLower(strings.TrimSpace(name))
	if lowered == "" {
		return SubSignal{Score: 0.4, Reason: "Missing name"}
	}

	risk := 0.0
	var reasons []string
	for _, token := range suspiciousNameTokens {
		if strings.Contains(lowered, token) {
			risk += 0.4
			reasons = append(reasons, "Suspicious token")
			break
		}
	}
	if strings.ContainsAny(lowered, "0123456789") {
		risk += 0.2
		reasons = append(reasons, "Contains digits")
	}
	if strings.Contains(lowered, "-") {
		risk += 0.1
		reasons = append(reasons, "Contains hyphen")
	}
	if len(lowered) > 30 {
		risk += 0.1
		reasons = append(reasons, "Long name")
	}

	reason := "Benign name"
	if len(reasons) > 0 {
		reason = strings.Join(reasons, ", ")
	}
	return SubSignal{Score: clamp01(risk), Reason: reason}
}

const (
	veryNewWindow  = 30 * 24 * time.Hour
	staleThreshold = 3 * 365 * 24 * time.Hour
)

func (s *Scorer) freshnessRisk(sig registry.Signals) SubSignal {
	if sig.FirstRelease == nil && sig.LastRelease == nil {
		return SubSignal{Score: 0, Reason: "No release dates"}
	}
	now := s.now()
	if sig.FirstRelease != nil && now.Sub(*sig.FirstRelease) < veryNewWindow {
		return SubSignal{Score: 0.6, Reason: "First published less than 30 days ago"}
	}
	if sig.LastRelease != nil && now.Sub(*sig.LastRelease) > staleThreshold {
		return SubSignal{Score: 0.4, Reason: "No release in over 3 years"}
	}
	return SubSignal{Score: 0, Reason: "Release history looks normal"}
}

// DownloadTier buckets download counts the way humans reason about
// popularity.
type DownloadTier string

const (
	TierMassive  DownloadTier = "massive"
	TierPopular  DownloadTier = "popular"
	TierModerate DownloadTier = "moderate"
	TierLow      DownloadTier = "low"
	TierMinimal  DownloadTier = "minimal"
)

// TierForDownloads maps a download count to its tier.
func TierForDownloads(downloads int) DownloadTier {
	switch {
	case downloads >= 10_000_000:
		return TierMassive
	case downloads >= 1_000_000:
		return TierPopular
	case downloads >= 100_000:
		return TierModerate
	case downloads >= 10_000:
		return TierLow
	default:
		return TierMinimal
	}
}

func popularityRisk(sig registry.Signals) SubSignal {
	if sig.DownloadsKnown {
		switch TierForDownloads(sig.Downloads) {
		case TierMinimal:
			if sig.Downloads < 100 {
				return SubSignal{Score: 0.6, Reason: "Almost no downloads"}
			}
			return SubSignal{Score: 0.3, Reason: "Very few downloads"}
		case TierLow:
			return SubSignal{Score: 0.1, Reason: "Modest download count"}
		default:
			return SubSignal{Score: 0, Reason: "Widely downloaded"}
		}
	}
	// No download metric for this ecosystem; fall back to release count.
	switch {
	case sig.ReleaseCount <= 2:
		return SubSignal{Score: 0.4, Reason: "Very few releases"}
	case sig.ReleaseCount < 10:
		return SubSignal{Score: 0.2, Reason: "Few releases"}
	default:
		return SubSignal{Score: 0, Reason: "Established release history"}
	}
}

func maintainerRisk(sig registry.Signals) SubSignal {
	var missing []string
	if !sig.HasRepo {
		missing = append(missing, "repo link")
	}
	if !sig.HasLicense {
		missing = append(missing, "license")
	}
	if len(missing) == 0 {
		return SubSignal{Score: 0, Reason: "Repo and license present"}
	}
	return SubSignal{
		Score:  0.4 * float64(len(missing)),
		Reason: "Missing " + strings.Join(missing, ", "),
	}
}

func installRisk(sig registry.Signals) SubSignal {
	if sig.HasInstallHooks {
		return SubSignal{Score: 0.6, Reason: "Declares install scripts"}
	}
	if sig.WheelOnly {
		return SubSignal{Score: 0.3, Reason: "Wheels only (no sdist)"}
	}
	return SubSignal{Score: 0, Reason: "No install concerns"}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
