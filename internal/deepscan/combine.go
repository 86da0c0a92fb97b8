package deepscan

import (
	"fmt"
	"net"
	"strings"

	"github.com/slopspotter/slopscan/internal/heuristics"
	"github.com/slopspotter/slopscan/internal/sandbox"
)

// CombineConfig holds the verdict-blending knobs. The constants are tuned
// informally; treat them as configuration, not invariants.
type CombineConfig struct {
	// RegistryHosts are endpoints a package install legitimately talks to.
	RegistryHosts []string
	// SuspiciousSpawnPatterns flag process argv substrings associated with
	// reverse shells and destructive commands.
	SuspiciousSpawnPatterns []string

	AgreeConfidence     float64
	BehaviorConfidence  float64
	HeuristicConfidence float64
	CleanConfidence     float64
	SimulatedConfidence float64
}

// DefaultCombineConfig returns the stock tuning.
func DefaultCombineConfig() CombineConfig {
	return CombineConfig{
		RegistryHosts: []string{
			"pypi.org", "files.pythonhosted.org",
			"registry.npmjs.org",
			"crates.io", "static.crates.io",
			"proxy.golang.org",
		},
		SuspiciousSpawnPatterns: []string{
			"nc ", "netcat", "socat",
			"bash -i", "sh -i", "/dev/tcp/",
			"rm -rf /", "mkfs",
			"| sh", "| bash",
			"chmod +x /tmp", "chmod 777",
			"base64 -d", "base64 --decode",
		},
		AgreeConfidence:     0.9,
		BehaviorConfidence:  0.7,
		HeuristicConfidence: 0.6,
		CleanConfidence:     0.8,
		SimulatedConfidence: 0.35,
	}
}

// Combine merges the heuristic verdict with a behavioral trace into the
// final result. source names the tier that produced the trace.
func Combine(cfg CombineConfig, verdict heuristics.Verdict, trace *sandbox.Trace, source Source) Result {
	var indicators []string
	behavioral := false

	for _, endpoint := range trace.NetworkConnections {
		if cfg.suspiciousEndpoint(endpoint) {
			behavioral = true
			indicators = append(indicators, "Connection to non-registry endpoint "+endpoint)
		}
	}
	for _, spawn := range trace.ProcessSpawns {
		if pattern, ok := cfg.suspiciousSpawn(spawn); ok {
			behavioral = true
			indicators = append(indicators, fmt.Sprintf("Suspicious process %q (matched %q)", truncate(spawn, 120), pattern))
		}
	}
	if failed(trace.ImportExitCode) && verdict.Signals["install"].Score > 0 {
		behavioral = true
		indicators = append(indicators, "Import failed after a risky install step")
	} else if failed(trace.ImportExitCode) {
		indicators = append(indicators, "Package failed to import")
	}
	if failed(trace.InstallExitCode) {
		indicators = append(indicators, "Package failed to install")
	}
	if trace.TimedOut {
		indicators = append(indicators, "Execution hit its time limit")
	}

	heuristicRisky := verdict.RiskLevel == heuristics.RiskHigh
	if heuristicRisky {
		indicators = append(indicators, "Metadata heuristics: "+verdict.Summary)
	}

	malicious := behavioral || heuristicRisky
	var confidence float64
	switch {
	case behavioral && heuristicRisky:
		confidence = cfg.AgreeConfidence
	case behavioral:
		confidence = cfg.BehaviorConfidence
	case heuristicRisky:
		confidence = cfg.HeuristicConfidence
	default:
		confidence = cfg.CleanConfidence
	}

	if len(indicators) == 0 {
		indicators = []string{"No malicious behavior observed"}
	}

	return Result{
		IsMalicious:        malicious,
		Confidence:         confidence,
		Indicators:         indicators,
		NetworkConnections: trace.NetworkConnections,
		Source:             source,
		Heuristic:          verdict,
	}
}

// suspiciousEndpoint reports whether an observed "host:port" endpoint is
// worth flagging. Registry hosts and loopback traffic are expected during
// install; for bare IPs the hostname is unknown, so only non-web ports are
// flagged to keep CDN-served registry traffic from tripping every scan.
func (cfg CombineConfig) suspiciousEndpoint(endpoint string) bool {
	host, port, err := net.SplitHostPort(endpoint)
	if err != nil {
		host, port = endpoint, ""
	}
	if ip := net.ParseIP(host); ip != nil {
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() {
			return false
		}
		// DNS lookups are ambient noise.
		if port == "53" {
			return false
		}
		return port != "443" && port != "80"
	}
	for _, allowed := range cfg.RegistryHosts {
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return false
		}
	}
	return true
}

func (cfg CombineConfig) suspiciousSpawn(argv string) (string, bool) {
	lowered := strings.ToLower(argv)
	for _, pattern := range cfg.SuspiciousSpawnPatterns {
		if strings.Contains(lowered, pattern) {
			return pattern, true
		}
	}
	return "", false
}

func failed(exit *int) bool { return exit != nil && *exit != 0 }

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
