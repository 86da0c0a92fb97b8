package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/slopspotter/slopscan/internal/deepscan"
	"github.com/slopspotter/slopscan/internal/heuristics"
)

func resetFlags() {
	language = "python"
	jsonOutput = false
	timeout = 180
	networkMode = ""
	noSandbox = false
	verbose = false
	quiet = false
	failOnMalicious = false
	outputFile = ""
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
language: javascript
timeout: 60
network: none
no-sandbox: true
quiet: true
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadConfigFile(path)
	if err != nil {
		t.Fatalf("loadConfigFile: %v", err)
	}
	if cfg.Language != "javascript" || cfg.Timeout != 60 || cfg.Network != "none" {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if !cfg.NoSandbox || !cfg.Quiet {
		t.Errorf("bool fields not parsed: %+v", cfg)
	}
}

func TestLoadConfigFileInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("language: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := loadConfigFile(path); err == nil {
		t.Error("expected error for invalid yaml")
	}
}

func TestLoadConfigFileMissing(t *testing.T) {
	cfg, err := loadConfigFile(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil || cfg != nil {
		t.Errorf("missing file should be (nil, nil), got (%v, %v)", cfg, err)
	}
}

func TestApplyConfig(t *testing.T) {
	resetFlags()
	applyConfig(&configFile{Language: "rust", Timeout: 30, NoSandbox: true})

	if language != "rust" || timeout != 30 || !noSandbox {
		t.Errorf("config not applied: language=%s timeout=%d noSandbox=%v", language, timeout, noSandbox)
	}
}

func TestApplyConfigNil(t *testing.T) {
	resetFlags()
	applyConfig(nil)
	if language != "python" || timeout != 180 {
		t.Error("nil config must not change defaults")
	}
}

func TestResolveConfigEnv(t *testing.T) {
	resetFlags()
	t.Setenv("SLOPSCAN_LANGUAGE", "javascript")
	t.Setenv("SLOPSCAN_TIMEOUT", "90")
	t.Setenv("SLOPSCAN_NO_SANDBOX", "true")

	resolveConfig(nil)
	if language != "javascript" || timeout != 90 || !noSandbox {
		t.Errorf("env not resolved: language=%s timeout=%d noSandbox=%v", language, timeout, noSandbox)
	}
}

func TestResolveConfigEnvIgnoresGarbageInt(t *testing.T) {
	resetFlags()
	t.Setenv("SLOPSCAN_TIMEOUT", "ninety")

	resolveConfig(nil)
	if timeout != 180 {
		t.Errorf("garbage int should keep default, got %d", timeout)
	}
}

func TestLoadConfigurationRejectsQuietVerbose(t *testing.T) {
	resetFlags()
	quiet = true
	verbose = true

	if err := loadConfiguration(nil); err == nil {
		t.Error("expected error for --quiet with --verbose")
	}
}

func TestLoadConfigurationRejectsNonPositiveTimeout(t *testing.T) {
	resetFlags()
	timeout = 0

	if err := loadConfiguration(nil); err == nil {
		t.Error("expected error for zero timeout")
	}
}

func TestRenderResponse(t *testing.T) {
	var buf strings.Builder
	resp := deepscan.Response{
		Success: true,
		Result: &deepscan.Result{
			IsMalicious:        true,
			Confidence:         0.9,
			Indicators:         []string{"Connection to non-registry endpoint 203.0.113.7:4444"},
			NetworkConnections: []string{"203.0.113.7:4444"},
			Source:             deepscan.SourceContainer,
			Heuristic: heuristics.Verdict{
				RiskLevel:   heuristics.RiskHigh,
				Score:       0.8,
				Summary:     "Suspicious token",
				MetadataURL: "https://pypi.org/project/evil-pkg/",
			},
		},
	}

	renderResponse(&buf, "evil-pkg", resp)
	out := buf.String()
	for _, want := range []string{"MALICIOUS", "90%", "container", "203.0.113.7:4444", "pypi.org"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderResponseError(t *testing.T) {
	var buf strings.Builder
	renderResponse(&buf, "x", deepscan.Response{Success: false, Error: "packageName is required"})
	if !strings.Contains(buf.String(), "packageName is required") {
		t.Errorf("error not rendered: %s", buf.String())
	}
}
