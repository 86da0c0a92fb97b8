package sandbox

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// runnerReport is the JSON line the in-sandbox runner scripts print.
type runnerReport struct {
	InstallExit       *int     `json:"installExit"`
	ImportExit        *int     `json:"importExit"`
	InstalledVersion  string   `json:"installedVersion"`
	DownloadSizeBytes int64    `json:"downloadSizeBytes"`
	TraceLines        []string `json:"traceLines"`
	TimedOut          bool     `json:"timedOut"`
}

// parseReport extracts the report from runner stdout. The report is the
// last JSON object line; anything before it is tool noise.
func parseReport(stdout []byte) (*runnerReport, error) {
	lines := bytes.Split(bytes.TrimSpace(stdout), []byte("\n"))
	for i := len(lines) - 1; i >= 0; i-- {
		line := bytes.TrimSpace(lines[i])
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		var report runnerReport
		if err := json.Unmarshal(line, &report); err == nil {
			return &report, nil
		}
	}
	return nil, fmt.Errorf("no report line in runner output (%d bytes)", len(stdout))
}

// traceFromReport turns a runner report into a host-side Trace, parsing the
// raw strace lines into endpoint, spawn and file records.
func traceFromReport(report *runnerReport) *Trace {
	t := &Trace{
		InstallExitCode:   report.InstallExit,
		ImportExitCode:    report.ImportExit,
		InstalledVersion:  report.InstalledVersion,
		DownloadSizeBytes: report.DownloadSizeBytes,
		TimedOut:          report.TimedOut,
	}
	ParseTraceLines(report.TraceLines, t)
	return t
}

var (
	connectRe = regexp.MustCompile(`connect\(\d+,\s*\{[^}]*sin6?_port=htons\((\d+)\)[^}]*(?:sin_addr=inet_addr\("([^"]+)"\)|sin_addr="([^"]+)"|inet_pton\([^,]+,\s*"([^"]+)")`)
	execveRe  = regexp.MustCompile(`execve\("([^"]*)",\s*\[([^\]]*)\]`)
	fileOpRe  = regexp.MustCompile(`(?:openat|open|unlinkat|unlink|renameat|rename|mkdirat|mkdir|chmod)\((?:[^,"]*,\s*)?"([^"]+)"`)
	argRe     = regexp.MustCompile(`"((?:[^"\\]|\\.)*)"`)
)

// ParseTraceLines folds raw strace output lines into t. The parser is
// deliberately tolerant: a line that matches nothing is dropped, never an
// error, since the guest controls this text.
func ParseTraceLines(lines []string, t *Trace) {
	seenConn := make(map[string]struct{})
	seenFile := make(map[string]struct{})
	for _, line := range lines {
		if m := connectRe.FindStringSubmatch(line); m != nil {
			addr := firstNonEmpty(m[2], m[3], m[4])
			if addr != "" {
				endpoint := addr + ":" + m[1]
				if _, ok := seenConn[endpoint]; !ok {
					seenConn[endpoint] = struct{}{}
					t.NetworkConnections = append(t.NetworkConnections, endpoint)
				}
			}
			continue
		}
		if m := execveRe.FindStringSubmatch(line); m != nil {
			var argv []string
			for _, arg := range argRe.FindAllStringSubmatch(m[2], -1) {
				argv = append(argv, arg[1])
			}
			if len(argv) == 0 {
				argv = []string{m[1]}
			}
			t.ProcessSpawns = append(t.ProcessSpawns, strings.Join(argv, " "))
			continue
		}
		if m := fileOpRe.FindStringSubmatch(line); m != nil {
			path := m[1]
			if _, ok := seenFile[path]; !ok {
				seenFile[path] = struct{}{}
				t.FileOperations = append(t.FileOperations, path)
			}
		}
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
