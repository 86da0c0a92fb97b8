package sandbox

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// BackendKind identifies the execution tier a scan ran on.
type BackendKind string

const (
	// BackendUnavailable means no isolation mechanism could be found.
	BackendUnavailable BackendKind = "unavailable"
	// BackendContainer runs the package inside a locked-down container.
	BackendContainer BackendKind = "container"
	// BackendVM runs the package inside a snapshot-reverted virtual machine.
	BackendVM BackendKind = "vm"
)

// Backend is the outcome of one selection probe.
type Backend struct {
	Kind BackendKind
	// Image is the container image or VM domain image the harness will use.
	Image string
	// Reason explains the selection, mainly for logs and the simulated
	// fallback message.
	Reason string
}

// Trace is the raw behavioral record of one sandboxed execution, before
// any verdict logic is applied.
type Trace struct {
	InstallExitCode *int `json:"installExitCode"`
	ImportExitCode  *int `json:"importExitCode"`

	// NetworkConnections holds "ip:port" endpoints observed during the run.
	NetworkConnections []string `json:"networkConnections"`
	// ProcessSpawns holds the argv of every spawned process.
	ProcessSpawns []string `json:"processSpawns"`
	// FileOperations holds paths touched by write-like syscalls.
	FileOperations []string `json:"fileOperations"`

	InstalledVersion  string `json:"installedVersion,omitempty"`
	DownloadSizeBytes int64  `json:"downloadSizeBytes,omitempty"`
	TimedOut          bool   `json:"timedOut"`
}

// ErrorKind classifies execution failures so the controller can decide
// whether to fall back.
type ErrorKind string

const (
	ErrTimeout       ErrorKind = "timeout"
	ErrLaunchFailure ErrorKind = "launch_failure"
	ErrInternal      ErrorKind = "internal"
)

// ExecutionError is a classified harness failure.
type ExecutionError struct {
	Kind ErrorKind
	Err  error
}

func (e *ExecutionError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Limits bounds a single sandboxed execution. Zero values are filled in
// from DefaultLimits by the harnesses.
type Limits struct {
	// NetworkMode maps onto the container network driver. "none" disables
	// outbound traffic entirely, which also breaks package installation, so
	// the default stays permissive.
	NetworkMode string
	PidsLimit   int
	MemoryMB    int
	CPUQuota    float64

	InstallTimeout time.Duration
	ImportTimeout  time.Duration
}

// DefaultLimits returns the stock resource caps.
func DefaultLimits() Limits {
	return Limits{
		NetworkMode:    "bridge",
		PidsLimit:      256,
		MemoryMB:       512,
		CPUQuota:       1.0,
		InstallTimeout: 40 * time.Second,
		ImportTimeout:  15 * time.Second,
	}
}

// LimitsFromEnv returns DefaultLimits overridden by SLOPSCAN_* environment
// variables. Unparseable values are ignored.
func LimitsFromEnv() Limits {
	l := DefaultLimits()
	if v := os.Getenv("SLOPSCAN_NETWORK_MODE"); v != "" {
		l.NetworkMode = v
	}
	if v := os.Getenv("SLOPSCAN_PIDS_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			l.PidsLimit = n
		}
	}
	if v := os.Getenv("SLOPSCAN_MEMORY_MB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			l.MemoryMB = n
		}
	}
	if v := os.Getenv("SLOPSCAN_CPU_QUOTA"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			l.CPUQuota = f
		}
	}
	if v := os.Getenv("SLOPSCAN_INSTALL_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			l.InstallTimeout = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("SLOPSCAN_IMPORT_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			l.ImportTimeout = time.Duration(n) * time.Second
		}
	}
	return l
}
