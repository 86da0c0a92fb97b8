package sandbox

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/slopspotter/slopscan/internal/registry"
)

// ContainerHarness runs a package scan inside a locked-down container. The
// container is named so teardown can find it even after the context dies.
type ContainerHarness struct {
	backend Backend
	limits  Limits
	log     *logrus.Entry

	// Injected for tests.
	runCommand func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewContainerHarness creates a harness for the selected container backend.
func NewContainerHarness(backend Backend, limits Limits, log *logrus.Entry) *ContainerHarness {
	return &ContainerHarness{
		backend:    backend,
		limits:     limits,
		log:        log,
		runCommand: runCapture,
	}
}

// Kind reports the backend tier this harness executes on.
func (h *ContainerHarness) Kind() BackendKind { return BackendContainer }

// Run installs and imports the package inside the container and returns the
// parsed behavioral trace.
func (h *ContainerHarness) Run(ctx context.Context, ref registry.PackageRef) (*Trace, error) {
	script, invoke, err := runnerFor(ref.Ecosystem)
	if err != nil {
		return nil, &ExecutionError{Kind: ErrLaunchFailure, Err: err}
	}

	tmpDir, err := os.MkdirTemp("", "slopscan-sandbox-*")
	if err != nil {
		return nil, &ExecutionError{Kind: ErrInternal, Err: fmt.Errorf("creating temp dir: %w", err)}
	}
	defer os.RemoveAll(tmpDir)

	scriptPath := filepath.Join(tmpDir, "runner")
	if err := os.WriteFile(scriptPath, []byte(script), 0o644); err != nil {
		return nil, &ExecutionError{Kind: ErrInternal, Err: fmt.Errorf("writing runner: %w", err)}
	}

	name := "slopscan-" + randomSuffix()
	// The overall deadline covers both phases plus tracing overhead.
	deadline := h.limits.InstallTimeout + h.limits.ImportTimeout + 20*time.Second
	runCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	// Forcible teardown regardless of how the run ended. A fresh context:
	// runCtx is usually already dead here.
	defer func() {
		rmCtx, rmCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer rmCancel()
		if _, err := h.runCommand(rmCtx, "docker", "rm", "-f", name); err != nil {
			h.log.WithError(err).WithField("container", name).Debug("container teardown")
		}
	}()

	args := []string{
		"run", "--rm", "--name", name,
		"--network", h.limits.NetworkMode,
		"--pids-limit", strconv.Itoa(h.limits.PidsLimit),
		"--memory", fmt.Sprintf("%dm", h.limits.MemoryMB),
		"--cpus", strconv.FormatFloat(h.limits.CPUQuota, 'f', -1, 64),
		"--cap-drop", "ALL",
		// strace inside the container needs ptrace; everything else stays dropped.
		"--cap-add", "SYS_PTRACE",
		"--security-opt", "no-new-privileges",
		// The rootfs is immutable; /tmp is the only writable mount and holds
		// the work dir, the trace output, and the installed package.
		"--read-only",
		"--tmpfs", fmt.Sprintf("/tmp:rw,exec,size=%dm", h.limits.MemoryMB),
		"-v", scriptPath + ":/harness/runner:ro",
		"-e", "HOME=/tmp",
		"-e", "TMPDIR=/tmp",
		"-e", "PIP_TARGET=/tmp/site",
		"-e", "PYTHONPATH=/tmp/site",
		"-e", "INSTALL_TIMEOUT=" + strconv.Itoa(int(h.limits.InstallTimeout.Seconds())),
		"-e", "IMPORT_TIMEOUT=" + strconv.Itoa(int(h.limits.ImportTimeout.Seconds())),
		h.backend.Image,
	}
	args = append(args, invoke...)
	args = append(args, ref.Name)

	h.log.WithFields(logrus.Fields{
		"container": name,
		"image":     h.backend.Image,
		"package":   ref.String(),
	}).Debug("starting container scan")

	stdout, err := h.runCommand(runCtx, "docker", args...)
	if runCtx.Err() != nil {
		return nil, &ExecutionError{Kind: ErrTimeout, Err: runCtx.Err()}
	}
	if err != nil && len(bytes.TrimSpace(stdout)) == 0 {
		return nil, &ExecutionError{Kind: ErrLaunchFailure, Err: err}
	}

	report, err := parseReport(stdout)
	if err != nil {
		return nil, &ExecutionError{Kind: ErrInternal, Err: err}
	}
	return traceFromReport(report), nil
}

// runnerFor returns the embedded runner script and the in-container argv
// prefix that executes it.
func runnerFor(eco registry.Ecosystem) (script string, invoke []string, err error) {
	switch eco {
	case registry.EcosystemPython:
		return pythonRunnerScript, []string{"python3", "/harness/runner"}, nil
	case registry.EcosystemJavaScript:
		return nodeRunnerScript, []string{"sh", "/harness/runner"}, nil
	default:
		return "", nil, errors.New("no dynamic runner for ecosystem " + string(eco))
	}
}

func randomSuffix() string {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	return hex.EncodeToString(b)
}

func runCapture(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return stdout.Bytes(), fmt.Errorf("%s: %w: %s", name, err, stderr.String())
	}
	return stdout.Bytes(), nil
}
