package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/slopspotter/slopscan/internal/registry"
)

const (
	vmDomain      = "slopscan-sandbox"
	vmSnapshot    = "pristine"
	vmBootTimeout = 90 * time.Second
	vmSSHUser     = "sandbox"
)

// VMHarness runs a package scan inside a libvirt-managed virtual machine.
// The VM is snapshotted before every run and reverted after, so each scan
// starts from the same disk state. Heavier than the container tier but the
// strongest isolation available.
type VMHarness struct {
	backend Backend
	limits  Limits
	log     *logrus.Entry

	runCommand func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewVMHarness creates a harness driving the provisioned sandbox domain.
func NewVMHarness(backend Backend, limits Limits, log *logrus.Entry) *VMHarness {
	return &VMHarness{
		backend:    backend,
		limits:     limits,
		log:        log,
		runCommand: runCapture,
	}
}

// Kind reports the backend tier this harness executes on.
func (h *VMHarness) Kind() BackendKind { return BackendVM }

// Run boots the sandbox domain, executes the runner over SSH and reverts
// the domain to its pristine snapshot.
func (h *VMHarness) Run(ctx context.Context, ref registry.PackageRef) (*Trace, error) {
	script, invoke, err := runnerFor(ref.Ecosystem)
	if err != nil {
		return nil, &ExecutionError{Kind: ErrLaunchFailure, Err: err}
	}

	deadline := vmBootTimeout + h.limits.InstallTimeout + h.limits.ImportTimeout + 30*time.Second
	runCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	if _, err := h.runCommand(runCtx, "virsh", "start", vmDomain); err != nil {
		// Already-running is fine; anything else surfaces on the next step.
		h.log.WithError(err).Debug("domain start")
	}

	// Destroy on exit so a hung guest cannot outlive the scan, then revert
	// so the next scan starts clean.
	defer func() {
		downCtx, downCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer downCancel()
		if _, err := h.runCommand(downCtx, "virsh", "destroy", vmDomain); err != nil {
			h.log.WithError(err).Debug("domain destroy")
		}
		if _, err := h.runCommand(downCtx, "virsh", "snapshot-revert", vmDomain, vmSnapshot); err != nil {
			h.log.WithError(err).Warn("snapshot revert failed, domain may be dirty")
		}
	}()

	if _, err := h.runCommand(runCtx, "virsh", "snapshot-create-as", vmDomain, vmSnapshot, "--atomic"); err != nil {
		h.log.WithError(err).Debug("snapshot exists, reusing")
	}

	ip, err := h.waitForIP(runCtx)
	if err != nil {
		if runCtx.Err() != nil {
			return nil, &ExecutionError{Kind: ErrTimeout, Err: runCtx.Err()}
		}
		return nil, &ExecutionError{Kind: ErrLaunchFailure, Err: err}
	}

	scriptPath, cleanup, err := writeTempScript(script)
	if err != nil {
		return nil, &ExecutionError{Kind: ErrInternal, Err: err}
	}
	defer cleanup()

	target := vmSSHUser + "@" + ip
	if _, err := h.runCommand(runCtx, "scp", sshOpts("-q", scriptPath, target+":/tmp/runner")...); err != nil {
		return nil, &ExecutionError{Kind: ErrLaunchFailure, Err: fmt.Errorf("copying runner: %w", err)}
	}

	sshArgs := sshOpts(target,
		"INSTALL_TIMEOUT="+strconv.Itoa(int(h.limits.InstallTimeout.Seconds())),
		"IMPORT_TIMEOUT="+strconv.Itoa(int(h.limits.ImportTimeout.Seconds())))
	sshArgs = append(sshArgs, invoke[0])
	sshArgs = append(sshArgs, "/tmp/runner", ref.Name)

	stdout, err := h.runCommand(runCtx, "ssh", sshArgs...)
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

var ipv4Re = regexp.MustCompile(`(\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3})/\d+`)

// waitForIP polls domifaddr until the guest reports a lease.
func (h *VMHarness) waitForIP(ctx context.Context) (string, error) {
	bootCtx, cancel := context.WithTimeout(ctx, vmBootTimeout)
	defer cancel()

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		out, err := h.runCommand(bootCtx, "virsh", "domifaddr", vmDomain)
		if err == nil {
			if m := ipv4Re.FindSubmatch(out); m != nil {
				return string(m[1]), nil
			}
		}
		select {
		case <-bootCtx.Done():
			return "", fmt.Errorf("guest never obtained an address: %w", bootCtx.Err())
		case <-ticker.C:
		}
	}
}

func writeTempScript(script string) (string, func(), error) {
	dir, err := os.MkdirTemp("", "slopscan-vm-*")
	if err != nil {
		return "", nil, fmt.Errorf("creating temp dir: %w", err)
	}
	path := filepath.Join(dir, "runner")
	if err := os.WriteFile(path, []byte(script), 0o644); err != nil {
		os.RemoveAll(dir)
		return "", nil, fmt.Errorf("writing runner: %w", err)
	}
	return path, func() { os.RemoveAll(dir) }, nil
}

// sshOpts prepends the non-interactive options every ssh/scp call needs.
func sshOpts(args ...string) []string {
	return append([]string{
		"-o", "StrictHostKeyChecking=no",
		"-o", "UserKnownHostsFile=/dev/null",
		"-o", "ConnectTimeout=10",
		"-o", "BatchMode=yes",
	}, args...)
}
