package sandbox

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/slopspotter/slopscan/internal/registry"
)

// Container images with the per-language runner baked in. Only Python and
// JavaScript have dynamic runners; other ecosystems stay heuristic-only.
var sandboxImages = map[registry.Ecosystem]string{
	registry.EcosystemPython:     "slopscan/python-sandbox:latest",
	registry.EcosystemJavaScript: "slopscan/node-sandbox:latest",
}

// vmImageDirs are searched in order for a sandbox qcow2 base image.
var vmImageDirs = []string{
	"/var/lib/slopscan/images",
	"/var/lib/libvirt/images",
}

const probeTimeout = 5 * time.Second

// Selector probes the host for a usable execution backend. Probes are never
// cached: a container daemon can die between scans, so every scan re-asks.
type Selector struct {
	log *logrus.Entry

	// Injected for tests.
	lookPath func(string) (string, error)
	runProbe func(ctx context.Context, name string, args ...string) error
	statFile func(string) bool
}

// NewSelector creates a backend selector probing the real host.
func NewSelector(log *logrus.Entry) *Selector {
	return &Selector{
		log:      log,
		lookPath: exec.LookPath,
		runProbe: runProbeCommand,
		statFile: fileExists,
	}
}

// Select picks the best available backend for the ecosystem: container
// first, VM second, otherwise unavailable.
func (s *Selector) Select(ctx context.Context, eco registry.Ecosystem) Backend {
	image, ok := sandboxImages[eco]
	if !ok {
		return Backend{Kind: BackendUnavailable, Reason: "no dynamic runner for ecosystem " + string(eco)}
	}

	if b, ok := s.probeContainer(ctx, image); ok {
		return b
	}
	if b, ok := s.probeVM(ctx); ok {
		return b
	}
	return Backend{Kind: BackendUnavailable, Reason: "no container daemon or VM hypervisor found"}
}

func (s *Selector) probeContainer(ctx context.Context, image string) (Backend, bool) {
	if _, err := s.lookPath("docker"); err != nil {
		return Backend{}, false
	}
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	if err := s.runProbe(ctx, "docker", "info"); err != nil {
		s.log.WithError(err).Debug("container daemon not reachable")
		return Backend{}, false
	}
	if err := s.runProbe(ctx, "docker", "image", "inspect", image); err != nil {
		s.log.WithField("image", image).Debug("sandbox image not present")
		return Backend{}, false
	}
	return Backend{Kind: BackendContainer, Image: image, Reason: "container daemon available"}, true
}

func (s *Selector) probeVM(ctx context.Context) (Backend, bool) {
	if runtime.GOOS != "linux" {
		return Backend{}, false
	}
	if _, err := s.lookPath("virsh"); err != nil {
		return Backend{}, false
	}
	if _, err := s.lookPath("qemu-system-x86_64"); err != nil {
		return Backend{}, false
	}
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	if err := s.runProbe(ctx, "virsh", "version"); err != nil {
		s.log.WithError(err).Debug("libvirt not reachable")
		return Backend{}, false
	}

	image := s.findVMImage()
	if image == "" {
		return Backend{}, false
	}
	return Backend{Kind: BackendVM, Image: image, Reason: "hypervisor available"}, true
}

// findVMImage returns the first sandbox qcow2 base image found on disk.
func (s *Selector) findVMImage() string {
	for _, dir := range vmImageDirs {
		for _, name := range []string{"slopscan-sandbox.qcow2", "sandbox.qcow2"} {
			path := filepath.Join(dir, name)
			if s.statFile(path) {
				return path
			}
		}
	}
	return ""
}

func runProbeCommand(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = nil
	cmd.Stderr = nil
	return cmd.Run()
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
