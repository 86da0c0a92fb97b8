package sandbox

import (
	"context"
	"errors"
	"io"
	"runtime"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/slopspotter/slopscan/internal/registry"
)

func testLog() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}

func fakeSelector(haveBinaries map[string]bool, probeErr map[string]error, haveFiles bool) *Selector {
	return &Selector{
		log: testLog(),
		lookPath: func(name string) (string, error) {
			if haveBinaries[name] {
				return "/usr/bin/" + name, nil
			}
			return "", errors.New("not found")
		},
		runProbe: func(_ context.Context, name string, args ...string) error {
			return probeErr[name]
		},
		statFile: func(string) bool { return haveFiles },
	}
}

func TestSelectPrefersContainer(t *testing.T) {
	s := fakeSelector(map[string]bool{"docker": true, "virsh": true, "qemu-system-x86_64": true}, nil, true)

	b := s.Select(context.Background(), registry.EcosystemPython)
	if b.Kind != BackendContainer {
		t.Errorf("expected container backend, got %s (%s)", b.Kind, b.Reason)
	}
	if b.Image != "slopscan/python-sandbox:latest" {
		t.Errorf("unexpected image %s", b.Image)
	}
}

func TestSelectFallsBackToVM(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("VM tier is linux-only")
	}
	s := fakeSelector(
		map[string]bool{"virsh": true, "qemu-system-x86_64": true},
		nil, true)

	b := s.Select(context.Background(), registry.EcosystemJavaScript)
	if b.Kind != BackendVM {
		t.Errorf("expected vm backend, got %s (%s)", b.Kind, b.Reason)
	}
}

func TestSelectDeadDaemonSkipsContainer(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("VM tier is linux-only")
	}
	s := fakeSelector(
		map[string]bool{"docker": true, "virsh": true, "qemu-system-x86_64": true},
		map[string]error{"docker": errors.New("cannot connect to daemon")},
		true)

	b := s.Select(context.Background(), registry.EcosystemPython)
	if b.Kind != BackendVM {
		t.Errorf("expected vm fallback, got %s (%s)", b.Kind, b.Reason)
	}
}

func TestSelectNothingAvailable(t *testing.T) {
	s := fakeSelector(map[string]bool{}, nil, false)

	b := s.Select(context.Background(), registry.EcosystemPython)
	if b.Kind != BackendUnavailable {
		t.Errorf("expected unavailable, got %s", b.Kind)
	}
}

func TestSelectUnsupportedEcosystem(t *testing.T) {
	s := fakeSelector(map[string]bool{"docker": true}, nil, true)

	b := s.Select(context.Background(), registry.EcosystemRust)
	if b.Kind != BackendUnavailable {
		t.Errorf("rust has no dynamic runner, got %s", b.Kind)
	}
}

func TestSelectMissingVMImage(t *testing.T) {
	s := fakeSelector(map[string]bool{"virsh": true, "qemu-system-x86_64": true}, nil, false)

	b := s.Select(context.Background(), registry.EcosystemPython)
	if b.Kind != BackendUnavailable {
		t.Errorf("no base image should mean unavailable, got %s", b.Kind)
	}
}
