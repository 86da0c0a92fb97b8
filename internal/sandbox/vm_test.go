package sandbox

import (
	"context"
	"errors"
	"testing"
	"time"
)

type vmCommandLog struct {
	started   bool
	copied    bool
	executed  bool
	destroyed bool
	reverted  bool
}

func vmHarnessWith(run func(ctx context.Context, name string, args ...string) ([]byte, error)) *VMHarness {
	h := NewVMHarness(Backend{Kind: BackendVM, Image: "/var/lib/slopscan/images/slopscan-sandbox.qcow2"}, DefaultLimits(), testLog())
	h.runCommand = run
	return h
}

func vmFakeCommands(log *vmCommandLog, sshOutput []byte, sshErr error) func(ctx context.Context, name string, args ...string) ([]byte, error) {
	return func(_ context.Context, name string, args ...string) ([]byte, error) {
		switch name {
		case "virsh":
			switch args[0] {
			case "start":
				log.started = true
			case "domifaddr":
				return []byte(" vnet0  52:54:00:aa:bb:cc  ipv4  192.168.122.50/24\n"), nil
			case "destroy":
				log.destroyed = true
			case "snapshot-revert":
				log.reverted = true
			}
			return nil, nil
		case "scp":
			log.copied = true
			return nil, nil
		case "ssh":
			log.executed = true
			return sshOutput, sshErr
		}
		return nil, errors.New("unexpected command " + name)
	}
}

func TestVMRunExecutesAndRevertsSnapshot(t *testing.T) {
	report := `{"installExit": 0, "importExit": 0, "installedVersion": "2.31.0", "traceLines": [], "timedOut": false}`
	var log vmCommandLog
	h := vmHarnessWith(vmFakeCommands(&log, []byte(report+"\n"), nil))

	trace, err := h.Run(context.Background(), pyRef("requests"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if trace.InstalledVersion != "2.31.0" {
		t.Errorf("version = %q", trace.InstalledVersion)
	}
	if !log.started || !log.copied || !log.executed {
		t.Errorf("remote execution incomplete: %+v", log)
	}
	if !log.destroyed || !log.reverted {
		t.Errorf("domain must be destroyed and reverted after a run: %+v", log)
	}
}

func TestVMRunTimeoutDestroysDomain(t *testing.T) {
	var log vmCommandLog
	inner := vmFakeCommands(&log, nil, nil)
	h := vmHarnessWith(func(ctx context.Context, name string, args ...string) ([]byte, error) {
		if name == "ssh" {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return inner(ctx, name, args...)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := h.Run(ctx, pyRef("requests"))

	var execErr *ExecutionError
	if !errors.As(err, &execErr) || execErr.Kind != ErrTimeout {
		t.Fatalf("expected timeout, got %v", err)
	}
	if !log.destroyed || !log.reverted {
		t.Errorf("hung guest must be destroyed and reverted: %+v", log)
	}
}

func TestVMRunLaunchFailure(t *testing.T) {
	var log vmCommandLog
	h := vmHarnessWith(vmFakeCommands(&log, nil, errors.New("connection refused")))

	_, err := h.Run(context.Background(), pyRef("requests"))
	var execErr *ExecutionError
	if !errors.As(err, &execErr) || execErr.Kind != ErrLaunchFailure {
		t.Fatalf("expected launch failure, got %v", err)
	}
	if !log.destroyed {
		t.Error("domain must be destroyed even after a failed run")
	}
}
