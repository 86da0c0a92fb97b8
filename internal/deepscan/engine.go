package deepscan

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/slopspotter/slopscan/internal/heuristics"
	"github.com/slopspotter/slopscan/internal/registry"
	"github.com/slopspotter/slopscan/internal/sandbox"
)

// scanState tracks where a request is in the fallback chain, mainly for
// structured logs.
type scanState string

const (
	stateStart             scanState = "start"
	stateBackendSelection  scanState = "backend_selection"
	stateExecuting         scanState = "executing"
	stateTraceParsed       scanState = "trace_parsed"
	stateCombined          scanState = "combined"
	stateSimulatedFallback scanState = "simulated_fallback"
)

// SignalSource resolves registry signals for a package.
type SignalSource interface {
	Signals(ctx context.Context, ref registry.PackageRef) registry.Signals
}

// BackendSelector probes the host for a usable execution tier.
type BackendSelector interface {
	Select(ctx context.Context, eco registry.Ecosystem) sandbox.Backend
}

// Harness executes one package inside a selected backend.
type Harness interface {
	Kind() sandbox.BackendKind
	Run(ctx context.Context, ref registry.PackageRef) (*sandbox.Trace, error)
}

// HarnessFactory builds the harness for a selected backend.
type HarnessFactory func(backend sandbox.Backend, limits sandbox.Limits, log *logrus.Entry) Harness

// Config bundles the engine's tuning.
type Config struct {
	Limits         sandbox.Limits
	Combine        CombineConfig
	DisableSandbox bool
}

// Engine runs deep scans: heuristics always, sandboxed execution when a
// backend is available, a clearly labeled simulated result otherwise.
type Engine struct {
	cfg        Config
	signals    SignalSource
	scorer     *heuristics.Scorer
	selector   BackendSelector
	newHarness HarnessFactory
	log        *logrus.Entry

	// One sandbox execution in flight per host. Registry fetches and
	// scoring for other requests still proceed concurrently.
	sem *semaphore.Weighted
}

// NewEngine wires an engine against the real registries and the real host
// sandbox tiers.
func NewEngine(cfg Config, log *logrus.Entry) *Engine {
	return &Engine{
		cfg:        cfg,
		signals:    registry.NewCollector(registry.NewCache()),
		scorer:     heuristics.NewScorer(heuristics.DefaultWeights()),
		selector:   sandbox.NewSelector(log),
		newHarness: defaultHarnessFactory,
		log:        log,
		sem:        semaphore.NewWeighted(1),
	}
}

func defaultHarnessFactory(backend sandbox.Backend, limits sandbox.Limits, log *logrus.Entry) Harness {
	if backend.Kind == sandbox.BackendVM {
		return sandbox.NewVMHarness(backend, limits, log)
	}
	return sandbox.NewContainerHarness(backend, limits, log)
}

// Scan runs the full pipeline for one request.
func (e *Engine) Scan(ctx context.Context, req Request) Response {
	name := strings.TrimSpace(req.PackageName)
	if name == "" {
		return Response{Success: false, Error: "packageName is required"}
	}
	eco, err := registry.ParseEcosystem(req.Language)
	if err != nil {
		return Response{Success: false, Error: err.Error()}
	}
	ref := registry.PackageRef{Name: name, Ecosystem: eco}

	log := e.log.WithField("package", ref.String())
	log.WithField("state", stateStart).Debug("scan started")

	// Standard-library names need no registry lookup and no sandbox.
	if heuristics.IsStandardLibrary(ref) {
		result := Result{
			IsMalicious: false,
			Confidence:  e.cfg.Combine.CleanConfidence,
			Indicators:  []string{"Standard library module, no scan needed"},
			Source:      SourceSimulated,
			Heuristic:   e.scorer.Score(ref, registry.Signals{}),
		}
		return Response{Success: true, Result: &result}
	}

	sig := e.signals.Signals(ctx, ref)
	verdict := e.scorer.Score(ref, sig)

	// Nonexistence already implies a hallucinated or dependency-confusion
	// package; there is nothing to execute.
	if !sig.Exists {
		result := Result{
			IsMalicious: true,
			Confidence:  verdict.Score,
			Indicators: []string{
				"Package not found in registry",
				"Possible AI-hallucinated or typosquatted dependency",
			},
			Source:    SourceSimulated,
			Heuristic: verdict,
		}
		return Response{Success: true, Result: &result}
	}

	if e.cfg.DisableSandbox {
		return e.simulated(log, name, "sandbox disabled", verdict)
	}

	log.WithField("state", stateBackendSelection).Debug("probing backends")
	backend := e.selector.Select(ctx, eco)
	if backend.Kind == sandbox.BackendUnavailable {
		return e.simulated(log, name, backend.Reason, verdict)
	}

	if err := e.sem.Acquire(ctx, 1); err != nil {
		return e.simulated(log, name, "scan slot wait canceled", verdict)
	}
	defer e.sem.Release(1)

	log.WithFields(logrus.Fields{
		"state":   stateExecuting,
		"backend": backend.Kind,
		"image":   backend.Image,
	}).Info("executing in sandbox")

	harness := e.newHarness(backend, e.cfg.Limits, log)
	trace, err := harness.Run(ctx, ref)
	if err != nil {
		reason := "sandbox failed"
		var execErr *sandbox.ExecutionError
		if errors.As(err, &execErr) {
			reason = "sandbox " + string(execErr.Kind)
		}
		log.WithError(err).Warn("sandbox execution failed")
		return e.simulated(log, name, reason, verdict)
	}

	log.WithFields(logrus.Fields{
		"state":       stateTraceParsed,
		"connections": len(trace.NetworkConnections),
		"spawns":      len(trace.ProcessSpawns),
	}).Debug("trace parsed")

	result := Combine(e.cfg.Combine, verdict, trace, sourceForBackend(harness.Kind()))
	log.WithFields(logrus.Fields{
		"state":      stateCombined,
		"malicious":  result.IsMalicious,
		"confidence": result.Confidence,
	}).Info("scan complete")
	return Response{Success: true, Result: &result}
}

func (e *Engine) simulated(log *logrus.Entry, name, reason string, verdict heuristics.Verdict) Response {
	log.WithFields(logrus.Fields{
		"state":  stateSimulatedFallback,
		"reason": reason,
	}).Info("falling back to simulated result")
	result := Simulate(e.cfg.Combine, name, reason, verdict)
	return Response{Success: true, Result: &result}
}
