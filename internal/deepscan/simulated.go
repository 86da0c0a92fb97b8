package deepscan

import (
	"github.com/slopspotter/slopscan/internal/heuristics"
)

// Simulate synthesizes a result when no sandbox tier could run. Only the
// name shape feeds the verdict, so confidence stays low and the reason for
// degrading is spelled out in the indicators.
func Simulate(cfg CombineConfig, name, reason string, verdict heuristics.Verdict) Result {
	shape := heuristics.NameShapeRisk(name)

	indicators := []string{"Sandbox execution skipped: " + reason}
	malicious := shape.Score >= 0.4
	if malicious {
		indicators = append(indicators, "Name-shape analysis: "+shape.Reason)
	}

	return Result{
		IsMalicious: malicious,
		Confidence:  cfg.SimulatedConfidence,
		Indicators:  indicators,
		Source:      SourceSimulated,
		Heuristic:   verdict,
	}
}
