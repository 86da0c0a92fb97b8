// Package deepscan coordinates a full package risk assessment: registry
// heuristics, optional sandboxed execution, and the verdict that merges
// both. It owns the fallback chain from container to VM to a simulated
// result.
package deepscan

import (
	"github.com/slopspotter/slopscan/internal/heuristics"
	"github.com/slopspotter/slopscan/internal/sandbox"
)

// Source identifies which tier actually produced a result. It must always
// be truthful: a simulated result is never labeled as backend-derived,
// since downstream trust decisions key off this field.
type Source string

const (
	SourceContainer Source = "container"
	SourceVM        Source = "vm"
	SourceSimulated Source = "simulated"
)

// sourceForBackend maps an execution tier to the result label.
func sourceForBackend(kind sandbox.BackendKind) Source {
	switch kind {
	case sandbox.BackendContainer:
		return SourceContainer
	case sandbox.BackendVM:
		return SourceVM
	default:
		return SourceSimulated
	}
}

// Result is the final assessment of one package.
type Result struct {
	IsMalicious        bool               `json:"isMalicious"`
	Confidence         float64            `json:"confidence"`
	Indicators         []string           `json:"indicators"`
	NetworkConnections []string           `json:"networkConnections,omitempty"`
	Source             Source             `json:"source"`
	Heuristic          heuristics.Verdict `json:"heuristic"`
}

// HeuristicContext is a prior assessment passed along by the caller, e.g.
// from an earlier passive scan of the same snippet.
type HeuristicContext struct {
	RiskLevel        string  `json:"riskLevel"`
	Score            float64 `json:"score"`
	OriginalLanguage string  `json:"originalLanguage"`
}

// Request is one deep-scan invocation as received from the transport.
type Request struct {
	PackageName string            `json:"packageName"`
	Language    string            `json:"language"`
	Context     *HeuristicContext `json:"context,omitempty"`
}

// Response is the envelope returned to the transport.
type Response struct {
	Success bool    `json:"success"`
	Result  *Result `json:"result,omitempty"`
	Error   string  `json:"error,omitempty"`
}
