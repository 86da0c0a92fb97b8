package heuristics

import (
	"testing"

	"github.com/slopspotter/slopscan/internal/registry"
)

func TestIsStandardLibrary(t *testing.T) {
	cases := []struct {
		name      string
		ecosystem registry.Ecosystem
		want      bool
	}{
		{"json", registry.EcosystemPython, true},
		{"JSON", registry.EcosystemPython, true},
		{"requests", registry.EcosystemPython, false},
		{"fs", registry.EcosystemJavaScript, true},
		{"node:crypto", registry.EcosystemJavaScript, true},
		{"express", registry.EcosystemJavaScript, false},
		{"net/http", registry.EcosystemGo, true},
		{"github.com/spf13/cobra", registry.EcosystemGo, false},
		{"std", registry.EcosystemRust, true},
		{"serde", registry.EcosystemRust, false},
	}
	for _, tc := range cases {
		ref := registry.PackageRef{Name: tc.name, Ecosystem: tc.ecosystem}
		if got := IsStandardLibrary(ref); got != tc.want {
			t.Errorf("IsStandardLibrary(%s/%s) = %v, want %v", tc.ecosystem, tc.name, got, tc.want)
		}
	}
}
