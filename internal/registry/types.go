package registry

import (
	"fmt"
	"strings"
	"time"
)

// Ecosystem identifies a package-manager universe.
type Ecosystem string

const (
	EcosystemPython     Ecosystem = "python"
	EcosystemJavaScript Ecosystem = "javascript"
	EcosystemRust       Ecosystem = "rust"
	EcosystemGo         Ecosystem = "go"
)

// ParseEcosystem normalizes a user-supplied language string to an Ecosystem.
// It accepts the aliases the snippet scanner sends ("py", "js", "node", ...).
func ParseEcosystem(language string) (Ecosystem, error) {
	switch strings.ToLower(strings.TrimSpace(language)) {
	case "python", "py":
		return EcosystemPython, nil
	case "javascript", "js", "node", "npm", "typescript", "ts":
		return EcosystemJavaScript, nil
	case "rust", "cargo":
		return EcosystemRust, nil
	case "go", "golang":
		return EcosystemGo, nil
	default:
		return "", fmt.Errorf("unsupported language: %q", language)
	}
}

// PackageRef identifies one package in one ecosystem. Created per request,
// never mutated.
type PackageRef struct {
	Name      string
	Ecosystem Ecosystem
}

func (r PackageRef) String() string {
	return string(r.Ecosystem) + "/" + r.Name
}

// Signals holds the metadata signals extracted from a package registry.
// A Signals value is produced once per (ecosystem, name) and cached; cache
// entries are replaced wholesale, never patched.
type Signals struct {
	Exists          bool
	FirstRelease    *time.Time
	LastRelease     *time.Time
	ReleaseCount    int
	Downloads       int
	DownloadsKnown  bool
	HasRepo         bool
	HasLicense      bool
	HasInstallHooks bool
	WheelOnly       bool
}

// MetadataURL returns the human-facing registry page for a package, or ""
// when the ecosystem has none.
func MetadataURL(ref PackageRef) string {
	switch ref.Ecosystem {
	case EcosystemPython:
		return "https://pypi.org/project/" + ref.Name + "/"
	case EcosystemJavaScript:
		return "https://www.npmjs.com/package/" + ref.Name
	case EcosystemRust:
		return "https://crates.io/crates/" + ref.Name
	case EcosystemGo:
		return "https://pkg.go.dev/" + ref.Name
	}
	return ""
}
