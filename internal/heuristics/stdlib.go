package heuristics

import (
	"strings"

	"github.com/slopspotter/slopscan/internal/registry"
)

// Standard-library module names per ecosystem. Anything here is pinned to
// low risk before any other signal is consulted: an AI suggesting "json" or
// "fs" is not hallucinating a dependency.

var pythonStdlib = newSet(
	"abc", "argparse", "array", "asyncio", "base64", "collections",
	"concurrent", "contextlib", "copy", "csv", "datetime", "enum",
	"functools", "getopt", "getpass", "glob", "gzip", "hashlib", "heapq",
	"html", "http", "importlib", "io", "ipaddress", "itertools", "json",
	"logging", "math", "os", "pathlib", "pickle", "platform", "plistlib",
	"queue", "random", "re", "sched", "secrets", "shutil", "signal",
	"socket", "sqlite3", "ssl", "statistics", "string", "subprocess",
	"sys", "tempfile", "textwrap", "threading", "time", "typing", "uuid",
	"xml", "zipfile",
)

var nodeBuiltins = newSet(
	"assert", "buffer", "child_process", "cluster", "crypto", "dgram",
	"dns", "events", "fs", "http", "http2", "https", "net", "os", "path",
	"perf_hooks", "process", "querystring", "readline", "stream",
	"string_decoder", "timers", "tls", "url", "util", "v8", "vm",
	"worker_threads", "zlib",
)

var goStdlib = newSet(
	"bufio", "bytes", "context", "crypto", "encoding/json", "errors",
	"flag", "fmt", "io", "log", "math", "net", "net/http", "os",
	"os/exec", "path", "path/filepath", "reflect", "regexp", "sort",
	"strconv", "strings", "sync", "time",
)

var rustStdlib = newSet("std", "core", "alloc")

func newSet(names ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}

// IsStandardLibrary reports whether ref names a standard-library module of
// its ecosystem.
func IsStandardLibrary(ref registry.PackageRef) bool {
	name := strings.ToLower(strings.TrimSpace(ref.Name))
	switch ref.Ecosystem {
	case registry.EcosystemPython:
		_, ok := pythonStdlib[name]
		return ok
	case registry.EcosystemJavaScript:
		// Node builtins may be imported with the "node:" scheme.
		name = strings.TrimPrefix(name, "node:")
		_, ok := nodeBuiltins[name]
		return ok
	case registry.EcosystemGo:
		_, ok := goStdlib[name]
		return ok
	case registry.EcosystemRust:
		_, ok := rustStdlib[name]
		return ok
	}
	return false
}
