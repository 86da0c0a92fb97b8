package sandbox

// Runner scripts executed inside the sandbox. Each installs the target
// package under strace, imports it, and prints a single JSON report line to
// stdout. The trace lines stay raw; parsing happens on the host so a
// compromised guest cannot shape the parsed result beyond emitting noise.
//
// Report schema (shared by both runners):
//
//	{
//	  "installExit": int | null,
//	  "importExit": int | null,
//	  "installedVersion": string,
//	  "downloadSizeBytes": int,
//	  "traceLines": [string],
//	  "timedOut": bool
//	}

const pythonRunnerScript = `
import json, os, re, subprocess, sys

PKG = sys.argv[1]
INSTALL_TIMEOUT = int(os.environ.get("INSTALL_TIMEOUT", "40"))
IMPORT_TIMEOUT = int(os.environ.get("IMPORT_TIMEOUT", "15"))
TRACE_DIR = "/tmp/trace"
INTERESTING = re.compile(r'connect\(|execve\(|openat?\(|unlink(at)?\(|rename(at)?\(')

report = {
    "installExit": None,
    "importExit": None,
    "installedVersion": "",
    "downloadSizeBytes": 0,
    "traceLines": [],
    "timedOut": False,
}

os.makedirs(TRACE_DIR, exist_ok=True)

def traced(argv, timeout):
    cmd = ["strace", "-ff", "-e", "trace=network,file,process",
           "-o", os.path.join(TRACE_DIR, "t")] + argv
    try:
        proc = subprocess.run(cmd, capture_output=True, timeout=timeout)
        return proc.returncode
    except subprocess.TimeoutExpired:
        report["timedOut"] = True
        return None
    except OSError:
        return None

report["installExit"] = traced(
    [sys.executable, "-m", "pip", "install", "--no-input", "--disable-pip-version-check", PKG],
    INSTALL_TIMEOUT)

if report["installExit"] == 0:
    top = PKG.replace("-", "_").split("[")[0]
    report["importExit"] = traced(
        [sys.executable, "-c", "import " + top], IMPORT_TIMEOUT)
    try:
        out = subprocess.run(
            [sys.executable, "-m", "pip", "show", PKG],
            capture_output=True, text=True, timeout=10).stdout
        for line in out.splitlines():
            if line.startswith("Version:"):
                report["installedVersion"] = line.split(":", 1)[1].strip()
            if line.startswith("Location:"):
                loc = os.path.join(line.split(":", 1)[1].strip(), top)
                for root, _, files in os.walk(loc):
                    for f in files:
                        try:
                            report["downloadSizeBytes"] += os.path.getsize(os.path.join(root, f))
                        except OSError:
                            pass
    except Exception:
        pass

for name in sorted(os.listdir(TRACE_DIR)):
    try:
        with open(os.path.join(TRACE_DIR, name), errors="replace") as f:
            for line in f:
                if INTERESTING.search(line):
                    report["traceLines"].append(line.rstrip()[:500])
    except OSError:
        pass
report["traceLines"] = report["traceLines"][:5000]

print(json.dumps(report))
`

const nodeRunnerScript = `
set -u
PKG="$1"
INSTALL_TIMEOUT="${INSTALL_TIMEOUT:-40}"
IMPORT_TIMEOUT="${IMPORT_TIMEOUT:-15}"
TRACE_DIR=/tmp/trace
WORK=/tmp/work
mkdir -p "$TRACE_DIR" "$WORK"
cd "$WORK"

TIMED_OUT=false
INSTALL_EXIT=null
IMPORT_EXIT=null
VERSION=""
SIZE=0

timeout "$INSTALL_TIMEOUT" strace -ff -e trace=network,file,process \
    -o "$TRACE_DIR/t" npm install --no-audit --no-fund "$PKG" >/dev/null 2>&1
rc=$?
if [ "$rc" -eq 124 ]; then TIMED_OUT=true; else INSTALL_EXIT=$rc; fi

if [ "$INSTALL_EXIT" = "0" ]; then
    timeout "$IMPORT_TIMEOUT" strace -ff -e trace=network,file,process \
        -o "$TRACE_DIR/t" node -e "require('$PKG')" >/dev/null 2>&1
    rc=$?
    if [ "$rc" -eq 124 ]; then TIMED_OUT=true; else IMPORT_EXIT=$rc; fi
    VERSION=$(node -p "require('$PKG/package.json').version" 2>/dev/null || true)
    SIZE=$(du -sb "node_modules/$PKG" 2>/dev/null | cut -f1)
    SIZE=${SIZE:-0}
fi

node -e '
const fs = require("fs");
const lines = [];
const re = /connect\(|execve\(|openat?\(|unlinkat?\(|renameat?\(/;
for (const f of fs.readdirSync("/tmp/trace").sort()) {
  for (const line of fs.readFileSync("/tmp/trace/" + f, "utf8").split("\n")) {
    if (re.test(line)) lines.push(line.slice(0, 500));
    if (lines.length >= 5000) break;
  }
}
console.log(JSON.stringify({
  installExit: '"$INSTALL_EXIT"',
  importExit: '"$IMPORT_EXIT"',
  installedVersion: process.argv[1] || "",
  downloadSizeBytes: Number(process.argv[2]) || 0,
  traceLines: lines,
  timedOut: '"$TIMED_OUT"',
}));
' "$VERSION" "$SIZE"
`
