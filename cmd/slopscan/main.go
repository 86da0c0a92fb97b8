package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/slopspotter/slopscan/internal/deepscan"
	"github.com/slopspotter/slopscan/internal/sandbox"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	language        string
	jsonOutput      bool
	timeout         int
	networkMode     string
	noSandbox       bool
	verbose         bool
	quiet           bool
	failOnMalicious bool
	outputFile      string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "slopscan <package-name>",
		Short: "Deep-scan a package for malicious or hallucinated dependencies",
		Long: fmt.Sprintf(`slopscan assesses whether a third-party package is malicious or an
AI-hallucinated dependency. It combines registry metadata heuristics
(existence, freshness, popularity, maintainer trust, install hooks)
with an optional sandboxed install+import of the package, tracing its
network, process, and file activity.

Build Info: Commit %s, Date %s

Examples:  slopscan requests
  slopscan flask-installer --language python --json
  slopscan left-pad --language js --no-sandbox
  slopscan some-pkg --network none --timeout 120`, commit, date),
		Version: version,
		Args:    cobra.ExactArgs(1),
		RunE:    run,
	}

	rootCmd.Flags().StringVarP(&language, "language", "l", "python", "ecosystem of the package (python, javascript, rust, go)")
	rootCmd.Flags().BoolVar(&jsonOutput, "json", false, "output the result as JSON")
	rootCmd.Flags().IntVar(&timeout, "timeout", 180, "overall scan timeout in seconds")
	rootCmd.Flags().StringVar(&networkMode, "network", "", "sandbox network mode (bridge, none)")
	rootCmd.Flags().BoolVar(&noSandbox, "no-sandbox", false, "skip sandboxed execution, heuristics only")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	rootCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "suppress log messages to stderr")
	rootCmd.Flags().BoolVar(&failOnMalicious, "fail-on-malicious", false, "exit with code 2 if the package is flagged malicious")
	rootCmd.Flags().StringVarP(&outputFile, "output", "o", "", "write the result to a file instead of stdout")

	if err := rootCmd.Execute(); err != nil {
		if exitErr, ok := err.(*ExitError); ok {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}

// ExitError signals a non-standard exit code (e.g., 2 for --fail-on-malicious).
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string { return e.Message }

func run(cmd *cobra.Command, args []string) error {
	if err := loadConfiguration(cmd); err != nil {
		return err
	}

	log := newLogger()
	limits := sandbox.LimitsFromEnv()
	if networkMode != "" {
		limits.NetworkMode = networkMode
	}

	engine := deepscan.NewEngine(deepscan.Config{
		Limits:         limits,
		Combine:        deepscan.DefaultCombineConfig(),
		DisableSandbox: noSandbox,
	}, log)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeout)*time.Second)
	defer cancel()

	resp := engine.Scan(ctx, deepscan.Request{
		PackageName: args[0],
		Language:    language,
	})

	out, cleanup, err := resolveOutput()
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}

	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(resp); err != nil {
			return err
		}
	} else {
		renderResponse(out, args[0], resp)
	}

	if !resp.Success {
		return &ExitError{Code: 1, Message: resp.Error}
	}
	if failOnMalicious && resp.Result != nil && resp.Result.IsMalicious {
		return &ExitError{Code: 2, Message: fmt.Sprintf("package %q flagged as malicious", args[0])}
	}
	return nil
}

func newLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	switch {
	case quiet:
		logger.SetLevel(logrus.ErrorLevel)
	case verbose:
		logger.SetLevel(logrus.DebugLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}
	return logrus.NewEntry(logger)
}

func loadConfiguration(cmd *cobra.Command) error {
	if cfgPath := findConfigFile(); cfgPath != "" {
		cfg, err := loadConfigFile(cfgPath)
		if err != nil {
			return err
		}
		applyConfig(cfg)
	}
	resolveConfig(cmd)
	if quiet && verbose {
		return fmt.Errorf("--quiet and --verbose are mutually exclusive")
	}
	if timeout <= 0 {
		return fmt.Errorf("--timeout must be positive")
	}
	return nil
}

func resolveOutput() (io.Writer, func(), error) {
	if outputFile == "" {
		return os.Stdout, nil, nil
	}
	f, err := os.Create(outputFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, func() { f.Close() }, nil
}

func renderResponse(out io.Writer, name string, resp deepscan.Response) {
	if !resp.Success {
		fmt.Fprintf(out, "scan failed: %s\n", resp.Error)
		return
	}
	r := resp.Result

	label := "CLEAN"
	if r.IsMalicious {
		label = "MALICIOUS"
	}
	fmt.Fprintf(out, "%s  %s  (confidence %.0f%%, source: %s)\n", name, label, r.Confidence*100, r.Source)
	fmt.Fprintf(out, "  heuristic risk: %s (%.2f)  %s\n", r.Heuristic.RiskLevel, r.Heuristic.Score, r.Heuristic.Summary)
	for _, ind := range r.Indicators {
		fmt.Fprintf(out, "  - %s\n", ind)
	}
	if len(r.NetworkConnections) > 0 {
		fmt.Fprintf(out, "  network: %s\n", strings.Join(r.NetworkConnections, ", "))
	}
	if r.Heuristic.MetadataURL != "" {
		fmt.Fprintf(out, "  registry: %s\n", r.Heuristic.MetadataURL)
	}
}

func flagChanged(cmd *cobra.Command, name string) bool {
	if cmd == nil {
		return false
	}
	f := cmd.Flags().Lookup(name)
	return f != nil && f.Changed
}

func resolveStringEnv(cmd *cobra.Command, flagName, envKey string, target *string) {
	if flagChanged(cmd, flagName) {
		return
	}
	if v := os.Getenv(envKey); v != "" {
		*target = v
	}
}

func resolveIntEnv(cmd *cobra.Command, flagName, envKey string, target *int) {
	if flagChanged(cmd, flagName) {
		return
	}
	if v := os.Getenv(envKey); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*target = n
		}
	}
}

func resolveBoolEnv(cmd *cobra.Command, flagName, envKey string, target *bool) {
	if flagChanged(cmd, flagName) {
		return
	}
	if v := os.Getenv(envKey); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*target = b
		}
	}
}

type configFile struct {
	Language  string `yaml:"language"`
	Timeout   int    `yaml:"timeout"`
	Network   string `yaml:"network"`
	NoSandbox bool   `yaml:"no-sandbox"`
	Quiet     bool   `yaml:"quiet"`
	JSON      bool   `yaml:"json"`
}

func loadConfigFile(path string) (*configFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var cfg configFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return &cfg, nil
}

func findConfigFile() string {
	if _, err := os.Stat(".slopscan.yaml"); err == nil {
		return ".slopscan.yaml"
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	p := filepath.Join(home, ".config", "slopscan", "config.yaml")
	if _, err := os.Stat(p); err == nil {
		return p
	}
	return ""
}

func applyConfig(cfg *configFile) {
	if cfg == nil {
		return
	}
	if cfg.Language != "" {
		language = cfg.Language
	}
	if cfg.Timeout != 0 {
		timeout = cfg.Timeout
	}
	if cfg.Network != "" {
		networkMode = cfg.Network
	}
	if cfg.NoSandbox {
		noSandbox = true
	}
	if cfg.Quiet {
		quiet = true
	}
	if cfg.JSON {
		jsonOutput = true
	}
}

func resolveConfig(cmd *cobra.Command) {
	resolveStringEnv(cmd, "language", "SLOPSCAN_LANGUAGE", &language)
	resolveStringEnv(cmd, "network", "SLOPSCAN_NETWORK_MODE", &networkMode)
	resolveIntEnv(cmd, "timeout", "SLOPSCAN_TIMEOUT", &timeout)
	resolveBoolEnv(cmd, "no-sandbox", "SLOPSCAN_NO_SANDBOX", &noSandbox)
	resolveBoolEnv(cmd, "quiet", "SLOPSCAN_QUIET", &quiet)
	resolveBoolEnv(cmd, "json", "SLOPSCAN_JSON", &jsonOutput)
}
