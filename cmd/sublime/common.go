package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sublime-security/sublime-cli/api"
	"github.com/sublime-security/sublime-cli/config"
	"github.com/sublime-security/sublime-cli/logger"
	"github.com/sublime-security/sublime-cli/output"
)

// commonFlags are shared by most subcommands.
type commonFlags struct {
	apiKey       string
	outputFile   string
	outputFormat string
	verbose      bool
}

// registerCommon wires the shared flags onto fs with both short and
// long names. defaultFormat is "txt" for most subcommands, "json" for
// enrich and generate.
func registerCommon(fs *flag.FlagSet, defaultFormat string) *commonFlags {
	c := &commonFlags{}
	fs.StringVar(&c.apiKey, "api-key", "", "Key to include in API requests")
	fs.StringVar(&c.apiKey, "k", "", "Key to include in API requests (shorthand)")
	fs.StringVar(&c.outputFile, "output", "", "Output file")
	fs.StringVar(&c.outputFile, "o", "", "Output file (shorthand)")
	fs.StringVar(&c.outputFormat, "format", defaultFormat, "Output format (json or txt)")
	fs.StringVar(&c.outputFormat, "f", defaultFormat, "Output format (shorthand)")
	fs.BoolVar(&c.verbose, "verbose", false, "Verbose output")
	fs.BoolVar(&c.verbose, "v", false, "Verbose output (shorthand)")
	return c
}

func (c *commonFlags) validate() {
	if c.outputFormat != "json" && c.outputFormat != "txt" {
		fatal("Invalid output format %q: must be json or txt", c.outputFormat)
	}
}

// loadCLIConfig loads the configuration file and initializes logging.
func loadCLIConfig() config.Config {
	path, err := config.DefaultPath()
	if err != nil {
		fatal("%v", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		fatal("Failed to load configuration: %v", err)
	}
	if _, err := logger.Initialize(cfg.Logging); err != nil {
		fatal("Failed to initialize logging: %v", err)
	}
	return cfg
}

// newAPIClient resolves the API key (flag, then environment, then
// configuration file) and builds a client from it.
func newAPIClient(cfg config.Config, flagKey string) *api.Client {
	return api.NewClient(resolveAPIKey(cfg, flagKey))
}

// resolveAPIKey picks the API key from the flag, the environment, or
// the configuration file, and exits with guidance when none is set.
func resolveAPIKey(cfg config.Config, flagKey string) string {
	key := flagKey
	if key == "" {
		key = cfg.APIKey
	}
	if key == "" {
		fmt.Fprint(os.Stderr, `Error: API key not found.

To fix this problem, please use any of the following methods (in order of precedence):
- Pass it using the -k/--api-key option.
- Set it in the SUBLIME_API_KEY environment variable.
- Run 'sublime setup' to save it to the configuration file.
`)
		os.Exit(1)
	}
	return key
}

// requestPermission asks once for consent before messages are uploaded,
// records the answer in the configuration file, and reports it to the
// API. Declining aborts the command.
func requestPermission(ctx context.Context, cfg *config.Config, client *api.Client, analyze bool) {
	if cfg.PrivacyAck {
		return
	}

	purpose := "processed"
	if analyze {
		purpose = "used to run rules and queries"
	}
	fmt.Printf(`
    Messages will be sent to Sublime Security servers in order to be %s.

    This message is intended to preserve your privacy. You only need to accept once.

`, purpose)

	if !confirm("Would you like to continue?") {
		if _, err := client.PrivacyAck(ctx, false); err != nil {
			logger.Debug("Failed to report privacy decline", "error", err)
		}
		fmt.Println("Aborted!")
		os.Exit(1)
	}

	cfg.PrivacyAck = true
	path, err := config.DefaultPath()
	if err == nil {
		err = config.Save(path, *cfg)
	}
	if err != nil {
		logger.Warn("Failed to record privacy acknowledgment", "error", err)
	}
	if _, err := client.PrivacyAck(ctx, true); err != nil {
		logger.Debug("Failed to report privacy acknowledgment", "error", err)
	}
}

// confirm prompts on stdout and reads a yes/no answer from stdin.
func confirm(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

// emitResult renders a response and writes it to stdout or the output
// file.
func emitResult(c *commonFlags, family string, result any) {
	rendered, err := output.Format(c.outputFormat, family, result, c.verbose)
	if err != nil {
		fatal("%v", err)
	}
	writeOutput(c.outputFile, rendered)
}

func writeOutput(outputFile, rendered string) {
	rendered = strings.Trim(rendered, "\n")
	if outputFile == "" {
		fmt.Println(rendered)
		return
	}
	if err := os.WriteFile(outputFile, []byte(rendered+"\n"), 0o644); err != nil {
		fatal("Failed to write output: %v", err)
	}
	fmt.Printf("Output saved to %s\n", outputFile)
}

// defaultOutputPath derives the implicit output file for enrich and
// generate: the input base name with a format-dependent extension,
// placed in the configured save directory.
func defaultOutputPath(cfg config.Config, inputPath, format string) string {
	base := filepath.Base(inputPath)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if format == "txt" {
		base += ".txt"
	} else {
		base += ".mdm"
	}
	if cfg.SaveDir != "" {
		return filepath.Join(cfg.SaveDir, base)
	}
	return base
}

// timeFormats accepted by --after and --before.
var timeFormats = []string{
	"2006-01-02",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02 15:04:05",
}

// parseTimeFlag parses an --after/--before value. Empty means unset.
func parseTimeFlag(name, value string) *time.Time {
	if value == "" {
		return nil
	}
	for _, layout := range timeFormats {
		if t, err := time.Parse(layout, value); err == nil {
			return &t
		}
	}
	fatal("Invalid --%s value %q: expected an ISO 8601 date", name, value)
	return nil
}

// parseBoolChoice parses a true/false flag where unset means nil.
func parseBoolChoice(name, value string) *bool {
	switch strings.ToLower(value) {
	case "":
		return nil
	case "true":
		b := true
		return &b
	case "false":
		b := false
		return &b
	default:
		fatal("Invalid --%s value %q: must be true or false", name, value)
		return nil
	}
}

// batchResult accumulates per-item successes and failures for bulk
// operations so one bad item doesn't sink the whole run.
type batchResult struct {
	success []any
	fail    []any
}

func newBatchResult() *batchResult {
	return &batchResult{success: []any{}, fail: []any{}}
}

func (b *batchResult) record(name string, result any, err error) {
	if err != nil {
		b.fail = append(b.fail, map[string]any{"name": name, "message": err.Error()})
		return
	}
	if m, ok := result.(map[string]any); ok {
		if _, exists := m["name"]; !exists && name != "" {
			m["name"] = name
		}
		b.success = append(b.success, m)
		return
	}
	b.success = append(b.success, map[string]any{"name": name})
}

func (b *batchResult) response() map[string]any {
	sortByName(b.success)
	return map[string]any{"success": b.success, "fail": b.fail}
}

// sortByName orders response objects by their "name" field.
func sortByName(items []any) {
	sort.SliceStable(items, func(i, j int) bool {
		return resultName(items[i]) < resultName(items[j])
	})
}

// fatal reports an error and exits. API errors already carry their
// status and request ID in the message.
func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

// exitOnError is the common exit path for API failures.
func exitOnError(err error) {
	if err != nil {
		fatal("%v", err)
	}
}
