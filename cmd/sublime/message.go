package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sublime-security/sublime-cli/api"
	"github.com/sublime-security/sublime-cli/input"
	"github.com/sublime-security/sublime-cli/output"
)

func handleEnrich() {
	fs := flag.NewFlagSet("enrich", flag.ExitOnError)
	common := registerCommon(fs, "json")
	var inputFile, mailbox, routeType string
	fs.StringVar(&inputFile, "input", "", "Input EML or MSG file (required)")
	fs.StringVar(&inputFile, "i", "", "Input EML or MSG file (shorthand)")
	fs.StringVar(&mailbox, "user", "", "User's mailbox email address")
	fs.StringVar(&mailbox, "u", "", "User's mailbox email address (shorthand)")
	fs.StringVar(&routeType, "type", "inbound", "Message route type (inbound, internal, outbound)")
	fs.StringVar(&routeType, "t", "inbound", "Message route type (shorthand)")

	fs.Usage = func() {
		fmt.Printf(`Enrich an EML into a Message Data Model

The enriched MDM is saved to the output file, which defaults to the
input file name with a .mdm extension. Enrichment details are always
printed to the console.

Usage:
  sublime enrich [options]

Options:
  -i, --input string    Input EML or MSG file (required)
  -o, --output string   Output file (default: <input>.mdm)
  -f, --format string   Output format: json or txt (default "json")
  -u, --user string     User's mailbox email address
  -t, --type string     Message route type (default "inbound")
  -k, --api-key string  Key to include in API requests
  -v, --verbose         Verbose output

Examples:
  sublime enrich -i message.eml
  sublime enrich -i message.msg -o enriched.mdm
`)
	}
	fs.Parse(os.Args[2:])
	common.validate()
	if inputFile == "" {
		fs.Usage()
		os.Exit(1)
	}

	cfg := loadCLIConfig()
	client := newAPIClient(cfg, common.apiKey)
	ctx := context.Background()
	requestPermission(ctx, &cfg, client, false)

	eml := loadMessageFile(inputFile)
	result, err := client.EnrichEML(ctx, eml, mailbox, routeType)
	exitOnError(err)

	// Enrichment details always go to the console.
	details, err := output.Format("txt", output.FamilyEnrichDetails, result, common.verbose)
	exitOnError(err)
	fmt.Println(strings.Trim(details, "\n"))

	outputFile := common.outputFile
	if outputFile == "" {
		outputFile = defaultOutputPath(cfg, inputFile, common.outputFormat)
	}
	rendered, err := output.Format(common.outputFormat, output.FamilyEnrich, stripToMDM(result), common.verbose)
	exitOnError(err)
	writeOutput(outputFile, rendered)
}

func handleGenerate() {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	common := registerCommon(fs, "json")
	var inputFile, mailbox string
	fs.StringVar(&inputFile, "input", "", "Input EML or MSG file (required)")
	fs.StringVar(&inputFile, "i", "", "Input EML or MSG file (shorthand)")
	fs.StringVar(&mailbox, "user", "", "User's mailbox email address")
	fs.StringVar(&mailbox, "u", "", "User's mailbox email address (shorthand)")

	fs.Usage = func() {
		fmt.Printf(`Generate an unenriched Message Data Model from an EML

The MDM is saved to the output file, which defaults to the input file
name with a .mdm extension.

Usage:
  sublime generate [options]

Options:
  -i, --input string    Input EML or MSG file (required)
  -o, --output string   Output file (default: <input>.mdm)
  -f, --format string   Output format: json or txt (default "json")
  -u, --user string     User's mailbox email address
  -k, --api-key string  Key to include in API requests
  -v, --verbose         Verbose output
`)
	}
	fs.Parse(os.Args[2:])
	common.validate()
	if inputFile == "" {
		fs.Usage()
		os.Exit(1)
	}

	cfg := loadCLIConfig()
	client := newAPIClient(cfg, common.apiKey)
	ctx := context.Background()
	requestPermission(ctx, &cfg, client, false)

	eml := loadMessageFile(inputFile)
	result, err := client.CreateMDM(ctx, eml, mailbox)
	exitOnError(err)

	outputFile := common.outputFile
	if outputFile == "" {
		outputFile = defaultOutputPath(cfg, inputFile, common.outputFormat)
	}
	rendered, err := output.Format(common.outputFormat, output.FamilyCreate, stripToMDM(result), common.verbose)
	exitOnError(err)
	writeOutput(outputFile, rendered)
}

func handleAnalyze() {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	common := registerCommon(fs, "txt")
	var inputFile, detectionsPath, detectionStr, mailbox, routeType string
	fs.StringVar(&inputFile, "input", "", "Input EML, MSG, MBOX, or MDM file (required)")
	fs.StringVar(&inputFile, "i", "", "Input file (shorthand)")
	fs.StringVar(&detectionsPath, "detections", "", "Detections file or directory (.pql, .yml)")
	fs.StringVar(&detectionsPath, "D", "", "Detections file or directory (shorthand)")
	fs.StringVar(&detectionStr, "detection", "", "Raw detection to run, surrounded by single quotes")
	fs.StringVar(&detectionStr, "d", "", "Raw detection (shorthand)")
	fs.StringVar(&mailbox, "user", "", "User's mailbox email address")
	fs.StringVar(&mailbox, "u", "", "User's mailbox email address (shorthand)")
	fs.StringVar(&routeType, "type", "inbound", "Message route type (inbound, internal, outbound)")
	fs.StringVar(&routeType, "t", "inbound", "Message route type (shorthand)")

	fs.Usage = func() {
		fmt.Printf(`Run detections against a message

Accepts an enriched MDM (.mdm), a raw message (.eml or .msg), or a
mailbox archive (.mbox). Raw messages are enriched server side before
analysis.

Usage:
  sublime analyze [options]

Options:
  -i, --input string       Input EML, MSG, MBOX, or MDM file (required)
  -D, --detections string  Detections file or directory (.pql, .yml)
  -d, --detection string   Raw detection surrounded by single quotes
  -u, --user string        User's mailbox email address
  -t, --type string        Message route type (default "inbound")
  -o, --output string      Output file
  -f, --format string      Output format: json or txt (default "txt")
  -k, --api-key string     Key to include in API requests
  -v, --verbose            Verbose output

Examples:
  sublime analyze -i message.eml -d 'length(subject.subject) > 100'
  sublime analyze -i enriched.mdm -D rules/
  sublime analyze -i archive.mbox -D rules.pql
`)
	}
	fs.Parse(os.Args[2:])
	common.validate()
	if inputFile == "" {
		fs.Usage()
		os.Exit(1)
	}
	if detectionsPath == "" && detectionStr == "" {
		fatal("A detections file (-D) or raw detection (-d) is required")
	}

	detections, multi := loadDetectionsArg(detectionsPath, detectionStr, "")

	cfg := loadCLIConfig()
	client := newAPIClient(cfg, common.apiKey)
	ctx := context.Background()
	requestPermission(ctx, &cfg, client, true)

	switch strings.ToLower(filepath.Ext(inputFile)) {
	case ".mdm":
		mdm, err := input.LoadMDM(inputFile)
		exitOnError(err)

		var result any
		if multi {
			result, err = client.AnalyzeMDMMulti(ctx, mdm, detections, common.verbose)
		} else {
			result, err = client.AnalyzeMDM(ctx, mdm, detections[0], common.verbose)
		}
		exitOnError(err)
		sortAnalyzeResults(result)
		emitResult(common, output.FamilyAnalyze, result)

	case ".mbox":
		messages, err := input.LoadMbox(inputFile)
		exitOnError(err)

		var rendered strings.Builder
		for _, msg := range messages {
			result, err := analyzeEML(ctx, client, msg.Raw, detections, multi, mailbox, routeType, common.verbose)
			exitOnError(err)
			sortAnalyzeResults(result)
			section, err := output.Format(common.outputFormat, output.FamilyAnalyze, result, common.verbose)
			exitOnError(err)
			fmt.Fprintf(&rendered, "=== %s ===\n%s\n\n", msg.Key, strings.Trim(section, "\n"))
		}
		writeOutput(common.outputFile, rendered.String())

	default:
		eml := loadMessageFile(inputFile)
		result, err := analyzeEML(ctx, client, eml, detections, multi, mailbox, routeType, common.verbose)
		exitOnError(err)
		sortAnalyzeResults(result)
		emitResult(common, output.FamilyAnalyze, result)
	}
}

func handleQuery() {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	common := registerCommon(fs, "txt")
	var inputFile, queriesPath, queryStr string
	fs.StringVar(&inputFile, "input", "", "Input enriched MDM file (required)")
	fs.StringVar(&inputFile, "i", "", "Input enriched MDM file (shorthand)")
	fs.StringVar(&queriesPath, "queries", "", "Queries file or directory (.pql, .yml)")
	fs.StringVar(&queriesPath, "Q", "", "Queries file or directory (shorthand)")
	fs.StringVar(&queryStr, "query", "", "Raw query to run, surrounded by single quotes")
	fs.StringVar(&queryStr, "q", "", "Raw query (shorthand)")

	fs.Usage = func() {
		fmt.Printf(`Run queries against an enriched MDM

Usage:
  sublime query [options]

Options:
  -i, --input string    Input enriched MDM file (required)
  -Q, --queries string  Queries file or directory (.pql, .yml)
  -q, --query string    Raw query surrounded by single quotes
  -o, --output string   Output file
  -f, --format string   Output format: json or txt (default "txt")
  -k, --api-key string  Key to include in API requests
  -v, --verbose         Verbose output

Examples:
  sublime query -i enriched.mdm -q 'body.links'
  sublime query -i enriched.mdm -Q queries.pql
`)
	}
	fs.Parse(os.Args[2:])
	common.validate()
	if inputFile == "" {
		fs.Usage()
		os.Exit(1)
	}
	if queriesPath == "" && queryStr == "" {
		fatal("A queries file (-Q) or raw query (-q) is required")
	}

	queries, multi := loadQueriesArg(queriesPath, queryStr)

	mdm, err := input.LoadMDM(inputFile)
	exitOnError(err)

	cfg := loadCLIConfig()
	client := newAPIClient(cfg, common.apiKey)
	ctx := context.Background()
	requestPermission(ctx, &cfg, client, true)

	var result any
	if multi {
		result, err = client.QueryMDMMulti(ctx, mdm, queries, common.verbose)
	} else {
		result, err = client.QueryMDM(ctx, mdm, queries[0], common.verbose)
	}
	exitOnError(err)
	emitResult(common, output.FamilyQuery, result)
}

// loadMessageFile base64-encodes a raw message file, routing .msg files
// through the OLE reader.
func loadMessageFile(path string) string {
	var eml string
	var err error
	if strings.EqualFold(filepath.Ext(path), ".msg") {
		eml, err = input.LoadMSG(path)
	} else {
		eml, err = input.LoadEML(path)
	}
	exitOnError(err)
	return eml
}

func analyzeEML(ctx context.Context, client *api.Client, eml string, detections []api.Detection, multi bool, mailbox, routeType string, verbose bool) (any, error) {
	if multi {
		return client.AnalyzeEMLMulti(ctx, eml, detections, mailbox, routeType, verbose)
	}
	return client.AnalyzeEML(ctx, eml, detections[0], mailbox, routeType)
}

// loadDetectionsArg resolves the -D/-d pair into detections. A path
// loads .pql and YAML rule files; a raw string becomes one unnamed
// detection. multi reports whether the multi endpoint should be used.
func loadDetectionsArg(path, raw, name string) (detections []api.Detection, multi bool) {
	if path == "" {
		return []api.Detection{{Name: name, Source: raw}}, false
	}

	info, err := os.Stat(path)
	exitOnError(err)

	if info.IsDir() {
		fromPQL, err := input.LoadDetectionsDir(path)
		if err != nil && !errors.Is(err, input.ErrNoRules) {
			exitOnError(err)
		}
		fromYAML, _, err := input.LoadYAMLDir(path)
		exitOnError(err)
		detections = append(fromPQL, fromYAML...)
	} else if isYAMLFile(path) {
		detections, _, err = input.LoadYAML(path)
		exitOnError(err)
	} else {
		detections, err = input.LoadDetections(path)
		exitOnError(err)
	}

	if len(detections) == 0 {
		fatal("No detections found in %s", path)
	}
	return detections, true
}

// loadQueriesArg is loadDetectionsArg for queries.
func loadQueriesArg(path, raw string) (queries []api.Query, multi bool) {
	if path == "" {
		return []api.Query{{Source: raw}}, false
	}

	info, err := os.Stat(path)
	exitOnError(err)

	if info.IsDir() {
		fromPQL, err := input.LoadQueriesDir(path)
		if err != nil && !errors.Is(err, input.ErrNoRules) {
			exitOnError(err)
		}
		_, fromYAML, err := input.LoadYAMLDir(path)
		exitOnError(err)
		queries = append(fromPQL, fromYAML...)
	} else if isYAMLFile(path) {
		_, queries, err = input.LoadYAML(path)
		exitOnError(err)
	} else {
		queries, err = input.LoadQueries(path)
		exitOnError(err)
	}

	if len(queries) == 0 {
		fatal("No queries found in %s", path)
	}
	return queries, true
}

func isYAMLFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yml" || ext == ".yaml"
}

// stripToMDM unwraps an enrich/create response to the bare MDM.
func stripToMDM(result any) any {
	if obj, ok := result.(map[string]any); ok {
		if mdm, ok := obj["message_data_model"]; ok {
			return mdm
		}
	}
	return result
}

// sortAnalyzeResults orders multi-analysis results by detection name.
func sortAnalyzeResults(result any) {
	obj, ok := result.(map[string]any)
	if !ok {
		return
	}
	results, ok := obj["results"].([]any)
	if !ok {
		return
	}
	sortByName(results)
}

// resultName is the sort key for response objects. Update responses
// carry the pre-rename name in original_name, which wins over name so
// renamed detections keep their listing position.
func resultName(v any) string {
	m, ok := v.(map[string]any)
	if !ok {
		return ""
	}
	if name, ok := m["original_name"].(string); ok {
		return name
	}
	name, _ := m["name"].(string)
	return name
}
