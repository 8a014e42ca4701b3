package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sublime-security/sublime-cli/api"
	"github.com/sublime-security/sublime-cli/output"
)

func handleGetDetections() {
	fs := flag.NewFlagSet("get detections", flag.ExitOnError)
	common := registerCommon(fs, "txt")
	var detectionID, detectionName, active string
	fs.StringVar(&detectionID, "id", "", "Detection ID")
	fs.StringVar(&detectionID, "i", "", "Detection ID (shorthand)")
	fs.StringVar(&detectionName, "name", "", "Detection name")
	fs.StringVar(&detectionName, "n", "", "Detection name (shorthand)")
	fs.StringVar(&active, "active", "", "Filter by active (true) or inactive (false) detections")
	fs.StringVar(&active, "a", "", "Filter by active state (shorthand)")

	fs.Usage = func() {
		fmt.Printf(`Get detections

Usage:
  sublime get detections [options]

Options:
  -i, --id string       Detection ID
  -n, --name string     Detection name
  -a, --active string   Filter by active state (true or false)
  -o, --output string   Output file
  -f, --format string   Output format: json or txt (default "txt")
  -k, --api-key string  Key to include in API requests
  -v, --verbose         Verbose output
`)
	}
	fs.Parse(os.Args[3:])
	common.validate()

	cfg := loadCLIConfig()
	client := newAPIClient(cfg, common.apiKey)
	ctx := context.Background()

	var result any
	var err error
	switch {
	case detectionID != "":
		var detection any
		detection, err = client.GetOrgDetection(ctx, detectionID)
		result = wrapDetections(detection)
	case detectionName != "":
		var detection any
		detection, err = client.GetOrgDetectionByName(ctx, detectionName)
		result = wrapDetections(detection)
	default:
		result, err = client.GetOrgDetections(ctx, api.DetectionListOptions{
			Active: parseBoolChoice("active", active),
		})
	}
	exitOnError(err)
	sortDetections(result)
	emitResult(common, output.FamilyGetDetections, result)
}

func handleCreateDetections() {
	fs := flag.NewFlagSet("create detections", flag.ExitOnError)
	common := registerCommon(fs, "txt")
	var detectionsPath, detectionStr, detectionName, active string
	fs.StringVar(&detectionsPath, "detections", "", "Detections file or directory (.pql, .yml)")
	fs.StringVar(&detectionsPath, "D", "", "Detections file or directory (shorthand)")
	fs.StringVar(&detectionStr, "detection", "", "Raw detection surrounded by single quotes")
	fs.StringVar(&detectionStr, "d", "", "Raw detection (shorthand)")
	fs.StringVar(&detectionName, "name", "", "Detection name")
	fs.StringVar(&detectionName, "n", "", "Detection name (shorthand)")
	fs.StringVar(&active, "active", "false", "Whether the detection should be enabled for live flow")
	fs.StringVar(&active, "a", "false", "Whether the detection should be active (shorthand)")

	fs.Usage = func() {
		fmt.Printf(`Create detections

Detection names are required: every detection must carry a ; name line
in its PQL file, a YAML name field, or the -n flag.

Usage:
  sublime create detections [options]

Options:
  -D, --detections string  Detections file or directory (.pql, .yml)
  -d, --detection string   Raw detection surrounded by single quotes
  -n, --name string        Detection name (with -d)
  -a, --active string      Enable for live flow (default "false")
  -o, --output string      Output file
  -f, --format string      Output format: json or txt (default "txt")
  -k, --api-key string     Key to include in API requests
  -v, --verbose            Verbose output
`)
	}
	fs.Parse(os.Args[3:])
	common.validate()
	if detectionsPath == "" && detectionStr == "" {
		fatal("A detections file (-D) or raw detection (-d) is required")
	}
	activeVal := parseBoolChoice("active", active)

	detections, _ := loadDetectionsArg(detectionsPath, detectionStr, detectionName)
	for _, d := range detections {
		if d.Name == "" {
			fatal("Detection names are required")
		}
	}

	cfg := loadCLIConfig()
	client := newAPIClient(cfg, common.apiKey)
	ctx := context.Background()

	result := newBatchResult()
	for _, d := range detections {
		created, err := client.CreateOrgDetection(ctx, d, activeVal != nil && *activeVal, common.verbose)
		result.record(d.Name, created, err)
	}
	emitResult(common, output.FamilyCreateDetections, result.response())
}

func handleUpdateDetections() {
	fs := flag.NewFlagSet("update detections", flag.ExitOnError)
	common := registerCommon(fs, "txt")
	var detectionsPath, detectionID, detectionStr, detectionName, active string
	fs.StringVar(&detectionsPath, "detections", "", "Detections file or directory (.pql, .yml)")
	fs.StringVar(&detectionsPath, "D", "", "Detections file or directory (shorthand)")
	fs.StringVar(&detectionID, "id", "", "Update using detection ID")
	fs.StringVar(&detectionID, "i", "", "Update using detection ID (shorthand)")
	fs.StringVar(&detectionStr, "detection", "", "Raw detection surrounded by single quotes")
	fs.StringVar(&detectionStr, "d", "", "Raw detection (shorthand)")
	fs.StringVar(&detectionName, "name", "", "Update using detection name; with -i, renames the detection")
	fs.StringVar(&detectionName, "n", "", "Detection name (shorthand)")
	fs.StringVar(&active, "active", "", "Enable or disable the detection for live flow")
	fs.StringVar(&active, "a", "", "Enable or disable the detection (shorthand)")

	fs.Usage = func() {
		fmt.Printf(`Update detections

Usage:
  sublime update detections [options]

Options:
  -D, --detections string  Detections file or directory, matched by name
  -i, --id string          Update using detection ID
  -n, --name string        Update using detection name
  -d, --detection string   New detection source
  -a, --active string      Enable or disable for live flow (true or false)
  -o, --output string      Output file
  -f, --format string      Output format: json or txt (default "txt")
  -k, --api-key string     Key to include in API requests
  -v, --verbose            Verbose output
`)
	}
	fs.Parse(os.Args[3:])
	common.validate()
	activeVal := parseBoolChoice("active", active)

	cfg := loadCLIConfig()
	client := newAPIClient(cfg, common.apiKey)
	ctx := context.Background()

	result := newBatchResult()
	if detectionsPath != "" {
		if detectionID != "" || detectionName != "" {
			fatal("Specify one of either a PQL file, detection ID, or detection name")
		}
		detections, _ := loadDetectionsArg(detectionsPath, "", "")
		for _, d := range detections {
			updated, err := client.UpdateOrgDetectionByName(ctx, d.Name, d.Source, activeVal)
			result.record(d.Name, updated, err)
		}
	} else if detectionID != "" {
		updated, err := client.UpdateOrgDetection(ctx, detectionID, api.Detection{Name: detectionName, Source: detectionStr}, activeVal)
		exitOnError(err)
		result.record(detectionName, updated, nil)
	} else if detectionName != "" {
		updated, err := client.UpdateOrgDetectionByName(ctx, detectionName, detectionStr, activeVal)
		exitOnError(err)
		result.record(detectionName, updated, nil)
	} else {
		fatal("Detection ID, detection name, or PQL file(s) is required")
	}
	emitResult(common, output.FamilyUpdateDetections, result.response())
}

func handleShareDetections() {
	fs := flag.NewFlagSet("share detections", flag.ExitOnError)
	common := registerCommon(fs, "txt")
	var detectionID, shareUser, shareOrg string
	var unshare bool
	fs.StringVar(&detectionID, "id", "", "Detection ID to share")
	fs.StringVar(&detectionID, "i", "", "Detection ID to share (shorthand)")
	fs.StringVar(&shareUser, "share-name", "false", "Share your name with the community")
	fs.StringVar(&shareOrg, "share-org", "false", "Share your org name with the community")
	fs.BoolVar(&unshare, "unshare", false, "Unshare the detection")
	fs.BoolVar(&unshare, "u", false, "Unshare the detection (shorthand)")

	fs.Usage = func() {
		fmt.Printf(`Share or unshare detections with the Sublime community

Usage:
  sublime share detections [options]

Options:
  -i, --id string        Detection ID (required)
  --share-name string    Share your name with the community (default "false")
  --share-org string     Share your org name with the community (default "false")
  -u, --unshare          Unshare the detection
  -o, --output string    Output file
  -f, --format string    Output format: json or txt (default "txt")
  -k, --api-key string   Key to include in API requests
  -v, --verbose          Verbose output
`)
	}
	fs.Parse(os.Args[3:])
	common.validate()
	if detectionID == "" {
		fatal("Detection ID is required")
	}

	cfg := loadCLIConfig()
	client := newAPIClient(cfg, common.apiKey)
	ctx := context.Background()

	var result any
	var err error
	if unshare {
		confirmUnshare(ctx, client, detectionID)
		result, err = client.UnshareOrgDetection(ctx, detectionID)
	} else {
		shareUserVal := parseBoolChoice("share-name", shareUser)
		shareOrgVal := parseBoolChoice("share-org", shareOrg)
		result, err = client.ShareOrgDetection(ctx, detectionID,
			shareUserVal != nil && *shareUserVal,
			shareOrgVal != nil && *shareOrgVal)
	}
	exitOnError(err)
	emitResult(common, output.FamilyGetDetections, wrapDetections(result))
}

// confirmUnshare warns when subscribed organizations would lose the
// detection.
func confirmUnshare(ctx context.Context, client *api.Client, detectionID string) {
	detection, err := client.GetOrgDetection(ctx, detectionID)
	if err != nil {
		return
	}
	obj, ok := detection.(map[string]any)
	if !ok {
		return
	}
	count, ok := obj["subscriber_count"].(float64)
	if !ok || count < 1 {
		return
	}

	noun := "organizations are"
	if count == 1 {
		noun = "organization is"
	}
	prompt := fmt.Sprintf("%d %s currently subscribed to this detection. Are you sure you want to unshare it?", int(count), noun)
	if !confirm(prompt) {
		fmt.Println("Aborted!")
		os.Exit(1)
	}
}

func handleSubscribeDetections() {
	fs := flag.NewFlagSet("subscribe detections", flag.ExitOnError)
	common := registerCommon(fs, "txt")
	var detectionID, orgID, sublimeUserID, active string
	var unsubscribe bool
	fs.StringVar(&detectionID, "id", "", "Community detection ID")
	fs.StringVar(&detectionID, "i", "", "Community detection ID (shorthand)")
	fs.StringVar(&orgID, "org-id", "", "All detections authored by a specific org ID")
	fs.StringVar(&sublimeUserID, "sublime-user-id", "", "All detections authored by a specific Sublime user ID")
	fs.StringVar(&active, "active", "false", "State of the detection after subscribing")
	fs.StringVar(&active, "a", "false", "State after subscribing (shorthand)")
	fs.BoolVar(&unsubscribe, "unsubscribe", false, "Unsubscribe from the detection")
	fs.BoolVar(&unsubscribe, "u", false, "Unsubscribe from the detection (shorthand)")

	fs.Usage = func() {
		fmt.Printf(`Subscribe to or unsubscribe from community detections

Usage:
  sublime subscribe detections [options]

Options:
  -i, --id string            Community detection ID
  --org-id string            All detections authored by a specific org ID
  --sublime-user-id string   All detections authored by a specific user ID
  -a, --active string        State after subscribing (default "false")
  -u, --unsubscribe          Unsubscribe instead
  -o, --output string        Output file
  -f, --format string        Output format: json or txt (default "txt")
  -k, --api-key string       Key to include in API requests
  -v, --verbose              Verbose output
`)
	}
	fs.Parse(os.Args[3:])
	common.validate()
	activeVal := parseBoolChoice("active", active)

	cfg := loadCLIConfig()
	client := newAPIClient(cfg, common.apiKey)
	ctx := context.Background()

	result := newBatchResult()
	subscribeOne := func(id string) (any, error) {
		if unsubscribe {
			return client.UnsubscribeCommunityDetection(ctx, id)
		}
		return client.SubscribeCommunityDetection(ctx, id, activeVal != nil && *activeVal)
	}

	switch {
	case detectionID != "":
		r, err := subscribeOne(detectionID)
		exitOnError(err)
		result.record(detectionID, r, nil)

	case orgID != "" || sublimeUserID != "":
		listing, err := client.GetCommunityDetections(ctx, api.DetectionListOptions{
			CreatedByOrgID:         orgID,
			CreatedBySublimeUserID: sublimeUserID,
		})
		exitOnError(err)
		ids := detectionIDs(listing)
		if len(ids) == 0 {
			fatal("No detections matched the given criteria")
		}

		verb := "subscribe to"
		if unsubscribe {
			verb = "unsubscribe from"
		}
		if !confirm(fmt.Sprintf("Are you sure you want to %s all %d detections?", verb, len(ids))) {
			fmt.Println("Aborted!")
			os.Exit(1)
		}
		for _, id := range ids {
			r, err := subscribeOne(id)
			result.record(id, r, err)
		}

	default:
		fatal("Missing item(s) to subscribe to")
	}
	emitResult(common, output.FamilyUpdateDetections, result.response())
}

func handleBacktestDetections() {
	fs := flag.NewFlagSet("backtest detections", flag.ExitOnError)
	common := registerCommon(fs, "txt")
	var detectionsPath, detectionStr, after, before string
	fs.StringVar(&detectionsPath, "detections", "", "Detections file or directory (.pql, .yml)")
	fs.StringVar(&detectionsPath, "D", "", "Detections file or directory (shorthand)")
	fs.StringVar(&detectionStr, "detection", "", "Raw detection surrounded by single quotes")
	fs.StringVar(&detectionStr, "d", "", "Raw detection (shorthand)")
	fs.StringVar(&after, "after", "", "Only analyze messages after this date (default: last 24 hours)")
	fs.StringVar(&before, "before", "", "Only analyze messages before this date")

	fs.Usage = func() {
		fmt.Printf(`Backtest detections against historical messages

Submits a backtest job and polls its status until it finishes.

Usage:
  sublime backtest detections [options]

Options:
  -D, --detections string  Detections file or directory (.pql, .yml)
  -d, --detection string   Raw detection surrounded by single quotes
  --after string           Only analyze messages after this date (ISO 8601)
  --before string          Only analyze messages before this date (ISO 8601)
  -o, --output string      Output file
  -f, --format string      Output format: json or txt (default "txt")
  -k, --api-key string     Key to include in API requests
  -v, --verbose            Verbose output
`)
	}
	fs.Parse(os.Args[3:])
	common.validate()
	if detectionsPath == "" && detectionStr == "" {
		fatal("A detections file (-D) or raw detection (-d) is required")
	}
	afterTime := parseTimeFlag("after", after)
	beforeTime := parseTimeFlag("before", before)

	detections, _ := loadDetectionsArg(detectionsPath, detectionStr, "")

	cfg := loadCLIConfig()
	client := newAPIClient(cfg, common.apiKey)
	ctx := context.Background()

	submitted, err := client.BacktestDetections(ctx, detections, afterTime, beforeTime)
	exitOnError(err)
	jobID := jobIDOf(submitted)
	if jobID == "" {
		fatal("Backtest submission did not return a job ID")
	}
	fmt.Printf("Job with ID %s submitted\n", jobID)

	out, err := client.WaitForJob(ctx, jobID, 5*time.Second, func(status string, tasksRemaining int) {
		switch status {
		case api.JobStatusRunning:
			fmt.Printf("Tasks remaining: %d\n", tasksRemaining)
		case api.JobStatusPending:
			fmt.Println("Job pending")
		}
	})
	exitOnError(err)
	sortAnalyzeResults(out)
	emitResult(common, output.FamilyAnalyze, out)
}

func jobIDOf(submitted any) string {
	obj, ok := submitted.(map[string]any)
	if !ok {
		return ""
	}
	id, _ := obj["job_id"].(string)
	return id
}

// detectionIDs extracts the IDs from a detection listing.
func detectionIDs(listing any) []string {
	obj, ok := listing.(map[string]any)
	if !ok {
		return nil
	}
	raw, ok := obj["detections"].([]any)
	if !ok {
		return nil
	}
	var ids []string
	for _, item := range raw {
		if d, ok := item.(map[string]any); ok {
			if id, ok := d["id"].(string); ok {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// wrapDetections lifts a single detection into the listing shape the
// formatter expects.
func wrapDetections(detection any) any {
	return map[string]any{"detections": []any{detection}}
}

// sortDetections orders a detection listing by name.
func sortDetections(result any) {
	obj, ok := result.(map[string]any)
	if !ok {
		return
	}
	raw, ok := obj["detections"].([]any)
	if !ok {
		return
	}
	sortByName(raw)
}
