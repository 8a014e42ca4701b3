package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/sublime-security/sublime-cli/api"
	"github.com/sublime-security/sublime-cli/output"
)

func handleGetMessages() {
	fs := flag.NewFlagSet("get messages", flag.ExitOnError)
	common := registerCommon(fs, "txt")
	var messageID, reviewed, safe, after, before string
	var notFlagged bool
	fs.StringVar(&messageID, "id", "", "Message Data Model ID")
	fs.StringVar(&messageID, "i", "", "Message Data Model ID (shorthand)")
	fs.BoolVar(&notFlagged, "not", false, "Invert: return not-flagged messages from the last 30 minutes")
	fs.BoolVar(&notFlagged, "n", false, "Invert (shorthand)")
	fs.StringVar(&reviewed, "reviewed", "", "Filter by review status (true or false)")
	fs.StringVar(&safe, "safe", "", "Filter by whether the message was marked safe")
	fs.StringVar(&after, "after", "", "Only retrieve messages after this date (default: 30 days ago)")
	fs.StringVar(&before, "before", "", "Only retrieve messages before this date")

	fs.Usage = func() {
		fmt.Printf(`Get messages

By default only flagged, unreviewed messages are returned. With -i, the
full detail of one message is returned; -v additionally saves its raw
Message Data Model to <id>.mdm.

Usage:
  sublime get messages [options]

Options:
  -i, --id string       Message Data Model ID
  -n, --not             Return not-flagged messages from the last 30 minutes
  --reviewed string     Filter by review status (true or false)
  --safe string         Filter by safe status (true or false)
  --after string        Only retrieve messages after this date (ISO 8601)
  --before string       Only retrieve messages before this date (ISO 8601)
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

	if messageID != "" {
		result, err := client.GetFlaggedMessageDetail(ctx, messageID)
		exitOnError(err)
		emitResult(common, output.FamilyGetMessages, result)
		if common.verbose {
			saveRawMDM(result)
		}
		return
	}

	reviewedVal := parseBoolChoice("reviewed", reviewed)
	safeVal := parseBoolChoice("safe", safe)
	if safeVal == nil && reviewedVal == nil {
		// Unreviewed messages are the interesting default.
		f := false
		reviewedVal = &f
	} else if safeVal != nil && reviewedVal == nil {
		t := true
		reviewedVal = &t
	}

	result, err := client.GetFlaggedMessages(ctx, api.FlaggedMessageOptions{
		Result:   !notFlagged,
		After:    parseTimeFlag("after", after),
		Before:   parseTimeFlag("before", before),
		Reviewed: reviewedVal,
		Safe:     safeVal,
	})
	exitOnError(err)
	emitResult(common, output.FamilyGetMessages, result)
}

// saveRawMDM writes the raw Message Data Model of a detail response to
// <id>.mdm in the current directory.
func saveRawMDM(result any) {
	obj, ok := result.(map[string]any)
	if !ok {
		return
	}
	modelResult, ok := obj["message_data_model_result"].(map[string]any)
	if !ok {
		return
	}
	id, _ := modelResult["message_data_model_id"].(string)
	if id == "" {
		return
	}

	rendered, err := output.JSON(modelResult["message_data_model"])
	exitOnError(err)
	fileName := id + ".mdm"
	if err := os.WriteFile(fileName, []byte(rendered+"\n"), 0o644); err != nil {
		fatal("Failed to save Message Data Model: %v", err)
	}
	fmt.Printf("Raw Message Data Model saved to %s\n", fileName)
}

func handleUpdateMessages() {
	fs := flag.NewFlagSet("update messages", flag.ExitOnError)
	common := registerCommon(fs, "txt")
	var messageID, reviewed, safe, after, before string
	var reviewAll bool
	fs.StringVar(&messageID, "id", "", "Message Data Model ID to update")
	fs.StringVar(&messageID, "i", "", "Message Data Model ID (shorthand)")
	fs.StringVar(&reviewed, "reviewed", "", "Review status (true or false, required)")
	fs.StringVar(&safe, "safe", "", "Whether the message is safe (true or false, required)")
	fs.BoolVar(&reviewAll, "all", false, "Update all flagged, unreviewed messages in the timeframe")
	fs.StringVar(&after, "after", "", "For --all, only update messages after this date")
	fs.StringVar(&before, "before", "", "For --all, only update messages before this date")

	fs.Usage = func() {
		fmt.Printf(`Update the review and threat status of messages

Marking a message safe has no second order effects; it exists to enable
filtering later.

Usage:
  sublime update messages [options]

Options:
  -i, --id string       Message Data Model ID to update
  --reviewed string     Review status (true or false, required)
  --safe string         Threat status (true or false, required)
  --all                 Update all matching messages (prompts first)
  --after string        For --all, only update messages after this date
  --before string       For --all, only update messages before this date
  -o, --output string   Output file
  -f, --format string   Output format: json or txt (default "txt")
  -k, --api-key string  Key to include in API requests
  -v, --verbose         Verbose output
`)
	}
	fs.Parse(os.Args[3:])
	common.validate()

	reviewedVal := parseBoolChoice("reviewed", reviewed)
	safeVal := parseBoolChoice("safe", safe)
	if reviewedVal == nil {
		fatal("Review status is required")
	}
	if safeVal == nil {
		fatal("Threat status is required")
	}
	afterTime := parseTimeFlag("after", after)
	beforeTime := parseTimeFlag("before", before)

	cfg := loadCLIConfig()
	client := newAPIClient(cfg, common.apiKey)
	ctx := context.Background()

	var result any
	var err error
	if reviewAll {
		notReviewed := false
		pending, err := client.GetFlaggedMessages(ctx, api.FlaggedMessageOptions{
			Result:   true,
			After:    afterTime,
			Before:   beforeTime,
			Reviewed: &notReviewed,
		})
		exitOnError(err)
		count := resultCount(pending)
		if count == 0 {
			fmt.Println("No messages to update!")
			os.Exit(1)
		}
		if !confirm(fmt.Sprintf("Are you sure you want to update all %d messages?", count)) {
			fmt.Println("Aborted!")
			os.Exit(1)
		}
		result, err = client.ReviewAllMessages(ctx, afterTime, beforeTime, *reviewedVal, *safeVal)
		exitOnError(err)
	} else if messageID == "" {
		fatal("Message Data Model ID is required")
	} else {
		result, err = client.ReviewMessage(ctx, messageID, *reviewedVal, *safeVal)
		exitOnError(err)
	}
	emitResult(common, output.FamilyGetMessages, result)
}

func handleDeleteMessages() {
	fs := flag.NewFlagSet("delete messages", flag.ExitOnError)
	common := registerCommon(fs, "txt")
	var messageID string
	var permanent bool
	fs.StringVar(&messageID, "message-data-model-id", "", "Message Data Model ID (required)")
	fs.StringVar(&messageID, "i", "", "Message Data Model ID (shorthand)")
	fs.BoolVar(&permanent, "permanent", false, "Permanently delete the message (don't send to Trash)")
	fs.BoolVar(&permanent, "p", false, "Permanently delete (shorthand)")

	fs.Usage = func() {
		fmt.Printf(`Delete a message from a user's mailbox

Usage:
  sublime delete messages [options]

Options:
  -i, --message-data-model-id string  Message Data Model ID (required)
  -p, --permanent                     Permanently delete (don't send to Trash)
  -o, --output string                 Output file
  -f, --format string                 Output format: json or txt (default "txt")
  -k, --api-key string                Key to include in API requests
  -v, --verbose                       Verbose output
`)
	}
	fs.Parse(os.Args[3:])
	common.validate()
	if messageID == "" {
		fatal("Message Data Model ID is required")
	}

	cfg := loadCLIConfig()
	client := newAPIClient(cfg, common.apiKey)
	ctx := context.Background()

	result, err := client.DeleteMessage(ctx, messageID, permanent)
	exitOnError(err)
	emitResult(common, output.FamilyGetMessages, result)
}

// resultCount counts the entries of a listing response.
func resultCount(result any) int {
	obj, ok := result.(map[string]any)
	if !ok {
		return 0
	}
	list, _ := obj["results"].([]any)
	return len(list)
}
