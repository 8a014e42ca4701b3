package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strings"

	"golang.org/x/net/websocket"

	"github.com/sublime-security/sublime-cli/logger"
	"github.com/sublime-security/sublime-cli/output"
)

// DefaultWebsocketURL is used unless the BASE_WEBSOCKET environment
// variable is set.
const DefaultWebsocketURL = "wss://api.sublimesecurity.com"

func handleListen() {
	fs := flag.NewFlagSet("listen", flag.ExitOnError)
	common := registerCommon(fs, "txt")

	fs.Usage = func() {
		fmt.Printf(`Stream real-time events from your Sublime environment

Events: "flagged-messages"

Flagged message events stay on screen until a matching review event
arrives.

Usage:
  sublime listen <event> [options]

Options:
  -f, --format string   Output format: json or txt (default "txt")
  -k, --api-key string  Key to include in API requests
  -v, --verbose         Verbose output

Examples:
  sublime listen flagged-messages
`)
	}
	fs.Parse(os.Args[2:])
	common.validate()
	if fs.NArg() < 1 {
		fs.Usage()
		os.Exit(1)
	}
	eventName := fs.Arg(0)

	cfg := loadCLIConfig()
	apiKey := resolveAPIKey(cfg, common.apiKey)

	base := DefaultWebsocketURL
	if env := os.Getenv("BASE_WEBSOCKET"); env != "" {
		base = env
	}
	wsURL := fmt.Sprintf("%s/v1/org/listen/ws?api_key=%s&event_name=%s",
		strings.TrimRight(base, "/"), url.QueryEscape(apiKey), url.QueryEscape(eventName))

	conn, err := websocket.Dial(wsURL, "", "https://api.sublimesecurity.com/")
	if err != nil {
		fatal("Failed to establish connection: %v", err)
	}
	defer conn.Close()

	// The server expects an initial client message before streaming.
	if err := websocket.Message.Send(conn, "test"); err != nil {
		fatal("Failed to establish connection: %v", err)
	}

	var queue []any
	for {
		var raw string
		if err := websocket.Message.Receive(conn, &raw); err != nil {
			fatal("Connection lost: %v", err)
		}

		var event any
		if err := json.Unmarshal([]byte(raw), &event); err != nil {
			event = raw
		}

		if obj, ok := event.(map[string]any); ok {
			if success, present := obj["success"].(bool); present && !success {
				fatal("%v", obj["error"])
			}
			if name, _ := obj["event_name"].(string); name == "flagged-messages-reviewed" {
				queue = removeReviewed(queue, obj["message_data_model_id"])
			} else {
				queue = append(queue, event)
			}
		} else {
			queue = append(queue, event)
		}

		clearScreen()
		for _, item := range queue {
			rendered, err := output.Format(common.outputFormat, output.FamilyListen, item, common.verbose)
			if err != nil {
				logger.Warn("Failed to render event", "error", err)
				continue
			}
			fmt.Println(strings.Trim(rendered, "\n"))
		}
	}
}

// removeReviewed drops queued events whose MDM ID matches a review
// event.
func removeReviewed(queue []any, reviewedID any) []any {
	id, ok := reviewedID.(string)
	if !ok || id == "" {
		return queue
	}
	kept := queue[:0]
	for _, item := range queue {
		if obj, ok := item.(map[string]any); ok {
			if cur, _ := obj["message_data_model_id"].(string); cur == id {
				continue
			}
		}
		kept = append(kept, item)
	}
	return kept
}

func clearScreen() {
	fmt.Print("\x1b[2J\x1b[H")
}
