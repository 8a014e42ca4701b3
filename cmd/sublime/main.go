package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "setup":
		handleSetup()
	case "version":
		handleVersion()
	case "enrich":
		handleEnrich()
	case "generate":
		handleGenerate()
	case "analyze":
		handleAnalyze()
	case "query":
		handleQuery()
	case "listen":
		handleListen()
	case "get":
		dispatchGroup("get", map[string]func(){
			"detections": handleGetDetections,
			"messages":   handleGetMessages,
			"me":         handleGetMe,
			"org":        handleGetOrg,
			"users":      handleGetUsers,
		})
	case "create":
		dispatchGroup("create", map[string]func(){
			"detections": handleCreateDetections,
		})
	case "update":
		dispatchGroup("update", map[string]func(){
			"detections": handleUpdateDetections,
			"messages":   handleUpdateMessages,
			"users":      handleUpdateUsers,
		})
	case "delete":
		dispatchGroup("delete", map[string]func(){
			"messages": handleDeleteMessages,
		})
	case "send":
		dispatchGroup("send", map[string]func(){
			"mock": handleSendMock,
		})
	case "share":
		dispatchGroup("share", map[string]func(){
			"detections": handleShareDetections,
		})
	case "subscribe":
		dispatchGroup("subscribe", map[string]func(){
			"detections": handleSubscribeDetections,
		})
	case "backtest":
		dispatchGroup("backtest", map[string]func(){
			"detections": handleBacktestDetections,
		})
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

// dispatchGroup routes "sublime <group> <item>" commands.
func dispatchGroup(group string, handlers map[string]func()) {
	if len(os.Args) < 3 {
		fmt.Printf("Usage: sublime %s <item> [options]\n\nItems:\n", group)
		for item := range handlers {
			fmt.Printf("  %s\n", item)
		}
		os.Exit(1)
	}

	item := os.Args[2]
	handler, ok := handlers[item]
	if !ok {
		fmt.Printf("Unknown item for %s: %s\n", group, item)
		os.Exit(1)
	}
	handler()
}

func printUsage() {
	fmt.Printf(`Sublime CLI

Analyze messages and manage detections in your Sublime environment.

Usage:
  sublime <command> [options]

Commands:
  setup       Save the API key and defaults to the configuration file
  version     Show version and platform information
  enrich      Enrich an EML into a Message Data Model
  generate    Generate an unenriched Message Data Model from an EML
  analyze     Run detections against an EML, MSG, MBOX, or MDM file
  query       Run queries against an enriched MDM
  listen      Stream real-time events from your Sublime environment
  get         Get detections, messages, users, or org info
  create      Create detections
  update      Update detections, messages, or users
  delete      Delete messages
  send        Send mock messages to yourself
  share       Share or unshare detections with the community
  subscribe   Subscribe to or unsubscribe from community detections
  backtest    Backtest detections against historical messages
  help        Show this help message

Examples:
  sublime setup --api-key YOUR_KEY
  sublime analyze -i message.eml -d 'length(subject.subject) > 100'
  sublime enrich -i message.eml
  sublime get detections
  sublime backtest detections -D rules.pql --after 2023-05-01

Use 'sublime <command> --help' for more information about a command.
`)
}
