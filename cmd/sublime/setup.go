package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"

	"github.com/sublime-security/sublime-cli/api"
	"github.com/sublime-security/sublime-cli/config"
)

func handleSetup() {
	fs := flag.NewFlagSet("setup", flag.ExitOnError)
	var apiKey, saveDir string
	fs.StringVar(&apiKey, "api-key", "", "Key to include in API requests")
	fs.StringVar(&apiKey, "k", "", "Key to include in API requests (shorthand)")
	fs.StringVar(&saveDir, "save-dir", "", "Default save directory for retrieved items")
	fs.StringVar(&saveDir, "s", "", "Default save directory (shorthand)")

	fs.Usage = func() {
		fmt.Printf(`Save defaults to the configuration file

Values already saved are preserved unless a new value is given.

Usage:
  sublime setup [options]

Options:
  -k, --api-key string   Key to include in API requests
  -s, --save-dir string  Default save directory for retrieved items

Examples:
  sublime setup --api-key YOUR_KEY
  sublime setup --save-dir ~/sublime
`)
	}
	fs.Parse(os.Args[2:])

	if apiKey == "" && saveDir == "" {
		fmt.Println(`No options provided. Try "sublime setup --help" for help.`)
		os.Exit(1)
	}

	path, err := config.DefaultPath()
	if err != nil {
		fatal("%v", err)
	}
	if err := config.Save(path, config.Config{APIKey: apiKey, SaveDir: saveDir}); err != nil {
		fatal("Failed to save configuration: %v", err)
	}
	fmt.Printf("Configuration saved to %q\n", path)
}

func handleVersion() {
	fmt.Printf("sublime %s\n  %s\n  %s/%s\n", api.Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
