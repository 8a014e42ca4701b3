package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/sublime-security/sublime-cli/output"
)

func handleGetMe() {
	fs := flag.NewFlagSet("get me", flag.ExitOnError)
	common := registerCommon(fs, "txt")
	fs.Usage = func() {
		fmt.Printf(`Get information about the currently authenticated Sublime user

Usage:
  sublime get me [options]

Options:
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

	result, err := client.GetMe(context.Background())
	exitOnError(err)
	emitResult(common, output.FamilyGetMe, result)
}

func handleGetOrg() {
	fs := flag.NewFlagSet("get org", flag.ExitOnError)
	common := registerCommon(fs, "txt")
	fs.Usage = func() {
		fmt.Printf(`Get information about the currently authenticated organization

Usage:
  sublime get org [options]

Options:
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

	result, err := client.GetOrg(context.Background())
	exitOnError(err)
	emitResult(common, output.FamilyGetOrg, result)
}

func handleGetUsers() {
	fs := flag.NewFlagSet("get users", flag.ExitOnError)
	common := registerCommon(fs, "txt")
	var licenseActive string
	fs.StringVar(&licenseActive, "active", "", "Filter by users with active licenses only")
	fs.StringVar(&licenseActive, "a", "", "Filter by license state (shorthand)")

	fs.Usage = func() {
		fmt.Printf(`Get users in your organization

Usage:
  sublime get users [options]

Options:
  -a, --active string   Filter by license state (true or false)
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

	result, err := client.GetUsers(context.Background(), parseBoolChoice("active", licenseActive))
	exitOnError(err)
	emitResult(common, "users", result)
}

func handleUpdateUsers() {
	fs := flag.NewFlagSet("update users", flag.ExitOnError)
	common := registerCommon(fs, "txt")
	var emailAddress, licenseActive string
	var updateAll bool
	fs.StringVar(&emailAddress, "user", "", "Email address of the user to update")
	fs.StringVar(&emailAddress, "u", "", "Email address of the user (shorthand)")
	fs.BoolVar(&updateAll, "all", false, "Update the license state of all users at once")
	fs.StringVar(&licenseActive, "active", "", "Activate or deactivate the user's license (required)")
	fs.StringVar(&licenseActive, "a", "", "Activate or deactivate the license (shorthand)")

	fs.Usage = func() {
		fmt.Printf(`Activate or deactivate user licenses for live flow

Usage:
  sublime update users [options]

Options:
  -u, --user string     Email address of the user to update
  --all                 Update all users at once (prompts first)
  -a, --active string   License state: true or false (required)
  -o, --output string   Output file
  -f, --format string   Output format: json or txt (default "txt")
  -k, --api-key string  Key to include in API requests
  -v, --verbose         Verbose output
`)
	}
	fs.Parse(os.Args[3:])
	common.validate()

	activeVal := parseBoolChoice("active", licenseActive)
	if activeVal == nil {
		fatal("License state (-a true|false) is required")
	}
	if !updateAll && emailAddress == "" {
		fatal("You must specify a user or --all")
	}

	cfg := loadCLIConfig()
	client := newAPIClient(cfg, common.apiKey)
	ctx := context.Background()

	result := newBatchResult()
	if updateAll {
		listing, err := client.GetUsers(ctx, nil)
		exitOnError(err)
		emails := userEmails(listing)
		if len(emails) == 0 {
			fmt.Println("No users to update!")
			os.Exit(1)
		}
		if !confirm(fmt.Sprintf("Are you sure you want to update all %d users?", len(emails))) {
			fmt.Println("Aborted!")
			os.Exit(1)
		}
		for _, email := range emails {
			updated, err := client.UpdateUserLicense(ctx, email, *activeVal)
			result.record(email, updated, err)
		}
	} else {
		updated, err := client.UpdateUserLicense(ctx, emailAddress, *activeVal)
		exitOnError(err)
		result.record(emailAddress, updated, nil)
	}
	emitResult(common, output.FamilyUpdateDetections, result.response())
}

func handleSendMock() {
	fs := flag.NewFlagSet("send mock", flag.ExitOnError)
	common := registerCommon(fs, "txt")

	fs.Usage = func() {
		fmt.Printf(`Send mock email messages to yourself

Commands: "tutorial-one"

Usage:
  sublime send mock <command> [options]

Options:
  -o, --output string   Output file
  -f, --format string   Output format: json or txt (default "txt")
  -k, --api-key string  Key to include in API requests
  -v, --verbose         Verbose output
`)
	}

	if len(os.Args) < 4 {
		fs.Usage()
		os.Exit(1)
	}
	command := os.Args[3]
	fs.Parse(os.Args[4:])
	common.validate()

	if command != "tutorial-one" {
		fatal("Invalid command %q: expected tutorial-one", command)
	}

	cfg := loadCLIConfig()
	client := newAPIClient(cfg, common.apiKey)

	result, err := client.SendMockTutorialOne(context.Background())
	exitOnError(err)
	emitResult(common, output.FamilyGetMessages, result)
}

// userEmails extracts the email addresses from a user listing.
func userEmails(listing any) []string {
	obj, ok := listing.(map[string]any)
	if !ok {
		return nil
	}
	raw, ok := obj["users"].([]any)
	if !ok {
		return nil
	}
	var emails []string
	for _, item := range raw {
		if u, ok := item.(map[string]any); ok {
			if email, ok := u["email_address"].(string); ok {
				emails = append(emails, email)
			}
		}
	}
	return emails
}
