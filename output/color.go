package output

import (
	"os"

	"golang.org/x/term"
)

// ANSI styles used by the txt templates. Styling is dropped when stdout
// is not a terminal so piped output stays clean.
const (
	ansiReset       = "\x1b[0m"
	ansiBold        = "\x1b[1m"
	ansiDim         = "\x1b[2m"
	ansiGreen       = "\x1b[32m"
	ansiBlue        = "\x1b[34m"
	ansiLightRed    = "\x1b[91m"
	ansiLightGreen  = "\x1b[92m"
	ansiLightYellow = "\x1b[93m"
)

var colorEnabled = term.IsTerminal(int(os.Stdout.Fd()))

// SetColor overrides terminal detection; used by tests and the
// NO_COLOR convention.
func SetColor(enabled bool) {
	colorEnabled = enabled
}

func colorize(code, s string) string {
	if !colorEnabled || s == "" {
		return s
	}
	return code + s + ansiReset
}

// Template funcs. The names mirror the markup tags the txt templates
// use: header, key, value, success, fail, detected, and so on.
var colorFuncs = map[string]any{
	"header":      func(s string) string { return colorize(ansiBold, s) },
	"key":         func(s string) string { return colorize(ansiBlue, s) },
	"value":       func(s string) string { return colorize(ansiGreen, s) },
	"success":     func(s string) string { return colorize(ansiGreen, s) },
	"fail":        func(s string) string { return colorize(ansiLightRed, s) },
	"detected":    func(s string) string { return colorize(ansiLightGreen, s) },
	"notdetected": func(s string) string { return colorize(ansiDim, s) },
	"unknown":     func(s string) string { return colorize(ansiDim, s) },
	"enrichment":  func(s string) string { return colorize(ansiLightYellow, s) },
	"warning":     func(s string) string { return colorize(ansiLightYellow, s) },
}
