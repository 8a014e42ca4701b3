// Package input converts local files into the payloads the Sublime API
// accepts: EML, MSG, and MBOX messages become base64 strings, MDM files
// become JSON objects, and rule files (.pql, .yml) become detection and
// query records.
package input

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"os"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
)

// LoadEML reads an RFC 5322 message file and returns its base64 encoding.
func LoadEML(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to load EML: %w", err)
	}
	defer f.Close()
	return ReadEML(f)
}

// ReadEML reads an RFC 5322 message and returns its base64 encoding.
// The message is parsed first so malformed files fail here rather than
// server side; unknown charsets are tolerated.
func ReadEML(r io.Reader) (string, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to load EML: %w", err)
	}

	if _, err := message.Read(bytes.NewReader(raw)); err != nil && !message.IsUnknownCharset(err) {
		return "", fmt.Errorf("failed to load EML: %w", err)
	}

	return base64.StdEncoding.EncodeToString(raw), nil
}
