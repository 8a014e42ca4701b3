package input

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"net/mail"
	"os"
	"strings"

	"github.com/sublime-security/sublime-cli/logger"
)

// MboxMessage is one message extracted from an mbox file.
type MboxMessage struct {
	// Key is the decoded Subject, deduplicated with an " (n)" suffix.
	// Messages without a subject get "[Empty Subject]".
	Key string

	// Raw is the base64-encoded message.
	Raw string
}

// LoadMbox splits an mbox file into its messages and base64-encodes
// each one. Messages that cannot be parsed are logged and skipped.
func LoadMbox(path string) ([]MboxMessage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load mbox: %w", err)
	}
	defer f.Close()
	return ReadMbox(f)
}

// ReadMbox splits mbox data from r. A message starts at a "From " line
// that is either the first line or follows a blank line; ">From" quoting
// inside bodies is undone.
func ReadMbox(r io.Reader) ([]MboxMessage, error) {
	var messages []MboxMessage
	seen := make(map[string]struct{})

	var current *bytes.Buffer
	lastBlank := true

	flush := func() {
		if current == nil || current.Len() == 0 {
			return
		}
		if msg, ok := encodeMboxMessage(current.Bytes(), seen); ok {
			messages = append(messages, msg)
		}
		current = nil
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()

		if lastBlank && strings.HasPrefix(line, "From ") {
			flush()
			current = new(bytes.Buffer)
			lastBlank = false
			continue
		}

		lastBlank = line == ""

		if current == nil {
			// Garbage before the first separator.
			continue
		}
		// Undo mboxrd-style From quoting.
		if strings.HasPrefix(strings.TrimLeft(line, ">"), "From ") && strings.HasPrefix(line, ">") {
			line = line[1:]
		}
		current.WriteString(line)
		current.WriteString("\r\n")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read mbox: %w", err)
	}
	flush()

	if len(messages) == 0 {
		return nil, fmt.Errorf("no messages found in mbox")
	}
	return messages, nil
}

// encodeMboxMessage derives a subject key for one raw message and
// base64-encodes it.
func encodeMboxMessage(raw []byte, seen map[string]struct{}) (MboxMessage, bool) {
	subject := "[Empty Subject]"
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		logger.Warn("Skipping unparseable mbox message", "error", err)
		return MboxMessage{}, false
	}
	if s := msg.Header.Get("Subject"); s != "" {
		subject = decodeSubject(s)
	}

	key := subject
	for instance := 1; ; instance++ {
		if _, dup := seen[key]; !dup {
			break
		}
		key = fmt.Sprintf("%s (%d)", subject, instance)
	}
	seen[key] = struct{}{}

	return MboxMessage{
		Key: key,
		Raw: base64.StdEncoding.EncodeToString(raw),
	}, true
}

// decodeSubject decodes RFC 2047 encoded words, falling back to the raw
// header on failure.
func decodeSubject(s string) string {
	dec := &mime.WordDecoder{}
	decoded, err := dec.DecodeHeader(s)
	if err != nil {
		return s
	}
	return decoded
}
