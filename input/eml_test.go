package input

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleEML = "From: sender@example.com\r\n" +
	"To: rcpt@example.com\r\n" +
	"Subject: hello\r\n" +
	"\r\n" +
	"body text\r\n"

func TestReadEMLEncodesRawMessage(t *testing.T) {
	encoded, err := ReadEML(strings.NewReader(sampleEML))
	require.NoError(t, err)

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	assert.Equal(t, sampleEML, string(decoded))
}

func TestReadEMLToleratesUnknownCharset(t *testing.T) {
	eml := "From: sender@example.com\r\n" +
		"Subject: hello\r\n" +
		"Content-Type: text/plain; charset=x-no-such-charset\r\n" +
		"\r\n" +
		"body\r\n"

	encoded, err := ReadEML(strings.NewReader(eml))
	require.NoError(t, err)
	assert.NotEmpty(t, encoded)
}

func TestReadEMLRejectsMalformedHeader(t *testing.T) {
	_, err := ReadEML(strings.NewReader("this is not a header line\r\n\r\nbody\r\n"))
	assert.Error(t, err)
}

func TestLoadEML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "message.eml", sampleEML)

	encoded, err := LoadEML(path)
	require.NoError(t, err)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte(sampleEML)), encoded)
}

func TestLoadEMLMissingFile(t *testing.T) {
	_, err := LoadEML("/nonexistent/message.eml")
	assert.Error(t, err)
}
