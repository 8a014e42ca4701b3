package input

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadMDM(t *testing.T) {
	mdm, err := ReadMDM(strings.NewReader(`{"subject": {"subject": "hi"}, "version": 1}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"subject": "hi"}, mdm["subject"])
	assert.Equal(t, float64(1), mdm["version"])
}

func TestReadMDMInvalidJSON(t *testing.T) {
	_, err := ReadMDM(strings.NewReader("not json"))
	assert.Error(t, err)
}

func TestLoadMDM(t *testing.T) {
	path := writeFile(t, t.TempDir(), "message.mdm", `{"subject": {"subject": "hi"}}`)

	mdm, err := LoadMDM(path)
	require.NoError(t, err)
	assert.Contains(t, mdm, "subject")
}
