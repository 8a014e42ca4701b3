package output

import (
	"os"
	"strings"
	"testing"
)

func TestMain(m *testing.M) {
	SetColor(false)
	os.Exit(m.Run())
}

func indexOf(t *testing.T, s, substr string) int {
	t.Helper()
	i := strings.Index(s, substr)
	if i < 0 {
		t.Fatalf("%q not found in output:\n%s", substr, s)
	}
	return i
}
