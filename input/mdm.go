package input

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// LoadMDM reads a Message Data Model file (JSON produced by the enrich
// or generate subcommands).
func LoadMDM(path string) (map[string]any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load Message Data Model: %w", err)
	}
	defer f.Close()
	return ReadMDM(f)
}

// ReadMDM reads a Message Data Model from r.
func ReadMDM(r io.Reader) (map[string]any, error) {
	var mdm map[string]any
	if err := json.NewDecoder(r).Decode(&mdm); err != nil {
		return nil, fmt.Errorf("failed to load Message Data Model: %w", err)
	}
	return mdm, nil
}
