package input

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/sublime-security/sublime-cli/api"
)

// ErrNoRules indicates a rule file contained no detections or queries.
var ErrNoRules = errors.New("no detections or queries found")

// A rule file holds one or more source blocks separated by blank lines.
// Lines starting with # are comments. A line starting with ; names the
// block that follows it. Blocks may span multiple lines; they are joined
// with single spaces.
type block struct {
	name   string
	source string
}

// scanBlocks is the line-oriented scanner behind LoadDetections and
// LoadQueries.
func scanBlocks(r io.Reader) ([]block, error) {
	var blocks []block
	var name string
	var source strings.Builder

	flush := func() {
		if source.Len() == 0 {
			return
		}
		blocks = append(blocks, block{
			name:   strings.TrimSpace(name),
			source: strings.TrimSpace(source.String()),
		})
		name = ""
		source.Reset()
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		switch {
		case strings.HasPrefix(line, "#"):
			// comment
		case strings.HasPrefix(line, ";"):
			name = strings.TrimSpace(strings.Trim(line, ";"))
		case line == "":
			flush()
		default:
			source.WriteString(" ")
			source.WriteString(line)
			source.WriteString(" ")
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rule file: %w", err)
	}

	// No trailing blank line after the last block.
	flush()

	if len(blocks) == 0 {
		return nil, ErrNoRules
	}
	return blocks, nil
}

// ReadDetections parses a .pql rule file into detections.
func ReadDetections(r io.Reader) ([]api.Detection, error) {
	blocks, err := scanBlocks(r)
	if err != nil {
		return nil, err
	}
	detections := make([]api.Detection, 0, len(blocks))
	for _, b := range blocks {
		detections = append(detections, api.Detection{Name: b.name, Source: b.source})
	}
	return detections, nil
}

// ReadQueries parses a .pql rule file into queries.
func ReadQueries(r io.Reader) ([]api.Query, error) {
	blocks, err := scanBlocks(r)
	if err != nil {
		return nil, err
	}
	queries := make([]api.Query, 0, len(blocks))
	for _, b := range blocks {
		queries = append(queries, api.Query{Name: b.name, Source: b.source})
	}
	return queries, nil
}

// LoadDetections loads detections from a .pql file.
func LoadDetections(path string) ([]api.Detection, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load detections: %w", err)
	}
	defer f.Close()
	return ReadDetections(f)
}

// LoadQueries loads queries from a .pql file.
func LoadQueries(path string) ([]api.Query, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load queries: %w", err)
	}
	defer f.Close()
	return ReadQueries(f)
}

// LoadDetectionsDir loads detections from every .pql file under dir,
// recursively.
func LoadDetectionsDir(dir string) ([]api.Detection, error) {
	var detections []api.Detection
	err := walkRuleFiles(dir, []string{".pql"}, func(path string) error {
		loaded, err := LoadDetections(path)
		if err != nil {
			return err
		}
		detections = append(detections, loaded...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(detections) == 0 {
		return nil, ErrNoRules
	}
	return detections, nil
}

// LoadQueriesDir loads queries from every .pql file under dir, recursively.
func LoadQueriesDir(dir string) ([]api.Query, error) {
	var queries []api.Query
	err := walkRuleFiles(dir, []string{".pql"}, func(path string) error {
		loaded, err := LoadQueries(path)
		if err != nil {
			return err
		}
		queries = append(queries, loaded...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(queries) == 0 {
		return nil, ErrNoRules
	}
	return queries, nil
}

// walkRuleFiles visits every regular file under dir whose extension is
// in exts, in lexical order.
func walkRuleFiles(dir string, exts []string, fn func(path string) error) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		for _, want := range exts {
			if ext == want {
				return fn(path)
			}
		}
		return nil
	})
}
