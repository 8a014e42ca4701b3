package output

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// gronRoot is the variable name the flattened output hangs off of.
const gronRoot = "message_data_model"

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Gron flattens a decoded JSON value into one assignment per line, in
// the style of the gron tool. The root object renders as
// "message_data_model = {};" and nested paths are printed bare. Map
// keys are sorted so output is stable.
func Gron(v any) string {
	var b strings.Builder
	obj, ok := v.(map[string]any)
	if !ok {
		gronValue(&b, gronRoot, v)
		return b.String()
	}

	fmt.Fprintf(&b, "%s = {};\n", gronRoot)
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		path := k
		if !identifierRe.MatchString(k) {
			quoted, _ := json.Marshal(k)
			path = "[" + string(quoted) + "]"
		}
		gronValue(&b, path, obj[k])
	}
	return b.String()
}

func gronValue(b *strings.Builder, path string, v any) {
	switch val := v.(type) {
	case map[string]any:
		fmt.Fprintf(b, "%s = {};\n", path)
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			gronValue(b, path+gronKey(k), val[k])
		}
	case []any:
		fmt.Fprintf(b, "%s = [];\n", path)
		for i, item := range val {
			gronValue(b, fmt.Sprintf("%s[%d]", path, i), item)
		}
	default:
		encoded, err := json.Marshal(val)
		if err != nil {
			encoded = []byte("null")
		}
		fmt.Fprintf(b, "%s = %s;\n", path, encoded)
	}
}

// gronKey renders a map key as either dotted or bracketed access.
func gronKey(k string) string {
	if identifierRe.MatchString(k) {
		return "." + k
	}
	quoted, _ := json.Marshal(k)
	return "[" + string(quoted) + "]"
}
