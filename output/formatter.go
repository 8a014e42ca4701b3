// Package output renders API responses for display: indented JSON, or
// per-response-family text templates with optional ANSI styling.
package output

import (
	"embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"text/template"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(
	template.New("").Funcs(colorFuncs).ParseFS(templateFS, "templates/*.tmpl"))

// Families select the txt template for a response.
const (
	FamilyEnrich           = "enrich"
	FamilyCreate           = "create"
	FamilyAnalyze          = "analyze"
	FamilyEnrichDetails    = "enrich_details"
	FamilyQuery            = "query"
	FamilyCreateDetections = "create_detections"
	FamilyGetDetections    = "get_detections"
	FamilyGetMessages      = "get_messages"
	FamilyUpdateDetections = "update_detections"
	FamilyGetMe            = "get_me"
	FamilyGetOrg           = "get_org"
	FamilyListen           = "listen"
)

// Format renders an API response. format is "json" or "txt"; family
// picks the txt rendering. Unknown families fall back to JSON.
func Format(format, family string, result any, verbose bool) (string, error) {
	if format == "json" {
		return JSON(result)
	}

	switch family {
	case FamilyEnrich, FamilyCreate:
		return Gron(result), nil
	case FamilyAnalyze:
		return formatAnalyze(result, verbose)
	case FamilyEnrichDetails:
		return formatEnrichDetails(result)
	case FamilyQuery:
		return formatQuery(result, verbose)
	case FamilyCreateDetections:
		return formatDetectionBatch("create_detections_result.tmpl", result)
	case FamilyUpdateDetections:
		return formatDetectionBatch("update_detections_result.tmpl", result)
	case FamilyGetDetections:
		return formatGetDetections(result, verbose)
	case FamilyGetMessages, FamilyListen:
		return formatGetMessages(result, verbose)
	case FamilyGetMe:
		return formatFields("get_me_result.tmpl", result)
	case FamilyGetOrg:
		return formatFields("get_org_result.tmpl", result)
	default:
		return JSON(result)
	}
}

// JSON renders a response as indented JSON.
func JSON(result any) (string, error) {
	encoded, err := json.MarshalIndent(result, "", "    ")
	if err != nil {
		return "", fmt.Errorf("failed to encode result: %w", err)
	}
	return string(encoded), nil
}

// FormatDetectionSource breaks a detection source onto indented
// continuation lines at logical operators and list boundaries.
func FormatDetectionSource(source string) string {
	source = strings.ReplaceAll(source, "&&", "\n  &&")
	source = strings.ReplaceAll(source, "||", "\n  ||")
	source = strings.ReplaceAll(source, "],", "],\n  ")
	return source
}

func render(name string, data any) (string, error) {
	var b strings.Builder
	if err := templates.ExecuteTemplate(&b, name, data); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", name, err)
	}
	return b.String(), nil
}

// resultList unwraps a response into its result objects: multi
// responses carry "results", single responses carry "result".
func resultList(result any) []map[string]any {
	obj, ok := result.(map[string]any)
	if !ok {
		return nil
	}
	if raw, ok := obj["results"].([]any); ok {
		list := make([]map[string]any, 0, len(raw))
		for _, item := range raw {
			if m, ok := item.(map[string]any); ok {
				list = append(list, m)
			}
		}
		return list
	}
	if single, ok := obj["result"].(map[string]any); ok {
		return []map[string]any{single}
	}
	return nil
}

func stringField(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func boolField(m map[string]any, key string) bool {
	b, _ := m[key].(bool)
	return b
}

type detectionResultView struct {
	Name     string
	Severity string
	Source   string
	Matched  bool
}

func detectionResultViews(results []map[string]any) []detectionResultView {
	views := make([]detectionResultView, 0, len(results))
	for _, r := range results {
		views = append(views, detectionResultView{
			Name:     stringField(r, "name"),
			Severity: stringField(r, "severity"),
			Source:   FormatDetectionSource(stringField(r, "detection")),
			Matched:  boolField(r, "result"),
		})
	}
	return views
}

func formatAnalyze(result any, verbose bool) (string, error) {
	views := detectionResultViews(resultList(result))
	matched := 0
	for _, v := range views {
		if v.Matched {
			matched++
		}
	}
	return render("analyze_result.tmpl", struct {
		Results      []detectionResultView
		MatchedCount int
		Total        int
		Verbose      bool
	}{views, matched, len(views), verbose})
}

type queryResultView struct {
	Name   string
	Source string
	Result string
}

func formatQuery(result any, verbose bool) (string, error) {
	var views []queryResultView
	for _, r := range resultList(result) {
		view := queryResultView{
			Name:   stringField(r, "name"),
			Source: FormatDetectionSource(stringField(r, "query")),
			Result: stringField(r, "result"),
		}
		// List and dict results arrive as embedded JSON strings.
		switch stringField(r, "type") {
		case "list", "dict":
			var decoded any
			if err := json.Unmarshal([]byte(view.Result), &decoded); err == nil {
				if pretty, err := JSON(decoded); err == nil {
					view.Result = pretty
				}
			}
		}
		if view.Result == "" {
			view.Result = fmt.Sprintf("%v", r["result"])
		}
		views = append(views, view)
	}
	return render("query_result.tmpl", struct {
		Results []queryResultView
		Verbose bool
	}{views, verbose})
}

type enrichmentView struct {
	Name    string
	Success bool
}

func enrichmentViews(details []any) []enrichmentView {
	views := make([]enrichmentView, 0, len(details))
	for _, item := range details {
		d, ok := item.(map[string]any)
		if !ok {
			continue
		}
		views = append(views, enrichmentView{
			Name:    stringField(d, "name", "enrichment"),
			Success: boolField(d, "success"),
		})
	}
	return views
}

func formatEnrichDetails(result any) (string, error) {
	obj, _ := result.(map[string]any)
	details, _ := obj["details"].([]any)
	views := enrichmentViews(details)
	successful := 0
	for _, v := range views {
		if v.Success {
			successful++
		}
	}
	return render("enrich_details.tmpl", struct {
		Details    []enrichmentView
		Successful int
		Total      int
	}{views, successful, len(views)})
}

type batchItemView struct {
	Name  string
	Error string
}

func batchItemViews(items []any) []batchItemView {
	views := make([]batchItemView, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		name := stringField(m, "name")
		if name == "" {
			name = stringField(m, "detection")
		}
		views = append(views, batchItemView{
			Name:  name,
			Error: stringField(m, "message", "error"),
		})
	}
	return views
}

// formatDetectionBatch renders create/update responses, which carry
// "success" and "fail" lists.
func formatDetectionBatch(templateName string, result any) (string, error) {
	obj, _ := result.(map[string]any)
	success, _ := obj["success"].([]any)
	fail, _ := obj["fail"].([]any)
	return render(templateName, struct {
		Success []batchItemView
		Fail    []batchItemView
	}{batchItemViews(success), batchItemViews(fail)})
}

type detectionView struct {
	ID       string
	Name     string
	Severity string
	Source   string
	Active   bool
}

func formatGetDetections(result any, verbose bool) (string, error) {
	obj, _ := result.(map[string]any)
	raw, _ := obj["detections"].([]any)
	views := make([]detectionView, 0, len(raw))
	for _, item := range raw {
		d, ok := item.(map[string]any)
		if !ok {
			continue
		}
		views = append(views, detectionView{
			ID:       stringField(d, "id"),
			Name:     stringField(d, "name"),
			Severity: stringField(d, "severity"),
			Source:   FormatDetectionSource(stringField(d, "detection")),
			Active:   boolField(d, "active"),
		})
	}
	return render("get_detections_result.tmpl", struct {
		Detections []detectionView
		Verbose    bool
	}{views, verbose})
}

type flaggedMessageView struct {
	ID        string
	Subject   string
	Sender    string
	FlaggedAt string
	Reviewed  bool
}

func newFlaggedMessageView(m map[string]any) flaggedMessageView {
	view := flaggedMessageView{
		ID:        stringField(m, "message_data_model_id", "id"),
		Subject:   stringField(m, "subject"),
		Sender:    stringField(m, "sender", "from"),
		FlaggedAt: stringField(m, "flagged_at", "created_at"),
		Reviewed:  boolField(m, "reviewed"),
	}
	if view.Subject == "" {
		view.Subject = "[Empty Subject]"
	}
	return view
}

func formatGetMessages(result any, verbose bool) (string, error) {
	obj, ok := result.(map[string]any)
	if !ok {
		return JSON(result)
	}

	// The detail response carries enrichment and detection results.
	if _, ok := obj["enrichment_results"]; ok {
		return formatMessageDetail(obj, verbose)
	}

	var views []flaggedMessageView
	if raw, ok := obj["results"].([]any); ok {
		for _, item := range raw {
			if m, ok := item.(map[string]any); ok {
				views = append(views, newFlaggedMessageView(m))
			}
		}
	} else {
		// A single event from the listen stream.
		views = append(views, newFlaggedMessageView(obj))
	}
	return render("get_messages_result.tmpl", struct {
		Messages []flaggedMessageView
		Verbose  bool
	}{views, verbose})
}

func formatMessageDetail(obj map[string]any, verbose bool) (string, error) {
	enrichments, _ := obj["enrichment_results"].(map[string]any)
	details, _ := enrichments["details"].([]any)
	enrichmentResults := enrichmentViews(details)
	successful := 0
	for _, v := range enrichmentResults {
		if v.Success {
			successful++
		}
	}

	var detectionResults []map[string]any
	if raw, ok := obj["detection_results"].([]any); ok {
		for _, item := range raw {
			if m, ok := item.(map[string]any); ok {
				detectionResults = append(detectionResults, m)
			}
		}
	}

	mdm := ""
	if verbose {
		if model, ok := obj["message_data_model_result"]; ok && model != nil {
			mdm = Gron(model)
		}
	}

	return render("get_messages_detail.tmpl", struct {
		DetectionResults      []detectionResultView
		SuccessfulEnrichments int
		TotalEnrichments      int
		MDM                   string
		Verbose               bool
	}{detectionResultViews(detectionResults), successful, len(enrichmentResults), mdm, verbose})
}

type fieldView struct {
	Name  string
	Value string
}

// formatFields renders the scalar fields of an object as sorted
// name/value lines; used for me and org responses.
func formatFields(templateName string, result any) (string, error) {
	obj, _ := result.(map[string]any)
	var fields []fieldView
	for k, v := range obj {
		switch v.(type) {
		case map[string]any, []any, nil:
			continue
		}
		fields = append(fields, fieldView{Name: k, Value: fmt.Sprintf("%v", v)})
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].Name < fields[j].Name })
	return render(templateName, struct{ Fields []fieldView }{fields})
}
