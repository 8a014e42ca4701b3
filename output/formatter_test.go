package output

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, raw string) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(raw), &v))
	return v
}

func TestFormatJSON(t *testing.T) {
	got, err := Format("json", FamilyAnalyze, map[string]any{"result": true}, false)
	require.NoError(t, err)
	assert.Equal(t, "{\n    \"result\": true\n}", got)
}

func TestFormatAnalyzeMulti(t *testing.T) {
	result := decode(t, `{
		"results": [
			{"name": "long subject", "result": true, "detection": "length(subject.subject) > 100"},
			{"name": "wire fraud", "result": false, "detection": "strings.icontains(subject.subject, 'wire')"}
		]
	}`)

	got, err := Format("txt", FamilyAnalyze, result, false)
	require.NoError(t, err)
	assert.Contains(t, got, "ANALYSIS RESULTS")
	assert.Contains(t, got, "[DETECTED] long subject")
	assert.Contains(t, got, "[NOT DETECTED] wire fraud")
	assert.Contains(t, got, "1 of 2 detections matched")
	assert.NotContains(t, got, "length(subject.subject)")
}

func TestFormatAnalyzeVerboseShowsSource(t *testing.T) {
	result := decode(t, `{
		"result": {"name": "r", "result": true, "detection": "a && b"}
	}`)

	got, err := Format("txt", FamilyAnalyze, result, true)
	require.NoError(t, err)
	assert.Contains(t, got, "a \n  && b")
}

func TestFormatQueryPrettyPrintsListResults(t *testing.T) {
	result := decode(t, `{
		"results": [
			{"name": "links", "query": "body.links", "type": "list", "result": "[\"https://example.com\"]"}
		]
	}`)

	got, err := Format("txt", FamilyQuery, result, false)
	require.NoError(t, err)
	assert.Contains(t, got, "QUERY RESULTS")
	assert.Contains(t, got, "links")
	assert.Contains(t, got, "\"https://example.com\"")
	assert.Contains(t, got, "[\n")
}

func TestFormatEnrichDetails(t *testing.T) {
	result := decode(t, `{
		"details": [
			{"name": "whois", "success": true},
			{"name": "dns", "success": false}
		]
	}`)

	got, err := Format("txt", FamilyEnrichDetails, result, false)
	require.NoError(t, err)
	assert.Contains(t, got, "ENRICHMENT RESULTS")
	assert.Contains(t, got, "[SUCCESS] whois")
	assert.Contains(t, got, "[FAILED] dns")
	assert.Contains(t, got, "1 of 2 enrichments succeeded")
}

func TestFormatEnrichUsesGron(t *testing.T) {
	got, err := Format("txt", FamilyEnrich, map[string]any{"subject": map[string]any{"subject": "hi"}}, false)
	require.NoError(t, err)
	assert.Contains(t, got, "message_data_model = {};")
	assert.Contains(t, got, `subject.subject = "hi";`)
}

func TestFormatCreateDetections(t *testing.T) {
	result := decode(t, `{
		"success": [{"name": "good rule"}],
		"fail": [{"name": "bad rule", "message": "compile error"}]
	}`)

	got, err := Format("txt", FamilyCreateDetections, result, false)
	require.NoError(t, err)
	assert.Contains(t, got, "[CREATED] good rule")
	assert.Contains(t, got, "[FAILED] bad rule: compile error")
	assert.Contains(t, got, "1 created, 1 failed")
}

func TestFormatGetDetections(t *testing.T) {
	result := decode(t, `{
		"detections": [
			{"id": "det-1", "name": "r1", "active": true, "severity": "high", "detection": "x"},
			{"id": "det-2", "name": "r2", "active": false, "detection": "y"}
		]
	}`)

	got, err := Format("txt", FamilyGetDetections, result, false)
	require.NoError(t, err)
	assert.Contains(t, got, "[ACTIVE] r1 (high)")
	assert.Contains(t, got, "[INACTIVE] r2")
	assert.Contains(t, got, "id: det-1")
	assert.Contains(t, got, "2 detections")
}

func TestFormatGetMessagesList(t *testing.T) {
	result := decode(t, `{
		"results": [
			{"message_data_model_id": "mdm-1", "subject": "urgent wire", "sender": "a@example.com", "reviewed": false},
			{"message_data_model_id": "mdm-2"}
		]
	}`)

	got, err := Format("txt", FamilyGetMessages, result, false)
	require.NoError(t, err)
	assert.Contains(t, got, "FLAGGED MESSAGES")
	assert.Contains(t, got, "urgent wire")
	assert.Contains(t, got, "id: mdm-1")
	assert.Contains(t, got, "sender: a@example.com")
	assert.Contains(t, got, "[Empty Subject]")
	assert.Contains(t, got, "2 flagged messages")
}

func TestFormatGetMessagesDetail(t *testing.T) {
	result := decode(t, `{
		"message_data_model_result": {"subject": {"subject": "hi"}},
		"enrichment_results": {"details": [{"name": "whois", "success": true}]},
		"detection_results": [{"name": "r1", "result": true, "detection": "x"}]
	}`)

	got, err := Format("txt", FamilyGetMessages, result, true)
	require.NoError(t, err)
	assert.Contains(t, got, "FLAGGED MESSAGE DETAIL")
	assert.Contains(t, got, "[DETECTED] r1")
	assert.Contains(t, got, "1 of 1 enrichments succeeded")
	assert.Contains(t, got, `subject.subject = "hi";`)
}

func TestFormatListenSingleEvent(t *testing.T) {
	result := decode(t, `{"message_data_model_id": "mdm-9", "subject": "phish"}`)

	got, err := Format("txt", FamilyListen, result, false)
	require.NoError(t, err)
	assert.Contains(t, got, "phish")
	assert.Contains(t, got, "id: mdm-9")
}

func TestFormatMe(t *testing.T) {
	result := decode(t, `{"email_address": "me@example.com", "role": "admin", "org": {"name": "nested ignored"}}`)

	got, err := Format("txt", FamilyGetMe, result, false)
	require.NoError(t, err)
	assert.Contains(t, got, "CURRENT USER")
	assert.Contains(t, got, "email_address: me@example.com")
	assert.Contains(t, got, "role: admin")
	assert.NotContains(t, got, "nested ignored")
}

func TestFormatUnknownFamilyFallsBackToJSON(t *testing.T) {
	got, err := Format("txt", "mystery", map[string]any{"a": float64(1)}, false)
	require.NoError(t, err)
	assert.Contains(t, got, "\"a\": 1")
}

func TestFormatDetectionSource(t *testing.T) {
	got := FormatDetectionSource("a && b || c], d")
	assert.Equal(t, "a \n  && b \n  || c],\n   d", got)
}
