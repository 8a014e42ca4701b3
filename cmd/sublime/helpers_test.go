package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sublime-security/sublime-cli/config"
)

func TestDefaultOutputPath(t *testing.T) {
	cfg := config.Config{}
	assert.Equal(t, "message.mdm", defaultOutputPath(cfg, "/tmp/in/message.eml", "json"))
	assert.Equal(t, "message.txt", defaultOutputPath(cfg, "message.eml", "txt"))

	cfg.SaveDir = "/data/sublime"
	assert.Equal(t, "/data/sublime/message.mdm", defaultOutputPath(cfg, "message.eml", "json"))
}

func TestBatchResultRecordsAndSorts(t *testing.T) {
	b := newBatchResult()
	b.record("zeta", map[string]any{"name": "zeta"}, nil)
	b.record("alpha", map[string]any{"id": "det-1"}, nil)
	b.record("broken", nil, assert.AnError)

	resp := b.response()
	success := resp["success"].([]any)
	require.Len(t, success, 2)
	assert.Equal(t, "alpha", success[0].(map[string]any)["name"])
	assert.Equal(t, "zeta", success[1].(map[string]any)["name"])

	fail := resp["fail"].([]any)
	require.Len(t, fail, 1)
	assert.Equal(t, "broken", fail[0].(map[string]any)["name"])
	assert.Contains(t, fail[0].(map[string]any)["message"], "general error")
}

func TestBatchResultSortsRenamedByOriginalName(t *testing.T) {
	b := newBatchResult()
	b.record("zzz-new-name", map[string]any{"name": "zzz-new-name", "original_name": "aaa-old-name"}, nil)
	b.record("mmm", map[string]any{"name": "mmm"}, nil)

	resp := b.response()
	success := resp["success"].([]any)
	require.Len(t, success, 2)
	// The renamed detection sorts by the name it had before the update.
	assert.Equal(t, "zzz-new-name", success[0].(map[string]any)["name"])
	assert.Equal(t, "mmm", success[1].(map[string]any)["name"])
}

func TestSortAnalyzeResults(t *testing.T) {
	result := map[string]any{
		"results": []any{
			map[string]any{"name": "c"},
			map[string]any{"name": "a"},
			map[string]any{},
			map[string]any{"name": "b"},
		},
	}
	sortAnalyzeResults(result)

	results := result["results"].([]any)
	assert.Equal(t, "", resultName(results[0]))
	assert.Equal(t, "a", resultName(results[1]))
	assert.Equal(t, "b", resultName(results[2]))
	assert.Equal(t, "c", resultName(results[3]))
}

func TestRemoveReviewed(t *testing.T) {
	queue := []any{
		map[string]any{"message_data_model_id": "mdm-1", "subject": "one"},
		map[string]any{"message_data_model_id": "mdm-2", "subject": "two"},
		"non-object event",
	}

	queue = removeReviewed(queue, "mdm-1")
	require.Len(t, queue, 2)
	assert.Equal(t, "mdm-2", queue[0].(map[string]any)["message_data_model_id"])

	// Unknown or missing IDs leave the queue alone.
	queue = removeReviewed(queue, "mdm-404")
	assert.Len(t, queue, 2)
	queue = removeReviewed(queue, nil)
	assert.Len(t, queue, 2)
}

func TestJobIDOf(t *testing.T) {
	assert.Equal(t, "job-1", jobIDOf(map[string]any{"job_id": "job-1"}))
	assert.Equal(t, "", jobIDOf(map[string]any{}))
	assert.Equal(t, "", jobIDOf("not an object"))
}

func TestDetectionIDs(t *testing.T) {
	listing := map[string]any{
		"detections": []any{
			map[string]any{"id": "det-1"},
			map[string]any{"name": "no id"},
			map[string]any{"id": "det-2"},
		},
	}
	assert.Equal(t, []string{"det-1", "det-2"}, detectionIDs(listing))
	assert.Nil(t, detectionIDs(nil))
}

func TestUserEmails(t *testing.T) {
	listing := map[string]any{
		"users": []any{
			map[string]any{"email_address": "a@example.com"},
			map[string]any{"email_address": "b@example.com"},
		},
	}
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, userEmails(listing))
}

func TestResultCount(t *testing.T) {
	assert.Equal(t, 2, resultCount(map[string]any{"results": []any{1, 2}}))
	assert.Equal(t, 0, resultCount(map[string]any{}))
	assert.Equal(t, 0, resultCount(nil))
}

func TestStripToMDM(t *testing.T) {
	mdm := map[string]any{"subject": map[string]any{"subject": "hi"}}
	wrapped := map[string]any{"message_data_model": mdm, "details": []any{}}
	assert.Equal(t, mdm, stripToMDM(wrapped))
	assert.Equal(t, mdm, stripToMDM(mdm))
}

func TestWrapDetections(t *testing.T) {
	detection := map[string]any{"id": "det-1"}
	wrapped := wrapDetections(detection).(map[string]any)
	list := wrapped["detections"].([]any)
	require.Len(t, list, 1)
	assert.Equal(t, detection, list[0])
}
