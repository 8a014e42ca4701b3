package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sublime-security/sublime-cli/pkg/retry"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := NewClient("test-key",
		WithBaseURL(srv.URL),
		WithRetryConfig(retry.BackoffConfig{
			InitialInterval: time.Millisecond,
			MaxInterval:     time.Millisecond,
			Multiplier:      1.0,
			MaxRetries:      2,
		}))
	return client, srv
}

func TestClientSendsAuthHeaders(t *testing.T) {
	var gotUA, gotKey, gotPath string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotKey = r.Header.Get("Key")
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"org_name": "example"}`))
	})

	resp, err := client.GetOrg(context.Background())
	require.NoError(t, err)

	assert.Equal(t, UserAgent, gotUA)
	assert.Equal(t, "test-key", gotKey)
	assert.Equal(t, "/v1/org", gotPath)
	assert.Equal(t, map[string]any{"org_name": "example"}, resp)
}

func TestClientErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		category error
	}{
		{"bad request", http.StatusBadRequest, ErrInvalidRequest},
		{"not found", http.StatusNotFound, ErrInvalidRequest},
		{"rate limited", http.StatusTooManyRequests, ErrRateLimited},
		{"forbidden", http.StatusForbidden, ErrAPI},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("X-Request-Id", "req-42")
				w.WriteHeader(tc.status)
				w.Write([]byte(`{"error": {"message": "nope"}}`))
			})

			_, err := client.GetMe(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.category)

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tc.status, apiErr.StatusCode)
			assert.Equal(t, "nope", apiErr.Message)
			assert.Equal(t, "req-42", apiErr.RequestID)
			assert.Contains(t, apiErr.Error(), "req-42")
		})
	}
}

func TestClientMalformedErrorBody(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("not json at all"))
	})

	_, err := client.GetMe(context.Background())
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "invalid response from API")
}

func TestClientNoContent(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNoContent)
	})

	resp, err := client.UnshareOrgDetection(context.Background(), "det-1")
	require.NoError(t, err)
	assert.Nil(t, resp)
}

func TestClientNonJSONResponse(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("pong"))
	})

	resp, err := client.GetOrg(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "pong", resp)
}

func TestClientRetriesTransientGetFailures(t *testing.T) {
	attempts := 0
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok": true}`))
	})

	resp, err := client.GetOrg(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, map[string]any{"ok": true}, resp)
}

func TestClientDoesNotRetryInvalidRequests(t *testing.T) {
	attempts := 0
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error": {"message": "no such detection"}}`))
	})

	_, err := client.GetOrgDetection(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestClientDoesNotRetryMutations(t *testing.T) {
	attempts := 0
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.SendMockTutorialOne(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestClientRetriesRateLimitedMutations(t *testing.T) {
	attempts := 0
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.Header().Set("Content-Type", "application/json")
		if attempts == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error": {"message": "slow down"}}`))
			return
		}
		w.Write([]byte(`{"success": true}`))
	})

	resp, err := client.SendMockTutorialOne(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, map[string]any{"success": true}, resp)
}

func TestClientSurfacesRetryAfter(t *testing.T) {
	attempts := 0
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": {"message": "slow down"}}`))
	})

	_, err := client.GetOrg(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRateLimited)
	// MaxRetries is 2 in the test config, so the rate limit is retried
	// before giving up.
	assert.Equal(t, 3, attempts)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 7*time.Second, apiErr.RetryAfter)
	assert.Equal(t, 7*time.Second, apiErr.RetryDelay())
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, time.Duration(0), parseRetryAfter(""))
	assert.Equal(t, time.Duration(0), parseRetryAfter("0"))
	assert.Equal(t, time.Duration(0), parseRetryAfter("garbage"))
	assert.Equal(t, 30*time.Second, parseRetryAfter("30"))

	future := time.Now().Add(time.Minute).UTC().Format(http.TimeFormat)
	d := parseRetryAfter(future)
	assert.Greater(t, d, 50*time.Second)
	assert.LessOrEqual(t, d, time.Minute)

	past := time.Now().Add(-time.Minute).UTC().Format(http.TimeFormat)
	assert.Equal(t, time.Duration(0), parseRetryAfter(past))
}

func TestClientCachesGetResponses(t *testing.T) {
	hits := 0
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"users": []}`))
	})

	_, err := client.GetUsers(context.Background(), nil)
	require.NoError(t, err)
	_, err = client.GetUsers(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, hits)
}

func TestClientMutationInvalidatesCache(t *testing.T) {
	gets := 0
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodGet {
			gets++
		}
		w.Write([]byte(`{}`))
	})

	ctx := context.Background()
	_, err := client.GetOrgDetections(ctx, DetectionListOptions{})
	require.NoError(t, err)
	_, err = client.CreateOrgDetection(ctx, Detection{Name: "r", Source: "length(subject.subject) > 0"}, false, false)
	require.NoError(t, err)
	_, err = client.GetOrgDetections(ctx, DetectionListOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, gets)
}

func TestAnalyzeEMLMultiBody(t *testing.T) {
	var body map[string]any
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "/v1/message/analyze/multi", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results": []}`))
	})

	detections := []Detection{{Name: "test", Source: "subject.subject == 'hi'"}}
	_, err := client.AnalyzeEMLMulti(context.Background(), "ZW1s", detections, "user@example.com", "inbound", true)
	require.NoError(t, err)

	assert.Equal(t, "ZW1s", body["message"])
	assert.Equal(t, "user@example.com", body["mailbox_email_address"])
	assert.Equal(t, "inbound", body["route_type"])
	assert.Equal(t, "full", body["response_type"])
	require.Len(t, body["detections"], 1)
}

func TestFlaggedMessageParams(t *testing.T) {
	var query map[string][]string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results": []}`))
	})

	after := time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)
	reviewed := false
	_, err := client.GetFlaggedMessages(context.Background(), FlaggedMessageOptions{
		Result:   true,
		After:    &after,
		Reviewed: &reviewed,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"true"}, query["result"])
	assert.Equal(t, []string{"false"}, query["inclusive"])
	assert.Equal(t, []string{"false"}, query["reviewed"])
	assert.Equal(t, []string{"2023-05-01T00:00:00Z"}, query["start_time"])
	assert.NotContains(t, query, "end_time")
	assert.NotContains(t, query, "safe")
}

func TestWaitForJobCompletes(t *testing.T) {
	polls := 0
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/jobs/job-1/status":
			polls++
			if polls < 3 {
				w.Write([]byte(`{"status": "running", "tasks_remaining": 2}`))
			} else {
				w.Write([]byte(`{"status": "completed"}`))
			}
		case "/v1/jobs/job-1/output":
			w.Write([]byte(`{"results": {"results": [{"name": "r1", "matched": true}]}}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	var seen []string
	out, err := client.WaitForJob(context.Background(), "job-1", time.Millisecond, func(status string, tasksRemaining int) {
		seen = append(seen, status)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"running", "running", "completed"}, seen)

	// The jobs envelope is stripped so the inner body lands directly in
	// the analyze formatter.
	obj, ok := out.(map[string]any)
	require.True(t, ok)
	results, ok := obj["results"].([]any)
	require.True(t, ok)
	require.Len(t, results, 1)
	assert.Equal(t, "r1", results[0].(map[string]any)["name"])
}

func TestWaitForJobFailure(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/jobs/job-2/status":
			w.Write([]byte(`{"status": "failed"}`))
		case "/v1/jobs/job-2/output":
			w.Write([]byte(`{"results": {"message": "detection compile error"}}`))
		}
	})

	_, err := client.WaitForJob(context.Background(), "job-2", time.Millisecond, nil)
	require.Error(t, err)

	var jobErr *JobError
	require.ErrorAs(t, err, &jobErr)
	assert.Equal(t, "detection compile error", jobErr.Message)
}

func TestWaitForJobFailureBareMessage(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/jobs/job-3/status":
			w.Write([]byte(`{"status": "failed"}`))
		case "/v1/jobs/job-3/output":
			w.Write([]byte(`{"message": "out of memory"}`))
		}
	})

	_, err := client.WaitForJob(context.Background(), "job-3", time.Millisecond, nil)

	var jobErr *JobError
	require.ErrorAs(t, err, &jobErr)
	assert.Equal(t, "out of memory", jobErr.Message)
}
