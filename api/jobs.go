package api

import (
	"context"
	"fmt"
	"net/url"
	"time"
)

// Job states reported by GetJobStatus.
const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// GetJobStatus returns the status of an asynchronous job. Never cached:
// callers poll it.
func (c *Client) GetJobStatus(ctx context.Context, jobID string) (any, error) {
	return c.getFresh(ctx, fmt.Sprintf(epGetJobStatus, url.PathEscape(jobID)), nil)
}

// GetJobOutput returns the output of a finished job.
func (c *Client) GetJobOutput(ctx context.Context, jobID string) (any, error) {
	return c.get(ctx, fmt.Sprintf(epGetJobOutput, url.PathEscape(jobID)), nil)
}

// WaitForJob polls a job until it completes, then returns its output
// with the jobs envelope removed. progress is invoked after each poll
// with the raw status response; it may be nil. A failed job returns a
// JobError carrying the job's message.
func (c *Client) WaitForJob(ctx context.Context, jobID string, interval time.Duration, progress func(status string, tasksRemaining int)) (any, error) {
	if interval <= 0 {
		interval = 5 * time.Second
	}

	for {
		statusResp, err := c.GetJobStatus(ctx, jobID)
		if err != nil {
			return nil, err
		}

		status, tasksRemaining := parseJobStatus(statusResp)
		if progress != nil {
			progress(status, tasksRemaining)
		}

		switch status {
		case JobStatusPending, JobStatusRunning:
			// keep polling
		case JobStatusCompleted:
			output, err := c.GetJobOutput(ctx, jobID)
			if err != nil {
				return nil, err
			}
			return unwrapJobOutput(output), nil
		case JobStatusFailed:
			output, err := c.GetJobOutput(ctx, jobID)
			if err != nil {
				return nil, err
			}
			message := "job failed"
			if obj, ok := unwrapJobOutput(output).(map[string]any); ok {
				if m, ok := obj["message"].(string); ok {
					message = m
				}
			}
			return nil, &JobError{JobID: jobID, Message: message}
		default:
			return nil, &JobError{JobID: jobID, Message: fmt.Sprintf("unrecognized job status %q", status)}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}
}

// unwrapJobOutput strips the {"results": ...} envelope the jobs output
// endpoint wraps around the job's own result body.
func unwrapJobOutput(output any) any {
	obj, ok := output.(map[string]any)
	if !ok {
		return output
	}
	if inner, ok := obj["results"]; ok {
		return inner
	}
	return output
}

func parseJobStatus(resp any) (status string, tasksRemaining int) {
	obj, ok := resp.(map[string]any)
	if !ok {
		return "", 0
	}
	status, _ = obj["status"].(string)
	if n, ok := obj["tasks_remaining"].(float64); ok {
		tasksRemaining = int(n)
	}
	return status, tasksRemaining
}
