package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// DetectionListOptions filter detection listings.
type DetectionListOptions struct {
	Active                 *bool
	Search                 string
	CreatedByOrgID         string
	CreatedBySublimeUserID string
}

func (o DetectionListOptions) values() url.Values {
	params := url.Values{}
	if o.Active != nil {
		params.Set("active", strconv.FormatBool(*o.Active))
	}
	if o.Search != "" {
		params.Set("search", o.Search)
	}
	if o.CreatedByOrgID != "" {
		params.Set("created_by_org_id", o.CreatedByOrgID)
	}
	if o.CreatedBySublimeUserID != "" {
		params.Set("created_by_sublime_user_id", o.CreatedBySublimeUserID)
	}
	return params
}

// CreateOrgDetection creates a detection in the caller's organization.
func (c *Client) CreateOrgDetection(ctx context.Context, detection Detection, active, verbose bool) (any, error) {
	body := map[string]any{
		"active": active,
	}
	if detection.Source != "" {
		body["detection"] = detection.Source
	}
	if detection.Name != "" {
		body["name"] = detection.Name
	}
	if verbose {
		body["response_type"] = "full"
	}
	return c.post(ctx, epOrgDetections, body)
}

// UpdateOrgDetection updates an org detection by ID. Only fields present
// in the request are changed, so nil/empty means leave as-is.
func (c *Client) UpdateOrgDetection(ctx context.Context, detectionID string, detection Detection, active *bool) (any, error) {
	body := map[string]any{}
	if active != nil {
		body["active"] = *active
	}
	if detection.Source != "" {
		body["detection"] = detection.Source
	}
	if detection.Name != "" {
		body["name"] = detection.Name
	}
	return c.patch(ctx, fmt.Sprintf(epOrgDetectionByID, url.PathEscape(detectionID)), body)
}

// UpdateOrgDetectionByName updates an org detection by name.
func (c *Client) UpdateOrgDetectionByName(ctx context.Context, name, source string, active *bool) (any, error) {
	body := map[string]any{}
	if active != nil {
		body["active"] = *active
	}
	if source != "" {
		body["detection"] = source
	}
	return c.patch(ctx, fmt.Sprintf(epOrgDetectionByName, url.PathEscape(name)), body)
}

// GetOrgDetections lists org detections.
func (c *Client) GetOrgDetections(ctx context.Context, opts DetectionListOptions) (any, error) {
	return c.get(ctx, epOrgDetections, opts.values())
}

// GetOrgDetection fetches an org detection by ID.
func (c *Client) GetOrgDetection(ctx context.Context, detectionID string) (any, error) {
	return c.get(ctx, fmt.Sprintf(epOrgDetectionByID, url.PathEscape(detectionID)), nil)
}

// GetOrgDetectionByName fetches an org detection by name.
func (c *Client) GetOrgDetectionByName(ctx context.Context, name string) (any, error) {
	return c.get(ctx, fmt.Sprintf(epOrgDetectionByName, url.PathEscape(name)), nil)
}

// ShareOrgDetection shares an org detection with the community.
func (c *Client) ShareOrgDetection(ctx context.Context, detectionID string, shareSublimeUser, shareOrg bool) (any, error) {
	body := map[string]any{
		"share_sublime_user": shareSublimeUser,
		"share_org":          shareOrg,
	}
	return c.post(ctx, fmt.Sprintf(epShareOrgDetectionByID, url.PathEscape(detectionID)), body)
}

// ShareOrgDetectionByName shares an org detection by name.
func (c *Client) ShareOrgDetectionByName(ctx context.Context, name string, shareSublimeUser, shareOrg bool) (any, error) {
	body := map[string]any{
		"share_sublime_user": shareSublimeUser,
		"share_org":          shareOrg,
	}
	return c.post(ctx, fmt.Sprintf(epShareOrgDetectionByName, url.PathEscape(name)), body)
}

// UnshareOrgDetection withdraws a shared detection by ID.
func (c *Client) UnshareOrgDetection(ctx context.Context, detectionID string) (any, error) {
	return c.post(ctx, fmt.Sprintf(epUnshareOrgDetectionByID, url.PathEscape(detectionID)), nil)
}

// UnshareOrgDetectionByName withdraws a shared detection by name.
func (c *Client) UnshareOrgDetectionByName(ctx context.Context, name string) (any, error) {
	return c.post(ctx, fmt.Sprintf(epUnshareOrgDetectionByName, url.PathEscape(name)), nil)
}

// GetCommunityDetections lists community detections.
func (c *Client) GetCommunityDetections(ctx context.Context, opts DetectionListOptions) (any, error) {
	return c.get(ctx, epCommunityDetections, opts.values())
}

// GetCommunityDetection fetches a community detection by ID.
func (c *Client) GetCommunityDetection(ctx context.Context, detectionID string) (any, error) {
	return c.get(ctx, fmt.Sprintf(epCommunityDetectionByID, url.PathEscape(detectionID)), nil)
}

// GetCommunityDetectionByName fetches a community detection by name.
func (c *Client) GetCommunityDetectionByName(ctx context.Context, name string) (any, error) {
	return c.get(ctx, fmt.Sprintf(epCommunityDetectionByName, url.PathEscape(name)), nil)
}

// SubscribeCommunityDetection subscribes to a community detection.
func (c *Client) SubscribeCommunityDetection(ctx context.Context, detectionID string, active bool) (any, error) {
	body := map[string]any{"active": active}
	return c.post(ctx, fmt.Sprintf(epSubscribeDetectionByID, url.PathEscape(detectionID)), body)
}

// SubscribeCommunityDetectionByName subscribes to a community detection by name.
func (c *Client) SubscribeCommunityDetectionByName(ctx context.Context, name string, active bool) (any, error) {
	body := map[string]any{"active": active}
	return c.post(ctx, fmt.Sprintf(epSubscribeDetectionByName, url.PathEscape(name)), body)
}

// UnsubscribeCommunityDetection unsubscribes from a community detection.
func (c *Client) UnsubscribeCommunityDetection(ctx context.Context, detectionID string) (any, error) {
	return c.post(ctx, fmt.Sprintf(epUnsubscribeDetectionByID, url.PathEscape(detectionID)), nil)
}

// UnsubscribeCommunityDetectionByName unsubscribes from a community
// detection by name.
func (c *Client) UnsubscribeCommunityDetectionByName(ctx context.Context, name string) (any, error) {
	return c.post(ctx, fmt.Sprintf(epUnsubscribeDetectionByName, url.PathEscape(name)), nil)
}

// BacktestDetections submits a backtest job across historical messages.
// The response carries a job_id to poll with GetJobStatus/GetJobOutput.
func (c *Client) BacktestDetections(ctx context.Context, detections []Detection, after, before *time.Time) (any, error) {
	body := map[string]any{
		"detections": detections,
		"start_time": formatTime(after),
		"end_time":   formatTime(before),
		"inclusive":  false,
	}
	return c.post(ctx, epBacktestDetections, body)
}

// formatTime renders an optional timestamp the way the API expects.
func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}
