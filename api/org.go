package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// GetMe returns the currently authenticated Sublime user.
func (c *Client) GetMe(ctx context.Context) (any, error) {
	return c.get(ctx, epGetMe, nil)
}

// GetOrg returns the currently authenticated organization.
func (c *Client) GetOrg(ctx context.Context) (any, error) {
	return c.get(ctx, epGetOrg, nil)
}

// GetUsers lists the organization's users, optionally filtered by
// license state.
func (c *Client) GetUsers(ctx context.Context, licenseActive *bool) (any, error) {
	params := url.Values{}
	if licenseActive != nil {
		params.Set("license_active", strconv.FormatBool(*licenseActive))
	}
	return c.get(ctx, epGetUsers, params)
}

// UpdateUserLicense activates or deactivates a user's license.
func (c *Client) UpdateUserLicense(ctx context.Context, emailAddress string, licenseActive bool) (any, error) {
	body := map[string]any{"license_active": licenseActive}
	return c.patch(ctx, fmt.Sprintf(epUpdateUserLicense, url.PathEscape(emailAddress)), body)
}

// FlaggedMessageOptions filter flagged message listings.
type FlaggedMessageOptions struct {
	// Result selects flagged (true) or not-flagged (false) messages.
	Result   bool
	After    *time.Time
	Before   *time.Time
	Reviewed *bool
	Safe     *bool
}

// GetFlaggedMessages lists messages flagged by active detections.
func (c *Client) GetFlaggedMessages(ctx context.Context, opts FlaggedMessageOptions) (any, error) {
	params := url.Values{}
	params.Set("result", strconv.FormatBool(opts.Result))
	params.Set("inclusive", "false")
	if opts.After != nil {
		params.Set("start_time", opts.After.Format(time.RFC3339))
	}
	if opts.Before != nil {
		params.Set("end_time", opts.Before.Format(time.RFC3339))
	}
	if opts.Reviewed != nil {
		params.Set("reviewed", strconv.FormatBool(*opts.Reviewed))
	}
	if opts.Safe != nil {
		params.Set("safe", strconv.FormatBool(*opts.Safe))
	}
	return c.get(ctx, epFlaggedMessages, params)
}

// GetFlaggedMessageDetail returns the detail view of a flagged message.
func (c *Client) GetFlaggedMessageDetail(ctx context.Context, messageDataModelID string) (any, error) {
	return c.get(ctx, fmt.Sprintf(epFlaggedMessagesDetail, url.PathEscape(messageDataModelID)), nil)
}

// ReviewMessage updates the review and threat status of one message.
func (c *Client) ReviewMessage(ctx context.Context, messageDataModelID string, reviewed, safe bool) (any, error) {
	body := map[string]any{
		"reviewed": reviewed,
		"safe":     safe,
	}
	return c.post(ctx, fmt.Sprintf(epAdminActionReview, url.PathEscape(messageDataModelID)), body)
}

// ReviewAllMessages updates the review and threat status of every
// flagged, unreviewed message in the given time range.
func (c *Client) ReviewAllMessages(ctx context.Context, after, before *time.Time, reviewed, safe bool) (any, error) {
	body := map[string]any{
		"start_time": formatTime(after),
		"end_time":   formatTime(before),
		"inclusive":  false,
		"reviewed":   reviewed,
		"safe":       safe,
	}
	return c.post(ctx, epAdminActionReviewAll, body)
}

// DeleteMessage removes a message from the user's mailbox. With
// permanent set the message bypasses Trash.
func (c *Client) DeleteMessage(ctx context.Context, messageDataModelID string, permanent bool) (any, error) {
	params := url.Values{}
	if permanent {
		params.Set("permanent", "true")
	}
	return c.delete(ctx, fmt.Sprintf(epAdminActionDelete, url.PathEscape(messageDataModelID)), params)
}

// SendMockTutorialOne sends the first tutorial mock message to the
// authenticated user's mailbox.
func (c *Client) SendMockTutorialOne(ctx context.Context) (any, error) {
	return c.post(ctx, epSendMockTutorialOne, nil)
}

// PrivacyAck reports whether the user accepted the privacy notice.
func (c *Client) PrivacyAck(ctx context.Context, accepted bool) (any, error) {
	body := map[string]any{"accepted": accepted}
	return c.post(ctx, epPrivacyAck, body)
}
