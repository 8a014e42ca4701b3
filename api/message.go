package api

import "context"

// Detection is a named MQL rule evaluated remotely against a message.
type Detection struct {
	Source   string `json:"detection,omitempty"`
	Name     string `json:"name,omitempty"`
	Severity string `json:"severity,omitempty"`
}

// Query is a named MQL query evaluated remotely against a message.
type Query struct {
	Source string `json:"query,omitempty"`
	Name   string `json:"name,omitempty"`
}

// EnrichEML creates an enriched Message Data Model from a base64 EML.
func (c *Client) EnrichEML(ctx context.Context, eml, mailboxEmailAddress, routeType string) (any, error) {
	body := map[string]any{
		"message":               eml,
		"mailbox_email_address": mailboxEmailAddress,
		"route_type":            routeType,
	}
	return c.post(ctx, epMessageEnrich, body)
}

// CreateMDM creates an unenriched Message Data Model from a base64 EML.
func (c *Client) CreateMDM(ctx context.Context, eml, mailboxEmailAddress string) (any, error) {
	body := map[string]any{
		"message":               eml,
		"mailbox_email_address": mailboxEmailAddress,
	}
	return c.post(ctx, epMessageCreate, body)
}

// AnalyzeEML analyzes a base64 EML against a single detection.
func (c *Client) AnalyzeEML(ctx context.Context, eml string, detection Detection, mailboxEmailAddress, routeType string) (any, error) {
	body := map[string]any{
		"message":               eml,
		"detection":             detection,
		"mailbox_email_address": mailboxEmailAddress,
		"route_type":            routeType,
	}
	return c.post(ctx, epMessageAnalyze, body)
}

// AnalyzeEMLMulti analyzes a base64 EML against a list of detections.
func (c *Client) AnalyzeEMLMulti(ctx context.Context, eml string, detections []Detection, mailboxEmailAddress, routeType string, verbose bool) (any, error) {
	body := map[string]any{
		"message":               eml,
		"detections":            detections,
		"mailbox_email_address": mailboxEmailAddress,
		"route_type":            routeType,
	}
	if verbose {
		body["response_type"] = "full"
	}
	return c.post(ctx, epMessageAnalyzeMulti, body)
}

// AnalyzeMDM analyzes an enriched Message Data Model against a detection.
func (c *Client) AnalyzeMDM(ctx context.Context, messageDataModel map[string]any, detection Detection, verbose bool) (any, error) {
	body := map[string]any{
		"message_data_model": messageDataModel,
		"detection":          detection,
	}
	if verbose {
		body["response_type"] = "full"
	}
	return c.post(ctx, epModelAnalyze, body)
}

// AnalyzeMDMMulti analyzes an enriched Message Data Model against a list
// of detections.
func (c *Client) AnalyzeMDMMulti(ctx context.Context, messageDataModel map[string]any, detections []Detection, verbose bool) (any, error) {
	body := map[string]any{
		"message_data_model": messageDataModel,
		"detections":         detections,
	}
	if verbose {
		body["response_type"] = "full"
	}
	return c.post(ctx, epModelAnalyzeMulti, body)
}

// QueryMDM runs a query against an enriched Message Data Model.
func (c *Client) QueryMDM(ctx context.Context, messageDataModel map[string]any, query Query, verbose bool) (any, error) {
	body := map[string]any{
		"message_data_model": messageDataModel,
		"query":              query,
	}
	if verbose {
		body["response_type"] = "full"
	}
	return c.post(ctx, epModelQuery, body)
}

// QueryMDMMulti runs a list of queries against an enriched Message Data Model.
func (c *Client) QueryMDMMulti(ctx context.Context, messageDataModel map[string]any, queries []Query, verbose bool) (any, error) {
	body := map[string]any{
		"message_data_model": messageDataModel,
		"queries":            queries,
	}
	if verbose {
		body["response_type"] = "full"
	}
	return c.post(ctx, epModelQueryMulti, body)
}
