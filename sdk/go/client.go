// Package carelinesdk is a small client for the Careline HTTP API.
package carelinesdk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Client talks to a Careline server under /v0.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	// ActorID is sent as X-Actor-Id when no credential is set. Servers only
	// honour it when the legacy header is enabled.
	ActorID string
	Timeout time.Duration

	http *resty.Client
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Evaluation is the stored result of one 4Ps evaluation (partial).
type Evaluation struct {
	ID        string           `json:"id"`
	CaseID    string           `json:"case_id"`
	ActorID   string           `json:"actor_id"`
	Result    EvaluationResult `json:"result"`
	CreatedAt string           `json:"created_at"`
}

type EvaluationResult struct {
	Triggers []struct {
		Dimension string `json:"dimension"`
		Reason    string `json:"reason"`
	} `json:"triggers"`
	SuggestedSeverity int     `json:"suggested_severity"`
	SeverityPoints    int     `json:"severity_points"`
	VitalityScore     float64 `json:"vitality_score"`
	Status            string  `json:"status"`
}

// CapacityDecision is the capacity gate outcome (partial).
type CapacityDecision struct {
	Status                  string  `json:"status"`
	AllowAssignment         bool    `json:"allow_assignment"`
	RequireSupervisorReview bool    `json:"require_supervisor_review"`
	RequireDirectorOverride bool    `json:"require_director_override"`
	ProjectedPoints         int     `json:"projected_points"`
	MaxPoints               int     `json:"max_points"`
	UtilizationPercent      float64 `json:"utilization_percent"`
	RequesterMessage        string  `json:"requester_message"`
	ReviewerMessage         string  `json:"reviewer_message"`
}

type CapacityCheck struct {
	CaseworkerID string `json:"caseworker_id"`
	CaseID       string `json:"case_id,omitempty"`
	ClientName   string `json:"client_name,omitempty"`
	Severity     int    `json:"severity,omitempty"`
	Commit       bool   `json:"commit,omitempty"`
	Narrative    string `json:"narrative,omitempty"`
}

type CapacityResult struct {
	Decision CapacityDecision `json:"decision"`
	Override *Override        `json:"override,omitempty"`
}

// Override is an escalation request (partial).
type Override struct {
	ID            string `json:"id"`
	CaseID        string `json:"case_id"`
	Origin        string `json:"origin"`
	Category      string `json:"category"`
	Justification string `json:"justification"`
	Status        string `json:"status"`
	Version       int    `json:"version"`
	DecisionLog   []struct {
		ActorRole string `json:"actor_role"`
		ActorID   string `json:"actor_id"`
		Action    string `json:"action"`
		Reason    string `json:"reason"`
		At        string `json:"at"`
	} `json:"decision_log"`
}

type OpenOverride struct {
	CaseID         string         `json:"case_id"`
	ClientName     string         `json:"client_name,omitempty"`
	Origin         string         `json:"origin"`
	Category       string         `json:"category"`
	ReasonCategory string         `json:"reason_category,omitempty"`
	Justification  string         `json:"justification"`
	Context        map[string]any `json:"context,omitempty"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	CaseID     string         `json:"case_id"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

type ReleaseDecision struct {
	CanRelease bool   `json:"can_release"`
	RiskLevel  string `json:"risk_level"`
	Issues     []struct {
		Code     string `json:"code"`
		Severity string `json:"severity"`
		Message  string `json:"message"`
	} `json:"issues"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s body=%s", e.StatusCode, e.Code, e.Body)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Evaluate stores a 4Ps evaluation for a case.
func (c *Client) Evaluate(ctx context.Context, caseID string, profile, client map[string]any, flags []map[string]any) (Evaluation, error) {
	body := map[string]any{"case_id": caseID}
	if profile != nil {
		body["profile"] = profile
	}
	if client != nil {
		body["client"] = client
	}
	if flags != nil {
		body["flags"] = flags
	}
	var resp Evaluation
	err := c.do(ctx, "POST", "evaluations", body, &resp)
	return resp, err
}

// CheckCapacity runs the capacity gate.
func (c *Client) CheckCapacity(ctx context.Context, in CapacityCheck) (CapacityResult, error) {
	var resp CapacityResult
	err := c.do(ctx, "POST", "capacity/check", in, &resp)
	return resp, err
}

// OpenOverride files an override request.
func (c *Client) OpenOverride(ctx context.Context, in OpenOverride) (Override, error) {
	var resp Override
	err := c.do(ctx, "POST", "overrides", in, &resp)
	return resp, err
}

// GetOverride fetches one override request.
func (c *Client) GetOverride(ctx context.Context, id string) (Override, error) {
	var resp Override
	err := c.do(ctx, "GET", "overrides/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ListOverrides lists requests, optionally filtered by status.
func (c *Client) ListOverrides(ctx context.Context, caseID, status string) ([]Override, error) {
	q := url.Values{}
	if caseID != "" {
		q.Set("case_id", caseID)
	}
	if status != "" {
		q.Set("status", status)
	}
	endpoint := "overrides"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp struct {
		Items []Override `json:"items"`
	}
	err := c.do(ctx, "GET", endpoint, nil, &resp)
	return resp.Items, err
}

// Approve, Deny, RequestMoreInfo and Resubmit move a request through the
// workflow. expectedVersion must match the stored version.
func (c *Client) Approve(ctx context.Context, id string, expectedVersion int, reason string) (Override, error) {
	return c.decide(ctx, id, "approve", expectedVersion, reason)
}

func (c *Client) Deny(ctx context.Context, id string, expectedVersion int, reason string) (Override, error) {
	return c.decide(ctx, id, "deny", expectedVersion, reason)
}

func (c *Client) RequestMoreInfo(ctx context.Context, id string, expectedVersion int, reason string) (Override, error) {
	return c.decide(ctx, id, "more-info", expectedVersion, reason)
}

func (c *Client) Resubmit(ctx context.Context, id string, expectedVersion int, justification string) (Override, error) {
	return c.decide(ctx, id, "resubmit", expectedVersion, justification)
}

func (c *Client) decide(ctx context.Context, id, action string, expectedVersion int, reason string) (Override, error) {
	body := map[string]any{
		"expected_version": expectedVersion,
		"reason":           reason,
	}
	var resp Override
	err := c.do(ctx, "POST", fmt.Sprintf("overrides/%s/%s", url.PathEscape(id), action), body, &resp)
	return resp, err
}

// ReleaseCheck asks whether a case's reports may go out.
func (c *Client) ReleaseCheck(ctx context.Context, caseID string, tasks []map[string]any) (ReleaseDecision, error) {
	body := map[string]any{}
	if tasks != nil {
		body["tasks"] = tasks
	}
	var resp ReleaseDecision
	err := c.do(ctx, "POST", fmt.Sprintf("cases/%s/release-check", url.PathEscape(caseID)), body, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, "GET", endpoint, nil, &resp)
	return resp, err
}

func (c *Client) client() *resty.Client {
	if c.http == nil {
		timeout := c.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		c.http = resty.New().
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json").
			SetHeader("Accept", "application/json")
	}
	return c.http
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	req := c.client().R().SetContext(ctx)
	switch {
	case c.BearerToken != "":
		req.SetAuthToken(c.BearerToken)
	case c.APIKey != "":
		req.SetHeader("X-Api-Key", c.APIKey)
	case c.ActorID != "":
		req.SetHeader("X-Actor-Id", c.ActorID)
	}
	if body != nil {
		req.SetBody(body)
	}
	res, err := req.Execute(method, c.base()+"/v0/"+strings.TrimLeft(endpoint, "/"))
	if err != nil {
		return err
	}
	if res.IsError() {
		apiErr := &APIError{StatusCode: res.StatusCode(), Body: res.String()}
		var env struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		if json.Unmarshal(res.Body(), &env) == nil {
			apiErr.Code = env.Error.Code
		}
		return apiErr
	}
	if out != nil && len(res.Body()) > 0 {
		return json.Unmarshal(res.Body(), out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
