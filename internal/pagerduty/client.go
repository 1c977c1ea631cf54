// Package pagerduty queries the on-call roster for a schedule.
package pagerduty

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const DefaultBaseURL = "https://api.pagerduty.com"

// Window is how far past the due instant the roster query looks. It
// exists to tolerate the provider's timezone and display quirks, not to
// average multiple shifts.
const Window = 10 * time.Minute

// User is one on-call identity.
type User struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// APIError is a PagerDuty-level failure.
type APIError struct {
	StatusCode int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("pagerduty: status %d", e.StatusCode)
}

type Client struct {
	hc      *http.Client
	baseURL string
	token   string
}

func New(hc *http.Client, baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{hc: hc, baseURL: baseURL, token: token}
}

// OnCallUsers returns the identities on call for the schedule during
// [from, from+Window), in provider order.
func (c *Client) OnCallUsers(ctx context.Context, scheduleID string, from time.Time) ([]User, error) {
	q := url.Values{
		"time_zone": {"UTC"},
		"since":     {from.UTC().Format("2006-01-02 15:04:05")},
		"until":     {from.Add(Window).UTC().Format("2006-01-02 15:04:05")},
	}
	u := fmt.Sprintf("%s/schedules/%s/users?%s", c.baseURL, scheduleID, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build on-call request: %w", err)
	}
	req.Header.Set("Authorization", "Token token="+c.token)

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pagerduty on-call: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode}
	}

	var out struct {
		Users []User `json:"users"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode on-call response: %w", err)
	}
	return out.Users, nil
}
