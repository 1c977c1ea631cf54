// Package slack is a minimal Slack Web API client covering the calls
// the rotator needs: user lookup, user group membership, messages, and
// the OAuth token swap.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/oncallsupport/rotator/internal/domain"
)

const DefaultBaseURL = "https://slack.com/api"

// APIError is a Slack-level failure: a non-2xx response or an envelope
// with ok=false.
type APIError struct {
	Endpoint string
	Message  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("slack %s: %s", e.Endpoint, e.Message)
}

type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type UserGroup struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Handle      string `json:"handle"`
}

type Client struct {
	hc      *http.Client
	baseURL string
	token   string
	logger  *slog.Logger
}

func New(hc *http.Client, baseURL, token string, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{hc: hc, baseURL: baseURL, token: token, logger: logger.With("component", "slack")}
}

// FindUserByEmail resolves an email to a Slack user. A missing user is
// domain.ErrUserNotFound, not an API error.
func (c *Client) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	var out struct {
		User *User `json:"user"`
	}
	q := url.Values{"email": {email}}
	if err := c.call(ctx, http.MethodGet, "users.lookupByEmail", q, nil, &out); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Message == "users_not_found" {
			return nil, fmt.Errorf("%w: email %s", domain.ErrUserNotFound, email)
		}
		return nil, err
	}
	if out.User == nil {
		return nil, fmt.Errorf("%w: email %s", domain.ErrUserNotFound, email)
	}
	return out.User, nil
}

func (c *Client) FindUserByID(ctx context.Context, id string) (*User, error) {
	var out struct {
		User *User `json:"user"`
	}
	q := url.Values{"user": {id}}
	if err := c.call(ctx, http.MethodGet, "users.info", q, nil, &out); err != nil {
		return nil, err
	}
	if out.User == nil {
		return nil, fmt.Errorf("%w: id %s", domain.ErrUserNotFound, id)
	}
	return out.User, nil
}

func (c *Client) ListGroups(ctx context.Context) ([]UserGroup, error) {
	var out struct {
		UserGroups []UserGroup `json:"usergroups"`
	}
	if err := c.call(ctx, http.MethodGet, "usergroups.list", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.UserGroups, nil
}

// FindGroupByNameOrHandle scans the workspace's user groups for a name
// or handle match.
func (c *Client) FindGroupByNameOrHandle(ctx context.Context, name string) (*UserGroup, error) {
	groups, err := c.ListGroups(ctx)
	if err != nil {
		return nil, err
	}
	for _, g := range groups {
		if g.Name == name || g.Handle == name {
			return &g, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrUserGroupNotFound, name)
}

func (c *Client) ListGroupMembers(ctx context.Context, groupID string) ([]string, error) {
	var out struct {
		Users []string `json:"users"`
	}
	q := url.Values{"usergroup": {groupID}}
	if err := c.call(ctx, http.MethodGet, "usergroups.users.list", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Users, nil
}

func (c *Client) SetGroupMembers(ctx context.Context, groupID string, userIDs []string) error {
	payload := map[string]any{
		"usergroup": groupID,
		"users":     userIDs,
	}
	return c.call(ctx, http.MethodPost, "usergroups.users.update", nil, payload, nil)
}

func (c *Client) PostMessage(ctx context.Context, channelID, text string) error {
	payload := map[string]any{
		"channel": channelID,
		"text":    text,
	}
	return c.call(ctx, http.MethodPost, "chat.postMessage", nil, payload, nil)
}

func (c *Client) SetChannelTopic(ctx context.Context, channelID, topic string) error {
	payload := map[string]any{
		"channel": channelID,
		"topic":   topic,
	}
	return c.call(ctx, http.MethodPost, "conversations.setTopic", nil, payload, nil)
}

// call issues one request and decodes the uniform {ok, error, ...}
// envelope into out.
func (c *Client) call(ctx context.Context, method, endpoint string, query url.Values, payload, out any) error {
	u := c.baseURL + "/" + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal %s payload: %w", endpoint, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", endpoint, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("slack %s: %w", endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", endpoint, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Endpoint: endpoint, Message: fmt.Sprintf("status %d", resp.StatusCode)}
	}

	var envelope struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("decode %s envelope: %w", endpoint, err)
	}
	if !envelope.OK {
		msg := envelope.Error
		if msg == "" {
			msg = "unknown error"
		}
		c.logger.Warn("slack call failed", "endpoint", endpoint, "error", msg)
		return &APIError{Endpoint: endpoint, Message: msg}
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode %s response: %w", endpoint, err)
		}
	}
	return nil
}
