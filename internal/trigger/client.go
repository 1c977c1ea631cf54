package trigger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// Client talks to the one-shot scheduler service over its JSON API.
type Client struct {
	hc      *http.Client
	baseURL string
	token   string
}

func NewClient(hc *http.Client, baseURL, token string) *Client {
	return &Client{hc: hc, baseURL: baseURL, token: token}
}

func (c *Client) List(ctx context.Context, namePrefix string) ([]Trigger, error) {
	u := c.baseURL + "/v1/triggers?" + url.Values{"prefix": {namePrefix}}.Encode()
	var out struct {
		Triggers []Trigger `json:"triggers"`
	}
	if err := c.do(ctx, http.MethodGet, u, nil, &out, "list"); err != nil {
		return nil, err
	}
	return out.Triggers, nil
}

// Ping checks that the scheduler service answers at all; used by the
// readiness probe.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.List(ctx, "")
	return err
}

func (c *Client) Get(ctx context.Context, name string) (*Trigger, error) {
	u := c.baseURL + "/v1/triggers/" + url.PathEscape(name)
	var t Trigger
	if err := c.do(ctx, http.MethodGet, u, nil, &t, "get"); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) Create(ctx context.Context, t Trigger) error {
	return c.do(ctx, http.MethodPost, c.baseURL+"/v1/triggers", t, nil, "create")
}

func (c *Client) Delete(ctx context.Context, name string) error {
	u := c.baseURL + "/v1/triggers/" + url.PathEscape(name)
	return c.do(ctx, http.MethodDelete, u, nil, nil, "delete")
}

func (c *Client) do(ctx context.Context, method, u string, payload, out any, op string) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal %s payload: %w", op, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("scheduler service %s: %w", op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &ServiceError{Op: op, StatusCode: resp.StatusCode, Message: string(msg)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s response: %w", op, err)
		}
	}
	return nil
}
