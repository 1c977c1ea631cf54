package slack

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// OAuthResponse is the payload of oauth.v2.access for a completed
// workspace install.
type OAuthResponse struct {
	AppID      string `json:"app_id"`
	AuthedUser struct {
		ID string `json:"id"`
	} `json:"authed_user"`

	Scope       string `json:"scope"`
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	BotUserID   string `json:"bot_user_id"`

	Team struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"team"`
	Enterprise struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"enterprise"`
	IsEnterpriseInstall bool `json:"is_enterprise_install"`
}

// SwapOAuthCode exchanges the temporary install code for a workspace
// access token, authenticating with the app's client id and secret.
func SwapOAuthCode(ctx context.Context, hc *http.Client, baseURL, code, clientID, clientSecret string) (*OAuthResponse, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u := baseURL + "/oauth.v2.access?" + url.Values{"code": {code}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build oauth request: %w", err)
	}
	basic := base64.StdEncoding.EncodeToString([]byte(clientID + ":" + clientSecret))
	req.Header.Set("Authorization", "Basic "+basic)

	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("slack oauth.v2.access: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read oauth response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{Endpoint: "oauth.v2.access", Message: fmt.Sprintf("status %d", resp.StatusCode)}
	}

	var envelope struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
		OAuthResponse
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode oauth response: %w", err)
	}
	if !envelope.OK {
		msg := envelope.Error
		if msg == "" {
			msg = "unknown error"
		}
		return nil, &APIError{Endpoint: "oauth.v2.access", Message: msg}
	}
	return &envelope.OAuthResponse, nil
}
