package slack_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/oncallsupport/rotator/internal/domain"
	"github.com/oncallsupport/rotator/internal/slack"
)

func discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*slack.Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return slack.New(srv.Client(), srv.URL, "xoxb-test", discard()), srv
}

func TestFindUserByEmail(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users.lookupByEmail" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer xoxb-test" {
			t.Errorf("auth header = %q", got)
		}
		if got := r.URL.Query().Get("email"); got != "a@example.com" {
			t.Errorf("email param = %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":   true,
			"user": map[string]string{"id": "U1", "name": "alice"},
		})
	})

	u, err := c.FindUserByEmail(context.Background(), "a@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.ID != "U1" || u.Name != "alice" {
		t.Errorf("user = %+v", u)
	}
}

func TestFindUserByEmail_Missing(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": "users_not_found"})
	})

	if _, err := c.FindUserByEmail(context.Background(), "ghost@example.com"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Errorf("error = %v, want ErrUserNotFound", err)
	}
}

func TestEnvelopeFailure(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": "invalid_auth"})
	})

	err := c.PostMessage(context.Background(), "C1", "hello")
	var apiErr *slack.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.Message != "invalid_auth" {
		t.Errorf("message = %q", apiErr.Message)
	}
}

func TestNon2xxFailure(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	err := c.PostMessage(context.Background(), "C1", "hello")
	var apiErr *slack.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
}

func TestFindGroupByNameOrHandle(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok": true,
			"usergroups": []map[string]string{
				{"id": "S1", "name": "Support Crew", "handle": "support"},
				{"id": "S2", "name": "Platform", "handle": "platform"},
			},
		})
	})

	byHandle, err := c.FindGroupByNameOrHandle(context.Background(), "support")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if byHandle.ID != "S1" {
		t.Errorf("group = %+v", byHandle)
	}

	byName, err := c.FindGroupByNameOrHandle(context.Background(), "Platform")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if byName.ID != "S2" {
		t.Errorf("group = %+v", byName)
	}

	if _, err := c.FindGroupByNameOrHandle(context.Background(), "nobody"); !errors.Is(err, domain.ErrUserGroupNotFound) {
		t.Errorf("error = %v, want ErrUserGroupNotFound", err)
	}
}

func TestSetGroupMembers_Payload(t *testing.T) {
	var captured struct {
		UserGroup string   `json:"usergroup"`
		Users     []string `json:"users"`
	}
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		_ = json.NewDecoder(r.Body).Decode(&captured)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	})

	if err := c.SetGroupMembers(context.Background(), "S1", []string{"U1", "U2"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if captured.UserGroup != "S1" || len(captured.Users) != 2 {
		t.Errorf("payload = %+v", captured)
	}
}
