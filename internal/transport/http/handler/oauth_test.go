package handler_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/oncallsupport/rotator/internal/domain"
	"github.com/oncallsupport/rotator/internal/transport/http/handler"
)

const testJWTKey = "oauth-state-test-secret-32-chars!"

type fakeInstalls struct {
	saved []*domain.Installation
}

func (f *fakeInstalls) Put(_ context.Context, i *domain.Installation) error {
	f.saved = append(f.saved, i)
	return nil
}

func (f *fakeInstalls) UpdatePagerDutyToken(context.Context, string, string) error { return nil }

func (f *fakeInstalls) GetByTeam(context.Context, string) (*domain.Installation, error) {
	return nil, domain.ErrInstallationNotFound
}

func (f *fakeInstalls) ScanAll(context.Context) ([]*domain.Installation, error) { return nil, nil }

func newOAuthEngine(installs *fakeInstalls, slackBaseURL string) *gin.Engine {
	h := handler.NewOAuthHandler(
		installs,
		http.DefaultClient,
		slackBaseURL,
		"http://localhost:8080",
		"client-id", "client-secret",
		[]byte(testJWTKey),
		slog.New(slog.DiscardHandler),
	)
	r := gin.New()
	r.GET("/slack/oauth/install", h.Install)
	r.GET("/slack/oauth/callback", h.Callback)
	return r
}

func TestInstall_RedirectsWithSignedState(t *testing.T) {
	r := newOAuthEngine(&fakeInstalls{}, "")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/slack/oauth/install", nil))

	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", w.Code)
	}
	loc, err := url.Parse(w.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parse redirect: %v", err)
	}
	if loc.Host != "slack.com" {
		t.Errorf("redirect host = %q", loc.Host)
	}
	q := loc.Query()
	if q.Get("client_id") != "client-id" {
		t.Errorf("client_id = %q", q.Get("client_id"))
	}
	if q.Get("state") == "" {
		t.Error("redirect carries no state")
	}
	if q.Get("scope") == "" {
		t.Error("redirect carries no scopes")
	}
}

func TestCallback_InvalidStateRejected(t *testing.T) {
	installs := &fakeInstalls{}
	r := newOAuthEngine(installs, "")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/slack/oauth/callback?code=tmp&state=forged", nil))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
	if len(installs.saved) != 0 {
		t.Error("installation saved despite an invalid state")
	}
}

func TestCallback_SwapsCodeAndSavesInstallation(t *testing.T) {
	slackSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path != "/oauth.v2.access" {
			t.Errorf("path = %q", req.URL.Path)
		}
		if req.URL.Query().Get("code") != "tmp-code" {
			t.Errorf("code = %q", req.URL.Query().Get("code"))
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":           true,
			"app_id":       "A1",
			"access_token": "xoxb-new",
			"token_type":   "bot",
			"scope":        "commands",
			"bot_user_id":  "B1",
			"authed_user":  map[string]string{"id": "U42"},
			"team":         map[string]string{"id": "T1", "name": "Acme"},
			"enterprise":   map[string]string{"id": "E1", "name": "Acme Corp"},
		})
	}))
	defer slackSrv.Close()

	installs := &fakeInstalls{}
	r := newOAuthEngine(installs, slackSrv.URL)

	// Round-trip through /install to get a genuine state.
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/slack/oauth/install", nil))
	loc, _ := url.Parse(w.Header().Get("Location"))
	state := loc.Query().Get("state")

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/slack/oauth/callback?code=tmp-code&state="+url.QueryEscape(state), nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if len(installs.saved) != 1 {
		t.Fatalf("saved %d installations, want 1", len(installs.saved))
	}
	got := installs.saved[0]
	if got.TeamID != "T1" || got.EnterpriseID != "E1" || got.AccessToken != "xoxb-new" {
		t.Errorf("installation = %+v", got)
	}
	if got.Key() != "T1:E1" {
		t.Errorf("Key() = %q", got.Key())
	}
}
