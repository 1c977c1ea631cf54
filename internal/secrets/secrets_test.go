package secrets_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/oncallsupport/rotator/internal/secrets"
)

const validJSON = `{
	"encryption_key": "an example key of exactly 32 byt",
	"slack_client_id": "1234.5678",
	"slack_client_secret": "shhh",
	"slack_signing_secret": "sign-me"
}`

func TestLoad_InlineJSON(t *testing.T) {
	b, err := secrets.Load(validJSON)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.SlackClientID != "1234.5678" {
		t.Errorf("SlackClientID = %q", b.SlackClientID)
	}
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.json")
	if err := os.WriteFile(path, []byte(validJSON), 0o600); err != nil {
		t.Fatal(err)
	}

	b, err := secrets.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.SlackSigningSecret != "sign-me" {
		t.Errorf("SlackSigningSecret = %q", b.SlackSigningSecret)
	}
}

func TestLoad_MissingFieldRejected(t *testing.T) {
	if _, err := secrets.Load(`{"encryption_key": "an example key of exactly 32 byt"}`); err == nil {
		t.Fatal("expected validation error for missing Slack credentials")
	}
}

func TestLoad_MissingFileRejected(t *testing.T) {
	if _, err := secrets.Load("/nonexistent/secrets.json"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
