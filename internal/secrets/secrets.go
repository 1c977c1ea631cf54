package secrets

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Bundle holds the secrets that are provisioned together: the at-rest
// encryption key and the Slack app credentials.
type Bundle struct {
	EncryptionKey      string `json:"encryption_key" validate:"required,min=32"`
	SlackClientID      string `json:"slack_client_id" validate:"required"`
	SlackClientSecret  string `json:"slack_client_secret" validate:"required"`
	SlackSigningSecret string `json:"slack_signing_secret" validate:"required"`
}

// Load parses a bundle from value: inline JSON when it looks like an
// object, otherwise the path of a file containing the JSON. Secret
// managers tend to hand out one opaque string, so both shapes are
// accepted.
func Load(value string) (*Bundle, error) {
	raw := []byte(value)
	if !strings.HasPrefix(strings.TrimSpace(value), "{") {
		var err error
		raw, err = os.ReadFile(value)
		if err != nil {
			return nil, fmt.Errorf("read secrets file: %w", err)
		}
	}

	b := &Bundle{}
	if err := json.Unmarshal(raw, b); err != nil {
		return nil, fmt.Errorf("parse secrets: %w", err)
	}
	if err := validator.New().Struct(b); err != nil {
		return nil, fmt.Errorf("invalid secrets: %w", err)
	}
	return b, nil
}
