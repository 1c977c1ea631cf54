package domain

import "time"

// Installation is one Slack workspace's credentials, captured during the
// OAuth install flow. The access token and PagerDuty token are encrypted
// at rest; repositories hand out decrypted values.
type Installation struct {
	TeamID              string
	TeamName            string
	EnterpriseID        string
	EnterpriseName      string
	IsEnterpriseInstall bool

	AccessToken string
	TokenType   string
	Scope       string

	AuthedUserID string
	AppID        string
	BotUserID    string

	// PagerDutyToken is the workspace-level fallback used when a task
	// carries no token of its own.
	PagerDutyToken *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Key returns the installation's composite key.
func (i *Installation) Key() string {
	return TeamKey(i.TeamID, i.EnterpriseID)
}
