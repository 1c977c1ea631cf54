package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/oncallsupport/rotator/internal/command"
)

// commandRunner is the subset of command.Handler the handler needs.
// Defined here (point of use) so tests can inject a fake.
type commandRunner interface {
	Handle(ctx context.Context, req *command.Request) (*command.Result, error)
}

type SlackHandler struct {
	commands commandRunner
	logger   *slog.Logger
}

func NewSlackHandler(commands commandRunner, logger *slog.Logger) *SlackHandler {
	return &SlackHandler{
		commands: commands,
		logger:   logger.With("component", "slack_handler"),
	}
}

// POST /slack/command
// Body is the form Slack posts for a slash command; the signature
// middleware has already authenticated it.
func (h *SlackHandler) Command(c *gin.Context) {
	req := &command.Request{
		TeamID:              c.PostForm("team_id"),
		TeamDomain:          c.PostForm("team_domain"),
		ChannelID:           c.PostForm("channel_id"),
		ChannelName:         c.PostForm("channel_name"),
		EnterpriseID:        c.PostForm("enterprise_id"),
		EnterpriseName:      c.PostForm("enterprise_name"),
		IsEnterpriseInstall: strings.EqualFold(c.PostForm("is_enterprise_install"), "true"),

		UserID:   c.PostForm("user_id"),
		UserName: c.PostForm("user_name"),

		Command: c.PostForm("command"),
		Text:    c.PostForm("text"),
	}

	res, err := h.commands.Handle(c.Request.Context(), req)
	if err != nil {
		var usage *command.UsageError
		if errors.As(err, &usage) {
			// Shown only to the caller, in plain text.
			c.JSON(http.StatusOK, gin.H{
				"response_type": "ephemeral",
				"text":          usage.Message,
			})
			return
		}
		h.logger.Error("slash command failed", "command", req.Command, "text", req.Text, "error", err)
		c.String(http.StatusInternalServerError, errInternalServer)
		return
	}

	blocks := make([]gin.H, 0, len(res.Sections))
	for _, s := range res.Sections {
		blocks = append(blocks, gin.H{
			"type": "section",
			"text": gin.H{"type": "mrkdwn", "text": s},
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"response_type": "in_channel",
		"blocks":        blocks,
	})
}
