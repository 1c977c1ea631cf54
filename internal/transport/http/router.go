package httptransport

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	sloggin "github.com/samber/slog-gin"

	"github.com/oncallsupport/rotator/internal/transport/http/handler"
	"github.com/oncallsupport/rotator/internal/transport/http/middleware"
)

func NewRouter(logger *slog.Logger, signingSecret string, slackHandler *handler.SlackHandler, oauthHandler *handler.OAuthHandler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Security())
	r.Use(sloggin.New(logger))
	r.Use(middleware.Metrics())

	r.POST("/slack/command", middleware.SlackSignature(signingSecret, time.Now), slackHandler.Command)

	r.GET("/slack/oauth/install", oauthHandler.Install)
	r.GET("/slack/oauth/callback", oauthHandler.Callback)

	return r
}
