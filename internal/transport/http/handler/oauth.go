package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/oncallsupport/rotator/internal/domain"
	"github.com/oncallsupport/rotator/internal/repository"
	"github.com/oncallsupport/rotator/internal/requestid"
	"github.com/oncallsupport/rotator/internal/slack"
)

// installScopes is everything the bot needs: read rosters, rewrite the
// user group, and announce the change.
const installScopes = "commands,chat:write,users:read,users:read.email,usergroups:read,usergroups:write"

const stateTTL = 10 * time.Minute

// OAuthHandler runs the Slack app install flow: a redirect out with a
// signed state, and the callback that swaps the temporary code for a
// workspace token.
type OAuthHandler struct {
	installs     repository.InstallationRepository
	hc           *http.Client
	slackBaseURL string
	authorizeURL string
	redirectURI  string
	clientID     string
	clientSecret string
	jwtKey       []byte
	logger       *slog.Logger
}

func NewOAuthHandler(
	installs repository.InstallationRepository,
	hc *http.Client,
	slackBaseURL string,
	oauthBaseURL string,
	clientID, clientSecret string,
	jwtKey []byte,
	logger *slog.Logger,
) *OAuthHandler {
	return &OAuthHandler{
		installs:     installs,
		hc:           hc,
		slackBaseURL: slackBaseURL,
		authorizeURL: "https://slack.com/oauth/v2/authorize",
		redirectURI:  oauthBaseURL + "/slack/oauth/callback",
		clientID:     clientID,
		clientSecret: clientSecret,
		jwtKey:       jwtKey,
		logger:       logger.With("component", "oauth_handler"),
	}
}

// GET /slack/oauth/install
// Sends the browser to Slack's consent page with a short-lived signed
// state, so the callback can reject forged redirects.
func (h *OAuthHandler) Install(c *gin.Context) {
	state, err := h.signState()
	if err != nil {
		h.logger.Error("sign oauth state", "error", err)
		c.String(http.StatusInternalServerError, errInternalServer)
		return
	}

	q := url.Values{
		"client_id":    {h.clientID},
		"scope":        {installScopes},
		"redirect_uri": {h.redirectURI},
		"state":        {state},
	}
	c.Redirect(http.StatusFound, h.authorizeURL+"?"+q.Encode())
}

// GET /slack/oauth/callback?code=<temporary>&state=<signed>
func (h *OAuthHandler) Callback(c *gin.Context) {
	if err := h.verifyState(c.Query("state")); err != nil {
		c.String(http.StatusUnauthorized, errInvalidState)
		return
	}

	code := c.Query("code")
	if code == "" {
		c.String(http.StatusBadRequest, errMissingCode)
		return
	}

	oauth, err := slack.SwapOAuthCode(c.Request.Context(), h.hc, h.slackBaseURL, code, h.clientID, h.clientSecret)
	if err != nil {
		h.logger.Error("swap oauth code", "error", err)
		c.String(http.StatusBadGateway, errInternalServer)
		return
	}

	now := time.Now().UTC()
	installation := &domain.Installation{
		TeamID:              oauth.Team.ID,
		TeamName:            oauth.Team.Name,
		EnterpriseID:        oauth.Enterprise.ID,
		EnterpriseName:      oauth.Enterprise.Name,
		IsEnterpriseInstall: oauth.IsEnterpriseInstall,

		AccessToken: oauth.AccessToken,
		TokenType:   oauth.TokenType,
		Scope:       oauth.Scope,

		AuthedUserID: oauth.AuthedUser.ID,
		AppID:        oauth.AppID,
		BotUserID:    oauth.BotUserID,

		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.installs.Put(c.Request.Context(), installation); err != nil {
		h.logger.Error("save installation", "team", installation.Key(), "error", err)
		c.String(http.StatusInternalServerError, errInternalServer)
		return
	}

	h.logger.Info("workspace installed", "team", installation.Key(), "team_name", installation.TeamName)
	c.String(http.StatusOK, "Received slack oauth callback.")
}

func (h *OAuthHandler) signState() (string, error) {
	claims := jwt.MapClaims{
		"purpose": "slack_install",
		"jti":     requestid.New(),
		"iat":     time.Now().Unix(),
		"exp":     time.Now().Add(stateTTL).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.jwtKey)
}

func (h *OAuthHandler) verifyState(state string) error {
	token, err := jwt.Parse(state, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return h.jwtKey, nil
	})
	if err != nil || !token.Valid {
		return fmt.Errorf("invalid state: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || claims["purpose"] != "slack_install" {
		return errors.New("invalid state claims")
	}
	return nil
}
