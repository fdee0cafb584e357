package apiv1

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/wahajws/amast-crm-sub000/pkg/auth"
	"github.com/wahajws/amast-crm-sub000/pkg/oauth"
)

const (
	errMsgSessionInvalid = "Invalid or expired connect session"
	errMsgNoAuthCode     = "Missing authorization code"
	errMsgConnectFailed  = "Could not connect Gmail, please try again"
)

// OAuthGroup handles the Gmail connect flow
type OAuthGroup struct {
	store   *oauth.Store
	manager *oauth.TokenManager
}

// NewOAuthGroup registers the connect routes. The callback is reached by the
// consent redirect and carries no bearer token, the rest require a user.
func NewOAuthGroup(g *echo.Group, store *oauth.Store, manager *oauth.TokenManager) *OAuthGroup {
	og := &OAuthGroup{
		store:   store,
		manager: manager,
	}

	requireUser := auth.RequireAuthMiddleware()
	g.GET("/connect", og.CreateSession, requireUser)
	g.POST("/sessions", og.CreateSession, requireUser)
	g.GET("/sessions/:id", og.GetSession, requireUser)
	g.GET("/connection", og.GetConnection, requireUser)
	g.DELETE("/connection", og.Disconnect, requireUser)
	g.GET("/callback", og.Callback)

	return og
}

type CreateSessionRequest struct {
	ReturnTo string `json:"returnTo,omitempty" query:"returnTo"`
}

type CreateSessionResponse struct {
	SessionId    string `json:"sessionId"`
	AuthorizeURL string `json:"authorizeUrl"`
}

// CreateSession starts a connect attempt and returns the consent URL
func (og *OAuthGroup) CreateSession(c echo.Context) error {
	user := currentUser(c)

	var req CreateSessionRequest
	if err := c.Bind(&req); err != nil {
		return CodedErrorResponse(c, http.StatusBadRequest, CodeInvalidRequest, "invalid request")
	}

	if req.ReturnTo != "" &&
		!strings.HasPrefix(req.ReturnTo, "/") &&
		!strings.HasPrefix(req.ReturnTo, "http://") &&
		!strings.HasPrefix(req.ReturnTo, "https://") {
		return CodedErrorResponse(c, http.StatusBadRequest, CodeInvalidRequest, "returnTo must be a relative path or full URL")
	}

	session := og.store.Create(user.Id, req.ReturnTo)
	authorizeURL, ok := og.manager.AuthorizeURL(session.State)
	if !ok {
		og.store.Delete(session.Id)
		return ErrorResponse(c, http.StatusServiceUnavailable, "gmail oauth is not configured")
	}

	log.Info().Str("session_id", session.Id).Str("user_id", user.Id).Msg("gmail connect session created")

	return c.JSON(http.StatusCreated, Response{
		Success: true,
		Data: CreateSessionResponse{
			SessionId:    session.Id,
			AuthorizeURL: authorizeURL,
		},
	})
}

type GetSessionResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// GetSession returns the status of a connect attempt owned by the caller
func (og *OAuthGroup) GetSession(c echo.Context) error {
	user := currentUser(c)

	session := og.store.Get(c.Param("id"))
	if session == nil || session.UserId != user.Id {
		return CodedErrorResponse(c, http.StatusNotFound, CodeNotFound, "session not found")
	}

	return SuccessResponse(c, GetSessionResponse{
		Status: string(session.Status),
		Error:  session.Error,
	})
}

type ConnectionResponse struct {
	Connected   bool   `json:"connected"`
	Scope       string `json:"scope,omitempty"`
	ConnectedAt string `json:"connectedAt,omitempty"`
}

// GetConnection reports whether the caller has a usable Gmail credential
func (og *OAuthGroup) GetConnection(c echo.Context) error {
	user := currentUser(c)

	cred, err := og.manager.Connection(c.Request().Context(), user.Id)
	if err != nil {
		return HandleError(c, err)
	}
	if cred == nil {
		return SuccessResponse(c, ConnectionResponse{Connected: false})
	}

	return SuccessResponse(c, ConnectionResponse{
		Connected:   true,
		Scope:       cred.Scope,
		ConnectedAt: cred.ConnectedAt.UTC().Format("2006-01-02T15:04:05Z"),
	})
}

// Disconnect removes the caller's credential. Ingested emails are kept.
func (og *OAuthGroup) Disconnect(c echo.Context) error {
	user := currentUser(c)

	if err := og.manager.Disconnect(c.Request().Context(), user.Id); err != nil {
		return HandleError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Callback completes the consent redirect. The user is resolved from the
// session state, not from a bearer token.
func (og *OAuthGroup) Callback(c echo.Context) error {
	state := c.QueryParam("state")
	code := c.QueryParam("code")
	errParam := c.QueryParam("error")

	session := og.store.GetByState(state)
	if session == nil {
		return renderErrorPage(c, errMsgSessionInvalid)
	}

	if errParam != "" {
		og.store.Fail(session.Id, "google: "+errParam)
		return renderErrorPage(c, "Google authorization failed: "+errParam)
	}

	if code == "" {
		og.store.Fail(session.Id, errMsgNoAuthCode)
		return renderErrorPage(c, errMsgNoAuthCode)
	}

	if _, err := og.manager.Connect(c.Request().Context(), session.UserId, code); err != nil {
		og.store.Fail(session.Id, err.Error())
		log.Error().Err(err).Str("session_id", session.Id).Str("user_id", session.UserId).Msg("gmail connect failed")
		return renderErrorPage(c, errMsgConnectFailed)
	}

	og.store.Complete(session.Id)

	log.Info().
		Str("session_id", session.Id).
		Str("user_id", session.UserId).
		Msg("gmail connect completed")

	if session.ReturnTo != "" {
		return c.Redirect(http.StatusFound, session.ReturnTo)
	}

	return renderSuccessPage(c)
}
