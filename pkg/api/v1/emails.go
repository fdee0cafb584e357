package apiv1

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/wahajws/amast-crm-sub000/pkg/repository"
	"github.com/wahajws/amast-crm-sub000/pkg/types"
)

const maxEmailPageSize = 200

// EmailsGroup serves the CRM timeline view of ingested emails
type EmailsGroup struct {
	emails    repository.EmailRepository
	directory repository.EntityDirectory
}

func NewEmailsGroup(g *echo.Group, emails repository.EmailRepository, directory repository.EntityDirectory) *EmailsGroup {
	eg := &EmailsGroup{emails: emails, directory: directory}

	g.GET("", eg.List)
	g.GET("/:messageId", eg.Get)
	g.PUT("/:messageId/link", eg.Link)

	return eg
}

type EmailsResponse struct {
	Emails []types.IngestedEmail `json:"emails"`
}

// List returns the caller's emails, newest first, filtered by entity or label
func (eg *EmailsGroup) List(c echo.Context) error {
	filter := types.EmailFilter{
		ContactId: c.QueryParam("contactId"),
		AccountId: c.QueryParam("accountId"),
		LabelId:   c.QueryParam("labelId"),
	}
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxEmailPageSize {
			return HandleError(c, &types.ValidationError{Field: "limit", Message: "must be between 1 and 200"})
		}
		filter.Limit = n
	}

	emails, err := eg.emails.ListEmails(c.Request().Context(), currentUser(c).Id, filter)
	if err != nil {
		return HandleError(c, err)
	}
	if emails == nil {
		emails = []types.IngestedEmail{}
	}
	return SuccessResponse(c, EmailsResponse{Emails: emails})
}

// Get returns one email by provider message id
func (eg *EmailsGroup) Get(c echo.Context) error {
	email, err := eg.emails.GetEmail(c.Request().Context(), currentUser(c).Id, c.Param("messageId"))
	if err != nil {
		return HandleError(c, err)
	}
	if email == nil {
		return CodedErrorResponse(c, http.StatusNotFound, CodeNotFound, "email not found")
	}
	return SuccessResponse(c, email)
}

type LinkRequest struct {
	ContactId *string `json:"contactId"`
	AccountId *string `json:"accountId"`
}

// Link attaches an email to a contact or account by hand. Manual links are
// never overwritten by later syncs.
func (eg *EmailsGroup) Link(c echo.Context) error {
	ctx := c.Request().Context()
	user := currentUser(c)
	messageId := c.Param("messageId")

	var req LinkRequest
	if err := c.Bind(&req); err != nil {
		return HandleError(c, &types.ValidationError{Field: "body", Message: "malformed json"})
	}
	if req.ContactId != nil && *req.ContactId == "" {
		req.ContactId = nil
	}
	if req.AccountId != nil && *req.AccountId == "" {
		req.AccountId = nil
	}
	if req.ContactId == nil && req.AccountId == nil {
		return HandleError(c, &types.ValidationError{Field: "contactId", Message: "contactId or accountId is required"})
	}

	if req.ContactId != nil {
		contact, err := eg.directory.GetContact(ctx, user.Id, *req.ContactId)
		if err != nil {
			return HandleError(c, err)
		}
		if contact == nil {
			return CodedErrorResponse(c, http.StatusNotFound, CodeNotFound, "contact not found")
		}
	}
	if req.AccountId != nil {
		account, err := eg.directory.GetAccount(ctx, user.Id, *req.AccountId)
		if err != nil {
			return HandleError(c, err)
		}
		if account == nil {
			return CodedErrorResponse(c, http.StatusNotFound, CodeNotFound, "account not found")
		}
	}

	email, err := eg.emails.SetManualLink(ctx, user.Id, messageId, req.ContactId, req.AccountId)
	if err != nil {
		return HandleError(c, err)
	}
	if email == nil {
		return CodedErrorResponse(c, http.StatusNotFound, CodeNotFound, "email not found")
	}

	log.Info().Str("user_id", user.Id).Str("message_id", messageId).Msg("email linked manually")
	return SuccessResponse(c, email)
}
