package types

import "time"

// LinkSource records how an email was attached to a CRM entity
type LinkSource string

const (
	LinkSourceNone      LinkSource = "none"
	LinkSourceHeuristic LinkSource = "heuristic"
	LinkSourceManual    LinkSource = "manual"
)

// EntityLink is the outcome of linking one message
type EntityLink struct {
	ContactId  *string    `json:"contactId,omitempty"`
	AccountId  *string    `json:"accountId,omitempty"`
	Source     LinkSource `json:"source"`
	Confidence float64    `json:"confidence"`
}

// IsLinked returns true if either side of the link is set
func (l EntityLink) IsLinked() bool {
	return l.ContactId != nil || l.AccountId != nil
}

// NormalizedMessage is a provider message reduced to the fields we store
type NormalizedMessage struct {
	ProviderMessageId string
	ThreadId          string
	FromName          string
	FromEmail         string
	Subject           string
	Snippet           string
	BodyText          *string
	BodyHtml          *string
	ReceivedAt        time.Time
	IsStarred         bool
	IsRead            bool
	LabelIds          []string
}

// IngestedEmail is a persisted email row.
// (user_id, provider_message_id) is unique.
type IngestedEmail struct {
	Id                string     `db:"id" json:"id"`
	UserId            string     `db:"user_id" json:"-"`
	ProviderMessageId string     `db:"provider_message_id" json:"messageId"`
	ThreadId          string     `db:"thread_id" json:"threadId"`
	LabelId           string     `db:"label_id" json:"labelId"`
	FromName          string     `db:"from_name" json:"fromName"`
	FromEmail         string     `db:"from_email" json:"fromEmail"`
	Subject           string     `db:"subject" json:"subject"`
	Snippet           string     `db:"snippet" json:"snippet"`
	BodyText          *string    `db:"body_text" json:"bodyText"`
	BodyHtml          *string    `db:"body_html" json:"bodyHtml"`
	ReceivedAt        time.Time  `db:"received_at" json:"receivedAt"`
	IsStarred         bool       `db:"is_starred" json:"isStarred"`
	IsRead            bool       `db:"is_read" json:"isRead"`
	ContactId         *string    `db:"contact_id" json:"contactId"`
	AccountId         *string    `db:"account_id" json:"accountId"`
	LinkSource        LinkSource `db:"link_source" json:"linkSource"`
	LinkConfidence    float64    `db:"link_confidence" json:"linkConfidence"`
	CreatedAt         time.Time  `db:"created_at" json:"createdAt"`
}

// NewIngestedEmail builds a row from a normalized message and its link
func NewIngestedEmail(userId, labelId string, msg *NormalizedMessage, link EntityLink) *IngestedEmail {
	source := link.Source
	if source == "" {
		source = LinkSourceNone
	}
	return &IngestedEmail{
		UserId:            userId,
		ProviderMessageId: msg.ProviderMessageId,
		ThreadId:          msg.ThreadId,
		LabelId:           labelId,
		FromName:          msg.FromName,
		FromEmail:         msg.FromEmail,
		Subject:           msg.Subject,
		Snippet:           msg.Snippet,
		BodyText:          msg.BodyText,
		BodyHtml:          msg.BodyHtml,
		ReceivedAt:        msg.ReceivedAt,
		IsStarred:         msg.IsStarred,
		IsRead:            msg.IsRead,
		ContactId:         link.ContactId,
		AccountId:         link.AccountId,
		LinkSource:        source,
		LinkConfidence:    link.Confidence,
	}
}

// EmailFilter selects timeline rows
type EmailFilter struct {
	ContactId string
	AccountId string
	LabelId   string
	Limit     int
}
