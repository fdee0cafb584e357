package gmail

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"html"
	"io"
	"mime"
	"regexp"
	"strings"
	"time"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"
	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/wahajws/amast-crm-sub000/pkg/types"
)

var (
	htmlTagRegex    = regexp.MustCompile(`(?s)<[^>]*>`)
	htmlScriptRegex = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
)

// Normalize reduces a full-format Gmail message to the stored shape.
// Missing bodies are returned as nil rather than treated as errors.
func Normalize(msg *gmailapi.Message) (*types.NormalizedMessage, error) {
	if msg == nil {
		return nil, fmt.Errorf("nil message")
	}

	out := &types.NormalizedMessage{
		ProviderMessageId: msg.Id,
		ThreadId:          msg.ThreadId,
		Snippet:           html.UnescapeString(msg.Snippet),
		LabelIds:          msg.LabelIds,
		IsStarred:         hasLabel(msg.LabelIds, "STARRED"),
		IsRead:            !hasLabel(msg.LabelIds, "UNREAD"),
	}

	if msg.Payload == nil {
		out.ReceivedAt = internalDate(msg)
		return out, nil
	}

	h := headerOf(msg.Payload.Headers)
	out.FromName, out.FromEmail = parseFrom(h)

	if subject, err := h.Subject(); err == nil {
		out.Subject = subject
	} else {
		out.Subject = h.Get("Subject")
	}

	if date, err := h.Date(); err == nil && !date.IsZero() {
		out.ReceivedAt = date.UTC()
	} else {
		out.ReceivedAt = internalDate(msg)
	}

	htmlBody, textBody := findBodies(msg.Payload)
	if htmlBody != "" {
		out.BodyHtml = &htmlBody
		if textBody == "" {
			if stripped := StripHTML(htmlBody); stripped != "" {
				textBody = stripped
			}
		}
	}
	if textBody != "" {
		out.BodyText = &textBody
	}

	return out, nil
}

func headerOf(headers []*gmailapi.MessagePartHeader) mail.Header {
	var th textproto.Header
	for _, hd := range headers {
		if hd == nil || hd.Name == "" {
			continue
		}
		th.Add(hd.Name, hd.Value)
	}
	return mail.Header{Header: message.Header{Header: th}}
}

func parseFrom(h mail.Header) (name, email string) {
	addrs, err := h.AddressList("From")
	if err == nil && len(addrs) > 0 {
		return strings.TrimSpace(addrs[0].Name), strings.ToLower(strings.TrimSpace(addrs[0].Address))
	}

	// Malformed headers still usually carry a recognizable address
	raw := h.Get("From")
	if raw == "" {
		return "", ""
	}
	if decoded, err := h.Text("From"); err == nil {
		raw = decoded
	}

	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ' ' || r == '<' || r == '>' || r == '"' || r == '\'' || r == ','
	})
	for _, f := range fields {
		if strings.Contains(f, "@") {
			email = strings.ToLower(f)
			break
		}
	}
	if email == "" {
		return strings.TrimSpace(raw), ""
	}

	if i := strings.Index(strings.ToLower(raw), email); i >= 0 {
		name = strings.Trim(strings.TrimSpace(raw[:i]), `<"' `)
	}
	return name, email
}

func internalDate(msg *gmailapi.Message) time.Time {
	if msg.InternalDate <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(msg.InternalDate).UTC()
}

// findBodies walks the MIME tree depth first and returns the first html
// and plain text parts that are not attachments
func findBodies(part *gmailapi.MessagePart) (htmlBody, textBody string) {
	var walk func(p *gmailapi.MessagePart)
	walk = func(p *gmailapi.MessagePart) {
		if p == nil || (htmlBody != "" && textBody != "") {
			return
		}
		if p.Filename != "" {
			return
		}

		mediaType, params, err := mime.ParseMediaType(p.MimeType)
		if err != nil {
			mediaType = strings.ToLower(p.MimeType)
		}
		if ct := partHeader(p, "Content-Type"); ct != "" {
			if _, ctParams, err := mime.ParseMediaType(ct); err == nil {
				params = ctParams
			}
		}

		switch mediaType {
		case "text/html":
			if htmlBody == "" {
				htmlBody = decodePartBody(p.Body, params["charset"])
			}
		case "text/plain":
			if textBody == "" {
				textBody = decodePartBody(p.Body, params["charset"])
			}
		}

		for _, child := range p.Parts {
			walk(child)
		}
	}
	walk(part)
	return htmlBody, textBody
}

func partHeader(p *gmailapi.MessagePart, name string) string {
	for _, h := range p.Headers {
		if h != nil && strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

func decodePartBody(body *gmailapi.MessagePartBody, cs string) string {
	if body == nil || body.Data == "" {
		return ""
	}

	raw := decodeBase64URL(body.Data)
	if len(raw) == 0 {
		return ""
	}

	cs = strings.ToLower(strings.TrimSpace(cs))
	if cs == "" || cs == "utf-8" || cs == "us-ascii" {
		return string(raw)
	}

	r, err := charset.Reader(cs, bytes.NewReader(raw))
	if err != nil {
		return string(raw)
	}
	converted, err := io.ReadAll(r)
	if err != nil {
		return string(raw)
	}
	return string(converted)
}

// decodeBase64URL accepts Gmail's url-safe base64 with or without padding
func decodeBase64URL(data string) []byte {
	data = strings.TrimRight(data, "=")
	decoded, err := base64.RawURLEncoding.DecodeString(data)
	if err == nil {
		return decoded
	}
	// Some producers emit the standard alphabet
	decoded, err = base64.RawStdEncoding.DecodeString(data)
	if err == nil {
		return decoded
	}
	return nil
}

// StripHTML reduces an html body to collapsed plain text
func StripHTML(s string) string {
	text := htmlScriptRegex.ReplaceAllString(s, " ")
	text = htmlTagRegex.ReplaceAllString(text, " ")
	text = html.UnescapeString(text)
	// Fields is Unicode aware, so the U+00A0 left by &nbsp; collapses too
	return strings.Join(strings.Fields(text), " ")
}

func hasLabel(labels []string, id string) bool {
	for _, l := range labels {
		if l == id {
			return true
		}
	}
	return false
}
