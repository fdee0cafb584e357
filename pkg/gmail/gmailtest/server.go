// Package gmailtest provides an in-process fake of the Gmail API and the
// Google token endpoint for tests.
package gmailtest

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	gmailapi "google.golang.org/api/gmail/v1"
)

// Server is a fake Gmail backend
type Server struct {
	*httptest.Server

	mu            sync.Mutex
	labels        []*gmailapi.Label
	messages      map[string]*gmailapi.Message
	order         []string // insertion order, listed newest first
	messageErrors map[string]int
	listErrors    map[int]int // page index -> status
	rateLimitAt   map[string]bool
	revoked       map[string]bool
	emailAddress  string

	refreshCount   int
	refreshDelay   time.Duration
	refreshReject  bool
	refreshExpires time.Duration
	issued         int

	listCalls int
	getCalls  map[string]int
	tokens    []string
}

func NewServer() *Server {
	s := &Server{
		messages:       make(map[string]*gmailapi.Message),
		messageErrors:  make(map[string]int),
		listErrors:     make(map[int]int),
		rateLimitAt:    make(map[string]bool),
		revoked:        make(map[string]bool),
		getCalls:       make(map[string]int),
		emailAddress:   "owner@example.com",
		refreshExpires: time.Hour,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/token", s.handleToken)
	mux.HandleFunc("/gmail/v1/users/me/labels", s.authorized(s.handleLabels))
	mux.HandleFunc("/gmail/v1/users/me/messages", s.authorized(s.handleListMessages))
	mux.HandleFunc("/gmail/v1/users/me/messages/", s.authorized(s.handleGetMessage))
	mux.HandleFunc("/gmail/v1/users/me/profile", s.authorized(s.handleProfile))
	s.Server = httptest.NewServer(mux)
	return s
}

// Endpoint is the API base to pass to the client
func (s *Server) Endpoint() string {
	return s.URL + "/"
}

// TokenURL is the fake OAuth token endpoint
func (s *Server) TokenURL() string {
	return s.URL + "/token"
}

// ----------------------------------------------------------------------------
// Fixtures
// ----------------------------------------------------------------------------

func (s *Server) AddLabel(id, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	labelType := "user"
	if strings.ToUpper(id) == id {
		labelType = "system"
	}
	s.labels = append(s.labels, &gmailapi.Label{Id: id, Name: name, Type: labelType})
}

func (s *Server) SetLabels(labels ...*gmailapi.Label) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.labels = labels
}

func (s *Server) AddMessage(msg *gmailapi.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[msg.Id]; !ok {
		s.order = append(s.order, msg.Id)
	}
	s.messages[msg.Id] = msg
}

// FailMessage makes fetching id return status
func (s *Server) FailMessage(id string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messageErrors[id] = status
}

// FailListPage makes listing the page at index (0 based) return status
func (s *Server) FailListPage(index, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listErrors[index] = status
}

// RateLimitMessage makes fetching id return a 429 with Retry-After
func (s *Server) RateLimitMessage(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rateLimitAt[id] = true
}

// RevokeToken makes API calls with accessToken return 401
func (s *Server) RevokeToken(accessToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[accessToken] = true
}

// RejectRefresh makes the token endpoint answer invalid_grant
func (s *Server) RejectRefresh(reject bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshReject = reject
}

// SetRefreshDelay slows down the token endpoint
func (s *Server) SetRefreshDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshDelay = d
}

// ----------------------------------------------------------------------------
// Observations
// ----------------------------------------------------------------------------

func (s *Server) RefreshCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshCount
}

func (s *Server) ListCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listCalls
}

func (s *Server) GetCalls(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getCalls[id]
}

// AccessTokens returns the bearer tokens seen by API handlers
func (s *Server) AccessTokens() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.tokens...)
}

// ----------------------------------------------------------------------------
// Handlers
// ----------------------------------------------------------------------------

func (s *Server) authorized(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		s.mu.Lock()
		s.tokens = append(s.tokens, token)
		revoked := s.revoked[token]
		s.mu.Unlock()

		if token == "" || revoked {
			writeError(w, http.StatusUnauthorized, "authError", "Invalid Credentials")
			return
		}
		next(w, r)
	}
}

func (s *Server) handleLabels(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	labels := s.labels
	s.mu.Unlock()
	writeJSON(w, &gmailapi.ListLabelsResponse{Labels: labels})
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	labelId := q.Get("labelIds")
	pageSize, _ := strconv.Atoi(q.Get("maxResults"))
	if pageSize <= 0 {
		pageSize = 100
	}
	offset, _ := strconv.Atoi(q.Get("pageToken"))

	s.mu.Lock()
	s.listCalls++
	pageIndex := offset / pageSize
	status, fail := s.listErrors[pageIndex]

	var ids []string
	for i := len(s.order) - 1; i >= 0; i-- {
		msg := s.messages[s.order[i]]
		if labelId == "" || contains(msg.LabelIds, labelId) {
			ids = append(ids, msg.Id)
		}
	}
	s.mu.Unlock()

	if fail {
		writeError(w, status, "backendError", "list failed")
		return
	}

	resp := &gmailapi.ListMessagesResponse{ResultSizeEstimate: int64(len(ids))}
	end := offset + pageSize
	if end > len(ids) {
		end = len(ids)
	}
	for _, id := range ids[min(offset, len(ids)):end] {
		resp.Messages = append(resp.Messages, &gmailapi.Message{Id: id, ThreadId: "t-" + id})
	}
	if end < len(ids) {
		resp.NextPageToken = strconv.Itoa(end)
	}
	writeJSON(w, resp)
}

func (s *Server) handleGetMessage(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/gmail/v1/users/me/messages/")

	s.mu.Lock()
	s.getCalls[id]++
	msg, ok := s.messages[id]
	status, fail := s.messageErrors[id]
	limited := s.rateLimitAt[id]
	s.mu.Unlock()

	switch {
	case limited:
		w.Header().Set("Retry-After", "30")
		writeError(w, http.StatusTooManyRequests, "rateLimitExceeded", "Too many requests")
	case fail:
		writeError(w, status, "backendError", "fetch failed")
	case !ok:
		writeError(w, http.StatusNotFound, "notFound", "Requested entity was not found.")
	default:
		writeJSON(w, msg)
	}
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	email := s.emailAddress
	total := int64(len(s.messages))
	s.mu.Unlock()
	writeJSON(w, &gmailapi.Profile{EmailAddress: email, MessagesTotal: total})
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	delay := s.refreshDelay
	reject := s.refreshReject
	expires := s.refreshExpires
	s.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	w.Header().Set("Content-Type", "application/json")
	if reject {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{
			"error":             "invalid_grant",
			"error_description": "Token has been expired or revoked.",
		})
		return
	}

	s.mu.Lock()
	s.issued++
	n := s.issued
	resp := map[string]any{
		"access_token": fmt.Sprintf("access-%d", n),
		"token_type":   "Bearer",
		"expires_in":   int(expires.Seconds()),
		"scope":        gmailapi.GmailReadonlyScope,
	}
	switch r.Form.Get("grant_type") {
	case "refresh_token":
		s.refreshCount++
	case "authorization_code":
		resp["refresh_token"] = fmt.Sprintf("refresh-%d", n)
	}
	s.mu.Unlock()

	json.NewEncoder(w).Encode(resp)
}

// ----------------------------------------------------------------------------
// Message builders
// ----------------------------------------------------------------------------

// MessageFixture describes a message fixture
type MessageFixture struct {
	Id       string
	Labels   []string
	From     string
	Subject  string
	Date     time.Time
	Text     string
	Html     string
	Snippet  string
	Headers  map[string]string
	Charset  string
	RawParts []*gmailapi.MessagePart
}

// NewMessage builds a full-format message. Text and Html become a
// multipart/alternative body; neither yields a body-less message.
func NewMessage(fx MessageFixture) *gmailapi.Message {
	if fx.Date.IsZero() {
		fx.Date = time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC)
	}
	cs := fx.Charset
	if cs == "" {
		cs = "UTF-8"
	}

	headers := []*gmailapi.MessagePartHeader{
		{Name: "From", Value: fx.From},
		{Name: "Subject", Value: fx.Subject},
		{Name: "Date", Value: fx.Date.Format(time.RFC1123Z)},
	}
	keys := make([]string, 0, len(fx.Headers))
	for k := range fx.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		headers = append(headers, &gmailapi.MessagePartHeader{Name: k, Value: fx.Headers[k]})
	}

	payload := &gmailapi.MessagePart{Headers: headers, Parts: fx.RawParts}
	switch {
	case fx.RawParts != nil:
		payload.MimeType = "multipart/mixed"
	case fx.Text != "" && fx.Html != "":
		payload.MimeType = "multipart/alternative"
		payload.Parts = []*gmailapi.MessagePart{
			TextPart("text/plain", cs, fx.Text),
			TextPart("text/html", cs, fx.Html),
		}
	case fx.Html != "":
		payload.MimeType = "text/html"
		payload.Body = &gmailapi.MessagePartBody{Data: encode(fx.Html), Size: int64(len(fx.Html))}
	case fx.Text != "":
		payload.MimeType = "text/plain"
		payload.Body = &gmailapi.MessagePartBody{Data: encode(fx.Text), Size: int64(len(fx.Text))}
	default:
		payload.MimeType = "multipart/mixed"
		payload.Body = &gmailapi.MessagePartBody{Size: 0}
	}

	return &gmailapi.Message{
		Id:           fx.Id,
		ThreadId:     "t-" + fx.Id,
		LabelIds:     fx.Labels,
		Snippet:      fx.Snippet,
		InternalDate: fx.Date.UnixMilli(),
		Payload:      payload,
	}
}

// TextPart builds a leaf part with the given media type and charset
func TextPart(mimeType, cs, body string) *gmailapi.MessagePart {
	return &gmailapi.MessagePart{
		MimeType: mimeType,
		Headers: []*gmailapi.MessagePartHeader{
			{Name: "Content-Type", Value: fmt.Sprintf("%s; charset=%q", mimeType, cs)},
		},
		Body: &gmailapi.MessagePartBody{Data: encode(body), Size: int64(len(body))},
	}
}

// RawTextPart builds a leaf part from bytes already in charset cs
func RawTextPart(mimeType, cs string, body []byte) *gmailapi.MessagePart {
	return &gmailapi.MessagePart{
		MimeType: mimeType,
		Headers: []*gmailapi.MessagePartHeader{
			{Name: "Content-Type", Value: fmt.Sprintf("%s; charset=%s", mimeType, cs)},
		},
		Body: &gmailapi.MessagePartBody{Data: base64.RawURLEncoding.EncodeToString(body), Size: int64(len(body))},
	}
}

func encode(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, reason, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    status,
			"message": message,
			"errors":  []map[string]string{{"reason": reason, "message": message, "domain": "global"}},
		},
	})
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
