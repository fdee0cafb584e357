package gmail

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"github.com/wahajws/amast-crm-sub000/pkg/gmail/gmailtest"
	"github.com/wahajws/amast-crm-sub000/pkg/types"
)

func newTestClient(t *testing.T, srv *gmailtest.Server, token string) *Client {
	t.Helper()
	factory := NewFactoryWithOptions(Options{Endpoint: srv.Endpoint(), Timeout: 5 * time.Second})
	client, err := factory.New(context.Background(), "u1", token)
	require.NoError(t, err)
	return client
}

func TestClientListLabels(t *testing.T) {
	srv := gmailtest.NewServer()
	defer srv.Close()
	srv.AddLabel("INBOX", "INBOX")
	srv.AddLabel("CATEGORY_SOCIAL", "CATEGORY_SOCIAL")
	srv.AddLabel("Label_1", "Clients")

	labels, err := newTestClient(t, srv, "tok").ListLabels(context.Background())
	require.NoError(t, err)
	require.Len(t, labels, 3)
	assert.Equal(t, types.LabelTypeSystem, labels[0].Type)
	assert.Equal(t, types.LabelTypeSystem, labels[1].Type)
	assert.Equal(t, types.LabelTypeUser, labels[2].Type)
	assert.Equal(t, "Clients", labels[2].Name)
	assert.Equal(t, []string{"tok"}, srv.AccessTokens())
}

func TestClientPaginates(t *testing.T) {
	srv := gmailtest.NewServer()
	defer srv.Close()
	for _, id := range []string{"m1", "m2", "m3", "m4", "m5"} {
		srv.AddMessage(gmailtest.NewMessage(gmailtest.MessageFixture{Id: id, Labels: []string{"Label_1"}, From: "a@b.co"}))
	}
	srv.AddMessage(gmailtest.NewMessage(gmailtest.MessageFixture{Id: "other", Labels: []string{"INBOX"}}))

	client := newTestClient(t, srv, "tok")
	ctx := context.Background()

	var ids []string
	token := ""
	for {
		page, err := client.ListMessages(ctx, "Label_1", token, 2)
		require.NoError(t, err)
		ids = append(ids, page.Ids...)
		if page.NextPageToken == "" {
			break
		}
		token = page.NextPageToken
	}

	assert.Equal(t, []string{"m5", "m4", "m3", "m2", "m1"}, ids)
	assert.Equal(t, 3, srv.ListCalls())
}

func TestClientGetMessage(t *testing.T) {
	srv := gmailtest.NewServer()
	defer srv.Close()
	srv.AddMessage(gmailtest.NewMessage(gmailtest.MessageFixture{
		Id: "m1", Labels: []string{"INBOX"}, From: "Jane <jane@acme.com>", Subject: "Hi", Html: "<b>hi</b>",
	}))

	msg, err := newTestClient(t, srv, "tok").GetMessage(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, "jane@acme.com", msg.FromEmail)
	require.NotNil(t, msg.BodyHtml)
	assert.Equal(t, "<b>hi</b>", *msg.BodyHtml)
}

func TestClientErrorClassification(t *testing.T) {
	srv := gmailtest.NewServer()
	defer srv.Close()
	srv.AddMessage(gmailtest.NewMessage(gmailtest.MessageFixture{Id: "limited"}))
	srv.AddMessage(gmailtest.NewMessage(gmailtest.MessageFixture{Id: "broken"}))
	srv.RateLimitMessage("limited")
	srv.FailMessage("broken", http.StatusInternalServerError)

	ctx := context.Background()
	client := newTestClient(t, srv, "tok")

	_, err := client.GetMessage(ctx, "limited")
	var rateErr *types.ProviderRateLimitError
	require.ErrorAs(t, err, &rateErr)
	assert.Equal(t, 30*time.Second, rateErr.RetryAfter)

	_, err = client.GetMessage(ctx, "broken")
	var transportErr *types.ProviderTransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, http.StatusInternalServerError, transportErr.StatusCode)

	srv.RevokeToken("revoked")
	_, err = newTestClient(t, srv, "revoked").ListLabels(ctx)
	assert.True(t, (&types.RefreshFailedError{}).From(err))
}

func TestClientTransportFailure(t *testing.T) {
	srv := gmailtest.NewServer()
	client := newTestClient(t, srv, "tok")
	srv.Close()

	_, err := client.ListLabels(context.Background())
	var transportErr *types.ProviderTransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, 0, transportErr.StatusCode)
}

func TestClassifyErrorForbiddenRateLimit(t *testing.T) {
	err := &googleapi.Error{
		Code:   http.StatusForbidden,
		Errors: []googleapi.ErrorItem{{Reason: "userRateLimitExceeded"}},
	}
	assert.True(t, (&types.ProviderRateLimitError{}).From(ClassifyError("u1", err)))

	forbidden := &googleapi.Error{Code: http.StatusForbidden, Message: "Insufficient Permission"}
	var transportErr *types.ProviderTransportError
	require.ErrorAs(t, ClassifyError("u1", forbidden), &transportErr)
	assert.Equal(t, http.StatusForbidden, transportErr.StatusCode)

	assert.Nil(t, ClassifyError("u1", nil))
	assert.True(t, (&types.ProviderTransportError{}).From(ClassifyError("u1", errors.New("boom"))))
}

func TestRetryAfterHeader(t *testing.T) {
	h := http.Header{}
	assert.Equal(t, time.Duration(0), retryAfter(h))

	h.Set("Retry-After", "12")
	assert.Equal(t, 12*time.Second, retryAfter(h))

	h.Set("Retry-After", time.Now().Add(time.Minute).UTC().Format(http.TimeFormat))
	assert.InDelta(t, float64(time.Minute), float64(retryAfter(h)), float64(2*time.Second))
}

func TestRateLimiterPerUser(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 2})
	defer rl.Stop()

	assert.True(t, rl.Allow("u1"))
	assert.True(t, rl.Allow("u1"))
	assert.False(t, rl.Allow("u1"))
	assert.True(t, rl.Allow("u2"), "users have separate buckets")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, rl.Wait(ctx, "u1"))
}
