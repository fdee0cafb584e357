package gmail

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/wahajws/amast-crm-sub000/pkg/types"
)

const (
	me                    = "me"
	defaultRequestTimeout = 30 * time.Second
)

// Options configure clients built by a Factory
type Options struct {
	Endpoint  string            // API base override, e.g. a test server
	Timeout   time.Duration     // Per request timeout
	Limiter   *RateLimiter      // Optional per-user limiter
	Transport http.RoundTripper // Base transport, defaults to http.DefaultTransport
}

// Factory builds one Client per user and request
type Factory struct {
	opts Options
}

func NewFactory(cfg types.GmailConfig, limiter *RateLimiter) *Factory {
	return NewFactoryWithOptions(Options{
		Endpoint: cfg.Endpoint,
		Timeout:  cfg.RequestTimeout,
		Limiter:  limiter,
	})
}

func NewFactoryWithOptions(opts Options) *Factory {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultRequestTimeout
	}
	return &Factory{opts: opts}
}

// New returns a client authorized with a fixed access token. The client
// never refreshes on its own; token lifecycle belongs to the token manager.
func (f *Factory) New(ctx context.Context, userId, accessToken string) (*Client, error) {
	base := f.opts.Transport
	if base == nil {
		base = http.DefaultTransport
	}

	httpClient := &http.Client{
		Timeout: f.opts.Timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}),
			Base:   base,
		},
	}

	svcOpts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if f.opts.Endpoint != "" {
		svcOpts = append(svcOpts, option.WithEndpoint(f.opts.Endpoint))
	}

	svc, err := gmailapi.NewService(ctx, svcOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}

	return &Client{
		userId:  userId,
		svc:     svc,
		limiter: f.opts.Limiter,
		timeout: f.opts.Timeout,
	}, nil
}

// Client is an authenticated Gmail client scoped to one user
type Client struct {
	userId  string
	svc     *gmailapi.Service
	limiter *RateLimiter
	timeout time.Duration
}

// MessagePage is one page of message ids
type MessagePage struct {
	Ids           []string
	NextPageToken string
}

func (c *Client) UserId() string {
	return c.userId
}

// ListLabels returns every label visible to the user
func (c *Client) ListLabels(ctx context.Context) ([]types.ProviderLabel, error) {
	ctx, cancel, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	resp, err := c.svc.Users.Labels.List(me).Context(ctx).Do()
	if err != nil {
		return nil, c.classify(err)
	}

	labels := make([]types.ProviderLabel, 0, len(resp.Labels))
	for _, l := range resp.Labels {
		labels = append(labels, types.ProviderLabel{
			Id:   l.Id,
			Name: l.Name,
			Type: ClassifyLabel(l.Id),
		})
	}
	return labels, nil
}

// ListMessages returns one page of message ids carrying labelId
func (c *Client) ListMessages(ctx context.Context, labelId, pageToken string, pageSize int64) (*MessagePage, error) {
	ctx, cancel, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	call := c.svc.Users.Messages.List(me).LabelIds(labelId).MaxResults(pageSize)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	resp, err := call.Context(ctx).Do()
	if err != nil {
		return nil, c.classify(err)
	}

	page := &MessagePage{
		Ids:           make([]string, 0, len(resp.Messages)),
		NextPageToken: resp.NextPageToken,
	}
	for _, m := range resp.Messages {
		page.Ids = append(page.Ids, m.Id)
	}
	return page, nil
}

// GetMessage fetches a full message and normalizes it
func (c *Client) GetMessage(ctx context.Context, messageId string) (*types.NormalizedMessage, error) {
	ctx, cancel, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	msg, err := c.svc.Users.Messages.Get(me, messageId).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, c.classify(err)
	}

	normalized, err := Normalize(msg)
	if err != nil {
		return nil, fmt.Errorf("normalize message %s: %w", messageId, err)
	}
	return normalized, nil
}

// EmailAddress returns the mailbox address of the authorized account
func (c *Client) EmailAddress(ctx context.Context) (string, error) {
	ctx, cancel, err := c.begin(ctx)
	if err != nil {
		return "", err
	}
	defer cancel()

	profile, err := c.svc.Users.GetProfile(me).Context(ctx).Do()
	if err != nil {
		return "", c.classify(err)
	}
	return profile.EmailAddress, nil
}

// begin waits on the rate limiter and bounds the call with the request timeout
func (c *Client) begin(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, c.userId); err != nil {
			return nil, nil, &types.ProviderTransportError{Err: err}
		}
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	return ctx, cancel, nil
}

func (c *Client) classify(err error) error {
	return ClassifyError(c.userId, err)
}
