package twitch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"

	"github.com/tedkulp/n3rdbot/internal/domain"
	"github.com/tedkulp/n3rdbot/internal/platform/retry"
)

const (
	helixBaseURL   = "https://api.twitch.tv/helix"
	twitchTokenURL = "https://id.twitch.tv/oauth2/token"
	helixTimeout   = 10 * time.Second
)

// HelixUsers resolves logins to user IDs and checks stream status with an
// app access token.
type HelixUsers struct {
	httpClient *http.Client
	clientID   string
	baseURL    string
	policy     retry.Policy
	group      singleflight.Group
}

type HelixOption func(*HelixUsers)

// WithHTTPClient replaces the token-carrying client, mostly for tests.
func WithHTTPClient(c *http.Client) HelixOption {
	return func(h *HelixUsers) { h.httpClient = c }
}

func WithBaseURL(u string) HelixOption {
	return func(h *HelixUsers) { h.baseURL = strings.TrimRight(u, "/") }
}

func WithRetryPolicy(p retry.Policy) HelixOption {
	return func(h *HelixUsers) { h.policy = p }
}

func NewHelixUsers(ctx context.Context, clientID, clientSecret string, opts ...HelixOption) *HelixUsers {
	cc := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     twitchTokenURL,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	return newHelixUsers(cc.Client(ctx), clientID, opts...)
}

func newHelixUsers(client *http.Client, clientID string, opts ...HelixOption) *HelixUsers {
	client.Timeout = helixTimeout

	h := &HelixUsers{
		httpClient: client,
		clientID:   clientID,
		baseURL:    helixBaseURL,
		policy: retry.Policy{
			MaxAttempts:      3,
			InitialBackoff:   retryInitialBackoff,
			RateLimitBackoff: retryRateLimitBackoff,
			MaxBackoff:       retryRateLimitBackoff,
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// GetUserID implements domain.IdentityLookup. Concurrent lookups for the same
// login share one request, which runs detached from any single caller's
// context so one caller giving up does not fail the others.
func (h *HelixUsers) GetUserID(ctx context.Context, username string) (string, error) {
	login := strings.ToLower(strings.TrimSpace(username))
	if login == "" {
		return "", fmt.Errorf("%w: empty login", domain.ErrIdentityLookupFailed)
	}

	ch := h.group.DoChan(login, func() (any, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), helixTimeout)
		defer cancel()

		var body struct {
			Data []struct {
				ID string `json:"id"`
			} `json:"data"`
		}
		if err := h.get(lookupCtx, "/users", url.Values{"login": {login}}, &body); err != nil {
			return "", err
		}
		if len(body.Data) == 0 {
			return "", domain.ErrUserNotFound
		}
		return body.Data[0].ID, nil
	})

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %s: %w", domain.ErrIdentityLookupFailed, login, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return "", fmt.Errorf("%w: %s: %w", domain.ErrIdentityLookupFailed, login, res.Err)
		}
		return res.Val.(string), nil
	}
}

// IsLive reports whether login is currently streaming.
func (h *HelixUsers) IsLive(ctx context.Context, login string) (bool, error) {
	var body struct {
		Data []struct {
			Type string `json:"type"`
		} `json:"data"`
	}
	if err := h.get(ctx, "/streams", url.Values{"user_login": {strings.ToLower(login)}}, &body); err != nil {
		return false, fmt.Errorf("failed to get stream status: %w", err)
	}
	for _, s := range body.Data {
		if s.Type == "live" {
			return true, nil
		}
	}
	return false, nil
}

func (h *HelixUsers) get(ctx context.Context, path string, query url.Values, out any) error {
	return h.do(ctx, http.MethodGet, path, query, nil, out)
}

// do sends one Helix request with retries. in is JSON-encoded as the body
// when non-nil; out is skipped when nil.
func (h *HelixUsers) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("failed to encode %s request: %w", path, err)
		}
	}

	p := h.policy
	p.OnRetry = func(attempt int, err error, backoff time.Duration) {
		slog.WarnContext(ctx, "Helix request failed, retrying", "path", path, "attempt", attempt, "backoff_seconds", backoff.Seconds(), "error", err)
	}

	return retry.DoVoid(ctx, p, retry.ClassifyHTTP, func() error {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, h.baseURL+path+"?"+query.Encode(), body)
		if err != nil {
			return err
		}
		req.Header.Set("Client-Id", h.clientID)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := h.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer func() {
			if err := resp.Body.Close(); err != nil {
				slog.Warn("Failed to close response body", "error", err)
			}
		}()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return &retry.StatusError{StatusCode: resp.StatusCode, Body: string(snippet)}
		}
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode %s response: %w", path, err)
		}
		return nil
	})
}
