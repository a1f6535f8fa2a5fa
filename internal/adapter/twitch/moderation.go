package twitch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/tedkulp/n3rdbot/internal/domain"
)

// maxTimeout is the longest timeout Helix accepts, two weeks.
const maxTimeout = 1_209_600 * time.Second

var errEmptyTarget = errors.New("timeout target has no user id or login")

// HelixModeration times users out through the Helix bans endpoint, acting as
// the bot account. The bot token needs the moderator:manage:banned_users
// scope and the bot must be a moderator in the channel.
type HelixModeration struct {
	api            *HelixUsers
	lookup         domain.IdentityLookup
	moderatorLogin string

	mu  sync.Mutex
	ids map[string]string
}

// NewHelixModeration authorises requests with the bot's user token. Logins
// for the moderator and each broadcaster are resolved through lookup once and
// cached.
func NewHelixModeration(ctx context.Context, clientID, botToken, botLogin string, lookup domain.IdentityLookup, opts ...HelixOption) *HelixModeration {
	token := &oauth2.Token{
		AccessToken: strings.TrimPrefix(botToken, "oauth:"),
		TokenType:   "Bearer",
	}
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))

	return &HelixModeration{
		api:            newHelixUsers(client, clientID, opts...),
		lookup:         lookup,
		moderatorLogin: strings.ToLower(botLogin),
		ids:            make(map[string]string),
	}
}

type banRequest struct {
	Data banData `json:"data"`
}

type banData struct {
	UserID   string `json:"user_id"`
	Duration int    `json:"duration"`
	Reason   string `json:"reason,omitempty"`
}

// Timeout bans target from channel for d, rounded to whole seconds and
// clamped to [1s, two weeks].
func (m *HelixModeration) Timeout(ctx context.Context, channel string, target domain.Sender, d time.Duration, reason string) error {
	broadcasterID, err := m.resolve(ctx, strings.TrimPrefix(channel, "#"))
	if err != nil {
		return fmt.Errorf("failed to resolve broadcaster: %w", err)
	}
	moderatorID, err := m.resolve(ctx, m.moderatorLogin)
	if err != nil {
		return fmt.Errorf("failed to resolve moderator: %w", err)
	}

	userID := target.UserID
	if userID == "" {
		if target.Username == "" {
			return errEmptyTarget
		}
		if userID, err = m.lookup.GetUserID(ctx, target.Username); err != nil {
			return fmt.Errorf("failed to resolve target: %w", err)
		}
	}

	secs := int(min(max(d.Round(time.Second), time.Second), maxTimeout) / time.Second)
	query := url.Values{
		"broadcaster_id": {broadcasterID},
		"moderator_id":   {moderatorID},
	}
	body := banRequest{Data: banData{UserID: userID, Duration: secs, Reason: reason}}
	if err := m.api.do(ctx, http.MethodPost, "/moderation/bans", query, body, nil); err != nil {
		return fmt.Errorf("failed to time out %s: %w", target.Username, err)
	}

	slog.DebugContext(ctx, "Timed out user", "channel", channel, "user_id", userID, "seconds", secs)
	return nil
}

func (m *HelixModeration) resolve(ctx context.Context, login string) (string, error) {
	login = strings.ToLower(login)

	m.mu.Lock()
	id, ok := m.ids[login]
	m.mu.Unlock()
	if ok {
		return id, nil
	}

	id, err := m.lookup.GetUserID(ctx, login)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	m.ids[login] = id
	m.mu.Unlock()
	return id, nil
}

// Control speaks in chat over IRC and times users out through Helix.
type Control struct {
	*ChatClient
	*HelixModeration
}

var _ domain.ChatControl = Control{}
