package twitch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	twitchirc "github.com/gempir/go-twitch-irc/v4"
	"golang.org/x/time/rate"

	"github.com/tedkulp/n3rdbot/internal/domain"
	"github.com/tedkulp/n3rdbot/internal/eventbus"
	"github.com/tedkulp/n3rdbot/internal/platform/correlation"
)

const (
	noticeRoomMods = "room_mods"
	noticeNoMods   = "no_mods"
	roomModsPrefix = "The moderators of this channel are:"
)

// ircClient is the part of go-twitch-irc's client the bot uses.
type ircClient interface {
	Say(channel, text string)
	Join(channels ...string)
	Connect() error
	Disconnect() error
}

// ChatClient bridges IRC chat onto the event bus and sends chat messages.
// Outbound messages share one token bucket.
type ChatClient struct {
	irc       ircClient
	channel   string
	publisher Publisher
	limiter   *rate.Limiter
	baseCtx   context.Context
}

// NewChatClient connects as username and joins channel once Run is called.
// limit messages may be sent per period.
func NewChatClient(username, oauthToken, channel string, publisher Publisher, limit int, period time.Duration) *ChatClient {
	client := twitchirc.NewClient(username, oauthToken)
	client.Capabilities = []string{twitchirc.TagsCapability, twitchirc.CommandsCapability, twitchirc.MembershipCapability}

	c := newChatClient(client, channel, publisher, limit, period)
	client.OnConnect(func() { slog.Info("Connected to Twitch chat", "channel", c.channel) })
	client.OnPrivateMessage(c.onPrivateMessage)
	client.OnUserJoinMessage(c.onJoin)
	client.OnUserPartMessage(c.onPart)
	client.OnNamesMessage(c.onNames)
	client.OnNoticeMessage(c.onNotice)
	return c
}

func newChatClient(irc ircClient, channel string, publisher Publisher, limit int, period time.Duration) *ChatClient {
	return &ChatClient{
		irc:       irc,
		channel:   strings.ToLower(strings.TrimPrefix(channel, "#")),
		publisher: publisher,
		limiter:   rate.NewLimiter(rate.Every(period/time.Duration(limit)), limit),
		baseCtx:   context.Background(),
	}
}

// Run joins the channel and blocks until ctx is cancelled or the connection
// fails.
func (c *ChatClient) Run(ctx context.Context) error {
	c.baseCtx = context.WithoutCancel(ctx)

	go func() {
		<-ctx.Done()
		if err := c.irc.Disconnect(); err != nil {
			slog.Debug("Chat disconnect", "error", err)
		}
	}()

	c.irc.Join(c.channel)
	err := c.irc.Connect()
	if errors.Is(err, twitchirc.ErrClientDisconnected) || ctx.Err() != nil {
		return nil
	}
	return err
}

func (c *ChatClient) Say(ctx context.Context, channel, text string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("chat rate limit: %w", err)
	}
	c.irc.Say(channel, text)
	return nil
}

func (c *ChatClient) eventContext() context.Context {
	return correlation.WithID(c.baseCtx, correlation.NewID())
}

func (c *ChatClient) onPrivateMessage(msg twitchirc.PrivateMessage) {
	_, broadcaster := msg.User.Badges["broadcaster"]
	sender := domain.Sender{
		UserID:        msg.User.ID,
		Username:      msg.User.Name,
		DisplayName:   msg.User.DisplayName,
		IsModerator:   msg.Tags["mod"] == "1",
		IsBroadcaster: broadcaster,
		EmotesRaw:     msg.Tags["emotes"],
	}

	c.publisher.Publish(c.eventContext(), eventbus.TopicChat, eventbus.EventMessage, domain.ChatMessage{
		ID:      msg.ID,
		Channel: msg.Channel,
		Text:    msg.Message,
		Sender:  sender,
		SentAt:  msg.Time,
		Raw:     msg.Raw,
	})
}

func (c *ChatClient) onJoin(msg twitchirc.UserJoinMessage) {
	c.publisher.Publish(c.eventContext(), eventbus.TopicChat, eventbus.EventJoin, domain.MembershipEvent{
		Channel:  msg.Channel,
		Username: msg.User,
	})
}

func (c *ChatClient) onPart(msg twitchirc.UserPartMessage) {
	c.publisher.Publish(c.eventContext(), eventbus.TopicChat, eventbus.EventPart, domain.MembershipEvent{
		Channel:  msg.Channel,
		Username: msg.User,
	})
}

func (c *ChatClient) onNames(msg twitchirc.NamesMessage) {
	c.publisher.Publish(c.eventContext(), eventbus.TopicChat, eventbus.EventNames, domain.RosterEvent{
		Channel:   msg.Channel,
		Usernames: msg.Users,
	})
}

func (c *ChatClient) onNotice(msg twitchirc.NoticeMessage) {
	switch msg.MsgID {
	case noticeRoomMods:
		c.publisher.Publish(c.eventContext(), eventbus.TopicChat, eventbus.EventMods, domain.RosterEvent{
			Channel:   msg.Channel,
			Usernames: parseModList(msg.Message),
		})
	case noticeNoMods:
		c.publisher.Publish(c.eventContext(), eventbus.TopicChat, eventbus.EventMods, domain.RosterEvent{Channel: msg.Channel})
	default:
		slog.Debug("Chat notice", "channel", msg.Channel, "msg_id", msg.MsgID, "message", msg.Message)
	}
}

// parseModList reads "The moderators of this channel are: a, b, c".
func parseModList(text string) []string {
	rest, ok := strings.CutPrefix(text, roomModsPrefix)
	if !ok {
		return nil
	}
	rest = strings.TrimSuffix(strings.TrimSpace(rest), ".")

	var names []string
	for _, name := range strings.Split(rest, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}
