package twitch

import (
	"context"
	"sync"
	"testing"
	"time"

	twitchirc "github.com/gempir/go-twitch-irc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tedkulp/n3rdbot/internal/domain"
	"github.com/tedkulp/n3rdbot/internal/eventbus"
)

type fakeIRC struct {
	mu        sync.Mutex
	said      []string
	joined    []string
	connected chan struct{}
	stop      chan struct{}
	stopOnce  sync.Once
}

func newFakeIRC() *fakeIRC {
	return &fakeIRC{connected: make(chan struct{}), stop: make(chan struct{})}
}

func (f *fakeIRC) Say(channel, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.said = append(f.said, channel+": "+text)
}

func (f *fakeIRC) Join(channels ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joined = append(f.joined, channels...)
}

func (f *fakeIRC) Connect() error {
	close(f.connected)
	<-f.stop
	return twitchirc.ErrClientDisconnected
}

func (f *fakeIRC) Disconnect() error {
	f.stopOnce.Do(func() { close(f.stop) })
	return nil
}

func (f *fakeIRC) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.said...)
}

func TestChatClient_PrivateMessage(t *testing.T) {
	pub := &recordingPublisher{}
	c := newChatClient(newFakeIRC(), "#N3rdFusion", pub, 20, 30*time.Second)
	sent := time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC)

	c.onPrivateMessage(twitchirc.PrivateMessage{
		User: twitchirc.User{
			ID:          "143989508",
			Name:        "viewer",
			DisplayName: "Viewer",
			Badges:      map[string]int{"subscriber": 0},
		},
		Tags:    map[string]string{"mod": "0", "emotes": "25:0-4/88:19-26"},
		Message: "Kappa Some Message PogChamp",
		Channel: "n3rdfusion",
		ID:      "msg-1",
		Time:    sent,
	})

	events := pub.all()
	require.Len(t, events, 1)
	assert.Equal(t, eventbus.TopicChat, events[0].topic)
	assert.Equal(t, eventbus.EventMessage, events[0].event)

	msg, ok := events[0].payload.(domain.ChatMessage)
	require.True(t, ok)
	assert.Equal(t, "n3rdfusion", msg.Channel)
	assert.Equal(t, "Kappa Some Message PogChamp", msg.Text)
	assert.Equal(t, sent, msg.SentAt)
	assert.Equal(t, domain.Sender{
		UserID:      "143989508",
		Username:    "viewer",
		DisplayName: "Viewer",
		EmotesRaw:   "25:0-4/88:19-26",
	}, msg.Sender)
}

func TestChatClient_ExemptFlags(t *testing.T) {
	pub := &recordingPublisher{}
	c := newChatClient(newFakeIRC(), "n3rdfusion", pub, 20, 30*time.Second)

	c.onPrivateMessage(twitchirc.PrivateMessage{
		User:    twitchirc.User{Name: "owner", Badges: map[string]int{"broadcaster": 1}},
		Tags:    map[string]string{},
		Channel: "n3rdfusion",
	})
	c.onPrivateMessage(twitchirc.PrivateMessage{
		User:    twitchirc.User{Name: "helper"},
		Tags:    map[string]string{"mod": "1"},
		Channel: "n3rdfusion",
	})

	events := pub.all()
	require.Len(t, events, 2)
	assert.True(t, events[0].payload.(domain.ChatMessage).Sender.IsBroadcaster)
	assert.True(t, events[1].payload.(domain.ChatMessage).Sender.IsModerator)
}

func TestChatClient_MembershipEvents(t *testing.T) {
	pub := &recordingPublisher{}
	c := newChatClient(newFakeIRC(), "n3rdfusion", pub, 20, 30*time.Second)

	c.onJoin(twitchirc.UserJoinMessage{Channel: "n3rdfusion", User: "alice"})
	c.onPart(twitchirc.UserPartMessage{Channel: "n3rdfusion", User: "alice"})
	c.onNames(twitchirc.NamesMessage{Channel: "n3rdfusion", Users: []string{"bob", "carol"}})
	c.onNotice(twitchirc.NoticeMessage{Channel: "n3rdfusion", MsgID: "room_mods", Message: "The moderators of this channel are: bob, dave"})
	c.onNotice(twitchirc.NoticeMessage{Channel: "n3rdfusion", MsgID: "msg_ratelimit", Message: "slow down"})

	events := pub.all()
	require.Len(t, events, 4)
	assert.Equal(t, eventbus.EventJoin, events[0].event)
	assert.Equal(t, domain.MembershipEvent{Channel: "n3rdfusion", Username: "alice"}, events[0].payload)
	assert.Equal(t, eventbus.EventPart, events[1].event)
	assert.Equal(t, eventbus.EventNames, events[2].event)
	assert.Equal(t, domain.RosterEvent{Channel: "n3rdfusion", Usernames: []string{"bob", "carol"}}, events[2].payload)
	assert.Equal(t, eventbus.EventMods, events[3].event)
	assert.Equal(t, domain.RosterEvent{Channel: "n3rdfusion", Usernames: []string{"bob", "dave"}}, events[3].payload)
}

func TestParseModList(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, parseModList("The moderators of this channel are: a, b, c"))
	assert.Equal(t, []string{"solo"}, parseModList("The moderators of this channel are: solo."))
	assert.Nil(t, parseModList("There are no moderators of this channel."))
}

func TestChatClient_Say(t *testing.T) {
	irc := newFakeIRC()
	c := newChatClient(irc, "n3rdfusion", &recordingPublisher{}, 20, 30*time.Second)

	require.NoError(t, c.Say(context.Background(), "n3rdfusion", "hello"))
	assert.Equal(t, []string{"n3rdfusion: hello"}, irc.messages())
}

func TestChatClient_SayRespectsRateLimit(t *testing.T) {
	irc := newFakeIRC()
	c := newChatClient(irc, "n3rdfusion", &recordingPublisher{}, 1, time.Hour)

	require.NoError(t, c.Say(context.Background(), "n3rdfusion", "first"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := c.Say(ctx, "n3rdfusion", "second")
	require.Error(t, err)
	assert.Equal(t, []string{"n3rdfusion: first"}, irc.messages())
}

func TestChatClient_RunJoinsAndStops(t *testing.T) {
	irc := newFakeIRC()
	c := newChatClient(irc, "#N3rdFusion", &recordingPublisher{}, 20, 30*time.Second)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	<-irc.connected
	irc.mu.Lock()
	assert.Equal(t, []string{"n3rdfusion"}, irc.joined)
	irc.mu.Unlock()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
