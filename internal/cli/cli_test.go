package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tedkulp/n3rdbot/internal/domain"
)

type fakeStats struct {
	users map[string]domain.UserStats
	top   []domain.UserStats
	limit int
}

func (f *fakeStats) AddWatchedTime(context.Context, string, string, int64) error { return nil }
func (f *fakeStats) IncrementMessageCount(context.Context, string, string) error  { return nil }

func (f *fakeStats) Get(_ context.Context, username string) (*domain.UserStats, error) {
	s, ok := f.users[username]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return &s, nil
}

func (f *fakeStats) Top(_ context.Context, limit int) ([]domain.UserStats, error) {
	f.limit = limit
	return f.top, nil
}

type fakeSettings struct {
	values map[string]string
}

func (f *fakeSettings) Get(_ context.Context, key string) (string, error) {
	v, ok := f.values[key]
	if !ok {
		return "", domain.ErrSettingNotFound
	}
	return v, nil
}

func (f *fakeSettings) Set(_ context.Context, key, value string) error {
	f.values[key] = value
	return nil
}

func (f *fakeSettings) List(context.Context) (map[string]string, error) {
	return f.values, nil
}

type fakeBlacklist struct {
	entries []domain.BlacklistEntry
	added   []string
}

func (f *fakeBlacklist) ListActive(context.Context) ([]domain.BlacklistEntry, error) {
	var active []domain.BlacklistEntry
	for _, e := range f.entries {
		if e.Active {
			active = append(active, e)
		}
	}
	return active, nil
}

func (f *fakeBlacklist) List(context.Context) ([]domain.BlacklistEntry, error) {
	return f.entries, nil
}

func (f *fakeBlacklist) Add(_ context.Context, pattern string) (*domain.BlacklistEntry, error) {
	f.added = append(f.added, pattern)
	e := domain.BlacklistEntry{ID: int64(len(f.entries) + 1), Pattern: pattern, Active: true}
	f.entries = append(f.entries, e)
	return &e, nil
}

func (f *fakeBlacklist) SetActive(_ context.Context, id int64, active bool) error {
	for i := range f.entries {
		if f.entries[i].ID == id {
			f.entries[i].Active = active
			return nil
		}
	}
	return domain.ErrBlacklistEntryNotFound
}

type fakeLedger struct {
	counts map[string]int64
}

func (f *fakeLedger) Bump(context.Context, string, time.Duration) (int64, error) { return 0, nil }

func (f *fakeLedger) Current(_ context.Context, userID string) (int64, error) {
	return f.counts[userID], nil
}

func (f *fakeLedger) Reset(_ context.Context, userID string) error {
	delete(f.counts, userID)
	return nil
}

type fakeActions struct {
	recent []domain.ModerationAction
	limit  int
}

func (f *fakeActions) Record(context.Context, domain.ModerationAction) error { return nil }

func (f *fakeActions) ListRecent(_ context.Context, limit int) ([]domain.ModerationAction, error) {
	f.limit = limit
	return f.recent, nil
}

type fixture struct {
	stats       *fakeStats
	settings    *fakeSettings
	blacklist   *fakeBlacklist
	ledger      *fakeLedger
	actions     *fakeActions
	invalidated []string
	migrated    bool
	closed      int
	noRedis     bool
}

func newFixture() *fixture {
	return &fixture{
		stats:     &fakeStats{users: map[string]domain.UserStats{}},
		settings:  &fakeSettings{values: map[string]string{}},
		blacklist: &fakeBlacklist{},
		ledger:    &fakeLedger{counts: map[string]int64{}},
		actions:   &fakeActions{},
	}
}

func (f *fixture) open(context.Context, *Config) (*Backend, error) {
	b := &Backend{
		Stats:     f.stats,
		Settings:  f.settings,
		Blacklist: f.blacklist,
		Actions:   f.actions,
		Migrate: func(context.Context) error {
			f.migrated = true
			return nil
		},
		closers: []func(){func() { f.closed++ }},
	}
	if !f.noRedis {
		b.Warnings = f.ledger
		b.InvalidateBlacklist = func(_ context.Context, reason string) error {
			f.invalidated = append(f.invalidated, reason)
			return nil
		}
	}
	return b, nil
}

func (f *fixture) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCmd(f.open)
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestMigrate(t *testing.T) {
	f := newFixture()

	out, err := f.run(t, "migrate")

	require.NoError(t, err)
	assert.True(t, f.migrated)
	assert.Equal(t, 1, f.closed)
	assert.Contains(t, out, "migrations applied")
}

func TestStats(t *testing.T) {
	f := newFixture()
	f.stats.users["viewer"] = domain.UserStats{Username: "viewer", UserID: "42", WatchedSeconds: 3725, MessageCount: 7}

	out, err := f.run(t, "stats", "Viewer")
	require.NoError(t, err)
	assert.Contains(t, out, "1h02m05s")
	assert.Contains(t, out, "7")

	out, err = f.run(t, "stats", "viewer", "--format", "json")
	require.NoError(t, err)
	var row statsRow
	require.NoError(t, json.Unmarshal([]byte(out), &row))
	assert.Equal(t, statsRow{Username: "viewer", UserID: "42", WatchedSeconds: 3725, MessageCount: 7}, row)

	_, err = f.run(t, "stats", "ghost")
	require.EqualError(t, err, "no stats recorded for ghost")
}

func TestTop(t *testing.T) {
	f := newFixture()
	f.stats.top = []domain.UserStats{
		{Username: "alice", WatchedSeconds: 7200},
		{Username: "bob", WatchedSeconds: 60},
	}

	out, err := f.run(t, "top", "-n", "2")

	require.NoError(t, err)
	assert.Equal(t, 2, f.stats.limit)
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, "2h00m00s")

	_, err = f.run(t, "top", "-n", "0")
	require.Error(t, err)
}

func TestBlacklist(t *testing.T) {
	f := newFixture()

	out, err := f.run(t, "blacklist", "add", `(?i)buy\s+followers`)
	require.NoError(t, err)
	assert.Contains(t, out, "added pattern 1")
	assert.Equal(t, []string{"add"}, f.invalidated)

	_, err = f.run(t, "blacklist", "add", "([unclosed")
	require.ErrorContains(t, err, "invalid pattern")
	assert.Len(t, f.blacklist.added, 1)

	out, err = f.run(t, "blacklist", "disable", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "disabled pattern 1")
	assert.Equal(t, []string{"add", "disable"}, f.invalidated)

	out, err = f.run(t, "blacklist", "list")
	require.NoError(t, err)
	assert.NotContains(t, out, "followers")

	out, err = f.run(t, "blacklist", "list", "--all")
	require.NoError(t, err)
	assert.Contains(t, out, "followers")

	_, err = f.run(t, "blacklist", "disable", "99")
	require.EqualError(t, err, "no blacklist entry 99")

	_, err = f.run(t, "blacklist", "disable", "abc")
	require.Error(t, err)
}

func TestBlacklist_WithoutRedisSkipsInvalidation(t *testing.T) {
	f := newFixture()
	f.noRedis = true

	_, err := f.run(t, "blacklist", "add", "spam")

	require.NoError(t, err)
	assert.Empty(t, f.invalidated)
}

func TestSettings(t *testing.T) {
	f := newFixture()
	f.settings.values["custom.flag"] = "on"

	out, err := f.run(t, "settings", "get", "moderation.maxEmoteCount")
	require.NoError(t, err)
	assert.Contains(t, out, "15")
	assert.Contains(t, out, "(default)")

	_, err = f.run(t, "settings", "set", "moderation.maxEmoteCount", "many")
	require.ErrorContains(t, err, "must be an integer")
	_, err = f.run(t, "settings", "set", "moderation.maxEmoteCount", "-1")
	require.ErrorContains(t, err, "must not be negative")

	_, err = f.run(t, "settings", "set", "moderation.maxEmoteCount", "20")
	require.NoError(t, err)
	assert.Equal(t, "20", f.settings.values["moderation.maxEmoteCount"])

	out, err = f.run(t, "settings", "get", "--format", "json")
	require.NoError(t, err)
	var rows []settingRow
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	assert.Len(t, rows, len(integerSettings)+1)
	assert.Contains(t, rows, settingRow{Key: "moderation.maxEmoteCount", Value: "20"})
	assert.Contains(t, rows, settingRow{Key: "custom.flag", Value: "on"})
	assert.Contains(t, rows, settingRow{Key: "moderation.maxWarningThreshold", Value: "3", Default: true})

	_, err = f.run(t, "settings", "get", "unknown.key")
	require.EqualError(t, err, "setting unknown.key is not set")
}

func TestWarnings(t *testing.T) {
	f := newFixture()
	f.ledger.counts["42"] = 2

	out, err := f.run(t, "warnings", "get", "42")
	require.NoError(t, err)
	assert.Contains(t, out, "2")

	_, err = f.run(t, "warnings", "reset", "42")
	require.NoError(t, err)
	assert.NotContains(t, f.ledger.counts, "42")

	f.noRedis = true
	_, err = f.run(t, "warnings", "get", "42")
	require.ErrorIs(t, err, errRedisNotConfigured)
}

func TestActions(t *testing.T) {
	f := newFixture()
	f.actions.recent = []domain.ModerationAction{{
		ID:           uuid.New(),
		Channel:      "n3rdfusion",
		Username:     "spammer",
		Action:       domain.ActionTimeout,
		WarningCount: 3,
		Threshold:    3,
		CreatedAt:    time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC),
	}}

	out, err := f.run(t, "actions", "-n", "5")

	require.NoError(t, err)
	assert.Equal(t, 5, f.actions.limit)
	assert.Contains(t, out, "spammer")
	assert.Contains(t, out, "3/3")
}

func TestUnknownFormat(t *testing.T) {
	f := newFixture()

	_, err := f.run(t, "top", "--format", "yaml")

	require.ErrorContains(t, err, `unknown format "yaml"`)
}

func TestOpenFailure(t *testing.T) {
	root := NewRootCmd(func(context.Context, *Config) (*Backend, error) {
		return nil, errors.New("connection refused")
	})
	root.SetArgs([]string{"top"})
	root.SetOut(&bytes.Buffer{})

	err := root.Execute()

	require.ErrorContains(t, err, "open backend: connection refused")
}
