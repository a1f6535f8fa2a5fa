package app

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tedkulp/n3rdbot/internal/domain"
	"github.com/tedkulp/n3rdbot/internal/presence"
)

// --- Mock implementations ---

type mockSettings struct {
	values map[string]int
}

func (m *mockSettings) GetInt(_ context.Context, key string, def int) int {
	if v, ok := m.values[key]; ok {
		return v
	}
	return def
}

type mockLedger struct {
	mu     sync.Mutex
	counts map[string]int64
	bumpFn func(ctx context.Context, userID string, window time.Duration) (int64, error)
}

func (m *mockLedger) Bump(ctx context.Context, userID string, window time.Duration) (int64, error) {
	if m.bumpFn != nil {
		return m.bumpFn(ctx, userID, window)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = map[string]int64{}
	}
	m.counts[userID]++
	return m.counts[userID], nil
}

func (m *mockLedger) Current(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[userID], nil
}

func (m *mockLedger) Reset(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.counts, userID)
	return nil
}

type mockBlacklist struct {
	entries []domain.BlacklistEntry
	err     error
}

func (m *mockBlacklist) ActiveEntries(context.Context) ([]domain.BlacklistEntry, error) {
	return m.entries, m.err
}

type timeoutCall struct {
	channel, username string
	duration          time.Duration
	reason            string
}

type mockChat struct {
	mu       sync.Mutex
	said     []string
	timeouts []timeoutCall
	err      error
}

func (m *mockChat) Say(_ context.Context, channel, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.said = append(m.said, channel+" "+text)
	return m.err
}

func (m *mockChat) Timeout(_ context.Context, channel string, target domain.Sender, d time.Duration, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeouts = append(m.timeouts, timeoutCall{channel, target.Username, d, reason})
	return m.err
}

type mockAudit struct {
	mu      sync.Mutex
	actions []domain.ModerationAction
}

func (m *mockAudit) Record(_ context.Context, a domain.ModerationAction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions = append(m.actions, a)
	return nil
}

func (m *mockAudit) ListRecent(context.Context, int) ([]domain.ModerationAction, error) {
	return nil, fmt.Errorf("not implemented")
}

type mockUserStats struct {
	mu            sync.Mutex
	watched       map[string]int64
	messages      map[string]int64
	addWatchedFn  func(ctx context.Context, username, userID string, seconds int64) error
	incMessagesFn func(ctx context.Context, username, userID string) error
}

func newMockUserStats() *mockUserStats {
	return &mockUserStats{watched: map[string]int64{}, messages: map[string]int64{}}
}

func (m *mockUserStats) AddWatchedTime(ctx context.Context, username, userID string, seconds int64) error {
	if m.addWatchedFn != nil {
		if err := m.addWatchedFn(ctx, username, userID, seconds); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watched[username] += seconds
	return nil
}

func (m *mockUserStats) IncrementMessageCount(ctx context.Context, username, userID string) error {
	if m.incMessagesFn != nil {
		return m.incMessagesFn(ctx, username, userID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[username]++
	return nil
}

func (m *mockUserStats) Get(context.Context, string) (*domain.UserStats, error) {
	return nil, domain.ErrUserNotFound
}

func (m *mockUserStats) Top(context.Context, int) ([]domain.UserStats, error) {
	return nil, fmt.Errorf("not implemented")
}

func (m *mockUserStats) watchedFor(username string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.watched[username]
}

type mockLiveness struct {
	mu     sync.Mutex
	online bool
	err    error
}

func (m *mockLiveness) IsOnline(context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online, m.err
}

func (m *mockLiveness) SetOnline(_ context.Context, online bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.online = online
	return nil
}

func waitLookups(t *testing.T, r *presence.Registry) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, r.Wait(ctx))
}

type mockLookup struct{}

func (mockLookup) GetUserID(_ context.Context, username string) (string, error) {
	return "id-" + username, nil
}
