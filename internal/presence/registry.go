// Package presence tracks which participants are in which channel.
//
// The registry keeps one immutable snapshot of every channel's watcher set
// behind an atomic pointer. Readers load the pointer and never lock; writers
// serialize on a mutex, copy the one channel they touch and swap the whole
// snapshot, so a reader sees either the old set or the new one.
package presence

import (
	"context"
	"log/slog"
	"maps"
	"sync"
	"sync/atomic"

	"github.com/jonboulle/clockwork"

	"github.com/tedkulp/n3rdbot/internal/domain"
)

type channelSet map[string]domain.Watcher // username -> watcher

type snapshot map[string]channelSet // channel -> watchers

type Registry struct {
	lookup domain.IdentityLookup
	clock  clockwork.Clock

	onLookupFailure func(channel, username string, err error)

	mu      sync.Mutex // serializes writers
	current atomic.Pointer[snapshot]

	lookupMu sync.Mutex
	inflight int
	idle     chan struct{} // closed while no lookup is in flight
}

type Option func(*Registry)

// WithLookupFailureHook is called after every failed identity lookup.
func WithLookupFailureHook(fn func(channel, username string, err error)) Option {
	return func(r *Registry) { r.onLookupFailure = fn }
}

func NewRegistry(lookup domain.IdentityLookup, clock clockwork.Clock, opts ...Option) *Registry {
	r := &Registry{lookup: lookup, clock: clock, idle: make(chan struct{})}
	close(r.idle)
	for _, opt := range opts {
		opt(r)
	}
	empty := snapshot{}
	r.current.Store(&empty)
	return r
}

func (r *Registry) load() snapshot {
	return *r.current.Load()
}

// update copies the channel set, lets fn edit the copy and publishes the
// result. fn returns false to leave the snapshot untouched.
func (r *Registry) update(channel string, fn func(set channelSet) bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.load()
	set := maps.Clone(old[channel])
	if set == nil {
		set = channelSet{}
	}
	if !fn(set) {
		return
	}

	next := maps.Clone(old)
	next[channel] = set
	r.current.Store(&next)
}

// AddWatcher inserts the watcher immediately and resolves its user ID in the
// background. It is a no-op when the username is already present.
func (r *Registry) AddWatcher(ctx context.Context, channel, username string, isModerator bool) {
	var added bool
	r.update(channel, func(set channelSet) bool {
		if _, ok := set[username]; ok {
			return false
		}
		r.insert(set, username, isModerator)
		added = true
		return true
	})
	if added {
		r.startLookup(ctx, channel, username, isModerator)
	}
}

func (r *Registry) insert(set channelSet, username string, isModerator bool) {
	now := r.clock.Now()
	set[username] = domain.Watcher{
		Username:         username,
		IsModerator:      isModerator,
		JoinedAt:         now,
		LastReconciledAt: now,
	}
}

func (r *Registry) startLookup(ctx context.Context, channel, username string, isModerator bool) {
	slog.DebugContext(ctx, "Watcher added", "channel", channel, "username", username, "moderator", isModerator)

	lookupCtx := context.WithoutCancel(ctx)
	r.beginLookup()
	go func() {
		defer r.endLookup()
		r.resolve(lookupCtx, channel, username)
	}()
}

func (r *Registry) beginLookup() {
	r.lookupMu.Lock()
	defer r.lookupMu.Unlock()
	if r.inflight == 0 {
		r.idle = make(chan struct{})
	}
	r.inflight++
}

func (r *Registry) endLookup() {
	r.lookupMu.Lock()
	defer r.lookupMu.Unlock()
	r.inflight--
	if r.inflight == 0 {
		close(r.idle)
	}
}

func (r *Registry) resolve(ctx context.Context, channel, username string) {
	if r.lookup == nil {
		return
	}

	userID, err := r.lookup.GetUserID(ctx, username)
	if err != nil {
		slog.WarnContext(ctx, "Identity lookup failed, watcher stays unresolved", "channel", channel, "username", username, "error", err)
		if r.onLookupFailure != nil {
			r.onLookupFailure(channel, username, err)
		}
		return
	}

	// The watcher may have parted while the lookup ran; then the result is dropped.
	r.update(channel, func(set channelSet) bool {
		w, ok := set[username]
		if !ok {
			return false
		}
		w.UserID = userID
		set[username] = w
		return true
	})
}

// RemoveWatcher drops the watcher. Absent channels and users are ignored.
func (r *Registry) RemoveWatcher(channel, username string) {
	r.update(channel, func(set channelSet) bool {
		if _, ok := set[username]; !ok {
			return false
		}
		delete(set, username)
		return true
	})
}

// PromoteModerator flags the watcher as a moderator, adding it when absent.
func (r *Registry) PromoteModerator(ctx context.Context, channel, username string) {
	var added bool
	r.update(channel, func(set channelSet) bool {
		w, ok := set[username]
		if !ok {
			r.insert(set, username, true)
			added = true
			return true
		}
		if w.IsModerator {
			return false
		}
		w.IsModerator = true
		set[username] = w
		return true
	})
	if added {
		r.startLookup(ctx, channel, username, true)
	}
}

// DemoteModerator clears the moderator flag. It never creates a watcher or a channel.
func (r *Registry) DemoteModerator(channel, username string) {
	if _, ok := r.load()[channel]; !ok {
		return
	}
	r.update(channel, func(set channelSet) bool {
		w, ok := set[username]
		if !ok || !w.IsModerator {
			return false
		}
		w.IsModerator = false
		set[username] = w
		return true
	})
}

func (r *Registry) ListWatchers(channel string) []domain.Watcher {
	set := r.load()[channel]
	out := make([]domain.Watcher, 0, len(set))
	for _, w := range set {
		out = append(out, w)
	}
	return out
}

func (r *Registry) ListModerators(channel string) []domain.Watcher {
	var out []domain.Watcher
	for _, w := range r.load()[channel] {
		if w.IsModerator {
			out = append(out, w)
		}
	}
	return out
}

// Channels returns every channel referenced so far, including empty ones.
func (r *Registry) Channels() []string {
	snap := r.load()
	out := make([]string, 0, len(snap))
	for ch := range snap {
		out = append(out, ch)
	}
	return out
}

// ResetReconciliation restarts the accrual clock of every watcher in channel.
func (r *Registry) ResetReconciliation(channel string) {
	if _, ok := r.load()[channel]; !ok {
		return
	}
	now := r.clock.Now()
	r.update(channel, func(set channelSet) bool {
		for name, w := range set {
			w.LastReconciledAt = now
			set[name] = w
		}
		return len(set) > 0
	})
}

// Reconcile returns the time every watcher in channel accrued since its last
// reconciliation and restarts their clocks, in one swap.
func (r *Registry) Reconcile(channel string) []domain.Accrual {
	if _, ok := r.load()[channel]; !ok {
		return nil
	}

	var accruals []domain.Accrual
	now := r.clock.Now()
	r.update(channel, func(set channelSet) bool {
		accruals = make([]domain.Accrual, 0, len(set))
		for name, w := range set {
			accruals = append(accruals, domain.Accrual{
				Channel:  channel,
				Username: w.Username,
				UserID:   w.UserID,
				Elapsed:  max(now.Sub(w.LastReconciledAt), 0),
			})
			w.LastReconciledAt = now
			set[name] = w
		}
		return len(set) > 0
	})
	return accruals
}

// Count returns the number of watchers in channel.
func (r *Registry) Count(channel string) int {
	return len(r.load()[channel])
}

// Clear empties every channel.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	empty := snapshot{}
	r.current.Store(&empty)
}

// Wait blocks until no identity lookup is in flight or ctx is done, in which
// case it returns ctx.Err().
func (r *Registry) Wait(ctx context.Context) error {
	r.lookupMu.Lock()
	idle := r.idle
	r.lookupMu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
