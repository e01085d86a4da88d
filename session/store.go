// ABOUTME: Session store holding the current user and bearer token
// ABOUTME: Persists to durable storage, restores at startup and coordinates token refresh

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/edusphere/portal-gateway/models"
)

const (
	// StorageKey is the key the session record is persisted under
	StorageKey = "auth-storage"

	// DefaultRestoreTimeout bounds how long the loading flag may stay set
	DefaultRestoreTimeout = 5 * time.Second

	persistTimeout = 5 * time.Second
)

// State is the store's logical state
type State int

const (
	StateUninitialized State = iota
	StateAuthenticated
	StateUnauthenticated
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateAuthenticated:
		return "authenticated"
	case StateUnauthenticated:
		return "unauthenticated"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Snapshot is an immutable view of the session at one instant.
type Snapshot struct {
	User            *models.User
	Token           string
	IsAuthenticated bool
	IsLoading       bool
}

// State derives the logical state from the snapshot flags
func (s Snapshot) State() State {
	switch {
	case s.IsAuthenticated:
		return StateAuthenticated
	case s.IsLoading:
		return StateUninitialized
	default:
		return StateUnauthenticated
	}
}

// Refresher exchanges the current token for a new one.
// An empty returned token is treated as a failed refresh.
type Refresher interface {
	Refresh(ctx context.Context, userID, token string) (string, error)
}

// RefresherFunc adapts a function to the Refresher interface
type RefresherFunc func(ctx context.Context, userID, token string) (string, error)

func (f RefresherFunc) Refresh(ctx context.Context, userID, token string) (string, error) {
	return f(ctx, userID, token)
}

// Option configures a Store
type Option func(*Store)

// WithStorageKey overrides the key the record is persisted under
func WithStorageKey(key string) Option {
	return func(s *Store) { s.key = key }
}

// Store is the single source of truth for who is logged in. All methods
// are safe for concurrent use; readers get copies and never observe a
// partially applied mutation.
//
// Concurrent refreshes share one upstream call. Every SetUserAndToken and
// ClearAuth advances the session generation, and a refresh result is only
// applied if the generation it started from is still current, so a logout
// or re-login that lands mid-refresh always wins.
type Store struct {
	storage   Storage
	refresher Refresher
	key       string

	// writeMu serializes mutate-then-persist so storage sees writes in
	// mutation order. Never held by readers.
	writeMu sync.Mutex

	mu         sync.RWMutex
	user       *models.User
	token      string
	loading    bool
	generation uint64

	refreshGroup singleflight.Group

	subMu       sync.Mutex
	subscribers map[int]func(Snapshot)
	nextSubID   int
}

// New creates a store in the Uninitialized state. Call Restore or
// RestoreWithWatchdog to load the persisted session.
func New(storage Storage, refresher Refresher, opts ...Option) *Store {
	if storage == nil {
		storage = NewMemoryStorage()
	}
	s := &Store{
		storage:     storage,
		refresher:   refresher,
		key:         StorageKey,
		loading:     true,
		subscribers: make(map[int]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns a consistent copy of the current session
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// State returns the current logical state
func (s *Store) State() State {
	return s.Snapshot().State()
}

// Token returns the current bearer token, or "" when logged out
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		User:            s.user.Clone(),
		Token:           s.token,
		IsAuthenticated: s.user != nil && s.token != "",
		IsLoading:       s.loading,
	}
}

// Subscribe registers fn to be called with a snapshot after every state
// change. The returned function removes the subscription.
func (s *Store) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subscribers, id)
		s.subMu.Unlock()
	}
}

func (s *Store) notify(snap Snapshot) {
	s.subMu.Lock()
	fns := make([]func(Snapshot), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

// SetUserAndToken replaces user and token together after a login or an
// identity provider sync.
func (s *Store) SetUserAndToken(user *models.User, token string) {
	s.mutate(true, func() bool {
		s.user = user.Clone()
		s.token = token
		s.loading = false
		s.generation++
		return true
	})
}

// SetUser replaces the user record only; the token is left untouched.
func (s *Store) SetUser(user *models.User) {
	s.mutate(true, func() bool {
		s.user = user.Clone()
		return true
	})
}

// ClearAuth resets to the empty, unauthenticated session.
func (s *Store) ClearAuth() {
	s.mutate(true, func() bool {
		s.user = nil
		s.token = ""
		s.loading = false
		s.generation++
		return true
	})
}

// SetLoading forces the loading flag. Used by the startup watchdog.
func (s *Store) SetLoading(loading bool) {
	s.mutate(false, func() bool {
		s.loading = loading
		return true
	})
}

// mutate applies fn under the state lock, persists the resulting record if
// requested, then notifies subscribers. fn returns false to abort.
// Subscribers run with no locks held and may call back into the store.
func (s *Store) mutate(persist bool, fn func() bool) bool {
	s.writeMu.Lock()

	s.mu.Lock()
	if !fn() {
		s.mu.Unlock()
		s.writeMu.Unlock()
		return false
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if persist {
		s.persist(snap)
	}
	s.writeMu.Unlock()

	s.notify(snap)
	return true
}

func (s *Store) persist(snap Snapshot) {
	rec := models.PersistedSession{User: snap.User}
	if snap.Token != "" {
		token := snap.Token
		rec.Token = &token
	}

	data, err := json.Marshal(rec)
	if err != nil {
		slog.Error("Session persist failed", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := s.storage.Set(ctx, s.key, data); err != nil {
		slog.Warn("Session persist failed", "key", s.key, "error", err)
	}
}

// Restore reads the persisted record once. Missing, unreadable or corrupt
// records leave the store unauthenticated. The loading flag is always
// released. An explicit login or logout made while the read was in flight
// takes precedence over the stored record.
func (s *Store) Restore(ctx context.Context) {
	s.mu.RLock()
	startGen := s.generation
	s.mu.RUnlock()

	rec := s.load(ctx)

	s.mutate(false, func() bool {
		if s.generation == startGen {
			s.user = rec.User
			s.token = ""
			if rec.Token != nil {
				s.token = *rec.Token
			}
		}
		s.loading = false
		return true
	})

	snap := s.Snapshot()
	slog.Debug("Session restored", "state", snap.State().String())
}

func (s *Store) load(ctx context.Context) models.PersistedSession {
	var rec models.PersistedSession

	data, err := s.storage.Get(ctx, s.key)
	if errors.Is(err, ErrNotFound) {
		return rec
	}
	if err != nil {
		slog.Warn("Session restore failed, starting unauthenticated", "key", s.key, "error", err)
		return rec
	}

	if err := json.Unmarshal(data, &rec); err != nil {
		slog.Warn("Session record corrupt, starting unauthenticated", "key", s.key, "error", err)
		return models.PersistedSession{}
	}
	return rec
}

// RestoreWithWatchdog runs Restore and forces the loading flag off if it
// has not finished within timeout. Returns true if Restore completed in time.
// A restore that finishes after the watchdog fired is still applied.
func (s *Store) RestoreWithWatchdog(ctx context.Context, timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = DefaultRestoreTimeout
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Restore(ctx)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return true
	case <-timer.C:
		slog.Warn("Session restore timed out, releasing loading state", "timeout", timeout)
		s.SetLoading(false)
		return false
	}
}

// RefreshToken exchanges the current token for a new one. It returns true
// if the token was replaced. A refresher failure clears the session and
// returns false. A caller whose ctx ends first gets false while the shared
// refresh runs to completion. Without a logged-in user it returns false
// and makes no call.
func (s *Store) RefreshToken(ctx context.Context) bool {
	s.mu.RLock()
	var userID string
	if s.user != nil {
		userID = s.user.ID
	}
	token := s.token
	gen := s.generation
	s.mu.RUnlock()

	if userID == "" {
		slog.Debug("Token refresh skipped: no user")
		return false
	}
	if s.refresher == nil {
		slog.Error("Token refresh skipped: no refresher configured")
		return false
	}

	if err := ctx.Err(); err != nil {
		slog.Debug("Token refresh skipped: caller done", "error", err)
		return false
	}

	// One flight per session generation; the flight outlives any single
	// caller so a cancelled caller cannot fail it for the others.
	key := fmt.Sprintf("refresh-%d", gen)
	ch := s.refreshGroup.DoChan(key, func() (interface{}, error) {
		return s.doRefresh(context.WithoutCancel(ctx), userID, token, gen), nil
	})

	select {
	case res := <-ch:
		return res.Val.(bool)
	case <-ctx.Done():
		slog.Debug("Token refresh abandoned by caller", "user_id", userID, "error", ctx.Err())
		return false
	}
}

func (s *Store) doRefresh(ctx context.Context, userID, token string, gen uint64) bool {
	newToken, err := s.callRefresher(ctx, userID, token)
	if err == nil && newToken == "" {
		err = errors.New("refresh response missing token")
	}

	if err != nil {
		slog.Warn("Token refresh failed, clearing session", "user_id", userID, "error", err)
		s.mutate(true, func() bool {
			if s.generation != gen {
				return false
			}
			s.user = nil
			s.token = ""
			s.loading = false
			s.generation++
			return true
		})
		return false
	}

	applied := s.mutate(true, func() bool {
		if s.generation != gen {
			return false
		}
		s.token = newToken
		return true
	})
	if !applied {
		slog.Debug("Token refresh discarded: session changed during refresh", "user_id", userID)
		return false
	}

	slog.Debug("Token refreshed", "user_id", userID)
	return true
}

// callRefresher converts a panicking refresher into an error
func (s *Store) callRefresher(ctx context.Context, userID, token string) (newToken string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("refresher panicked: %v", r)
		}
	}()
	return s.refresher.Refresh(ctx, userID, token)
}
