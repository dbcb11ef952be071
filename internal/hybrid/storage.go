// Package hybrid provides the storage facade used by the application. The local store
// is always written first and stays authoritative for anonymous users; for a signed-in
// user every write is mirrored to the remote store, or queued for a later drain.
package hybrid

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/at-ishikawa/learnsync/internal/auth"
	"github.com/at-ishikawa/learnsync/internal/classifier"
	"github.com/at-ishikawa/learnsync/internal/config"
	"github.com/at-ishikawa/learnsync/internal/events"
	"github.com/at-ishikawa/learnsync/internal/learning"
	"github.com/at-ishikawa/learnsync/internal/localstore"
	"github.com/at-ishikawa/learnsync/internal/offlinequeue"
	"github.com/at-ishikawa/learnsync/internal/remotestore"
)

var (
	// ErrLocalWrite marks a failure of the local store. The operation was aborted.
	ErrLocalWrite = errors.New("local write failed")
	// ErrNotFound is returned when an operation targets a missing entity.
	ErrNotFound = errors.New("not found")
	// ErrAnonymous is returned by sync operations while nobody is signed in.
	ErrAnonymous = errors.New("not signed in")
)

// State is the connection state reported by Status.
type State string

const (
	StateAnonymous State = "anonymous"
	StateSynced    State = "synced"
	StatePending   State = "pending"
)

// Status is the sync state shown to the user.
type Status struct {
	State   State  `json:"state"`
	UserID  string `json:"userId,omitempty"`
	Pending int    `json:"pending"`
}

// Options holds the collaborators of a Storage. Local and Queue are required.
type Options struct {
	Local  *localstore.Store
	Queue  *offlinequeue.Queue
	Remote remotestore.Store
	Auth   auth.Provider
	Bus    *events.Bus
	Logger *slog.Logger
	NewID  learning.IDFunc
	Now    func() time.Time
	Sync   config.SyncConfig
}

// Storage implements every domain operation on top of the local and remote stores.
type Storage struct {
	local  *localstore.Store
	queue  *offlinequeue.Queue
	remote remotestore.Store
	auth   auth.Provider
	bus    *events.Bus
	logger *slog.Logger
	newID  learning.IDFunc
	now    func() time.Time
	sync   config.SyncConfig
	policy classifier.Policy

	locks    keyedMutex
	draining atomic.Bool
	online   chan struct{}
}

// New creates a Storage. A nil Remote behaves as a store that is never reachable,
// and a nil Auth keeps the storage anonymous.
func New(opts Options) (*Storage, error) {
	if opts.Local == nil || opts.Queue == nil {
		return nil, fmt.Errorf("new hybrid storage: local store and queue are required")
	}
	s := &Storage{
		local:  opts.Local,
		queue:  opts.Queue,
		remote: opts.Remote,
		auth:   opts.Auth,
		bus:    opts.Bus,
		logger: opts.Logger,
		newID:  opts.NewID,
		now:    opts.Now,
		sync:   opts.Sync,
		online: make(chan struct{}, 1),
	}
	if s.remote == nil {
		s.remote = remotestore.Unavailable{}
	}
	if s.auth == nil {
		s.auth = auth.Static("")
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.bus == nil {
		s.bus = events.NewBus(s.logger)
	}
	if s.newID == nil {
		s.newID = learning.NewID
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.sync.RetryAttempts == 0 {
		s.sync.RetryAttempts = 1
	}
	if s.sync.MaxItemAttempts <= 0 {
		s.sync.MaxItemAttempts = 5
	}
	if s.sync.DrainConcurrency <= 0 {
		s.sync.DrainConcurrency = 1
	}
	if s.sync.Interval <= 0 {
		s.sync.Interval = 5 * time.Minute
	}

	s.policy = classifier.DefaultPolicy()
	if s.sync.ReviewHorizon > 0 {
		s.policy.ReviewHorizon = s.sync.ReviewHorizon
	}
	if s.sync.ThroughputBytesPerSecond > 0 {
		s.policy.ThroughputBytesPerSecond = s.sync.ThroughputBytesPerSecond
	}
	if s.sync.PerItemOverhead > 0 {
		s.policy.PerItemOverhead = s.sync.PerItemOverhead
	}
	return s, nil
}

// Status reports whether the user is signed in and how many writes are waiting to be synced.
// A signed-in user only counts the writes queued under their own account.
func (s *Storage) Status(ctx context.Context) (Status, error) {
	userID, ok := s.auth.CurrentUserID()
	if !ok {
		pending, err := s.queue.Size(ctx)
		if err != nil {
			return Status{}, fmt.Errorf("get sync status: %w", err)
		}
		return Status{State: StateAnonymous, Pending: pending}, nil
	}
	pending, err := s.queue.SizeByUser(ctx, userID)
	if err != nil {
		return Status{}, fmt.Errorf("get sync status: %w", err)
	}
	if pending > 0 {
		return Status{State: StatePending, UserID: userID, Pending: pending}, nil
	}
	return Status{State: StateSynced, UserID: userID}, nil
}

// OnSyncEvent subscribes h to the sync lifecycle events and returns the unsubscribe function.
func (s *Storage) OnSyncEvent(h events.Handler) func() {
	return s.bus.Subscribe(h)
}

func (s *Storage) currentUser() (string, bool) {
	return s.auth.CurrentUserID()
}

func (s *Storage) nowMillis() int64 {
	return learning.Millis(s.now())
}

func localFailure(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrLocalWrite, err)
}

// callRemote runs fn bounded by the remote timeout.
func (s *Storage) callRemote(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.sync.RemoteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.sync.RemoteTimeout)
		defer cancel()
	}
	return fn(ctx)
}

func (s *Storage) logRemoteFailure(msg string, item *offlinequeue.Item, err error) {
	attrs := []any{"operation", item.Operation, "entity", item.Key(), "kind", remotestore.KindOf(err).String(), "error", err}
	if remotestore.IsRejected(err) {
		s.logger.Error(msg+": remote rejected the write", attrs...)
		return
	}
	s.logger.Warn(msg+": remote unreachable", attrs...)
}

func (s *Storage) logDegradedRead(op string, err error) {
	s.logger.Warn("remote read failed, using local data", "operation", op, "degraded", true, "error", err)
}
