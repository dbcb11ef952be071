package hybrid

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/at-ishikawa/learnsync/internal/auth"
	"github.com/at-ishikawa/learnsync/internal/classifier"
	"github.com/at-ishikawa/learnsync/internal/config"
	"github.com/at-ishikawa/learnsync/internal/events"
	"github.com/at-ishikawa/learnsync/internal/learning"
	"github.com/at-ishikawa/learnsync/internal/localstore"
	"github.com/at-ishikawa/learnsync/internal/offlinequeue"
	"github.com/at-ishikawa/learnsync/internal/remotestore"
	"github.com/at-ishikawa/learnsync/internal/testutil"
)

const testUser = "user-1"

var testNow = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

type fixture struct {
	s      *Storage
	local  *localstore.Store
	queue  *offlinequeue.Queue
	remote *testutil.FakeRemote
	auth   *auth.Session

	mu     sync.Mutex
	events []events.Event
}

func sequentialIDs() learning.IDFunc {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("id-%03d", n.Add(1))
	}
}

func testSyncConfig() config.SyncConfig {
	return config.SyncConfig{
		Interval:         time.Hour,
		RemoteTimeout:    time.Second,
		RetryAttempts:    1,
		RetryDelay:       time.Millisecond,
		MaxRetryDelay:    time.Millisecond,
		MaxItemAttempts:  3,
		DrainConcurrency: 2,
		ReviewHorizon:    24 * time.Hour,
	}
}

func withRemote(remote remotestore.Store) func(*Options) {
	return func(o *Options) { o.Remote = remote }
}

func withSync(update func(*config.SyncConfig)) func(*Options) {
	return func(o *Options) { update(&o.Sync) }
}

func newFixture(t *testing.T, userID string, opts ...func(*Options)) *fixture {
	t.Helper()
	local, queue := testutil.OpenLocal(t)
	f := &fixture{
		local:  local,
		queue:  queue,
		remote: testutil.NewFakeRemote(),
		auth:   auth.NewSession(userID),
	}
	o := Options{
		Local:  local,
		Queue:  queue,
		Remote: f.remote,
		Auth:   f.auth,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		NewID:  sequentialIDs(),
		Now:    func() time.Time { return testNow },
		Sync:   testSyncConfig(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	s, err := New(o)
	require.NoError(t, err)
	f.s = s
	t.Cleanup(s.OnSyncEvent(func(e events.Event) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.events = append(f.events, e)
	}))
	return f
}

func (f *fixture) queueSize(t *testing.T) int {
	t.Helper()
	n, err := f.queue.Size(context.Background())
	require.NoError(t, err)
	return n
}

func (f *fixture) queuedOperations(t *testing.T) []string {
	t.Helper()
	items, err := f.queue.PeekAll(context.Background())
	require.NoError(t, err)
	ops := make([]string, 0, len(items))
	for _, item := range items {
		ops = append(ops, string(item.Operation)+":"+item.EntityID)
	}
	return ops
}

func (f *fixture) eventKinds() []events.Kind {
	f.mu.Lock()
	defer f.mu.Unlock()
	kinds := make([]events.Kind, 0, len(f.events))
	for _, e := range f.events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

func TestNew(t *testing.T) {
	local, queue := testutil.OpenLocal(t)

	_, err := New(Options{})
	assert.Error(t, err)

	s, err := New(Options{Local: local, Queue: queue})
	require.NoError(t, err)
	assert.IsType(t, remotestore.Unavailable{}, s.remote)
	_, signedIn := s.auth.CurrentUserID()
	assert.False(t, signedIn)
	assert.Equal(t, 5*time.Minute, s.sync.Interval)
	assert.Equal(t, classifier.DefaultPolicy(), s.policy)
}

func TestStorage_SaveThenGetSession(t *testing.T) {
	tests := []struct {
		name    string
		userID  string
		offline bool
	}{
		{name: "anonymous"},
		{name: "authenticated online", userID: testUser},
		{name: "authenticated offline", userID: testUser, offline: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t, tt.userID)
			f.remote.SetOffline(tt.offline)

			session := testutil.NewSession("s1", "Intro to Go")
			session.Messages = []learning.ChatMessage{
				{ID: "m1", Role: learning.RoleUser, Content: "What is a slice?", Timestamp: 1735689600000},
			}
			require.NoError(t, f.s.SaveSession(ctx, &session))

			got, err := f.s.GetSessionByID(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, &session, got)
		})
	}
}

func TestStorage_AnonymousWritesStayLocal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "")

	session, err := f.s.CreateSession(ctx, NewSession{Title: "Intro to Go"})
	require.NoError(t, err)
	_, err = f.s.AddLearningCard(ctx, session.ID, NewCard{Title: "Slices", Content: "A view over an array."})
	require.NoError(t, err)
	require.NoError(t, f.s.SaveUserPreferences(ctx, &learning.UserPreferences{Theme: "dark"}))

	assert.Empty(t, f.remote.Calls())
	assert.Equal(t, 0, f.queueSize(t))

	status, err := f.s.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, Status{State: StateAnonymous}, status)

	_, err = f.s.Drain(ctx)
	assert.ErrorIs(t, err, ErrAnonymous)
	_, err = f.s.QuickSync(ctx)
	assert.ErrorIs(t, err, ErrAnonymous)
}

func TestStorage_WritesMirrorWhenOnline(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testUser)

	session, err := f.s.CreateSession(ctx, NewSession{Title: "Intro to Go", Level: learning.LevelExpert})
	require.NoError(t, err)
	card, err := f.s.AddLearningCard(ctx, session.ID, NewCard{Title: "Slices", Content: "A view over an array.", Tags: []string{"go", " slices", "go"}})
	require.NoError(t, err)

	assert.Equal(t, []string{"UpsertSession:" + session.ID, "UpsertCard:" + card.ID}, f.remote.Calls())
	assert.Equal(t, 0, f.queueSize(t))
	assert.Equal(t, []string{"go", "slices"}, card.Tags)
	assert.Equal(t, learning.Millis(testNow.Add(24*time.Hour)), card.NextReviewAt)

	remote, err := f.remote.GetSession(ctx, testUser, session.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{card.ID}, remote.CardIDs)
	assert.Equal(t, learning.LevelExpert, remote.Level)

	status, err := f.s.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, Status{State: StateSynced, UserID: testUser}, status)
}

func TestStorage_LocalWriteFailureAborts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testUser)
	require.NoError(t, f.local.Close())

	session := testutil.NewSession("s1", "Intro to Go")
	err := f.s.SaveSession(ctx, &session)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLocalWrite)
	assert.Empty(t, f.remote.Calls())
}

func TestStorage_InvalidInputIsRejectedBeforeWriting(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testUser)

	_, err := f.s.CreateSession(ctx, NewSession{Title: ""})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrLocalWrite)

	session, err := f.s.CreateSession(ctx, NewSession{Title: "Intro to Go"})
	require.NoError(t, err)
	_, err = f.s.AddLearningCard(ctx, session.ID, NewCard{Title: "Too hard", Difficulty: 9})
	assert.Error(t, err)
	_, err = f.s.AddLearningCard(ctx, "missing", NewCard{Title: "Orphan"})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.s.UpdateSessionStatus(ctx, session.ID, "archived")
	assert.Error(t, err)

	cards, err := f.s.GetAllCards(ctx)
	require.NoError(t, err)
	assert.Empty(t, cards)
}

func TestStorage_SessionMutations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testUser)
	session, err := f.s.CreateSession(ctx, NewSession{
		Title: "Intro to Go",
		Outline: []learning.Chapter{
			{ID: "ch1", Title: "Basics", Sections: []learning.Section{{ID: "sec1"}, {ID: "sec2"}}},
		},
	})
	require.NoError(t, err)

	msg, err := f.s.AppendMessage(ctx, session.ID, learning.ChatMessage{Role: learning.RoleUser, Content: "What is a slice?"})
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, learning.Millis(testNow), msg.Timestamp)

	_, err = f.s.AppendMessage(ctx, session.ID, *msg)
	assert.Error(t, err)

	updated, err := f.s.UpdateOutlineProgress(ctx, session.ID, "ch1", "sec1", true)
	require.NoError(t, err)
	assert.False(t, updated.Outline[0].Completed)
	updated, err = f.s.UpdateOutlineProgress(ctx, session.ID, "ch1", "sec2", true)
	require.NoError(t, err)
	assert.True(t, updated.Outline[0].Completed)
	_, err = f.s.UpdateOutlineProgress(ctx, session.ID, "ch9", "", true)
	assert.ErrorIs(t, err, ErrNotFound)

	updated, err = f.s.UpdateSessionStatus(ctx, session.ID, learning.SessionStatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, learning.SessionStatusCompleted, updated.Status)

	updated, err = f.s.UpdateSessionMessages(ctx, session.ID, nil)
	require.NoError(t, err)
	assert.Empty(t, updated.Messages)

	remote, err := f.remote.GetSession(ctx, testUser, session.ID)
	require.NoError(t, err)
	assert.Equal(t, learning.SessionStatusCompleted, remote.Status)
	assert.True(t, remote.Outline[0].Completed)
	assert.Empty(t, remote.Messages)
}

func TestStorage_ActiveSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "")
	session, err := f.s.CreateSession(ctx, NewSession{Title: "Intro to Go"})
	require.NoError(t, err)

	assert.ErrorIs(t, f.s.SetActiveSession(ctx, "missing"), ErrNotFound)
	require.NoError(t, f.s.SetActiveSession(ctx, session.ID))
	active, err := f.s.ActiveSessionID()
	require.NoError(t, err)
	assert.Equal(t, session.ID, active)

	require.NoError(t, f.s.DeleteSession(ctx, session.ID))
	active, err = f.s.ActiveSessionID()
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestStorage_BookmarkAndDeleteCard(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testUser)
	session, err := f.s.CreateSession(ctx, NewSession{Title: "Intro to Go"})
	require.NoError(t, err)
	msg, err := f.s.AppendMessage(ctx, session.ID, learning.ChatMessage{
		Role:    learning.RoleAssistant,
		Content: "A slice is a view over an array.\nIt has a length and a capacity.",
	})
	require.NoError(t, err)

	card, err := f.s.BookmarkMessage(ctx, session.ID, msg.ID, NewCard{Note: "remember"})
	require.NoError(t, err)
	assert.Equal(t, learning.CardTypeBookmark, card.Type)
	assert.Equal(t, "A slice is a view over an array.", card.Title)
	assert.Equal(t, msg.ID, card.MessageID)

	again, err := f.s.BookmarkMessage(ctx, session.ID, msg.ID, NewCard{})
	require.NoError(t, err)
	assert.Equal(t, card.ID, again.ID)

	_, err = f.s.BookmarkMessage(ctx, session.ID, "missing", NewCard{})
	assert.ErrorIs(t, err, ErrNotFound)

	stored, err := f.s.GetSessionByID(ctx, session.ID)
	require.NoError(t, err)
	assert.True(t, stored.Messages[0].Bookmarked)
	assert.Equal(t, card.ID, stored.Messages[0].CardID)
	assert.Equal(t, []string{card.ID}, stored.CardIDs)

	require.NoError(t, f.s.DeleteCard(ctx, card.ID))
	require.NoError(t, f.s.DeleteCard(ctx, card.ID))

	stored, err = f.s.GetSessionByID(ctx, session.ID)
	require.NoError(t, err)
	assert.False(t, stored.Messages[0].Bookmarked)
	assert.Empty(t, stored.Messages[0].CardID)
	assert.Empty(t, stored.CardIDs)
	assert.Equal(t, 0, f.remote.CardCount(testUser))
}

func TestStorage_UpdateAndReviewCard(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testUser)
	session, err := f.s.CreateSession(ctx, NewSession{Title: "Intro to Go"})
	require.NoError(t, err)
	card, err := f.s.AddLearningCard(ctx, session.ID, NewCard{Title: "Slices"})
	require.NoError(t, err)

	edited := *card
	edited.Note = "check the capacity"
	edited.SessionID = "other"
	assert.Error(t, f.s.UpdateCard(ctx, &edited))

	edited.SessionID = ""
	require.NoError(t, f.s.UpdateCard(ctx, &edited))
	assert.Equal(t, session.ID, edited.SessionID)

	reviewed, err := f.s.ReviewCard(ctx, card.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, reviewed.ReviewCount)
	assert.Equal(t, learning.Millis(testNow.Add(24*time.Hour)), reviewed.NextReviewAt)
	_, err = f.s.ReviewCard(ctx, card.ID, 7)
	assert.Error(t, err)

	remote, err := f.remote.GetCard(ctx, testUser, card.ID)
	require.NoError(t, err)
	assert.Equal(t, "check the capacity", remote.Note)
	assert.Equal(t, 1, remote.ReviewCount)
}

func TestStorage_Settings(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testUser)

	prefs, err := f.s.GetUserPreferences(ctx)
	require.NoError(t, err)
	assert.Nil(t, prefs)

	require.NoError(t, f.s.SaveUserPreferences(ctx, &learning.UserPreferences{Theme: "dark", DefaultLevel: learning.LevelExpert}))
	require.NoError(t, f.s.SaveAPIConfig(ctx, &learning.APIConfig{Provider: "openai", Model: "gpt-4o-mini"}))
	assert.Error(t, f.s.SaveAPIConfig(ctx, &learning.APIConfig{Provider: "openai", BaseURL: "not a url"}))

	prefs, err = f.s.GetUserPreferences(ctx)
	require.NoError(t, err)
	assert.Equal(t, "dark", prefs.Theme)
	assert.Equal(t, learning.Millis(testNow), prefs.UpdatedAt)

	f.remote.SetOffline(true)
	require.NoError(t, f.s.SaveAPIConfig(ctx, &learning.APIConfig{Provider: "anthropic"}))
	assert.Equal(t, []string{"upsert-api-config:default"}, f.queuedOperations(t))

	cfg, err := f.s.GetAPIConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", cfg.Provider)
}

func TestStorage_OnSyncEventUnsubscribe(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testUser)

	var received []events.Kind
	unsubscribe := f.s.OnSyncEvent(func(e events.Event) { received = append(received, e.Kind) })
	_, err := f.s.Drain(ctx)
	require.NoError(t, err)
	unsubscribe()
	_, err = f.s.Drain(ctx)
	require.NoError(t, err)

	assert.Equal(t, []events.Kind{events.KindSyncStarted, events.KindSyncCompleted}, received)
}

// pausingRemote holds the next call of method until release is closed.
type pausingRemote struct {
	*testutil.FakeRemote
	method  string
	armed   atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func newPausingRemote(remote *testutil.FakeRemote, method string) *pausingRemote {
	return &pausingRemote{
		FakeRemote: remote,
		method:     method,
		entered:    make(chan struct{}),
		release:    make(chan struct{}),
	}
}

func (r *pausingRemote) pause(method string) {
	if r.method == method && r.armed.CompareAndSwap(true, false) {
		close(r.entered)
		<-r.release
	}
}

func (r *pausingRemote) UpsertPreferences(ctx context.Context, userID string, prefs *learning.UserPreferences) error {
	r.pause("UpsertPreferences")
	return r.FakeRemote.UpsertPreferences(ctx, userID, prefs)
}

func (r *pausingRemote) DeleteCard(ctx context.Context, userID, cardID string) error {
	r.pause("DeleteCard")
	return r.FakeRemote.DeleteCard(ctx, userID, cardID)
}

// hangingRemote never answers UpsertSession while hang is set.
type hangingRemote struct {
	*testutil.FakeRemote
	hang atomic.Bool
}

func (r *hangingRemote) UpsertSession(ctx context.Context, userID string, session *learning.Session) error {
	if r.hang.Load() {
		<-ctx.Done()
		return ctx.Err()
	}
	return r.FakeRemote.UpsertSession(ctx, userID, session)
}

func TestStorage_SlowRemoteWriteIsQueued(t *testing.T) {
	ctx := context.Background()
	fake := testutil.NewFakeRemote()
	remote := &hangingRemote{FakeRemote: fake}
	f := newFixture(t, testUser, withRemote(remote), withSync(func(c *config.SyncConfig) {
		c.RemoteTimeout = 20 * time.Millisecond
	}))
	f.remote = fake

	remote.hang.Store(true)
	session := testutil.NewSession("s1", "Intro to Go")
	start := time.Now()
	require.NoError(t, f.s.SaveSession(ctx, &session))
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, []string{"upsert-session:s1"}, f.queuedOperations(t))
	items, err := f.queue.PeekAll(ctx)
	require.NoError(t, err)
	assert.Contains(t, items[0].LastError, context.DeadlineExceeded.Error())
	assert.Equal(t, 0, fake.SessionCount(testUser))

	remote.hang.Store(false)
	result, err := f.s.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Synced)
	assert.Equal(t, 0, f.queueSize(t))
	stored, err := fake.GetSession(ctx, testUser, "s1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "Intro to Go", stored.Title)
}

func TestStorage_ReviewWaitsForDeleteOfSameCard(t *testing.T) {
	ctx := context.Background()
	fake := testutil.NewFakeRemote()
	remote := newPausingRemote(fake, "DeleteCard")
	f := newFixture(t, testUser, withRemote(remote))
	f.remote = fake

	session, err := f.s.CreateSession(ctx, NewSession{Title: "Intro to Go"})
	require.NoError(t, err)
	card, err := f.s.AddLearningCard(ctx, session.ID, NewCard{Title: "Slices"})
	require.NoError(t, err)
	require.Equal(t, 1, fake.CardCount(testUser))

	remote.armed.Store(true)
	deleted := make(chan error, 1)
	go func() { deleted <- f.s.DeleteCard(ctx, card.ID) }()
	<-remote.entered

	reviewed := make(chan error, 1)
	go func() {
		_, err := f.s.ReviewCard(ctx, card.ID, 4)
		reviewed <- err
	}()
	close(remote.release)

	require.NoError(t, <-deleted)
	assert.ErrorIs(t, <-reviewed, ErrNotFound)

	local, err := localstore.GetAs[learning.Card](f.local, localstore.CollectionCards, card.ID)
	require.NoError(t, err)
	assert.Nil(t, local)
	assert.Equal(t, 0, fake.CardCount(testUser))
	assert.Equal(t, 0, f.queueSize(t))
}
