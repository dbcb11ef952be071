package testutil

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/at-ishikawa/learnsync/internal/learning"
	"github.com/at-ishikawa/learnsync/internal/localstore"
	"github.com/at-ishikawa/learnsync/internal/remotestore"
)

func TestSetupTestConfig(t *testing.T) {
	tmpDir := t.TempDir()
	got := SetupTestConfig(t, tmpDir)

	assert.Equal(t, filepath.Join(tmpDir, "config.yml"), got)
	content, err := os.ReadFile(got)
	require.NoError(t, err)
	assert.Contains(t, string(content), filepath.Join(tmpDir, "data", "learnsync.db"))
	assert.NotContains(t, string(content), "user_id")
}

func TestSetupTestConfigWithUser(t *testing.T) {
	got := SetupTestConfigWithUser(t, t.TempDir(), "user-1")

	content, err := os.ReadFile(got)
	require.NoError(t, err)
	assert.Contains(t, string(content), "auth:\n  user_id: user-1\n")
	assert.Contains(t, string(content), "local:")
}

func TestSeedLocal(t *testing.T) {
	store, _ := OpenLocal(t)
	SeedLocal(t, store, []learning.Session{NewSession("s1", "One")}, []learning.Card{NewCard("c1", "s1"), NewCard("c2", "s1")})

	session, err := localstore.GetAs[learning.Session](store, localstore.CollectionSessions, "s1")
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, []string{"c1", "c2"}, session.CardIDs)
	require.NoError(t, learning.Validate(session))
}

func TestFakeRemote(t *testing.T) {
	ctx := context.Background()
	remote := NewFakeRemote()
	session := NewSession("s1", "One")
	card := NewCard("c1", "s1")

	t.Run("rejects anonymous callers", func(t *testing.T) {
		err := remote.UpsertSession(ctx, "", &session)
		assert.Equal(t, remotestore.KindAuth, remotestore.KindOf(err))
	})

	t.Run("card without session is a conflict", func(t *testing.T) {
		err := remote.UpsertCard(ctx, "u1", &card)
		assert.Equal(t, remotestore.KindConflict, remotestore.KindOf(err))
	})

	t.Run("derives card ids and scopes by user", func(t *testing.T) {
		require.NoError(t, remote.UpsertSession(ctx, "u1", &session))
		require.NoError(t, remote.UpsertCard(ctx, "u1", &card))

		got, err := remote.GetSession(ctx, "u1", "s1")
		require.NoError(t, err)
		assert.Equal(t, []string{"c1"}, got.CardIDs)

		other, err := remote.ListSessions(ctx, "u2")
		require.NoError(t, err)
		assert.Empty(t, other)
	})

	t.Run("offline", func(t *testing.T) {
		remote.SetOffline(true)
		defer remote.SetOffline(false)
		_, err := remote.ListCards(ctx, "u1")
		assert.True(t, remotestore.IsRetryable(err))
		assert.ErrorIs(t, err, ErrConnectionRefused)
	})

	t.Run("injected failure", func(t *testing.T) {
		injected := remotestore.NewError(remotestore.KindValidation, "DeleteCard", errors.New("bad"))
		remote.FailOn("DeleteCard", "c1", injected)
		defer remote.ClearFailures()
		assert.ErrorIs(t, remote.DeleteCard(ctx, "u1", "c1"), injected)
	})

	t.Run("delete session cascades", func(t *testing.T) {
		require.NoError(t, remote.DeleteSession(ctx, "u1", "s1"))
		assert.Equal(t, 0, remote.SessionCount("u1"))
		assert.Equal(t, 0, remote.CardCount("u1"))
		assert.Positive(t, remote.CallCount("DeleteSession"))
	})
}
