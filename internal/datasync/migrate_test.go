package datasync

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/at-ishikawa/learnsync/internal/learning"
	"github.com/at-ishikawa/learnsync/internal/localstore"
	"github.com/at-ishikawa/learnsync/internal/remotestore"
	"github.com/at-ishikawa/learnsync/internal/testutil"
)

const userID = "user-1"

func seed(t *testing.T, store *localstore.Store) {
	t.Helper()
	testutil.SeedLocal(t, store,
		[]learning.Session{testutil.NewSession("s1", "Intro to Go"), testutil.NewSession("s2", "Concurrency")},
		[]learning.Card{testutil.NewCard("c1", "s1"), testutil.NewCard("c2", "s1"), testutil.NewCard("c3", "s2")},
	)
	require.NoError(t, store.Put(localstore.CollectionPreferences, localstore.DefaultID, learning.UserPreferences{Theme: "dark"}))
	require.NoError(t, store.Put(localstore.CollectionConfig, localstore.DefaultID, learning.APIConfig{Provider: "openai", Model: "gpt-4o-mini"}))
}

func TestMigrator_Migrate(t *testing.T) {
	tests := []struct {
		name         string
		setup        func(remote *testutil.FakeRemote)
		wantMigrated int
		wantFailed   []ItemError
		wantSessions int
		wantCards    int
		wantOutput   []string
	}{
		{
			name:         "migrates everything",
			setup:        func(remote *testutil.FakeRemote) {},
			wantMigrated: 7,
			wantSessions: 2,
			wantCards:    3,
			wantOutput: []string{
				"  [MIGRATED]  session s1 \"Intro to Go\"\n",
				"  [MIGRATED]  card c3 \"Card c3\"\n",
				"  [MIGRATED]  preferences default\n",
				"  [MIGRATED]  api-config default\n",
			},
		},
		{
			name: "cards of a failed session are not attempted",
			setup: func(remote *testutil.FakeRemote) {
				remote.FailOn("UpsertSession", "s2", remotestore.NewError(remotestore.KindValidation, "UpsertSession", errors.New("title too long")))
			},
			wantMigrated: 5,
			wantFailed: []ItemError{
				{Type: "session", ID: "s2", Reason: "remote UpsertSession (validation): title too long"},
				{Type: "card", ID: "c3", Reason: reasonParentNotMigrated},
			},
			wantSessions: 1,
			wantCards:    2,
			wantOutput:   []string{"  [FAILED]  card c3: parent session not migrated\n"},
		},
		{
			name: "a failed batch is retried card by card",
			setup: func(remote *testutil.FakeRemote) {
				remote.FailOn("UpsertCard", "c2", remotestore.NewError(remotestore.KindValidation, "UpsertCard", errors.New("bad tags")))
			},
			wantMigrated: 6,
			wantFailed: []ItemError{
				{Type: "card", ID: "c2", Reason: "remote UpsertCard (validation): bad tags"},
			},
			wantSessions: 2,
			wantCards:    2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			local, _ := testutil.OpenLocal(t)
			seed(t, local)
			remote := testutil.NewFakeRemote()
			tt.setup(remote)
			var out bytes.Buffer

			got, err := NewMigrator(local, remote, &out, 0).Migrate(context.Background(), userID)
			require.NotNil(t, got)
			assert.Equal(t, tt.wantMigrated, got.Migrated)
			assert.Equal(t, len(tt.wantFailed), got.Failed)
			assert.Equal(t, tt.wantFailed, got.Errors)
			assert.Equal(t, tt.wantSessions, remote.SessionCount(userID))
			assert.Equal(t, tt.wantCards, remote.CardCount(userID))
			for _, line := range tt.wantOutput {
				assert.Contains(t, out.String(), line)
			}

			if len(tt.wantFailed) == 0 {
				require.NoError(t, err)
				return
			}
			var partial *PartialFailureError
			require.ErrorAs(t, err, &partial)
			assert.Same(t, got, partial.Result)
		})
	}
}

func TestMigrator_MigrateIsIdempotent(t *testing.T) {
	local, _ := testutil.OpenLocal(t)
	seed(t, local)
	remote := testutil.NewFakeRemote()
	migrator := NewMigrator(local, remote, nil, 0)

	for run := 0; run < 3; run++ {
		got, err := migrator.Migrate(context.Background(), userID)
		require.NoError(t, err)
		assert.Equal(t, 7, got.Migrated)
		assert.Equal(t, 2, remote.SessionCount(userID))
		assert.Equal(t, 3, remote.CardCount(userID))
	}

	session, err := remote.GetSession(context.Background(), userID, "s1")
	require.NoError(t, err)
	assert.Equal(t, "Intro to Go", session.Title)
	assert.Equal(t, []string{"c1", "c2"}, session.CardIDs)
}

func TestMigrator_RetryAfterPartialFailure(t *testing.T) {
	local, _ := testutil.OpenLocal(t)
	seed(t, local)
	remote := testutil.NewFakeRemote()
	migrator := NewMigrator(local, remote, nil, 0)

	remote.SetOffline(true)
	got, err := migrator.Migrate(context.Background(), userID)
	require.Error(t, err)
	assert.Equal(t, 0, got.Migrated)
	assert.Equal(t, 7, got.Failed)
	assert.EqualError(t, err, "0 migrated, 7 failed: "+
		"session s1: remote UpsertSession (unreachable): connection refused; "+
		"session s2: remote UpsertSession (unreachable): connection refused; "+
		"card c1: parent session not migrated; card c2: parent session not migrated; card c3: parent session not migrated; "+
		"preferences default: remote UpsertPreferences (unreachable): connection refused; "+
		"api-config default: remote UpsertAPIConfig (unreachable): connection refused")

	remote.SetOffline(false)
	got, err = migrator.Migrate(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, 7, got.Migrated)
}

func TestMigrator_EmptyLocalStore(t *testing.T) {
	local, _ := testutil.OpenLocal(t)
	remote := testutil.NewFakeRemote()

	got, err := NewMigrator(local, remote, nil, 0).Migrate(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, &MigrationResult{}, got)
	assert.Empty(t, remote.Calls())
}
