// Package testutil provides shared test helpers: config files, local stores and learning fixtures.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/at-ishikawa/learnsync/internal/learning"
	"github.com/at-ishikawa/learnsync/internal/localstore"
	"github.com/at-ishikawa/learnsync/internal/offlinequeue"
)

// SetupTestConfig creates a minimal config file whose local store lives in tmpDir.
// Returns the path to the generated config file.
func SetupTestConfig(t *testing.T, tmpDir string) string {
	t.Helper()

	configContent := fmt.Sprintf(`local:
  path: %s
sync:
  interval: 1m
  remote_timeout: 1s
  retry_attempts: 1
  retry_delay: 1ms
  max_retry_delay: 1ms
`, filepath.Join(tmpDir, "data", "learnsync.db"))

	cfgPath := filepath.Join(tmpDir, "config.yml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(configContent), 0644))
	return cfgPath
}

// SetupTestConfigWithUser creates a config file signed in as userID.
func SetupTestConfigWithUser(t *testing.T, tmpDir, userID string) string {
	t.Helper()
	cfgPath := SetupTestConfig(t, tmpDir)

	content, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	content = append(content, []byte(fmt.Sprintf("auth:\n  user_id: %s\n", userID))...)
	require.NoError(t, os.WriteFile(cfgPath, content, 0644))
	return cfgPath
}

// OpenLocal opens a local store and its offline queue in a temporary directory.
func OpenLocal(t *testing.T) (*localstore.Store, *offlinequeue.Queue) {
	t.Helper()
	store, err := localstore.Open(filepath.Join(t.TempDir(), "local.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, offlinequeue.New(store.DB())
}

// NewSession returns a valid active session.
func NewSession(id, title string) learning.Session {
	return learning.Session{
		ID:        id,
		Title:     title,
		CreatedAt: 1735689600000,
		UpdatedAt: 1735689600000,
		Level:     learning.LevelBeginner,
		Outline: []learning.Chapter{
			{ID: "ch1", Title: "Chapter 1", Sections: []learning.Section{{ID: "sec1", Title: "Section 1"}}},
		},
		Status: learning.SessionStatusActive,
	}
}

// NewCard returns a valid card of sessionID.
func NewCard(id, sessionID string) learning.Card {
	return learning.Card{
		ID:           id,
		Title:        "Card " + id,
		Content:      "content of " + id,
		Type:         learning.CardTypeInspiration,
		Difficulty:   3,
		SessionID:    sessionID,
		NextReviewAt: 1735776000000,
		CreatedAt:    1735689600000,
		UpdatedAt:    1735689600000,
	}
}

// SeedLocal stores the sessions and cards in the local store, linking cards to their sessions.
func SeedLocal(t *testing.T, store *localstore.Store, sessions []learning.Session, cards []learning.Card) {
	t.Helper()
	for _, card := range cards {
		for i := range sessions {
			if sessions[i].ID == card.SessionID && !sessions[i].HasCard(card.ID) {
				sessions[i].CardIDs = append(sessions[i].CardIDs, card.ID)
			}
		}
		require.NoError(t, store.Put(localstore.CollectionCards, card.ID, card))
	}
	for _, session := range sessions {
		require.NoError(t, store.Put(localstore.CollectionSessions, session.ID, session))
	}
}
