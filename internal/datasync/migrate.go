// Package datasync provides bulk transfer of local data into the remote store and YAML export.
package datasync

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/at-ishikawa/learnsync/internal/learning"
	"github.com/at-ishikawa/learnsync/internal/localstore"
	"github.com/at-ishikawa/learnsync/internal/remotestore"
)

// ItemError is the failure of one migrated entity.
type ItemError struct {
	Type   string
	ID     string
	Reason string
}

func (e ItemError) String() string {
	return fmt.Sprintf("%s %s: %s", e.Type, e.ID, e.Reason)
}

// MigrationResult counts migrated entities and lists the failures.
type MigrationResult struct {
	Migrated int
	Failed   int
	Errors   []ItemError
}

func (r *MigrationResult) migrated(w io.Writer, kind, id, label string) {
	r.Migrated++
	if label != "" {
		_, _ = fmt.Fprintf(w, "  [MIGRATED]  %s %s %q\n", kind, id, label)
		return
	}
	_, _ = fmt.Fprintf(w, "  [MIGRATED]  %s %s\n", kind, id)
}

func (r *MigrationResult) failed(w io.Writer, kind, id, reason string) {
	r.Failed++
	r.Errors = append(r.Errors, ItemError{Type: kind, ID: id, Reason: reason})
	_, _ = fmt.Fprintf(w, "  [FAILED]  %s %s: %s\n", kind, id, reason)
}

// PartialFailureError reports a migration that stored some entities but not all.
type PartialFailureError struct {
	Result *MigrationResult
}

func (e *PartialFailureError) Error() string {
	reasons := make([]string, 0, len(e.Result.Errors))
	for _, item := range e.Result.Errors {
		reasons = append(reasons, item.String())
	}
	return fmt.Sprintf("%d migrated, %d failed: %s", e.Result.Migrated, e.Result.Failed, strings.Join(reasons, "; "))
}

const reasonParentNotMigrated = "parent session not migrated"

// Migrator copies every local entity into the remote store under one user.
// Ids are stable, so running it again overwrites instead of duplicating.
type Migrator struct {
	local   *localstore.Store
	remote  remotestore.Store
	writer  io.Writer
	timeout time.Duration
}

// NewMigrator creates a new Migrator. Progress lines are written to writer.
func NewMigrator(local *localstore.Store, remote remotestore.Store, writer io.Writer, timeout time.Duration) *Migrator {
	if writer == nil {
		writer = io.Discard
	}
	return &Migrator{
		local:   local,
		remote:  remote,
		writer:  writer,
		timeout: timeout,
	}
}

// Migrate writes sessions, then their cards, then the settings records.
// Failures of single entities are collected; the returned error is a *PartialFailureError
// when any entity failed, or a plain error when the local data could not be read.
func (m *Migrator) Migrate(ctx context.Context, userID string) (*MigrationResult, error) {
	sessions, err := localstore.ListAs[learning.Session](m.local, localstore.CollectionSessions)
	if err != nil {
		return nil, fmt.Errorf("load local sessions: %w", err)
	}
	cards, err := localstore.ListAs[learning.Card](m.local, localstore.CollectionCards)
	if err != nil {
		return nil, fmt.Errorf("load local cards: %w", err)
	}
	prefs, err := localstore.GetAs[learning.UserPreferences](m.local, localstore.CollectionPreferences, localstore.DefaultID)
	if err != nil {
		return nil, fmt.Errorf("load local preferences: %w", err)
	}
	apiConfig, err := localstore.GetAs[learning.APIConfig](m.local, localstore.CollectionConfig, localstore.DefaultID)
	if err != nil {
		return nil, fmt.Errorf("load local api config: %w", err)
	}

	result := &MigrationResult{}
	failedSessions := make(map[string]bool)
	for i := range sessions {
		session := &sessions[i]
		if err := m.call(ctx, func(ctx context.Context) error {
			return m.remote.UpsertSession(ctx, userID, session)
		}); err != nil {
			failedSessions[session.ID] = true
			result.failed(m.writer, "session", session.ID, err.Error())
			continue
		}
		result.migrated(m.writer, "session", session.ID, session.Title)
	}

	for _, group := range groupBySession(cards) {
		if failedSessions[group.sessionID] {
			for _, card := range group.cards {
				result.failed(m.writer, "card", card.ID, reasonParentNotMigrated)
			}
			continue
		}
		m.migrateCards(ctx, userID, group.cards, result)
	}

	if prefs != nil {
		if err := m.call(ctx, func(ctx context.Context) error {
			return m.remote.UpsertPreferences(ctx, userID, prefs)
		}); err != nil {
			result.failed(m.writer, "preferences", localstore.DefaultID, err.Error())
		} else {
			result.migrated(m.writer, "preferences", localstore.DefaultID, "")
		}
	}
	if apiConfig != nil {
		if err := m.call(ctx, func(ctx context.Context) error {
			return m.remote.UpsertAPIConfig(ctx, userID, apiConfig)
		}); err != nil {
			result.failed(m.writer, "api-config", localstore.DefaultID, err.Error())
		} else {
			result.migrated(m.writer, "api-config", localstore.DefaultID, "")
		}
	}

	if result.Failed > 0 {
		return result, &PartialFailureError{Result: result}
	}
	return result, nil
}

// migrateCards writes the cards of one session in one batch, and one at a time
// when the batch fails so each failure is attributed to its card.
func (m *Migrator) migrateCards(ctx context.Context, userID string, cards []*learning.Card, result *MigrationResult) {
	err := m.call(ctx, func(ctx context.Context) error {
		return m.remote.UpsertCards(ctx, userID, cards)
	})
	if err == nil {
		for _, card := range cards {
			result.migrated(m.writer, "card", card.ID, card.Title)
		}
		return
	}
	if len(cards) == 1 {
		result.failed(m.writer, "card", cards[0].ID, err.Error())
		return
	}

	for _, card := range cards {
		if err := m.call(ctx, func(ctx context.Context) error {
			return m.remote.UpsertCard(ctx, userID, card)
		}); err != nil {
			result.failed(m.writer, "card", card.ID, err.Error())
			continue
		}
		result.migrated(m.writer, "card", card.ID, card.Title)
	}
}

func (m *Migrator) call(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.timeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	return fn(ctx)
}

type sessionCards struct {
	sessionID string
	cards     []*learning.Card
}

func groupBySession(cards []learning.Card) []sessionCards {
	var groups []sessionCards
	index := make(map[string]int)
	for i := range cards {
		card := &cards[i]
		pos, ok := index[card.SessionID]
		if !ok {
			pos = len(groups)
			index[card.SessionID] = pos
			groups = append(groups, sessionCards{sessionID: card.SessionID})
		}
		groups[pos].cards = append(groups[pos].cards, card)
	}
	return groups
}
