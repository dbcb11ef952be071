// Package remotestore provides the networked persistence scoped to an authenticated user.
package remotestore

//go:generate mockgen -source=store.go -destination=../mocks/remotestore/mock_store.go -package=mock_remotestore

import (
	"context"

	"github.com/at-ishikawa/learnsync/internal/learning"
)

// Store persists learning entities per user. Every call takes the owning user id;
// an empty id is rejected with KindAuth. Reads of a missing record return nil, nil.
// Upserts overwrite by id, so re-applying the same write is harmless.
type Store interface {
	UpsertSession(ctx context.Context, userID string, session *learning.Session) error
	GetSession(ctx context.Context, userID, sessionID string) (*learning.Session, error)
	ListSessions(ctx context.Context, userID string) ([]learning.Session, error)
	// DeleteSession removes the session and its cards. Deleting a missing session succeeds.
	DeleteSession(ctx context.Context, userID, sessionID string) error

	// UpsertCard fails with KindConflict when the card's session does not exist.
	UpsertCard(ctx context.Context, userID string, card *learning.Card) error
	// UpsertCards writes all cards or none of them.
	UpsertCards(ctx context.Context, userID string, cards []*learning.Card) error
	GetCard(ctx context.Context, userID, cardID string) (*learning.Card, error)
	ListCards(ctx context.Context, userID string) ([]learning.Card, error)
	ListCardsBySession(ctx context.Context, userID, sessionID string) ([]learning.Card, error)
	DeleteCard(ctx context.Context, userID, cardID string) error

	UpsertPreferences(ctx context.Context, userID string, prefs *learning.UserPreferences) error
	GetPreferences(ctx context.Context, userID string) (*learning.UserPreferences, error)
	UpsertAPIConfig(ctx context.Context, userID string, cfg *learning.APIConfig) error
	GetAPIConfig(ctx context.Context, userID string) (*learning.APIConfig, error)
}

func requireUser(op, userID string) error {
	if userID == "" {
		return NewError(KindAuth, op, ErrAnonymous)
	}
	return nil
}

func validatePayload(op string, entity any) error {
	if err := learning.Validate(entity); err != nil {
		return NewError(KindValidation, op, err)
	}
	return nil
}
