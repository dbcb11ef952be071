package remotestore

import (
	"context"
	"errors"

	"github.com/at-ishikawa/learnsync/internal/learning"
)

// ErrNotConfigured is the cause of every Unavailable failure.
var ErrNotConfigured = errors.New("remote store is not configured")

// Unavailable is the Store used when no remote database is configured.
// Every call fails as unreachable, so authenticated writes stay queued until one is.
type Unavailable struct{}

var _ Store = Unavailable{}

func (Unavailable) fail(op string) error {
	return NewError(KindUnreachable, op, ErrNotConfigured)
}

func (u Unavailable) UpsertSession(context.Context, string, *learning.Session) error {
	return u.fail("upsert session")
}

func (u Unavailable) GetSession(context.Context, string, string) (*learning.Session, error) {
	return nil, u.fail("get session")
}

func (u Unavailable) ListSessions(context.Context, string) ([]learning.Session, error) {
	return nil, u.fail("list sessions")
}

func (u Unavailable) DeleteSession(context.Context, string, string) error {
	return u.fail("delete session")
}

func (u Unavailable) UpsertCard(context.Context, string, *learning.Card) error {
	return u.fail("upsert card")
}

func (u Unavailable) UpsertCards(context.Context, string, []*learning.Card) error {
	return u.fail("upsert cards")
}

func (u Unavailable) GetCard(context.Context, string, string) (*learning.Card, error) {
	return nil, u.fail("get card")
}

func (u Unavailable) ListCards(context.Context, string) ([]learning.Card, error) {
	return nil, u.fail("list cards")
}

func (u Unavailable) ListCardsBySession(context.Context, string, string) ([]learning.Card, error) {
	return nil, u.fail("list cards by session")
}

func (u Unavailable) DeleteCard(context.Context, string, string) error {
	return u.fail("delete card")
}

func (u Unavailable) UpsertPreferences(context.Context, string, *learning.UserPreferences) error {
	return u.fail("upsert preferences")
}

func (u Unavailable) GetPreferences(context.Context, string) (*learning.UserPreferences, error) {
	return nil, u.fail("get preferences")
}

func (u Unavailable) UpsertAPIConfig(context.Context, string, *learning.APIConfig) error {
	return u.fail("upsert api config")
}

func (u Unavailable) GetAPIConfig(context.Context, string) (*learning.APIConfig, error) {
	return nil, u.fail("get api config")
}
