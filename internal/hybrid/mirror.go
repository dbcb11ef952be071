package hybrid

import (
	"context"
	"fmt"

	"github.com/at-ishikawa/learnsync/internal/learning"
	"github.com/at-ishikawa/learnsync/internal/offlinequeue"
	"github.com/at-ishikawa/learnsync/internal/remotestore"
)

type outcome int

const (
	// outcomeSkipped means nobody is signed in, so only the local store was written.
	outcomeSkipped outcome = iota
	outcomeMirrored
	outcomeQueued
)

func (o outcome) String() string {
	switch o {
	case outcomeMirrored:
		return "mirrored"
	case outcomeQueued:
		return "queued"
	}
	return "skipped"
}

func (s *Storage) newItem(op offlinequeue.Operation, entityID, parentID string, payload any) (*offlinequeue.Item, error) {
	item, err := offlinequeue.NewItem(s.newID(), op, entityID, parentID, payload, s.now())
	if err != nil {
		return nil, localFailure(string(op), err)
	}
	return item, nil
}

// mirror writes item to the remote store for the signed-in user, or queues it when the remote
// write fails or earlier writes of the same entity are still pending.
func (s *Storage) mirror(ctx context.Context, item *offlinequeue.Item) (outcome, error) {
	userID, ok := s.currentUser()
	if !ok {
		return outcomeSkipped, nil
	}
	unlock := s.locks.Lock(item.Key())
	defer unlock()
	return s.mirrorLocked(ctx, userID, item)
}

// mirrorLocked is mirror with the entity lock already held.
func (s *Storage) mirrorLocked(ctx context.Context, userID string, item *offlinequeue.Item) (outcome, error) {
	pending, err := s.hasQueuedPredecessor(ctx, item)
	if err != nil {
		return 0, err
	}
	if !pending {
		err := s.attempt(ctx, userID, item)
		if err == nil {
			return outcomeMirrored, nil
		}
		s.logRemoteFailure("mirror write", item, err)
		item.LastError = err.Error()
	}
	if err := s.enqueue(ctx, userID, item); err != nil {
		return 0, err
	}
	return outcomeQueued, nil
}

// hasQueuedPredecessor reports whether a queued item must replay before item.
// A card also waits for its session so the remote foreign key holds.
func (s *Storage) hasQueuedPredecessor(ctx context.Context, item *offlinequeue.Item) (bool, error) {
	pending, err := s.queue.HasPending(ctx, item.EntityType, item.EntityID)
	if err != nil {
		return false, localFailure("check pending writes", err)
	}
	if pending || item.EntityType != offlinequeue.EntityCard || item.ParentID == "" {
		return pending, nil
	}
	pending, err = s.queue.HasPending(ctx, offlinequeue.EntitySession, item.ParentID)
	if err != nil {
		return false, localFailure("check pending writes", err)
	}
	return pending, nil
}

func (s *Storage) enqueue(ctx context.Context, userID string, item *offlinequeue.Item) error {
	item.UserID = userID
	if err := s.queue.Enqueue(ctx, item); err != nil {
		return localFailure("queue remote write", err)
	}
	s.logger.Debug("queued remote write", "operation", item.Operation, "entity", item.Key())
	return nil
}

// attempt sends one write to the remote store. Direct writes and queue replays share it,
// so a replayed item behaves exactly like the original call.
func (s *Storage) attempt(ctx context.Context, userID string, item *offlinequeue.Item) error {
	return s.callRemote(ctx, func(ctx context.Context) error {
		switch item.Operation {
		case offlinequeue.OpUpsertSession:
			var session learning.Session
			if err := item.Decode(&session); err != nil {
				return undecodable(item, err)
			}
			return s.remote.UpsertSession(ctx, userID, &session)
		case offlinequeue.OpDeleteSession:
			return s.remote.DeleteSession(ctx, userID, item.EntityID)
		case offlinequeue.OpUpsertCard:
			var card learning.Card
			if err := item.Decode(&card); err != nil {
				return undecodable(item, err)
			}
			return s.remote.UpsertCard(ctx, userID, &card)
		case offlinequeue.OpDeleteCard:
			return s.remote.DeleteCard(ctx, userID, item.EntityID)
		case offlinequeue.OpUpsertPreferences:
			var prefs learning.UserPreferences
			if err := item.Decode(&prefs); err != nil {
				return undecodable(item, err)
			}
			return s.remote.UpsertPreferences(ctx, userID, &prefs)
		case offlinequeue.OpUpsertAPIConfig:
			var cfg learning.APIConfig
			if err := item.Decode(&cfg); err != nil {
				return undecodable(item, err)
			}
			return s.remote.UpsertAPIConfig(ctx, userID, &cfg)
		}
		return remotestore.NewError(remotestore.KindValidation, string(item.Operation),
			fmt.Errorf("unknown operation %q", item.Operation))
	})
}

// undecodable turns a corrupt payload into a rejection, since replaying it can never succeed.
func undecodable(item *offlinequeue.Item, err error) error {
	return remotestore.NewError(remotestore.KindValidation, string(item.Operation), err)
}
