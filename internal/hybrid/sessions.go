package hybrid

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/at-ishikawa/learnsync/internal/learning"
	"github.com/at-ishikawa/learnsync/internal/localstore"
	"github.com/at-ishikawa/learnsync/internal/offlinequeue"
	"github.com/at-ishikawa/learnsync/internal/remotestore"
)

const metaActiveSession = "active_session"

type metaValue struct {
	Value string `json:"value"`
}

// NewSession holds the fields of a session produced by the document pipeline.
type NewSession struct {
	Title        string
	Level        learning.Level
	DocumentText string
	DocumentType string
	Outline      []learning.Chapter
}

// CreateSession stores a new active session with a fresh id.
func (s *Storage) CreateSession(ctx context.Context, in NewSession) (*learning.Session, error) {
	now := s.nowMillis()
	session := &learning.Session{
		ID:           s.newID(),
		Title:        in.Title,
		CreatedAt:    now,
		UpdatedAt:    now,
		Level:        cmp.Or(in.Level, learning.LevelBeginner),
		DocumentText: in.DocumentText,
		DocumentType: in.DocumentType,
		Outline:      in.Outline,
		Status:       learning.SessionStatusActive,
	}
	if err := s.SaveSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// SaveSession stores the session as given and mirrors it.
func (s *Storage) SaveSession(ctx context.Context, session *learning.Session) error {
	if session == nil {
		return fmt.Errorf("save session: session is nil")
	}
	if err := learning.Validate(session); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return s.storeSession(ctx, "save session", session)
}

// editLock serializes read-modify-write cycles on one local record.
// A card lock is always taken before the lock of its session.
func (s *Storage) editLock(entity offlinequeue.EntityType, id string) func() {
	return s.locks.Lock("edit:" + string(entity) + ":" + id)
}

func (s *Storage) storeSession(ctx context.Context, op string, session *learning.Session) error {
	if err := s.local.Put(localstore.CollectionSessions, session.ID, session); err != nil {
		return localFailure(op, err)
	}
	item, err := s.newItem(offlinequeue.OpUpsertSession, session.ID, "", session)
	if err != nil {
		return err
	}
	_, err = s.mirror(ctx, item)
	return err
}

// loadSession returns the local copy, fetching and caching the remote one when the
// device has never seen the session.
func (s *Storage) loadSession(ctx context.Context, op, id string) (*learning.Session, error) {
	session, err := localstore.GetAs[learning.Session](s.local, localstore.CollectionSessions, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if session != nil {
		return session, nil
	}

	if userID, ok := s.currentUser(); ok {
		var remote *learning.Session
		err := s.callRemote(ctx, func(ctx context.Context) error {
			var err error
			remote, err = s.remote.GetSession(ctx, userID, id)
			return err
		})
		if err != nil {
			s.logDegradedRead(op, err)
		} else if remote != nil {
			if err := s.local.Put(localstore.CollectionSessions, id, remote); err != nil {
				return nil, localFailure(op, err)
			}
			return remote, nil
		}
	}
	return nil, fmt.Errorf("%s: session %s: %w", op, id, ErrNotFound)
}

// UpdateSessionMessages replaces the message log of the session.
func (s *Storage) UpdateSessionMessages(ctx context.Context, sessionID string, messages []learning.ChatMessage) (*learning.Session, error) {
	const op = "update session messages"
	defer s.editLock(offlinequeue.EntitySession, sessionID)()

	session, err := s.loadSession(ctx, op, sessionID)
	if err != nil {
		return nil, err
	}
	session.Messages = messages
	session.UpdatedAt = s.nowMillis()
	if err := learning.Validate(session); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := s.storeSession(ctx, op, session); err != nil {
		return nil, err
	}
	return session, nil
}

// AppendMessage adds a message to the end of the log, assigning its id and timestamp when missing.
func (s *Storage) AppendMessage(ctx context.Context, sessionID string, msg learning.ChatMessage) (*learning.ChatMessage, error) {
	const op = "append message"
	defer s.editLock(offlinequeue.EntitySession, sessionID)()

	session, err := s.loadSession(ctx, op, sessionID)
	if err != nil {
		return nil, err
	}
	if msg.ID == "" {
		msg.ID = s.newID()
	}
	if msg.Timestamp == 0 {
		msg.Timestamp = s.nowMillis()
	}
	if session.FindMessage(msg.ID) >= 0 {
		return nil, fmt.Errorf("%s: message %s already exists in session %s", op, msg.ID, sessionID)
	}
	session.Messages = append(session.Messages, msg)
	session.UpdatedAt = s.nowMillis()
	if err := learning.Validate(session); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := s.storeSession(ctx, op, session); err != nil {
		return nil, err
	}
	return &msg, nil
}

// UpdateOutlineProgress marks a chapter, or one of its sections, as completed or not.
func (s *Storage) UpdateOutlineProgress(ctx context.Context, sessionID, chapterID, sectionID string, completed bool) (*learning.Session, error) {
	const op = "update outline progress"
	defer s.editLock(offlinequeue.EntitySession, sessionID)()

	session, err := s.loadSession(ctx, op, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.SetProgress(chapterID, sectionID, completed) {
		return nil, fmt.Errorf("%s: chapter %q section %q: %w", op, chapterID, sectionID, ErrNotFound)
	}
	session.UpdatedAt = s.nowMillis()
	if err := s.storeSession(ctx, op, session); err != nil {
		return nil, err
	}
	return session, nil
}

// UpdateSessionStatus moves the session to status.
func (s *Storage) UpdateSessionStatus(ctx context.Context, sessionID string, status learning.SessionStatus) (*learning.Session, error) {
	const op = "update session status"
	defer s.editLock(offlinequeue.EntitySession, sessionID)()

	session, err := s.loadSession(ctx, op, sessionID)
	if err != nil {
		return nil, err
	}
	session.Status = status
	session.UpdatedAt = s.nowMillis()
	if err := learning.Validate(session); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := s.storeSession(ctx, op, session); err != nil {
		return nil, err
	}
	return session, nil
}

// SetActiveSession records the session the user is working on. It is device state and never mirrored.
func (s *Storage) SetActiveSession(ctx context.Context, sessionID string) error {
	const op = "set active session"
	if _, err := s.loadSession(ctx, op, sessionID); err != nil {
		return err
	}
	if err := s.local.Put(localstore.CollectionMeta, metaActiveSession, metaValue{Value: sessionID}); err != nil {
		return localFailure(op, err)
	}
	return nil
}

// ActiveSessionID returns the active session, or an empty string.
func (s *Storage) ActiveSessionID() (string, error) {
	value, err := localstore.GetAs[metaValue](s.local, localstore.CollectionMeta, metaActiveSession)
	if err != nil {
		return "", fmt.Errorf("get active session: %w", err)
	}
	if value == nil {
		return "", nil
	}
	return value.Value, nil
}

// DeleteSession deletes the session and its cards. Queued writes of the session and its cards
// are discarded since the delete supersedes them. Deleting a missing session is a no-op.
func (s *Storage) DeleteSession(ctx context.Context, sessionID string) error {
	const op = "delete session"
	defer s.editLock(offlinequeue.EntitySession, sessionID)()

	cards, err := s.localCardsOf(sessionID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.deleteLocalSession(op, sessionID, cards); err != nil {
		return err
	}
	_, err = s.deleteRemoteSession(ctx, op, sessionID, false)
	return err
}

// ItemFailure is one entity a batch operation could not complete.
type ItemFailure struct {
	ID  string `json:"id"`
	Err string `json:"error"`
}

// BatchDeleteResult reports the outcome of BatchDeleteSessions per session.
type BatchDeleteResult struct {
	Deleted []string      `json:"deleted"`
	Failed  []ItemFailure `json:"failed,omitempty"`
}

// BatchDeleteSessions deletes each session optimistically. A session the remote store rejects
// is restored locally together with its cards and reported as failed; an unreachable remote
// store queues the delete, which counts as deleted.
func (s *Storage) BatchDeleteSessions(ctx context.Context, sessionIDs []string) (*BatchDeleteResult, error) {
	const op = "batch delete sessions"
	result := &BatchDeleteResult{}
	for _, id := range sessionIDs {
		session, err := s.loadSession(ctx, op, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				result.Failed = append(result.Failed, ItemFailure{ID: id, Err: err.Error()})
				continue
			}
			return result, err
		}
		cards, err := s.localCardsOf(id)
		if err != nil {
			return result, fmt.Errorf("%s: %w", op, err)
		}

		if err := s.deleteLocalSession(op, id, cards); err != nil {
			result.Failed = append(result.Failed, ItemFailure{ID: id, Err: err.Error()})
			continue
		}
		rejected, err := s.deleteRemoteSession(ctx, op, id, true)
		if err != nil {
			result.Failed = append(result.Failed, ItemFailure{ID: id, Err: err.Error()})
			continue
		}
		if rejected != nil {
			if err := s.restoreSession(op, session, cards); err != nil {
				return result, err
			}
			result.Failed = append(result.Failed, ItemFailure{ID: id, Err: rejected.Error()})
			continue
		}
		result.Deleted = append(result.Deleted, id)
	}
	return result, nil
}

func (s *Storage) deleteLocalSession(op, sessionID string, cards []learning.Card) error {
	for _, card := range cards {
		if _, err := s.local.Delete(localstore.CollectionCards, card.ID); err != nil {
			return localFailure(op, err)
		}
	}
	if _, err := s.local.Delete(localstore.CollectionSessions, sessionID); err != nil {
		return localFailure(op, err)
	}
	active, err := s.ActiveSessionID()
	if err != nil {
		return localFailure(op, err)
	}
	if active == sessionID {
		if _, err := s.local.Delete(localstore.CollectionMeta, metaActiveSession); err != nil {
			return localFailure(op, err)
		}
	}
	return nil
}

func (s *Storage) restoreSession(op string, session *learning.Session, cards []learning.Card) error {
	if err := s.local.Put(localstore.CollectionSessions, session.ID, session); err != nil {
		return localFailure(op+": restore session", err)
	}
	for _, card := range cards {
		if err := s.local.Put(localstore.CollectionCards, card.ID, card); err != nil {
			return localFailure(op+": restore card", err)
		}
	}
	return nil
}

// deleteRemoteSession sends the delete right away, ahead of any queued write of the session:
// the remote delete cascades to the cards and supersedes everything queued for them.
// With keepOnReject, a rejection is returned and the queue is left as it was.
func (s *Storage) deleteRemoteSession(ctx context.Context, op, sessionID string, keepOnReject bool) (rejected error, err error) {
	item, err := s.newItem(offlinequeue.OpDeleteSession, sessionID, "", nil)
	if err != nil {
		return nil, err
	}
	unlock := s.locks.Lock(item.Key())
	defer unlock()

	var remoteErr error
	userID, ok := s.currentUser()
	if ok {
		remoteErr = s.attempt(ctx, userID, item)
		if remoteErr != nil {
			s.logRemoteFailure(op, item, remoteErr)
			if keepOnReject && remotestore.IsRejected(remoteErr) {
				return remoteErr, nil
			}
		}
	}
	if _, err := s.queue.RemoveByParent(ctx, sessionID); err != nil {
		return nil, localFailure(op, err)
	}
	if _, err := s.queue.RemoveByEntity(ctx, offlinequeue.EntitySession, sessionID); err != nil {
		return nil, localFailure(op, err)
	}
	if remoteErr != nil {
		item.LastError = remoteErr.Error()
		if err := s.enqueue(ctx, userID, item); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func (s *Storage) localCardsOf(sessionID string) ([]learning.Card, error) {
	cards, err := localstore.ListAs[learning.Card](s.local, localstore.CollectionCards)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(cards, func(c learning.Card) bool { return c.SessionID != sessionID }), nil
}
