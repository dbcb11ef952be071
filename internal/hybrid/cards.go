package hybrid

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/at-ishikawa/learnsync/internal/learning"
	"github.com/at-ishikawa/learnsync/internal/localstore"
	"github.com/at-ishikawa/learnsync/internal/offlinequeue"
)

const (
	firstReviewDelay   = 24 * time.Hour
	defaultDifficulty  = 3
	maxDerivedTitleLen = 60
)

// NewCard holds the user-supplied fields of a card.
type NewCard struct {
	Title      string
	Content    string
	Note       string
	Type       learning.CardType
	Tags       []string
	Difficulty int
	MessageID  string
	ChapterID  string
}

func (s *Storage) buildCard(sessionID string, in NewCard) *learning.Card {
	now := s.now()
	return &learning.Card{
		ID:           s.newID(),
		Title:        in.Title,
		Content:      in.Content,
		Note:         in.Note,
		Type:         cmp.Or(in.Type, learning.CardTypeInspiration),
		Tags:         learning.NormalizeTags(in.Tags),
		Difficulty:   cmp.Or(in.Difficulty, defaultDifficulty),
		NextReviewAt: learning.Millis(now.Add(firstReviewDelay)),
		SessionID:    sessionID,
		MessageID:    in.MessageID,
		ChapterID:    in.ChapterID,
		CreatedAt:    learning.Millis(now),
		UpdatedAt:    learning.Millis(now),
	}
}

// AddLearningCard creates a card in the session. Only the card is mirrored: the session's
// card list is derived from the cards on the remote side.
func (s *Storage) AddLearningCard(ctx context.Context, sessionID string, in NewCard) (*learning.Card, error) {
	const op = "add learning card"
	defer s.editLock(offlinequeue.EntitySession, sessionID)()

	session, err := s.loadSession(ctx, op, sessionID)
	if err != nil {
		return nil, err
	}
	card := s.buildCard(sessionID, in)
	if err := learning.Validate(card); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.local.Put(localstore.CollectionCards, card.ID, card); err != nil {
		return nil, localFailure(op, err)
	}
	session.CardIDs = append(session.CardIDs, card.ID)
	if err := s.local.Put(localstore.CollectionSessions, session.ID, session); err != nil {
		return nil, localFailure(op, err)
	}

	if err := s.mirrorCard(ctx, card); err != nil {
		return nil, err
	}
	return card, nil
}

// BookmarkMessage turns a chat message into a bookmark card and flags the message.
// Bookmarking an already bookmarked message returns its card.
func (s *Storage) BookmarkMessage(ctx context.Context, sessionID, messageID string, in NewCard) (*learning.Card, error) {
	const op = "bookmark message"
	defer s.editLock(offlinequeue.EntitySession, sessionID)()

	session, err := s.loadSession(ctx, op, sessionID)
	if err != nil {
		return nil, err
	}
	idx := session.FindMessage(messageID)
	if idx < 0 {
		return nil, fmt.Errorf("%s: message %s: %w", op, messageID, ErrNotFound)
	}
	msg := &session.Messages[idx]
	if msg.Bookmarked && msg.CardID != "" {
		existing, err := localstore.GetAs[learning.Card](s.local, localstore.CollectionCards, msg.CardID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if existing != nil {
			return existing, nil
		}
	}

	in.MessageID = messageID
	in.Type = learning.CardTypeBookmark
	in.Content = cmp.Or(in.Content, msg.Content)
	in.Title = cmp.Or(in.Title, deriveTitle(msg.Content))
	card := s.buildCard(sessionID, in)
	if err := learning.Validate(card); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := s.local.Put(localstore.CollectionCards, card.ID, card); err != nil {
		return nil, localFailure(op, err)
	}

	msg.Bookmarked = true
	msg.CardID = card.ID
	session.CardIDs = append(session.CardIDs, card.ID)
	session.UpdatedAt = s.nowMillis()
	if err := s.storeSession(ctx, op, session); err != nil {
		return nil, err
	}
	if err := s.mirrorCard(ctx, card); err != nil {
		return nil, err
	}
	return card, nil
}

func deriveTitle(content string) string {
	title, _, _ := strings.Cut(strings.TrimSpace(content), "\n")
	runes := []rune(title)
	if len(runes) > maxDerivedTitleLen {
		return string(runes[:maxDerivedTitleLen-3]) + "..."
	}
	return title
}

// UpdateCard stores the edited card. Cards cannot move to another session.
func (s *Storage) UpdateCard(ctx context.Context, card *learning.Card) error {
	const op = "update card"
	if card == nil {
		return fmt.Errorf("%s: card is nil", op)
	}
	defer s.editLock(offlinequeue.EntityCard, card.ID)()

	existing, err := s.loadCard(ctx, op, card.ID)
	if err != nil {
		return err
	}
	if card.SessionID == "" {
		card.SessionID = existing.SessionID
	}
	if card.SessionID != existing.SessionID {
		return fmt.Errorf("%s: card %s cannot move from session %s to %s", op, card.ID, existing.SessionID, card.SessionID)
	}
	card.Tags = learning.NormalizeTags(card.Tags)
	card.UpdatedAt = s.nowMillis()
	if err := learning.Validate(card); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return s.storeCard(ctx, op, card)
}

// ReviewCard grades a review (0-5) and schedules the next one.
func (s *Storage) ReviewCard(ctx context.Context, cardID string, quality int) (*learning.Card, error) {
	const op = "review card"
	defer s.editLock(offlinequeue.EntityCard, cardID)()

	card, err := s.loadCard(ctx, op, cardID)
	if err != nil {
		return nil, err
	}
	if err := learning.Review(card, quality, s.now()); err != nil {
		return nil, err
	}
	if err := s.storeCard(ctx, op, card); err != nil {
		return nil, err
	}
	return card, nil
}

// DeleteCard deletes the card and unlinks it from its session. Deleting a missing card is a no-op.
func (s *Storage) DeleteCard(ctx context.Context, cardID string) error {
	const op = "delete card"
	defer s.editLock(offlinequeue.EntityCard, cardID)()

	card, err := s.loadCard(ctx, op, cardID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	defer s.editLock(offlinequeue.EntitySession, card.SessionID)()

	if _, err := s.local.Delete(localstore.CollectionCards, cardID); err != nil {
		return localFailure(op, err)
	}

	session, err := localstore.GetAs[learning.Session](s.local, localstore.CollectionSessions, card.SessionID)
	if err != nil {
		return localFailure(op, err)
	}
	if session != nil {
		session.CardIDs = slices.DeleteFunc(session.CardIDs, func(id string) bool { return id == cardID })
		unbookmarked := false
		for i := range session.Messages {
			if session.Messages[i].CardID == cardID {
				session.Messages[i].Bookmarked = false
				session.Messages[i].CardID = ""
				unbookmarked = true
			}
		}
		if unbookmarked {
			session.UpdatedAt = s.nowMillis()
			if err := s.storeSession(ctx, op, session); err != nil {
				return err
			}
		} else if err := s.local.Put(localstore.CollectionSessions, session.ID, session); err != nil {
			return localFailure(op, err)
		}
	}

	item, err := s.newItem(offlinequeue.OpDeleteCard, cardID, card.SessionID, nil)
	if err != nil {
		return err
	}
	_, err = s.mirror(ctx, item)
	return err
}

func (s *Storage) storeCard(ctx context.Context, op string, card *learning.Card) error {
	if err := s.local.Put(localstore.CollectionCards, card.ID, card); err != nil {
		return localFailure(op, err)
	}
	return s.mirrorCard(ctx, card)
}

func (s *Storage) mirrorCard(ctx context.Context, card *learning.Card) error {
	item, err := s.newItem(offlinequeue.OpUpsertCard, card.ID, card.SessionID, card)
	if err != nil {
		return err
	}
	_, err = s.mirror(ctx, item)
	return err
}

// loadCard returns the local copy, fetching and caching the remote one when missing locally.
func (s *Storage) loadCard(ctx context.Context, op, id string) (*learning.Card, error) {
	card, err := localstore.GetAs[learning.Card](s.local, localstore.CollectionCards, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if card != nil {
		return card, nil
	}

	// A queued write means the local store already holds the latest state, including a pending delete.
	pending, err := s.queue.HasPending(ctx, offlinequeue.EntityCard, id)
	if err != nil {
		return nil, localFailure(op, err)
	}
	if userID, ok := s.currentUser(); ok && !pending {
		var remote *learning.Card
		err := s.callRemote(ctx, func(ctx context.Context) error {
			var err error
			remote, err = s.remote.GetCard(ctx, userID, id)
			return err
		})
		if err != nil {
			s.logDegradedRead(op, err)
		} else if remote != nil {
			if err := s.local.Put(localstore.CollectionCards, id, remote); err != nil {
				return nil, localFailure(op, err)
			}
			return remote, nil
		}
	}
	return nil, fmt.Errorf("%s: card %s: %w", op, id, ErrNotFound)
}
