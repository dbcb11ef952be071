package hybrid

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/at-ishikawa/learnsync/internal/learning"
	"github.com/at-ishikawa/learnsync/internal/localstore"
	"github.com/at-ishikawa/learnsync/internal/offlinequeue"
)

// GetSessionByID returns the session, or nil when it does not exist. Signed-in reads prefer the
// remote store unless the session has writes that have not reached it yet.
func (s *Storage) GetSessionByID(ctx context.Context, id string) (*learning.Session, error) {
	const op = "get session"
	local := func() (*learning.Session, error) {
		session, err := localstore.GetAs[learning.Session](s.local, localstore.CollectionSessions, id)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return session, nil
	}

	userID, ok := s.currentUser()
	if !ok {
		return local()
	}
	pending, err := s.queue.HasPending(ctx, offlinequeue.EntitySession, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !pending {
		pending, err = s.queue.HasPendingChildren(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	if pending {
		return local()
	}

	var remote *learning.Session
	err = s.callRemote(ctx, func(ctx context.Context) error {
		var err error
		remote, err = s.remote.GetSession(ctx, userID, id)
		return err
	})
	if err != nil {
		s.logDegradedRead(op, err)
		return local()
	}
	if remote == nil {
		return local()
	}
	return remote, nil
}

// GetAllSessions returns every session ordered by creation time.
func (s *Storage) GetAllSessions(ctx context.Context) ([]learning.Session, error) {
	const op = "get all sessions"
	userID, ok := s.currentUser()
	if !ok {
		return s.localSessions(op)
	}

	var remote []learning.Session
	err := s.callRemote(ctx, func(ctx context.Context) error {
		var err error
		remote, err = s.remote.ListSessions(ctx, userID)
		return err
	})
	if err != nil {
		s.logDegradedRead(op, err)
		return s.localSessions(op)
	}

	ov, err := s.loadOverlay(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	byID := make(map[string]learning.Session, len(remote))
	for _, session := range remote {
		byID[session.ID] = session
	}
	for id, upserted := range ov.sessions {
		if !upserted {
			delete(byID, id)
			continue
		}
		if err := s.overlaySession(byID, id); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	for id := range ov.cardParents {
		if _, ok := ov.sessions[id]; ok {
			continue
		}
		if err := s.overlaySession(byID, id); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	sessions := make([]learning.Session, 0, len(byID))
	for _, session := range byID {
		sessions = append(sessions, session)
	}
	sortSessions(sessions)
	return sessions, nil
}

func (s *Storage) overlaySession(byID map[string]learning.Session, id string) error {
	session, err := localstore.GetAs[learning.Session](s.local, localstore.CollectionSessions, id)
	if err != nil {
		return err
	}
	if session != nil {
		byID[id] = *session
	}
	return nil
}

// GetCardsBySession returns the cards of the session ordered by creation time.
func (s *Storage) GetCardsBySession(ctx context.Context, sessionID string) ([]learning.Card, error) {
	return s.listCards(ctx, "get cards by session", sessionID, func(ctx context.Context, userID string) ([]learning.Card, error) {
		return s.remote.ListCardsBySession(ctx, userID, sessionID)
	})
}

// GetAllCards returns every card ordered by creation time.
func (s *Storage) GetAllCards(ctx context.Context) ([]learning.Card, error) {
	return s.listCards(ctx, "get all cards", "", s.remote.ListCards)
}

// GetDueCards returns the cards whose next review is at or before the given time, soonest first.
func (s *Storage) GetDueCards(ctx context.Context, before time.Time) ([]learning.Card, error) {
	cards, err := s.GetAllCards(ctx)
	if err != nil {
		return nil, err
	}
	cards = slices.DeleteFunc(cards, func(c learning.Card) bool { return !c.IsDue(before) })
	slices.SortFunc(cards, func(a, b learning.Card) int {
		return cmp.Or(cmp.Compare(a.NextReviewAt, b.NextReviewAt), strings.Compare(a.ID, b.ID))
	})
	return cards, nil
}

func (s *Storage) listCards(ctx context.Context, op, sessionID string, fetch func(ctx context.Context, userID string) ([]learning.Card, error)) ([]learning.Card, error) {
	userID, ok := s.currentUser()
	if !ok {
		return s.localCards(op, sessionID)
	}

	var remote []learning.Card
	err := s.callRemote(ctx, func(ctx context.Context) error {
		var err error
		remote, err = fetch(ctx, userID)
		return err
	})
	if err != nil {
		s.logDegradedRead(op, err)
		return s.localCards(op, sessionID)
	}

	ov, err := s.loadOverlay(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	byID := make(map[string]learning.Card, len(remote))
	for _, card := range remote {
		byID[card.ID] = card
	}
	for id, upserted := range ov.cards {
		delete(byID, id)
		if !upserted {
			continue
		}
		card, err := localstore.GetAs[learning.Card](s.local, localstore.CollectionCards, id)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if card != nil && (sessionID == "" || card.SessionID == sessionID) {
			byID[id] = *card
		}
	}

	cards := make([]learning.Card, 0, len(byID))
	for _, card := range byID {
		if upserted, ok := ov.sessions[card.SessionID]; ok && !upserted {
			continue
		}
		cards = append(cards, card)
	}
	sortCards(cards)
	return cards, nil
}

// overlay summarizes the queue: for each entity with pending writes, whether the
// last one is an upsert (true) or a delete (false).
type overlay struct {
	sessions    map[string]bool
	cards       map[string]bool
	cardParents map[string]bool
}

func (s *Storage) loadOverlay(ctx context.Context, userID string) (overlay, error) {
	items, err := s.queue.PeekByUser(ctx, userID)
	if err != nil {
		return overlay{}, err
	}
	ov := overlay{
		sessions:    make(map[string]bool),
		cards:       make(map[string]bool),
		cardParents: make(map[string]bool),
	}
	for _, item := range items {
		switch item.Operation {
		case offlinequeue.OpUpsertSession, offlinequeue.OpDeleteSession:
			ov.sessions[item.EntityID] = item.Operation == offlinequeue.OpUpsertSession
		case offlinequeue.OpUpsertCard, offlinequeue.OpDeleteCard:
			ov.cards[item.EntityID] = item.Operation == offlinequeue.OpUpsertCard
			if item.ParentID != "" {
				ov.cardParents[item.ParentID] = true
			}
		}
	}
	return ov, nil
}

func (s *Storage) localSessions(op string) ([]learning.Session, error) {
	sessions, err := localstore.ListAs[learning.Session](s.local, localstore.CollectionSessions)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	sortSessions(sessions)
	return sessions, nil
}

func (s *Storage) localCards(op, sessionID string) ([]learning.Card, error) {
	cards, err := localstore.ListAs[learning.Card](s.local, localstore.CollectionCards)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if sessionID != "" {
		cards = slices.DeleteFunc(cards, func(c learning.Card) bool { return c.SessionID != sessionID })
	}
	sortCards(cards)
	return cards, nil
}

func sortSessions(sessions []learning.Session) {
	slices.SortFunc(sessions, func(a, b learning.Session) int {
		return cmp.Or(cmp.Compare(a.CreatedAt, b.CreatedAt), strings.Compare(a.ID, b.ID))
	})
}

func sortCards(cards []learning.Card) {
	slices.SortFunc(cards, func(a, b learning.Card) int {
		return cmp.Or(cmp.Compare(a.CreatedAt, b.CreatedAt), strings.Compare(a.ID, b.ID))
	})
}

func readSingleton[T any](ctx context.Context, s *Storage, op, collection string, entity offlinequeue.EntityType,
	fetch func(ctx context.Context, userID string) (*T, error)) (*T, error) {
	local := func() (*T, error) {
		record, err := localstore.GetAs[T](s.local, collection, localstore.DefaultID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return record, nil
	}

	userID, ok := s.currentUser()
	if !ok {
		return local()
	}
	pending, err := s.queue.HasPending(ctx, entity, localstore.DefaultID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if pending {
		return local()
	}

	var remote *T
	err = s.callRemote(ctx, func(ctx context.Context) error {
		var err error
		remote, err = fetch(ctx, userID)
		return err
	})
	if err != nil {
		s.logDegradedRead(op, err)
		return local()
	}
	if remote == nil {
		return local()
	}
	return remote, nil
}
