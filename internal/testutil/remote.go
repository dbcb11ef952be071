package testutil

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/at-ishikawa/learnsync/internal/learning"
	"github.com/at-ishikawa/learnsync/internal/remotestore"
)

// ErrConnectionRefused is the cause of every failure while the fake is offline.
var ErrConnectionRefused = errors.New("connection refused")

// FakeRemote is an in-memory remotestore.Store enforcing the same ownership,
// validation and foreign key rules as the MySQL store.
type FakeRemote struct {
	mu       sync.Mutex
	offline  bool
	failures map[string]error
	calls    []string

	sessions map[string]map[string]learning.Session
	cards    map[string]map[string]learning.Card
	prefs    map[string]learning.UserPreferences
	configs  map[string]learning.APIConfig
}

var _ remotestore.Store = (*FakeRemote)(nil)

// NewFakeRemote creates an empty FakeRemote.
func NewFakeRemote() *FakeRemote {
	return &FakeRemote{
		failures: make(map[string]error),
		sessions: make(map[string]map[string]learning.Session),
		cards:    make(map[string]map[string]learning.Card),
		prefs:    make(map[string]learning.UserPreferences),
		configs:  make(map[string]learning.APIConfig),
	}
}

// SetOffline makes every call fail with KindUnreachable while offline is true.
func (f *FakeRemote) SetOffline(offline bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offline = offline
}

// FailOn makes calls of method on id return err until ClearFailures.
func (f *FakeRemote) FailOn(method, id string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[method+":"+id] = err
}

// ClearFailures removes every injected failure.
func (f *FakeRemote) ClearFailures() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = make(map[string]error)
}

// Calls returns the recorded "Method:id" entries of every call, failed ones included.
func (f *FakeRemote) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

// CallCount returns how many calls of method were made.
func (f *FakeRemote) CallCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, call := range f.calls {
		if strings.HasPrefix(call, method+":") {
			n++
		}
	}
	return n
}

// ResetCalls forgets the recorded calls.
func (f *FakeRemote) ResetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

// SessionCount returns the number of sessions stored for userID.
func (f *FakeRemote) SessionCount(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions[userID])
}

// CardCount returns the number of cards stored for userID.
func (f *FakeRemote) CardCount(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cards[userID])
}

// begin records the call and returns the injected failure, if any. f.mu must be held.
func (f *FakeRemote) begin(method, userID, id string) error {
	f.calls = append(f.calls, method+":"+id)
	if userID == "" {
		return remotestore.NewError(remotestore.KindAuth, method, remotestore.ErrAnonymous)
	}
	if f.offline {
		return remotestore.NewError(remotestore.KindUnreachable, method, ErrConnectionRefused)
	}
	if err, ok := f.failures[method+":"+id]; ok {
		return err
	}
	return nil
}

func (f *FakeRemote) UpsertSession(_ context.Context, userID string, session *learning.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("UpsertSession", userID, session.ID); err != nil {
		return err
	}
	if err := learning.Validate(session); err != nil {
		return remotestore.NewError(remotestore.KindValidation, "UpsertSession", err)
	}
	stored := *session
	stored.CardIDs = nil
	if f.sessions[userID] == nil {
		f.sessions[userID] = make(map[string]learning.Session)
	}
	f.sessions[userID][session.ID] = stored
	return nil
}

func (f *FakeRemote) GetSession(_ context.Context, userID, sessionID string) (*learning.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("GetSession", userID, sessionID); err != nil {
		return nil, err
	}
	session, ok := f.sessions[userID][sessionID]
	if !ok {
		return nil, nil
	}
	session.CardIDs = f.cardIDs(userID, sessionID)
	return &session, nil
}

func (f *FakeRemote) ListSessions(_ context.Context, userID string) ([]learning.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("ListSessions", userID, ""); err != nil {
		return nil, err
	}
	var sessions []learning.Session
	for _, session := range f.sessions[userID] {
		session.CardIDs = f.cardIDs(userID, session.ID)
		sessions = append(sessions, session)
	}
	slices.SortFunc(sessions, func(a, b learning.Session) int {
		return cmp.Or(cmp.Compare(a.CreatedAt, b.CreatedAt), strings.Compare(a.ID, b.ID))
	})
	return sessions, nil
}

func (f *FakeRemote) DeleteSession(_ context.Context, userID, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("DeleteSession", userID, sessionID); err != nil {
		return err
	}
	delete(f.sessions[userID], sessionID)
	for id, card := range f.cards[userID] {
		if card.SessionID == sessionID {
			delete(f.cards[userID], id)
		}
	}
	return nil
}

func (f *FakeRemote) UpsertCard(_ context.Context, userID string, card *learning.Card) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("UpsertCard", userID, card.ID); err != nil {
		return err
	}
	return f.putCards(userID, []*learning.Card{card})
}

func (f *FakeRemote) UpsertCards(_ context.Context, userID string, cards []*learning.Card) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, len(cards))
	for i, card := range cards {
		ids[i] = card.ID
	}
	if err := f.begin("UpsertCards", userID, strings.Join(ids, ",")); err != nil {
		return err
	}
	for _, card := range cards {
		if err, ok := f.failures["UpsertCard:"+card.ID]; ok {
			return err
		}
	}
	return f.putCards(userID, cards)
}

// putCards stores all cards or none. f.mu must be held.
func (f *FakeRemote) putCards(userID string, cards []*learning.Card) error {
	for _, card := range cards {
		if err := learning.Validate(card); err != nil {
			return remotestore.NewError(remotestore.KindValidation, "UpsertCard", err)
		}
		if _, ok := f.sessions[userID][card.SessionID]; !ok {
			return remotestore.NewError(remotestore.KindConflict, "UpsertCard",
				errors.New("session "+card.SessionID+" does not exist"))
		}
	}
	if f.cards[userID] == nil {
		f.cards[userID] = make(map[string]learning.Card)
	}
	for _, card := range cards {
		f.cards[userID][card.ID] = *card
	}
	return nil
}

func (f *FakeRemote) GetCard(_ context.Context, userID, cardID string) (*learning.Card, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("GetCard", userID, cardID); err != nil {
		return nil, err
	}
	card, ok := f.cards[userID][cardID]
	if !ok {
		return nil, nil
	}
	return &card, nil
}

func (f *FakeRemote) ListCards(_ context.Context, userID string) ([]learning.Card, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("ListCards", userID, ""); err != nil {
		return nil, err
	}
	return f.sortedCards(userID, ""), nil
}

func (f *FakeRemote) ListCardsBySession(_ context.Context, userID, sessionID string) ([]learning.Card, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("ListCardsBySession", userID, sessionID); err != nil {
		return nil, err
	}
	return f.sortedCards(userID, sessionID), nil
}

func (f *FakeRemote) DeleteCard(_ context.Context, userID, cardID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("DeleteCard", userID, cardID); err != nil {
		return err
	}
	delete(f.cards[userID], cardID)
	return nil
}

func (f *FakeRemote) UpsertPreferences(_ context.Context, userID string, prefs *learning.UserPreferences) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("UpsertPreferences", userID, "default"); err != nil {
		return err
	}
	if err := learning.Validate(prefs); err != nil {
		return remotestore.NewError(remotestore.KindValidation, "UpsertPreferences", err)
	}
	f.prefs[userID] = *prefs
	return nil
}

func (f *FakeRemote) GetPreferences(_ context.Context, userID string) (*learning.UserPreferences, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("GetPreferences", userID, "default"); err != nil {
		return nil, err
	}
	prefs, ok := f.prefs[userID]
	if !ok {
		return nil, nil
	}
	return &prefs, nil
}

func (f *FakeRemote) UpsertAPIConfig(_ context.Context, userID string, cfg *learning.APIConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("UpsertAPIConfig", userID, "default"); err != nil {
		return err
	}
	if err := learning.Validate(cfg); err != nil {
		return remotestore.NewError(remotestore.KindValidation, "UpsertAPIConfig", err)
	}
	f.configs[userID] = *cfg
	return nil
}

func (f *FakeRemote) GetAPIConfig(_ context.Context, userID string) (*learning.APIConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("GetAPIConfig", userID, "default"); err != nil {
		return nil, err
	}
	cfg, ok := f.configs[userID]
	if !ok {
		return nil, nil
	}
	return &cfg, nil
}

// cardIDs returns the ids of the session's cards in creation order. f.mu must be held.
func (f *FakeRemote) cardIDs(userID, sessionID string) []string {
	var ids []string
	for _, card := range f.sortedCards(userID, sessionID) {
		ids = append(ids, card.ID)
	}
	return ids
}

// sortedCards returns the user's cards, limited to sessionID when set. f.mu must be held.
func (f *FakeRemote) sortedCards(userID, sessionID string) []learning.Card {
	var cards []learning.Card
	for _, card := range f.cards[userID] {
		if sessionID != "" && card.SessionID != sessionID {
			continue
		}
		cards = append(cards, card)
	}
	slices.SortFunc(cards, func(a, b learning.Card) int {
		return cmp.Or(cmp.Compare(a.CreatedAt, b.CreatedAt), strings.Compare(a.ID, b.ID))
	})
	return cards
}
