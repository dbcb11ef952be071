package remotestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/at-ishikawa/learnsync/internal/database"
	"github.com/at-ishikawa/learnsync/internal/learning"
)

type sessionRow struct {
	UserID    string `db:"user_id"`
	ID        string `db:"id"`
	Title     string `db:"title"`
	Status    string `db:"status"`
	Level     string `db:"level"`
	Payload   []byte `db:"payload"`
	CreatedAt int64  `db:"created_at"`
	UpdatedAt int64  `db:"updated_at"`
}

type cardRow struct {
	UserID       string `db:"user_id"`
	ID           string `db:"id"`
	SessionID    string `db:"session_id"`
	Title        string `db:"title"`
	NextReviewAt int64  `db:"next_review_at"`
	Payload      []byte `db:"payload"`
	CreatedAt    int64  `db:"created_at"`
	UpdatedAt    int64  `db:"updated_at"`
}

type settingsRow struct {
	UserID    string `db:"user_id"`
	Payload   []byte `db:"payload"`
	UpdatedAt int64  `db:"updated_at"`
}

var cardColumns = []string{"user_id", "id", "session_id", "title", "next_review_at", "payload", "created_at", "updated_at"}

const cardUpsertSuffix = ` ON DUPLICATE KEY UPDATE session_id = VALUES(session_id), title = VALUES(title),
	next_review_at = VALUES(next_review_at), payload = VALUES(payload), updated_at = VALUES(updated_at)`

// DBStore implements Store using MySQL.
type DBStore struct {
	db *sqlx.DB
}

// NewDBStore creates a new DBStore.
func NewDBStore(db *sqlx.DB) *DBStore {
	return &DBStore{db: db}
}

// Ping checks the connection.
func (s *DBStore) Ping(ctx context.Context) error {
	return classify("ping", s.db.PingContext(ctx))
}

// UpsertSession inserts or replaces the session. Card ids are not stored on the session row;
// they are derived from the cards table on read.
func (s *DBStore) UpsertSession(ctx context.Context, userID string, session *learning.Session) error {
	const op = "upsert session"
	if err := requireUser(op, userID); err != nil {
		return err
	}
	if err := validatePayload(op, session); err != nil {
		return err
	}

	stored := *session
	stored.CardIDs = nil
	payload, err := json.Marshal(stored)
	if err != nil {
		return NewError(KindValidation, op, err)
	}
	row := sessionRow{
		UserID:    userID,
		ID:        session.ID,
		Title:     session.Title,
		Status:    string(session.Status),
		Level:     string(session.Level),
		Payload:   payload,
		CreatedAt: session.CreatedAt,
		UpdatedAt: session.UpdatedAt,
	}
	_, err = s.db.NamedExecContext(ctx, `INSERT INTO sessions (user_id, id, title, status, level, payload, created_at, updated_at)
		VALUES (:user_id, :id, :title, :status, :level, :payload, :created_at, :updated_at)
		ON DUPLICATE KEY UPDATE title = VALUES(title), status = VALUES(status), level = VALUES(level),
		payload = VALUES(payload), updated_at = VALUES(updated_at)`, row)
	if err != nil {
		return classify(op, fmt.Errorf("upsert session %s: %w", session.ID, err))
	}
	return nil
}

// GetSession returns the session with its card ids, or nil when it does not exist.
func (s *DBStore) GetSession(ctx context.Context, userID, sessionID string) (*learning.Session, error) {
	const op = "get session"
	if err := requireUser(op, userID); err != nil {
		return nil, err
	}

	var payload []byte
	err := s.db.GetContext(ctx, &payload, "SELECT payload FROM sessions WHERE user_id = ? AND id = ?", userID, sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(op, fmt.Errorf("find session %s: %w", sessionID, err))
	}
	var session learning.Session
	if err := json.Unmarshal(payload, &session); err != nil {
		return nil, NewError(KindValidation, op, fmt.Errorf("decode session %s: %w", sessionID, err))
	}

	var cardIDs []string
	if err := s.db.SelectContext(ctx, &cardIDs,
		"SELECT id FROM cards WHERE user_id = ? AND session_id = ? ORDER BY created_at, id", userID, sessionID); err != nil {
		return nil, classify(op, fmt.Errorf("find card ids of session %s: %w", sessionID, err))
	}
	session.CardIDs = emptyToNil(cardIDs)
	return &session, nil
}

// ListSessions returns every session of the user ordered by creation time.
func (s *DBStore) ListSessions(ctx context.Context, userID string) ([]learning.Session, error) {
	const op = "list sessions"
	if err := requireUser(op, userID); err != nil {
		return nil, err
	}

	var rows []sessionRow
	if err := s.db.SelectContext(ctx, &rows,
		"SELECT * FROM sessions WHERE user_id = ? ORDER BY created_at, id", userID); err != nil {
		return nil, classify(op, fmt.Errorf("load sessions: %w", err))
	}
	if len(rows) == 0 {
		return nil, nil
	}

	var links []struct {
		ID        string `db:"id"`
		SessionID string `db:"session_id"`
	}
	if err := s.db.SelectContext(ctx, &links,
		"SELECT id, session_id FROM cards WHERE user_id = ? ORDER BY created_at, id", userID); err != nil {
		return nil, classify(op, fmt.Errorf("load card ids: %w", err))
	}
	cardIDs := make(map[string][]string)
	for _, link := range links {
		cardIDs[link.SessionID] = append(cardIDs[link.SessionID], link.ID)
	}

	sessions := make([]learning.Session, 0, len(rows))
	for _, row := range rows {
		var session learning.Session
		if err := json.Unmarshal(row.Payload, &session); err != nil {
			return nil, NewError(KindValidation, op, fmt.Errorf("decode session %s: %w", row.ID, err))
		}
		session.CardIDs = cardIDs[row.ID]
		sessions = append(sessions, session)
	}
	return sessions, nil
}

// DeleteSession removes the session; cards are removed by the foreign key cascade.
func (s *DBStore) DeleteSession(ctx context.Context, userID, sessionID string) error {
	const op = "delete session"
	if err := requireUser(op, userID); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE user_id = ? AND id = ?", userID, sessionID); err != nil {
		return classify(op, fmt.Errorf("delete session %s: %w", sessionID, err))
	}
	return nil
}

func newCardRow(userID string, card *learning.Card) (cardRow, error) {
	payload, err := json.Marshal(card)
	if err != nil {
		return cardRow{}, err
	}
	return cardRow{
		UserID:       userID,
		ID:           card.ID,
		SessionID:    card.SessionID,
		Title:        card.Title,
		NextReviewAt: card.NextReviewAt,
		Payload:      payload,
		CreatedAt:    card.CreatedAt,
		UpdatedAt:    card.UpdatedAt,
	}, nil
}

// UpsertCard inserts or replaces the card.
func (s *DBStore) UpsertCard(ctx context.Context, userID string, card *learning.Card) error {
	return s.UpsertCards(ctx, userID, []*learning.Card{card})
}

// UpsertCards writes the cards in one statement; either all of them are stored or none.
func (s *DBStore) UpsertCards(ctx context.Context, userID string, cards []*learning.Card) error {
	const op = "upsert cards"
	if err := requireUser(op, userID); err != nil {
		return err
	}
	if len(cards) == 0 {
		return nil
	}

	args := make([]any, 0, len(cards)*len(cardColumns))
	for _, card := range cards {
		if err := validatePayload(op, card); err != nil {
			return err
		}
		row, err := newCardRow(userID, card)
		if err != nil {
			return NewError(KindValidation, op, err)
		}
		args = append(args, row.UserID, row.ID, row.SessionID, row.Title, row.NextReviewAt, row.Payload, row.CreatedAt, row.UpdatedAt)
	}

	query := database.BuildMultiRowInsert("cards", cardColumns, len(cards)) + cardUpsertSuffix
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return classify(op, fmt.Errorf("upsert %d card(s): %w", len(cards), err))
	}
	return nil
}

// GetCard returns the card, or nil when it does not exist.
func (s *DBStore) GetCard(ctx context.Context, userID, cardID string) (*learning.Card, error) {
	const op = "get card"
	if err := requireUser(op, userID); err != nil {
		return nil, err
	}

	var payload []byte
	err := s.db.GetContext(ctx, &payload, "SELECT payload FROM cards WHERE user_id = ? AND id = ?", userID, cardID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(op, fmt.Errorf("find card %s: %w", cardID, err))
	}
	var card learning.Card
	if err := json.Unmarshal(payload, &card); err != nil {
		return nil, NewError(KindValidation, op, fmt.Errorf("decode card %s: %w", cardID, err))
	}
	return &card, nil
}

// ListCards returns every card of the user.
func (s *DBStore) ListCards(ctx context.Context, userID string) ([]learning.Card, error) {
	const op = "list cards"
	if err := requireUser(op, userID); err != nil {
		return nil, err
	}
	return s.selectCards(ctx, op, "SELECT payload FROM cards WHERE user_id = ? ORDER BY created_at, id", userID)
}

// ListCardsBySession returns the cards of one session.
func (s *DBStore) ListCardsBySession(ctx context.Context, userID, sessionID string) ([]learning.Card, error) {
	const op = "list cards by session"
	if err := requireUser(op, userID); err != nil {
		return nil, err
	}
	return s.selectCards(ctx, op,
		"SELECT payload FROM cards WHERE user_id = ? AND session_id = ? ORDER BY created_at, id", userID, sessionID)
}

func (s *DBStore) selectCards(ctx context.Context, op, query string, args ...any) ([]learning.Card, error) {
	var payloads [][]byte
	if err := s.db.SelectContext(ctx, &payloads, query, args...); err != nil {
		return nil, classify(op, fmt.Errorf("load cards: %w", err))
	}
	if len(payloads) == 0 {
		return nil, nil
	}
	cards := make([]learning.Card, 0, len(payloads))
	for _, payload := range payloads {
		var card learning.Card
		if err := json.Unmarshal(payload, &card); err != nil {
			return nil, NewError(KindValidation, op, fmt.Errorf("decode card: %w", err))
		}
		cards = append(cards, card)
	}
	return cards, nil
}

// DeleteCard removes the card. Deleting a missing card succeeds.
func (s *DBStore) DeleteCard(ctx context.Context, userID, cardID string) error {
	const op = "delete card"
	if err := requireUser(op, userID); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM cards WHERE user_id = ? AND id = ?", userID, cardID); err != nil {
		return classify(op, fmt.Errorf("delete card %s: %w", cardID, err))
	}
	return nil
}

// UpsertPreferences replaces the preferences of the user.
func (s *DBStore) UpsertPreferences(ctx context.Context, userID string, prefs *learning.UserPreferences) error {
	const op = "upsert preferences"
	if err := requireUser(op, userID); err != nil {
		return err
	}
	if err := validatePayload(op, prefs); err != nil {
		return err
	}
	return s.upsertSettings(ctx, op, "user_preferences", userID, prefs.UpdatedAt, prefs)
}

// GetPreferences returns the preferences of the user, or nil when none are stored.
func (s *DBStore) GetPreferences(ctx context.Context, userID string) (*learning.UserPreferences, error) {
	const op = "get preferences"
	if err := requireUser(op, userID); err != nil {
		return nil, err
	}
	var prefs learning.UserPreferences
	found, err := s.getSettings(ctx, op, "user_preferences", userID, &prefs)
	if err != nil || !found {
		return nil, err
	}
	return &prefs, nil
}

// UpsertAPIConfig replaces the API config of the user.
func (s *DBStore) UpsertAPIConfig(ctx context.Context, userID string, cfg *learning.APIConfig) error {
	const op = "upsert api config"
	if err := requireUser(op, userID); err != nil {
		return err
	}
	if err := validatePayload(op, cfg); err != nil {
		return err
	}
	return s.upsertSettings(ctx, op, "api_configs", userID, cfg.UpdatedAt, cfg)
}

// GetAPIConfig returns the API config of the user, or nil when none is stored.
func (s *DBStore) GetAPIConfig(ctx context.Context, userID string) (*learning.APIConfig, error) {
	const op = "get api config"
	if err := requireUser(op, userID); err != nil {
		return nil, err
	}
	var cfg learning.APIConfig
	found, err := s.getSettings(ctx, op, "api_configs", userID, &cfg)
	if err != nil || !found {
		return nil, err
	}
	return &cfg, nil
}

func (s *DBStore) upsertSettings(ctx context.Context, op, table, userID string, updatedAt int64, record any) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return NewError(KindValidation, op, err)
	}
	row := settingsRow{UserID: userID, Payload: payload, UpdatedAt: updatedAt}
	query := "INSERT INTO " + table + " (user_id, payload, updated_at) VALUES (:user_id, :payload, :updated_at)" +
		" ON DUPLICATE KEY UPDATE payload = VALUES(payload), updated_at = VALUES(updated_at)"
	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		return classify(op, fmt.Errorf("upsert %s: %w", strings.ReplaceAll(table, "_", " "), err))
	}
	return nil
}

func (s *DBStore) getSettings(ctx context.Context, op, table, userID string, out any) (bool, error) {
	var payload []byte
	err := s.db.GetContext(ctx, &payload, "SELECT payload FROM "+table+" WHERE user_id = ?", userID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, classify(op, fmt.Errorf("find %s: %w", strings.ReplaceAll(table, "_", " "), err))
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return false, NewError(KindValidation, op, fmt.Errorf("decode %s: %w", table, err))
	}
	return true, nil
}

func emptyToNil(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	return ids
}
