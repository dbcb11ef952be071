// Package offlinequeue provides the durable log of writes waiting to be replayed against the remote store.
package offlinequeue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// Operation is the kind of remote write an item replays.
type Operation string

const (
	OpUpsertSession     Operation = "upsert-session"
	OpDeleteSession     Operation = "delete-session"
	OpUpsertCard        Operation = "upsert-card"
	OpDeleteCard        Operation = "delete-card"
	OpUpsertPreferences Operation = "upsert-preferences"
	OpUpsertAPIConfig   Operation = "upsert-api-config"
)

// EntityType groups operations that target the same record.
type EntityType string

const (
	EntitySession     EntityType = "session"
	EntityCard        EntityType = "card"
	EntityPreferences EntityType = "preferences"
	EntityAPIConfig   EntityType = "api-config"
)

// EntityType returns the entity type the operation writes.
func (op Operation) EntityType() EntityType {
	switch op {
	case OpUpsertSession, OpDeleteSession:
		return EntitySession
	case OpUpsertCard, OpDeleteCard:
		return EntityCard
	case OpUpsertPreferences:
		return EntityPreferences
	case OpUpsertAPIConfig:
		return EntityAPIConfig
	}
	return ""
}

// Item is one pending remote write.
type Item struct {
	Seq        int64      `db:"seq"`
	ID         string     `db:"id"`
	Operation  Operation  `db:"operation"`
	EntityType EntityType `db:"entity_type"`
	EntityID   string     `db:"entity_id"`
	// ParentID is the owning session of a card operation.
	ParentID   string `db:"parent_id"`
	// UserID is the signed-in user the write belongs to. Only that user replays it.
	UserID     string `db:"user_id"`
	Payload    []byte `db:"payload"`
	CreatedAt  int64  `db:"created_at"`
	RetryCount int    `db:"retry_count"`
	LastError  string `db:"last_error"`
}

// Key identifies the entity the item writes; items sharing a key replay in order.
func (i Item) Key() string {
	return string(i.EntityType) + ":" + i.EntityID
}

// Decode unmarshals the payload into out.
func (i Item) Decode(out any) error {
	if err := json.Unmarshal(i.Payload, out); err != nil {
		return fmt.Errorf("decode %s payload of %s: %w", i.Operation, i.Key(), err)
	}
	return nil
}

// NewItem builds an item for op, serializing payload when it is not nil.
func NewItem(id string, op Operation, entityID, parentID string, payload any, now time.Time) (*Item, error) {
	item := &Item{
		ID:         id,
		Operation:  op,
		EntityType: op.EntityType(),
		EntityID:   entityID,
		ParentID:   parentID,
		CreatedAt:  now.UnixMilli(),
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", op, err)
		}
		item.Payload = data
	}
	return item, nil
}

// Queue is a FIFO of pending items stored in the local SQLite file.
type Queue struct {
	db *sqlx.DB
}

// New creates a Queue on a database that already carries the sync_queue table.
func New(db *sqlx.DB) *Queue {
	return &Queue{db: db}
}

// Enqueue appends the item. The sequence assigned by the database defines replay order.
func (q *Queue) Enqueue(ctx context.Context, item *Item) error {
	if item == nil {
		return fmt.Errorf("enqueue: item is nil")
	}
	if item.ID == "" || item.Operation == "" || item.EntityID == "" {
		return fmt.Errorf("enqueue: id, operation and entity id are required")
	}
	if item.EntityType == "" {
		item.EntityType = item.Operation.EntityType()
	}
	result, err := q.db.ExecContext(ctx, `
		INSERT INTO sync_queue (id, operation, entity_type, entity_id, parent_id, user_id, payload, created_at, retry_count, last_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, item.ID, item.Operation, item.EntityType, item.EntityID, item.ParentID, item.UserID, string(item.Payload), item.CreatedAt, item.RetryCount, item.LastError)
	if err != nil {
		return fmt.Errorf("enqueue %s %s: %w", item.Operation, item.Key(), err)
	}
	seq, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("enqueue %s %s: last insert id: %w", item.Operation, item.Key(), err)
	}
	item.Seq = seq
	return nil
}

const selectItems = `
	SELECT seq, id, operation, entity_type, entity_id, parent_id, user_id, COALESCE(payload, '') AS payload, created_at, retry_count, last_error
	FROM sync_queue
`

// PeekAll returns every pending item in submission order without removing them.
func (q *Queue) PeekAll(ctx context.Context) ([]Item, error) {
	var items []Item
	if err := q.db.SelectContext(ctx, &items, selectItems+"ORDER BY seq"); err != nil {
		return nil, fmt.Errorf("load pending items: %w", err)
	}
	return items, nil
}

// PeekByUser returns the pending items written by userID in submission order.
func (q *Queue) PeekByUser(ctx context.Context, userID string) ([]Item, error) {
	var items []Item
	if err := q.db.SelectContext(ctx, &items, selectItems+"WHERE user_id = ? ORDER BY seq", userID); err != nil {
		return nil, fmt.Errorf("load pending items of user %s: %w", userID, err)
	}
	return items, nil
}

// Exists reports whether the item is still pending.
func (q *Queue) Exists(ctx context.Context, id string) (bool, error) {
	var n int
	if err := q.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM sync_queue WHERE id = ?", id); err != nil {
		return false, fmt.Errorf("check pending item %s: %w", id, err)
	}
	return n > 0, nil
}

// Remove deletes a replayed item.
func (q *Queue) Remove(ctx context.Context, id string) error {
	if _, err := q.db.ExecContext(ctx, "DELETE FROM sync_queue WHERE id = ?", id); err != nil {
		return fmt.Errorf("remove pending item %s: %w", id, err)
	}
	return nil
}

// RemoveByEntity deletes every pending item of the entity and returns how many were removed.
func (q *Queue) RemoveByEntity(ctx context.Context, entityType EntityType, entityID string) (int, error) {
	result, err := q.db.ExecContext(ctx,
		"DELETE FROM sync_queue WHERE entity_type = ? AND entity_id = ?", entityType, entityID)
	if err != nil {
		return 0, fmt.Errorf("remove pending items of %s:%s: %w", entityType, entityID, err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("remove pending items of %s:%s: rows affected: %w", entityType, entityID, err)
	}
	return int(count), nil
}

// RemoveByParent deletes every pending item owned by the session parentID.
func (q *Queue) RemoveByParent(ctx context.Context, parentID string) (int, error) {
	if parentID == "" {
		return 0, nil
	}
	result, err := q.db.ExecContext(ctx, "DELETE FROM sync_queue WHERE parent_id = ?", parentID)
	if err != nil {
		return 0, fmt.Errorf("remove pending items of session %s: %w", parentID, err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("remove pending items of session %s: rows affected: %w", parentID, err)
	}
	return int(count), nil
}

// RecordFailure increments the retry count of the item and stores the error message.
func (q *Queue) RecordFailure(ctx context.Context, id string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if _, err := q.db.ExecContext(ctx,
		"UPDATE sync_queue SET retry_count = retry_count + 1, last_error = ? WHERE id = ?", msg, id); err != nil {
		return fmt.Errorf("record failure of pending item %s: %w", id, err)
	}
	return nil
}

// Size returns the number of pending items.
func (q *Queue) Size(ctx context.Context) (int, error) {
	var n int
	if err := q.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM sync_queue"); err != nil {
		return 0, fmt.Errorf("count pending items: %w", err)
	}
	return n, nil
}

// SizeByUser returns the number of pending items written by userID.
func (q *Queue) SizeByUser(ctx context.Context, userID string) (int, error) {
	var n int
	if err := q.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM sync_queue WHERE user_id = ?", userID); err != nil {
		return 0, fmt.Errorf("count pending items of user %s: %w", userID, err)
	}
	return n, nil
}

// HasPending reports whether any item targets the entity.
func (q *Queue) HasPending(ctx context.Context, entityType EntityType, entityID string) (bool, error) {
	var n int
	if err := q.db.GetContext(ctx, &n,
		"SELECT COUNT(*) FROM sync_queue WHERE entity_type = ? AND entity_id = ?", entityType, entityID); err != nil {
		return false, fmt.Errorf("check pending items of %s:%s: %w", entityType, entityID, err)
	}
	return n > 0, nil
}

// HasPendingChildren reports whether any item is owned by the session parentID.
func (q *Queue) HasPendingChildren(ctx context.Context, parentID string) (bool, error) {
	var n int
	if err := q.db.GetContext(ctx, &n,
		"SELECT COUNT(*) FROM sync_queue WHERE parent_id = ?", parentID); err != nil {
		return false, fmt.Errorf("check pending items of session %s: %w", parentID, err)
	}
	return n > 0, nil
}
