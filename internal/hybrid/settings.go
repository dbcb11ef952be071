package hybrid

import (
	"context"
	"fmt"

	"github.com/at-ishikawa/learnsync/internal/learning"
	"github.com/at-ishikawa/learnsync/internal/localstore"
	"github.com/at-ishikawa/learnsync/internal/offlinequeue"
)

// SaveUserPreferences stores the preferences and mirrors them.
func (s *Storage) SaveUserPreferences(ctx context.Context, prefs *learning.UserPreferences) error {
	const op = "save user preferences"
	if prefs == nil {
		return fmt.Errorf("%s: preferences are nil", op)
	}
	prefs.UpdatedAt = s.nowMillis()
	if err := learning.Validate(prefs); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return s.storeSingleton(ctx, op, localstore.CollectionPreferences, offlinequeue.OpUpsertPreferences, prefs)
}

// GetUserPreferences returns the preferences, or nil when none were saved.
func (s *Storage) GetUserPreferences(ctx context.Context) (*learning.UserPreferences, error) {
	return readSingleton(ctx, s, "get user preferences", localstore.CollectionPreferences, offlinequeue.EntityPreferences,
		func(ctx context.Context, userID string) (*learning.UserPreferences, error) {
			return s.remote.GetPreferences(ctx, userID)
		})
}

// SaveAPIConfig stores the LLM provider settings and mirrors them.
func (s *Storage) SaveAPIConfig(ctx context.Context, cfg *learning.APIConfig) error {
	const op = "save api config"
	if cfg == nil {
		return fmt.Errorf("%s: config is nil", op)
	}
	cfg.UpdatedAt = s.nowMillis()
	if err := learning.Validate(cfg); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return s.storeSingleton(ctx, op, localstore.CollectionConfig, offlinequeue.OpUpsertAPIConfig, cfg)
}

// GetAPIConfig returns the LLM provider settings, or nil when none were saved.
func (s *Storage) GetAPIConfig(ctx context.Context) (*learning.APIConfig, error) {
	return readSingleton(ctx, s, "get api config", localstore.CollectionConfig, offlinequeue.EntityAPIConfig,
		func(ctx context.Context, userID string) (*learning.APIConfig, error) {
			return s.remote.GetAPIConfig(ctx, userID)
		})
}

func (s *Storage) storeSingleton(ctx context.Context, op, collection string, operation offlinequeue.Operation, record any) error {
	if err := s.local.Put(collection, localstore.DefaultID, record); err != nil {
		return localFailure(op, err)
	}
	item, err := s.newItem(operation, localstore.DefaultID, "", record)
	if err != nil {
		return err
	}
	_, err = s.mirror(ctx, item)
	return err
}
