package hybrid

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/at-ishikawa/learnsync/internal/datasync"
	"github.com/at-ishikawa/learnsync/internal/events"
	"github.com/at-ishikawa/learnsync/internal/localstore"
)

const metaMigratedPrefix = "migrated:"

// LoginResult reports what happened after a user signed in.
type LoginResult struct {
	UserID string `json:"userId"`
	// Migration is nil when the local data was already migrated for this user.
	Migration *datasync.MigrationResult `json:"migration,omitempty"`
	Drain     *DrainResult              `json:"drain,omitempty"`
}

// HandleLogin moves the device's local data into the signed-in user's remote store the first
// time that user signs in on this device, then drains the offline queue. The migration is
// repeated on later logins until it completes without failures.
func (s *Storage) HandleLogin(ctx context.Context, progress io.Writer) (*LoginResult, error) {
	userID, ok := s.currentUser()
	if !ok {
		return nil, ErrAnonymous
	}
	result := &LoginResult{UserID: userID}

	flagID := metaMigratedPrefix + userID
	flag, err := localstore.GetAs[metaValue](s.local, localstore.CollectionMeta, flagID)
	if err != nil {
		return nil, fmt.Errorf("handle login: %w", err)
	}
	if flag == nil {
		migration, err := datasync.NewMigrator(s.local, s.remote, progress, s.sync.RemoteTimeout).Migrate(ctx, userID)
		var partial *datasync.PartialFailureError
		if err != nil && !errors.As(err, &partial) {
			return nil, fmt.Errorf("handle login: %w", err)
		}
		result.Migration = migration

		failures := make([]string, 0, len(migration.Errors))
		for _, itemErr := range migration.Errors {
			failures = append(failures, itemErr.String())
		}
		s.bus.Publish(events.Event{
			Kind:   events.KindMigrationCompleted,
			Synced: migration.Migrated,
			Failed: migration.Failed,
			Errors: failures,
		})

		if migration.Failed == 0 {
			if err := s.local.Put(localstore.CollectionMeta, flagID, metaValue{Value: s.now().UTC().Format(time.RFC3339)}); err != nil {
				return result, localFailure("handle login", err)
			}
			s.logger.Info("migrated local data", "user", userID, "migrated", migration.Migrated)
		} else {
			s.logger.Warn("migration incomplete, it will run again on the next login",
				"user", userID, "migrated", migration.Migrated, "failed", migration.Failed)
		}
	}

	drain, err := s.Drain(ctx)
	if err != nil {
		return result, err
	}
	result.Drain = drain
	return result, nil
}

// Migrated reports whether the local data was fully migrated for userID.
func (s *Storage) Migrated(userID string) (bool, error) {
	flag, err := localstore.GetAs[metaValue](s.local, localstore.CollectionMeta, metaMigratedPrefix+userID)
	if err != nil {
		return false, fmt.Errorf("check migration: %w", err)
	}
	return flag != nil, nil
}

// NotifyOnline asks a running Run loop to drain now. It never blocks.
func (s *Storage) NotifyOnline() {
	select {
	case s.online <- struct{}{}:
	default:
	}
}

// Run drains the queue at start, on every sync interval and on NotifyOnline, until ctx is done.
func (s *Storage) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.sync.Interval)
	defer ticker.Stop()

	s.backgroundDrain(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.backgroundDrain(ctx)
		case <-s.online:
			s.backgroundDrain(ctx)
		}
	}
}

func (s *Storage) backgroundDrain(ctx context.Context) {
	if _, ok := s.currentUser(); !ok {
		return
	}
	result, err := s.Drain(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("background drain failed", "error", err)
		}
		return
	}
	if result.Skipped {
		return
	}
	s.logger.Debug("background drain finished", "synced", result.Synced, "remaining", result.Remaining)
}
