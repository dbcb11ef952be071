package hybrid

import (
	"context"
	"fmt"
	"time"

	"github.com/at-ishikawa/learnsync/internal/classifier"
	"github.com/at-ishikawa/learnsync/internal/events"
	"github.com/at-ishikawa/learnsync/internal/learning"
	"github.com/at-ishikawa/learnsync/internal/localstore"
	"github.com/at-ishikawa/learnsync/internal/offlinequeue"
)

// SyncResult summarizes a quick or full sync.
type SyncResult struct {
	Scope     string        `json:"scope"`
	Total     int           `json:"total"`
	Mirrored  int           `json:"mirrored"`
	Queued    int           `json:"queued"`
	Errors    []string      `json:"errors,omitempty"`
	Estimated time.Duration `json:"estimated"`
}

// Plan classifies the local data into sync priority buckets.
func (s *Storage) Plan(ctx context.Context) (classifier.Plan, error) {
	snap, err := s.snapshot()
	if err != nil {
		return classifier.Plan{}, err
	}
	plan, err := classifier.Classify(snap, s.policy)
	if err != nil {
		return classifier.Plan{}, fmt.Errorf("build sync plan: %w", err)
	}
	return plan, nil
}

// QuickSync pushes the critical bucket only.
func (s *Storage) QuickSync(ctx context.Context) (*SyncResult, error) {
	return s.push(ctx, classifier.ScopeQuick)
}

// FullSync pushes the critical and important buckets, and the optional one when includeOptional is set.
func (s *Storage) FullSync(ctx context.Context, includeOptional bool) (*SyncResult, error) {
	if includeOptional {
		return s.push(ctx, classifier.ScopeEverything)
	}
	return s.push(ctx, classifier.ScopeFull)
}

// push writes every item of the scope through the regular mirror path, so an item the
// remote store does not accept ends up in the offline queue like any other write.
func (s *Storage) push(ctx context.Context, scope classifier.Scope) (*SyncResult, error) {
	if _, ok := s.currentUser(); !ok {
		return nil, ErrAnonymous
	}
	snap, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	plan, err := classifier.Classify(snap, s.policy)
	if err != nil {
		return nil, fmt.Errorf("%s sync: %w", scope, err)
	}

	sessions := make(map[string]*learning.Session, len(snap.Sessions))
	for i := range snap.Sessions {
		sessions[snap.Sessions[i].ID] = &snap.Sessions[i]
	}
	cards := make(map[string]*learning.Card, len(snap.Cards))
	for i := range snap.Cards {
		cards[snap.Cards[i].ID] = &snap.Cards[i]
	}

	items := plan.Items(scope)
	result := &SyncResult{Scope: scope.String(), Total: len(items), Estimated: plan.Estimate(scope)}
	s.bus.Publish(events.Event{Kind: events.KindSyncStarted, Total: len(items)})

	for i, di := range items {
		var item *offlinequeue.Item
		switch di.Type {
		case offlinequeue.EntitySession:
			item, err = s.newItem(offlinequeue.OpUpsertSession, di.ID, "", sessions[di.ID])
		case offlinequeue.EntityCard:
			item, err = s.newItem(offlinequeue.OpUpsertCard, di.ID, di.ParentID, cards[di.ID])
		case offlinequeue.EntityPreferences:
			item, err = s.newItem(offlinequeue.OpUpsertPreferences, di.ID, "", snap.Preferences)
		case offlinequeue.EntityAPIConfig:
			item, err = s.newItem(offlinequeue.OpUpsertAPIConfig, di.ID, "", snap.APIConfig)
		default:
			err = fmt.Errorf("%s sync: unknown entity type %q", scope, di.Type)
		}
		if err != nil {
			return result, err
		}

		out, err := s.mirror(ctx, item)
		if err != nil {
			return result, err
		}
		switch out {
		case outcomeMirrored:
			result.Mirrored++
		case outcomeQueued:
			result.Queued++
			if item.LastError != "" {
				result.Errors = append(result.Errors, fmt.Sprintf("%s %s: %s", di.Type, di.ID, item.LastError))
			}
		}
		s.bus.Publish(events.Event{Kind: events.KindSyncProgress, Current: i + 1, Total: len(items)})
	}

	s.bus.Publish(events.Event{
		Kind:   events.KindSyncCompleted,
		Synced: result.Mirrored,
		Failed: result.Queued,
		Errors: result.Errors,
	})
	s.logger.Info("pushed local data", "scope", result.Scope, "mirrored", result.Mirrored, "queued", result.Queued)
	return result, nil
}

func (s *Storage) snapshot() (classifier.Snapshot, error) {
	sessions, err := localstore.ListAs[learning.Session](s.local, localstore.CollectionSessions)
	if err != nil {
		return classifier.Snapshot{}, fmt.Errorf("load local sessions: %w", err)
	}
	cards, err := localstore.ListAs[learning.Card](s.local, localstore.CollectionCards)
	if err != nil {
		return classifier.Snapshot{}, fmt.Errorf("load local cards: %w", err)
	}
	prefs, err := localstore.GetAs[learning.UserPreferences](s.local, localstore.CollectionPreferences, localstore.DefaultID)
	if err != nil {
		return classifier.Snapshot{}, fmt.Errorf("load local preferences: %w", err)
	}
	apiConfig, err := localstore.GetAs[learning.APIConfig](s.local, localstore.CollectionConfig, localstore.DefaultID)
	if err != nil {
		return classifier.Snapshot{}, fmt.Errorf("load local api config: %w", err)
	}
	active, err := s.ActiveSessionID()
	if err != nil {
		return classifier.Snapshot{}, err
	}
	sortSessions(sessions)
	sortCards(cards)
	return classifier.Snapshot{
		Sessions:        sessions,
		Cards:           cards,
		Preferences:     prefs,
		APIConfig:       apiConfig,
		ActiveSessionID: active,
		Now:             s.now(),
	}, nil
}
