package hybrid

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"golang.org/x/sync/errgroup"

	"github.com/at-ishikawa/learnsync/internal/events"
	"github.com/at-ishikawa/learnsync/internal/offlinequeue"
	"github.com/at-ishikawa/learnsync/internal/remotestore"
)

// DrainResult summarizes one replay of the offline queue.
type DrainResult struct {
	Synced int `json:"synced"`
	Failed int `json:"failed"`
	// Dropped counts rejected items removed after exhausting their attempts.
	Dropped int `json:"dropped"`
	// Blocked counts items left untouched behind a failed item of the same entity or parent session.
	Blocked   int      `json:"blocked"`
	Errors    []string `json:"errors,omitempty"`
	Remaining int      `json:"remaining"`
	// Held counts items queued by other users. They stay queued until that user drains.
	Held int `json:"held,omitempty"`
	// Superseded counts items removed from the queue by a later write while the drain ran.
	Superseded int `json:"superseded,omitempty"`
	// Skipped is set when another drain was already running.
	Skipped bool `json:"skipped,omitempty"`
}

// chain is the ordered run of queued items of one entity.
type chain struct {
	key      string
	parentID string
	items    []offlinequeue.Item
}

// Drain replays the offline queue against the remote store. Items of one entity replay in
// submission order and a failure holds back the rest of that entity; sessions and settings
// replay before cards so a card never reaches the remote store ahead of its session.
// Only the items queued by the signed-in user are replayed.
// A call made while another drain runs returns immediately with Skipped set.
func (s *Storage) Drain(ctx context.Context) (*DrainResult, error) {
	userID, ok := s.currentUser()
	if !ok {
		return nil, ErrAnonymous
	}
	if !s.draining.CompareAndSwap(false, true) {
		s.logger.Debug("drain already running")
		return &DrainResult{Skipped: true}, nil
	}
	defer s.draining.Store(false)

	items, err := s.queue.PeekByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("drain: %w", err)
	}
	s.bus.Publish(events.Event{Kind: events.KindSyncStarted, Total: len(items)})

	d := &drainer{storage: s, userID: userID, total: len(items), failedKeys: make(map[string]bool)}
	parents, cards := groupChains(items)
	runErr := d.run(ctx, parents)
	if runErr == nil {
		var ready []chain
		for _, c := range cards {
			if c.parentID != "" && d.failed(string(offlinequeue.EntitySession)+":"+c.parentID) {
				d.block(len(c.items))
				continue
			}
			ready = append(ready, c)
		}
		runErr = d.run(ctx, ready)
	}

	result := d.result()
	if err := s.countRemaining(ctx, userID, result); err != nil && runErr == nil {
		runErr = err
	}
	s.bus.Publish(events.Event{
		Kind:   events.KindSyncCompleted,
		Synced: result.Synced,
		Failed: result.Failed + result.Dropped,
		Errors: result.Errors,
	})
	s.logger.Info("drained offline queue",
		"synced", result.Synced, "failed", result.Failed, "dropped", result.Dropped,
		"blocked", result.Blocked, "superseded", result.Superseded, "remaining", result.Remaining, "held", result.Held)
	if runErr != nil {
		return result, runErr
	}
	return result, nil
}

func (s *Storage) countRemaining(ctx context.Context, userID string, result *DrainResult) error {
	remaining, err := s.queue.SizeByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("drain: %w", err)
	}
	total, err := s.queue.Size(ctx)
	if err != nil {
		return fmt.Errorf("drain: %w", err)
	}
	result.Remaining = remaining
	result.Held = total - remaining
	return nil
}

// groupChains splits items into per-entity chains, keeping first-seen order.
// Session and settings chains come first, card chains second.
func groupChains(items []offlinequeue.Item) (parents, cards []chain) {
	index := make(map[string]int)
	var all []chain
	for _, item := range items {
		key := item.Key()
		i, ok := index[key]
		if !ok {
			i = len(all)
			index[key] = i
			all = append(all, chain{key: key, parentID: item.ParentID})
		}
		all[i].items = append(all[i].items, item)
	}
	for _, c := range all {
		if c.items[0].EntityType == offlinequeue.EntityCard {
			cards = append(cards, c)
			continue
		}
		parents = append(parents, c)
	}
	return parents, cards
}

type drainer struct {
	storage *Storage
	userID  string
	total   int

	mu         sync.Mutex
	current    int
	synced     int
	failedN    int
	dropped    int
	superseded int
	blocked    int
	errors     []string
	failedKeys map[string]bool
}

func (d *drainer) run(ctx context.Context, chains []chain) error {
	if len(chains) == 0 {
		return nil
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(d.storage.sync.DrainConcurrency)
	for _, c := range chains {
		g.Go(func() error {
			return d.replayChain(ctx, c)
		})
	}
	return g.Wait()
}

func (d *drainer) replayChain(ctx context.Context, c chain) error {
	s := d.storage
	for i := range c.items {
		item := &c.items[i]
		if err := ctx.Err(); err != nil {
			return err
		}

		err := s.replay(ctx, d.userID, item)
		if errors.Is(err, errSuperseded) {
			d.progress(func() { d.superseded++ })
			continue
		}
		if errors.Is(err, ErrLocalWrite) {
			return fmt.Errorf("drain: %w", err)
		}
		if err == nil {
			if err := s.queue.Remove(ctx, item.ID); err != nil {
				return fmt.Errorf("drain: %w", err)
			}
			d.progress(func() { d.synced++ })
			continue
		}

		msg := fmt.Sprintf("%s %s: %v", item.Operation, item.EntityID, err)
		if remotestore.IsRejected(err) && item.RetryCount+1 >= s.sync.MaxItemAttempts {
			if err := s.queue.Remove(ctx, item.ID); err != nil {
				return fmt.Errorf("drain: %w", err)
			}
			s.logger.Error("dropped queued write after repeated rejections",
				"operation", item.Operation, "entity", item.Key(), "attempts", item.RetryCount+1, "error", err)
			d.progress(func() {
				d.dropped++
				d.errors = append(d.errors, msg)
			})
			continue
		}

		s.logRemoteFailure("replay queued write", item, err)
		if err := s.queue.RecordFailure(ctx, item.ID, err); err != nil {
			return fmt.Errorf("drain: %w", err)
		}
		d.progress(func() {
			d.failedN++
			d.errors = append(d.errors, msg)
			d.failedKeys[c.key] = true
		})
		d.block(len(c.items) - i - 1)
		return nil
	}
	return nil
}

// errSuperseded reports a queued item that was removed after the drain read the queue.
var errSuperseded = errors.New("queued write superseded")

// replay sends one queued item, retrying unreachable failures with backoff.
// The item is checked again under the entity lock, since a delete may have discarded it.
func (s *Storage) replay(ctx context.Context, userID string, item *offlinequeue.Item) error {
	unlock := s.locks.Lock(item.Key())
	defer unlock()

	pending, err := s.queue.Exists(ctx, item.ID)
	if err != nil {
		return localFailure("replay queued write", err)
	}
	if !pending {
		return errSuperseded
	}

	var lastErr error
	err = retry.Do(
		func() error {
			lastErr = s.attempt(ctx, userID, item)
			if lastErr != nil && !remotestore.IsRetryable(lastErr) {
				return retry.Unrecoverable(lastErr)
			}
			return lastErr
		},
		retry.Context(ctx),
		retry.Attempts(s.sync.RetryAttempts),
		retry.Delay(s.sync.RetryDelay),
		retry.MaxDelay(s.sync.MaxRetryDelay),
		retry.LastErrorOnly(true),
		retry.DelayType(func(n uint, err error, config *retry.Config) time.Duration {
			return retry.BackOffDelay(n, err, config)
		}),
	)
	if err == nil {
		return nil
	}
	if lastErr != nil {
		return lastErr
	}
	return err
}

func (d *drainer) progress(update func()) {
	d.mu.Lock()
	update()
	d.current++
	current := d.current
	d.mu.Unlock()
	d.storage.bus.Publish(events.Event{Kind: events.KindSyncProgress, Current: current, Total: d.total})
}

func (d *drainer) block(n int) {
	if n <= 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.blocked += n
}

func (d *drainer) failed(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.failedKeys[key]
}

func (d *drainer) result() *DrainResult {
	d.mu.Lock()
	defer d.mu.Unlock()
	return &DrainResult{
		Synced:     d.synced,
		Failed:     d.failedN,
		Dropped:    d.dropped,
		Blocked:    d.blocked,
		Superseded: d.superseded,
		Errors:     append([]string(nil), d.errors...),
	}
}
