// Package classifier assigns local data to sync priority buckets and estimates the cost of pushing them.
package classifier

import (
	"cmp"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/at-ishikawa/learnsync/internal/learning"
	"github.com/at-ishikawa/learnsync/internal/offlinequeue"
)

// Priority is a sync bucket.
type Priority string

const (
	PriorityCritical  Priority = "critical"
	PriorityImportant Priority = "important"
	PriorityOptional  Priority = "optional"
)

// Scope selects the buckets a sync pushes.
type Scope int

const (
	// ScopeQuick pushes critical items only.
	ScopeQuick Scope = iota
	// ScopeFull pushes critical and important items.
	ScopeFull
	// ScopeEverything also pushes optional items.
	ScopeEverything
)

func (s Scope) String() string {
	switch s {
	case ScopeQuick:
		return "quick"
	case ScopeFull:
		return "full"
	case ScopeEverything:
		return "everything"
	}
	return fmt.Sprintf("scope(%d)", int(s))
}

// Policy holds the tuning parameters of the classification.
type Policy struct {
	// ReviewHorizon is how far ahead a scheduled review still counts as upcoming.
	ReviewHorizon            time.Duration
	ThroughputBytesPerSecond int64
	PerItemOverhead          time.Duration
}

// DefaultPolicy returns the policy used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		ReviewHorizon:            24 * time.Hour,
		ThroughputBytesPerSecond: 64 * 1024,
		PerItemOverhead:          50 * time.Millisecond,
	}
}

// Estimate returns the expected time to push items: bytes over throughput plus a fixed cost per item.
func (p Policy) Estimate(items []DataItem) time.Duration {
	if len(items) == 0 {
		return 0
	}
	var total int64
	for _, item := range items {
		total += int64(item.Size)
	}
	var transfer time.Duration
	if p.ThroughputBytesPerSecond > 0 {
		transfer = time.Duration(float64(total) / float64(p.ThroughputBytesPerSecond) * float64(time.Second))
	}
	return transfer + time.Duration(len(items))*p.PerItemOverhead
}

// Snapshot is the local data to classify.
type Snapshot struct {
	Sessions        []learning.Session
	Cards           []learning.Card
	Preferences     *learning.UserPreferences
	APIConfig       *learning.APIConfig
	ActiveSessionID string
	Now             time.Time
}

// DataItem is a classified entity.
type DataItem struct {
	Type     offlinequeue.EntityType `json:"type"`
	ID       string                  `json:"id"`
	ParentID string                  `json:"parentId,omitempty"`
	Priority Priority                `json:"priority"`
	Size     int                     `json:"size"`
	Reason   string                  `json:"reason"`
}

// Plan partitions a snapshot into the three buckets. Each bucket lists sessions
// before the cards that reference them.
type Plan struct {
	Critical          []DataItem    `json:"critical"`
	Important         []DataItem    `json:"important"`
	Optional          []DataItem    `json:"optional"`
	EstimatedDuration time.Duration `json:"estimatedDuration"`

	policy Policy
}

// Items returns the items a sync of scope pushes, in push order.
func (p Plan) Items(scope Scope) []DataItem {
	items := slices.Clone(p.Critical)
	if scope >= ScopeFull {
		items = append(items, p.Important...)
	}
	if scope >= ScopeEverything {
		items = append(items, p.Optional...)
	}
	return items
}

// Estimate returns the expected duration of a sync of scope.
func (p Plan) Estimate(scope Scope) time.Duration {
	return p.policy.Estimate(p.Items(scope))
}

// Len returns the number of classified items.
func (p Plan) Len() int {
	return len(p.Critical) + len(p.Important) + len(p.Optional)
}

// Bytes returns the estimated payload size of a bucket.
func (p Plan) Bytes(priority Priority) int {
	var bucket []DataItem
	switch priority {
	case PriorityCritical:
		bucket = p.Critical
	case PriorityImportant:
		bucket = p.Important
	case PriorityOptional:
		bucket = p.Optional
	}
	total := 0
	for _, item := range bucket {
		total += item.Size
	}
	return total
}

// Classify builds the sync plan of snap. Every entity lands in exactly one bucket.
func Classify(snap Snapshot, policy Policy) (Plan, error) {
	plan := Plan{policy: policy}
	add := func(item DataItem) {
		switch item.Priority {
		case PriorityCritical:
			plan.Critical = append(plan.Critical, item)
		case PriorityImportant:
			plan.Important = append(plan.Important, item)
		default:
			plan.Optional = append(plan.Optional, item)
		}
	}

	for i := range snap.Sessions {
		session := &snap.Sessions[i]
		size, err := sizeOf(session)
		if err != nil {
			return Plan{}, fmt.Errorf("classify session %s: %w", session.ID, err)
		}
		priority, reason := classifySession(session, snap.ActiveSessionID)
		add(DataItem{Type: offlinequeue.EntitySession, ID: session.ID, Priority: priority, Size: size, Reason: reason})
	}

	horizon := snap.Now.Add(policy.ReviewHorizon)
	for i := range snap.Cards {
		card := &snap.Cards[i]
		size, err := sizeOf(card)
		if err != nil {
			return Plan{}, fmt.Errorf("classify card %s: %w", card.ID, err)
		}
		priority, reason := classifyCard(card, horizon)
		add(DataItem{Type: offlinequeue.EntityCard, ID: card.ID, ParentID: card.SessionID, Priority: priority, Size: size, Reason: reason})
	}

	if snap.Preferences != nil {
		size, err := sizeOf(snap.Preferences)
		if err != nil {
			return Plan{}, fmt.Errorf("classify preferences: %w", err)
		}
		add(DataItem{Type: offlinequeue.EntityPreferences, ID: "default", Priority: PriorityImportant, Size: size, Reason: "user preferences"})
	}
	if snap.APIConfig != nil {
		size, err := sizeOf(snap.APIConfig)
		if err != nil {
			return Plan{}, fmt.Errorf("classify api config: %w", err)
		}
		add(DataItem{Type: offlinequeue.EntityAPIConfig, ID: "default", Priority: PriorityImportant, Size: size, Reason: "api config"})
	}

	sortBucket(plan.Critical)
	sortBucket(plan.Important)
	sortBucket(plan.Optional)
	plan.EstimatedDuration = plan.Estimate(ScopeEverything)
	return plan, nil
}

func classifySession(session *learning.Session, activeID string) (Priority, string) {
	switch {
	case activeID != "" && session.ID == activeID:
		return PriorityCritical, "active session"
	case session.IsOpen():
		return PriorityImportant, string(session.Status) + " session"
	}
	return PriorityOptional, string(session.Status) + " session"
}

func classifyCard(card *learning.Card, horizon time.Time) (Priority, string) {
	if card.NextReviewAt > 0 && card.IsDue(horizon) {
		return PriorityCritical, "review due"
	}
	return PriorityOptional, "no upcoming review"
}

var typeOrder = map[offlinequeue.EntityType]int{
	offlinequeue.EntitySession:     0,
	offlinequeue.EntityCard:        1,
	offlinequeue.EntityPreferences: 2,
	offlinequeue.EntityAPIConfig:   3,
}

func sortBucket(items []DataItem) {
	slices.SortStableFunc(items, func(a, b DataItem) int {
		return cmp.Compare(typeOrder[a.Type], typeOrder[b.Type])
	})
}

func sizeOf(v any) (int, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return 0, err
	}
	return len(data), nil
}
