package datasync

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/at-ishikawa/learnsync/internal/learning"
	"github.com/at-ishikawa/learnsync/internal/localstore"
)

type exportCard struct {
	ID           string   `yaml:"id"`
	SessionID    string   `yaml:"session_id"`
	Title        string   `yaml:"title"`
	Content      string   `yaml:"content,omitempty"`
	Note         string   `yaml:"note,omitempty"`
	Type         string   `yaml:"type"`
	Tags         []string `yaml:"tags,omitempty"`
	Difficulty   int      `yaml:"difficulty"`
	ReviewCount  int      `yaml:"review_count"`
	NextReviewAt string   `yaml:"next_review_at,omitempty"`
}

type exportSession struct {
	ID        string   `yaml:"id"`
	Title     string   `yaml:"title"`
	Level     string   `yaml:"level"`
	Status    string   `yaml:"status"`
	CreatedAt string   `yaml:"created_at"`
	Chapters  int      `yaml:"chapters"`
	Completed int      `yaml:"completed_chapters"`
	Messages  int      `yaml:"messages"`
	CardIDs   []string `yaml:"card_ids,omitempty"`
}

// YAMLSink writes snapshots of the local store to YAML files.
type YAMLSink struct {
	outputDir string
}

// NewYAMLSink creates a new YAMLSink.
func NewYAMLSink(outputDir string) *YAMLSink {
	return &YAMLSink{outputDir: outputDir}
}

// ExportResult counts exported records.
type ExportResult struct {
	Sessions int
	Cards    int
}

// Export writes sessions.yml and cards.yml from the local store.
func (s *YAMLSink) Export(local *localstore.Store) (*ExportResult, error) {
	sessions, err := localstore.ListAs[learning.Session](local, localstore.CollectionSessions)
	if err != nil {
		return nil, fmt.Errorf("load local sessions: %w", err)
	}
	cards, err := localstore.ListAs[learning.Card](local, localstore.CollectionCards)
	if err != nil {
		return nil, fmt.Errorf("load local cards: %w", err)
	}
	if err := s.WriteSessions(sessions); err != nil {
		return nil, err
	}
	if err := s.WriteCards(cards); err != nil {
		return nil, err
	}
	return &ExportResult{Sessions: len(sessions), Cards: len(cards)}, nil
}

// WriteSessions writes session summaries to sessions.yml.
func (s *YAMLSink) WriteSessions(sessions []learning.Session) error {
	if err := os.MkdirAll(s.outputDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	out := make([]exportSession, len(sessions))
	for i, session := range sessions {
		completed := 0
		for _, chapter := range session.Outline {
			if chapter.Completed {
				completed++
			}
		}
		out[i] = exportSession{
			ID:        session.ID,
			Title:     session.Title,
			Level:     string(session.Level),
			Status:    string(session.Status),
			CreatedAt: formatMillis(session.CreatedAt),
			Chapters:  len(session.Outline),
			Completed: completed,
			Messages:  len(session.Messages),
			CardIDs:   session.CardIDs,
		}
	}

	if err := writeYAML(filepath.Join(s.outputDir, "sessions.yml"), out); err != nil {
		return fmt.Errorf("write sessions.yml: %w", err)
	}
	return nil
}

// WriteCards writes cards to cards.yml.
func (s *YAMLSink) WriteCards(cards []learning.Card) error {
	if err := os.MkdirAll(s.outputDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	out := make([]exportCard, len(cards))
	for i, card := range cards {
		out[i] = exportCard{
			ID:           card.ID,
			SessionID:    card.SessionID,
			Title:        card.Title,
			Content:      card.Content,
			Note:         card.Note,
			Type:         string(card.Type),
			Tags:         card.Tags,
			Difficulty:   card.Difficulty,
			ReviewCount:  card.ReviewCount,
			NextReviewAt: formatMillis(card.NextReviewAt),
		}
	}

	if err := writeYAML(filepath.Join(s.outputDir, "cards.yml"), out); err != nil {
		return fmt.Errorf("write cards.yml: %w", err)
	}
	return nil
}

func formatMillis(ms int64) string {
	if ms == 0 {
		return ""
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

func writeYAML(path string, data interface{}) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	enc := yaml.NewEncoder(f)
	defer func() { _ = enc.Close() }()
	return enc.Encode(data)
}
