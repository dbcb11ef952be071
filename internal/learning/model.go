// Package learning provides the learning session, chat and card domain models.
package learning

import (
	"slices"
	"strings"
	"time"
)

// Level is the learner level a session was generated for.
type Level string

const (
	LevelBeginner Level = "beginner"
	LevelExpert   Level = "expert"
)

// SessionStatus is the lifecycle state of a learning session.
type SessionStatus string

const (
	SessionStatusDraft     SessionStatus = "draft"
	SessionStatusActive    SessionStatus = "active"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusPaused    SessionStatus = "paused"
)

// Role is the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// CardType distinguishes cards bookmarked from a message and free-form insights.
type CardType string

const (
	CardTypeInspiration CardType = "inspiration"
	CardTypeBookmark    CardType = "bookmark"
)

// Session is a learning session created from an uploaded document.
type Session struct {
	ID           string        `json:"id" yaml:"id" validate:"required,max=64"`
	Title        string        `json:"title" yaml:"title" validate:"required"`
	CreatedAt    int64         `json:"createdAt" yaml:"created_at"`
	UpdatedAt    int64         `json:"updatedAt" yaml:"updated_at"`
	Level        Level         `json:"level" yaml:"level" validate:"oneof=beginner expert"`
	DocumentText string        `json:"documentText,omitempty" yaml:"document_text,omitempty"`
	DocumentType string        `json:"documentType,omitempty" yaml:"document_type,omitempty"`
	Outline      []Chapter     `json:"outline,omitempty" yaml:"outline,omitempty" validate:"dive"`
	Messages     []ChatMessage `json:"messages,omitempty" yaml:"messages,omitempty" validate:"dive"`
	CardIDs      []string      `json:"cardIds,omitempty" yaml:"card_ids,omitempty"`
	Status       SessionStatus `json:"status" yaml:"status" validate:"oneof=draft active completed paused"`
}

// Chapter is a top-level outline entry.
type Chapter struct {
	ID        string    `json:"id" yaml:"id" validate:"required"`
	Title     string    `json:"title" yaml:"title"`
	Completed bool      `json:"completed" yaml:"completed"`
	Sections  []Section `json:"sections,omitempty" yaml:"sections,omitempty" validate:"dive"`
}

// Section is a sub-entry of a chapter.
type Section struct {
	ID        string `json:"id" yaml:"id" validate:"required"`
	Title     string `json:"title" yaml:"title"`
	Completed bool   `json:"completed" yaml:"completed"`
}

// ChatMessage is one entry of the tutoring conversation.
// Only the bookmark fields change after the message is appended.
type ChatMessage struct {
	ID         string `json:"id" yaml:"id" validate:"required"`
	Role       Role   `json:"role" yaml:"role" validate:"oneof=user assistant system"`
	Content    string `json:"content" yaml:"content"`
	Timestamp  int64  `json:"timestamp" yaml:"timestamp"`
	Bookmarked bool   `json:"bookmarked,omitempty" yaml:"bookmarked,omitempty"`
	CardID     string `json:"cardId,omitempty" yaml:"card_id,omitempty"`
}

// Card is a spaced-repetition card bookmarked from a session.
type Card struct {
	ID             string   `json:"id" yaml:"id" validate:"required,max=64"`
	Title          string   `json:"title" yaml:"title" validate:"required"`
	Content        string   `json:"content" yaml:"content"`
	Note           string   `json:"note,omitempty" yaml:"note,omitempty"`
	Type           CardType `json:"type" yaml:"type" validate:"oneof=inspiration bookmark"`
	Tags           []string `json:"tags,omitempty" yaml:"tags,omitempty"`
	Difficulty     int      `json:"difficulty" yaml:"difficulty" validate:"min=1,max=5"`
	ReviewCount    int      `json:"reviewCount" yaml:"review_count"`
	NextReviewAt   int64    `json:"nextReviewAt" yaml:"next_review_at"`
	LastReviewedAt int64    `json:"lastReviewedAt,omitempty" yaml:"last_reviewed_at,omitempty"`
	EasinessFactor float64  `json:"easinessFactor,omitempty" yaml:"easiness_factor,omitempty"`
	IntervalDays   int      `json:"intervalDays,omitempty" yaml:"interval_days,omitempty"`
	CorrectStreak  int      `json:"correctStreak,omitempty" yaml:"correct_streak,omitempty"`
	SessionID      string   `json:"sessionId" yaml:"session_id" validate:"required,max=64"`
	MessageID      string   `json:"messageId,omitempty" yaml:"message_id,omitempty"`
	ChapterID      string   `json:"chapterId,omitempty" yaml:"chapter_id,omitempty"`
	CreatedAt      int64    `json:"createdAt" yaml:"created_at"`
	UpdatedAt      int64    `json:"updatedAt" yaml:"updated_at"`
}

// APIConfig holds the LLM provider settings of a user.
type APIConfig struct {
	Provider  string `json:"provider" yaml:"provider" validate:"required"`
	APIKey    string `json:"apiKey,omitempty" yaml:"-"`
	Model     string `json:"model,omitempty" yaml:"model,omitempty"`
	BaseURL   string `json:"baseUrl,omitempty" yaml:"base_url,omitempty" validate:"omitempty,url"`
	UpdatedAt int64  `json:"updatedAt" yaml:"updated_at"`
}

// UserPreferences holds UI defaults of a user.
type UserPreferences struct {
	Theme               string `json:"theme,omitempty" yaml:"theme,omitempty"`
	Language            string `json:"language,omitempty" yaml:"language,omitempty"`
	DefaultLevel        Level  `json:"defaultLevel,omitempty" yaml:"default_level,omitempty" validate:"omitempty,oneof=beginner expert"`
	AutoSync            bool   `json:"autoSync" yaml:"auto_sync"`
	SyncIncludeOptional bool   `json:"syncIncludeOptional" yaml:"sync_include_optional"`
	UpdatedAt           int64  `json:"updatedAt" yaml:"updated_at"`
}

// Millis converts t to the Unix millisecond timestamps stored on every entity.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}

// NormalizeTags trims, de-duplicates and sorts tags so they behave as a set.
func NormalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || slices.Contains(out, tag) {
			continue
		}
		out = append(out, tag)
	}
	if len(out) == 0 {
		return nil
	}
	slices.Sort(out)
	return out
}

// FindMessage returns the index of the message with the given id, or -1.
func (s *Session) FindMessage(messageID string) int {
	for i := range s.Messages {
		if s.Messages[i].ID == messageID {
			return i
		}
	}
	return -1
}

// HasCard reports whether cardID is linked to the session.
func (s *Session) HasCard(cardID string) bool {
	return slices.Contains(s.CardIDs, cardID)
}

// IsOpen reports whether the session is still being worked on.
func (s *Session) IsOpen() bool {
	switch s.Status {
	case SessionStatusActive, SessionStatusPaused, SessionStatusDraft:
		return true
	}
	return false
}

// SetProgress marks a chapter, or one of its sections when sectionID is set, as completed or not.
// A chapter becomes completed once every section is. It returns false when nothing matched.
func (s *Session) SetProgress(chapterID, sectionID string, completed bool) bool {
	for i := range s.Outline {
		chapter := &s.Outline[i]
		if chapter.ID != chapterID {
			continue
		}
		if sectionID == "" {
			chapter.Completed = completed
			for j := range chapter.Sections {
				chapter.Sections[j].Completed = completed
			}
			return true
		}
		for j := range chapter.Sections {
			if chapter.Sections[j].ID != sectionID {
				continue
			}
			chapter.Sections[j].Completed = completed
			chapter.Completed = allSectionsCompleted(chapter.Sections)
			return true
		}
		return false
	}
	return false
}

func allSectionsCompleted(sections []Section) bool {
	for _, section := range sections {
		if !section.Completed {
			return false
		}
	}
	return len(sections) > 0
}

// IsDue reports whether the card needs a review before the given time.
func (c *Card) IsDue(before time.Time) bool {
	return c.NextReviewAt <= Millis(before)
}
