package learning

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTags(t *testing.T) {
	tests := []struct {
		name string
		tags []string
		want []string
	}{
		{name: "nil stays nil", tags: nil, want: nil},
		{name: "trims, de-duplicates and sorts", tags: []string{" go", "sql", "go", ""}, want: []string{"go", "sql"}},
		{name: "only blanks", tags: []string{" ", ""}, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeTags(tt.tags))
		})
	}
}

func TestSession_SetProgress(t *testing.T) {
	newSession := func() Session {
		return Session{Outline: []Chapter{
			{ID: "ch1", Sections: []Section{{ID: "s1"}, {ID: "s2"}}},
			{ID: "ch2"},
		}}
	}

	t.Run("completing every section completes the chapter", func(t *testing.T) {
		s := newSession()
		require.True(t, s.SetProgress("ch1", "s1", true))
		assert.False(t, s.Outline[0].Completed)
		require.True(t, s.SetProgress("ch1", "s2", true))
		assert.True(t, s.Outline[0].Completed)
	})

	t.Run("chapter level progress applies to sections", func(t *testing.T) {
		s := newSession()
		require.True(t, s.SetProgress("ch1", "", true))
		assert.True(t, s.Outline[0].Sections[0].Completed)
		assert.True(t, s.Outline[0].Sections[1].Completed)
	})

	t.Run("unknown ids", func(t *testing.T) {
		s := newSession()
		assert.False(t, s.SetProgress("missing", "", true))
		assert.False(t, s.SetProgress("ch1", "missing", true))
	})
}

func TestCard_IsDue(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	assert.True(t, (&Card{NextReviewAt: Millis(now)}).IsDue(now))
	assert.True(t, (&Card{}).IsDue(now))
	assert.False(t, (&Card{NextReviewAt: Millis(now.Add(time.Hour))}).IsDue(now))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		entity  any
		wantErr bool
	}{
		{
			name:   "valid session",
			entity: &Session{ID: "s1", Title: "Intro to Go", Level: LevelBeginner, Status: SessionStatusActive},
		},
		{
			name:    "session with unknown status",
			entity:  &Session{ID: "s1", Title: "Intro to Go", Level: LevelBeginner, Status: "archived"},
			wantErr: true,
		},
		{
			name: "session with invalid message role",
			entity: &Session{ID: "s1", Title: "Intro to Go", Level: LevelExpert, Status: SessionStatusDraft,
				Messages: []ChatMessage{{ID: "m1", Role: "bot"}}},
			wantErr: true,
		},
		{
			name:   "valid card",
			entity: &Card{ID: "c1", Title: "Goroutines", Type: CardTypeBookmark, Difficulty: 3, SessionID: "s1"},
		},
		{
			name:    "card difficulty out of range",
			entity:  &Card{ID: "c1", Title: "Goroutines", Type: CardTypeBookmark, Difficulty: 6, SessionID: "s1"},
			wantErr: true,
		},
		{
			name:    "card without session",
			entity:  &Card{ID: "c1", Title: "Goroutines", Type: CardTypeInspiration, Difficulty: 1},
			wantErr: true,
		},
		{
			name:   "empty preferences are valid",
			entity: &UserPreferences{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.entity)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}
