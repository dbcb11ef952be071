package datasync

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/at-ishikawa/learnsync/internal/learning"
	"github.com/at-ishikawa/learnsync/internal/testutil"
)

func TestYAMLSink_WriteCards(t *testing.T) {
	tests := []struct {
		name     string
		cards    []learning.Card
		wantYAML string
	}{
		{
			name: "cards use snake_case field names",
			cards: []learning.Card{
				{
					ID:           "c1",
					SessionID:    "s1",
					Title:        "Slices",
					Content:      "A view over an array.",
					Type:         learning.CardTypeBookmark,
					Difficulty:   2,
					ReviewCount:  1,
					NextReviewAt: 1735776000000,
				},
			},
			wantYAML: `- id: c1
  session_id: s1
  title: Slices
  content: A view over an array.
  type: bookmark
  difficulty: 2
  review_count: 1
  next_review_at: "2025-01-02T00:00:00Z"
`,
		},
		{
			name:     "no cards",
			cards:    nil,
			wantYAML: "[]\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			sink := NewYAMLSink(dir)
			require.NoError(t, sink.WriteCards(tt.cards))

			got, err := os.ReadFile(filepath.Join(dir, "cards.yml"))
			require.NoError(t, err)
			assert.Equal(t, tt.wantYAML, string(got))
		})
	}
}

func TestYAMLSink_Export(t *testing.T) {
	local, _ := testutil.OpenLocal(t)
	session := testutil.NewSession("s1", "Intro to Go")
	session.Outline[0].Completed = true
	testutil.SeedLocal(t, local, []learning.Session{session}, []learning.Card{testutil.NewCard("c1", "s1")})

	dir := filepath.Join(t.TempDir(), "export")
	got, err := NewYAMLSink(dir).Export(local)
	require.NoError(t, err)
	assert.Equal(t, &ExportResult{Sessions: 1, Cards: 1}, got)

	content, err := os.ReadFile(filepath.Join(dir, "sessions.yml"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "title: Intro to Go")
	assert.Contains(t, string(content), "completed_chapters: 1")
	assert.Contains(t, string(content), "created_at: \"2025-01-01T00:00:00Z\"")
	assert.FileExists(t, filepath.Join(dir, "cards.yml"))
}
