package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/mindful/backend/internal/model/session"
	sessionService "github.com/zhouzirui/mindful/backend/internal/service/session"
)

func seededStore(t *testing.T) (*sessionService.Store, session.Session) {
	t.Helper()
	ctx := context.Background()
	store, err := sessionService.NewStore(filepath.Join(t.TempDir(), "sessions"))
	require.NoError(t, err)

	created, err := store.Create(ctx)
	require.NoError(t, err)
	_, err = store.AppendMessage(ctx, created.ID, session.RoleUser, "I feel anxious today")
	require.NoError(t, err)
	_, err = store.AppendMessage(ctx, created.ID, session.RoleAssistant, "What's on your mind?")
	require.NoError(t, err)
	record, err := store.SetEvaluation(ctx, created.ID, session.Evaluation{
		WellnessScore:  55,
		EmotionalState: "anxious",
		RiskLevel:      session.RiskMedium,
		Concerns:       []string{"work stress"},
		EvaluatedAt:    time.Now().UTC(),
	})
	require.NoError(t, err)
	return store, record
}

func TestListSessionsTable(t *testing.T) {
	store, record := seededStore(t)

	var out bytes.Buffer
	require.NoError(t, listSessions(context.Background(), &out, store, false))

	text := out.String()
	assert.Contains(t, text, record.ID)
	assert.Contains(t, text, "medium")
	assert.Contains(t, text, "1 sessions in")
}

func TestListSessionsJSON(t *testing.T) {
	store, record := seededStore(t)

	var out bytes.Buffer
	require.NoError(t, listSessions(context.Background(), &out, store, true))

	var summaries []session.Summary
	require.NoError(t, json.Unmarshal(out.Bytes(), &summaries))
	require.Len(t, summaries, 1)
	assert.Equal(t, record.ID, summaries[0].ID)
	assert.Equal(t, 2, summaries[0].MessageCount)
}

func TestInspectSessionTranscript(t *testing.T) {
	store, record := seededStore(t)

	var out bytes.Buffer
	require.NoError(t, inspectSession(context.Background(), &out, store, record.ID, false))

	text := out.String()
	assert.Contains(t, text, "User: I feel anxious today")
	assert.Contains(t, text, "Therapist: What's on your mind?")
	assert.Contains(t, text, "wellness score:  55")
	assert.True(t, strings.Contains(text, "concern:         work stress"))
	assert.NotContains(t, text, "Crisis screen")
}

func TestInspectSessionShowsCrisisScreen(t *testing.T) {
	store, record := seededStore(t)
	_, err := store.AppendMessage(context.Background(), record.ID, session.RoleUser, "Some days I feel hopeless and worthless")
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, inspectSession(context.Background(), &out, store, record.ID, false))
	assert.Contains(t, out.String(), "Crisis screen: medium (hopeless, worthless)")
}

func TestInspectMissingSession(t *testing.T) {
	store, _ := seededStore(t)

	err := inspectSession(context.Background(), &bytes.Buffer{}, store, "5f0c6a52-3b1e-4f4e-9a7c-1d2e3f4a5b6c", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "会话不存在")
}
