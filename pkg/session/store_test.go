package session

import (
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore() *Store {
	return NewStore(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestCreateAndGet(t *testing.T) {
	s := newTestStore()

	id := s.Create("user-1")
	require.NotEmpty(t, id)

	sess, ok := s.Get(id)
	require.True(t, ok)
	assert.Equal(t, "user-1", sess.UserID)
	assert.True(t, sess.Active)
	assert.Empty(t, sess.Turns)

	_, ok = s.Get("missing")
	assert.False(t, ok)
}

func TestCreateClosesPreviousSession(t *testing.T) {
	s := newTestStore()

	first := s.Create("user-1")
	second := s.Create("user-1")
	require.NotEqual(t, first, second)

	// The old session is closed, the new one is the user's active session.
	_, ok := s.Get(first)
	assert.False(t, ok)

	sess, ok := s.GetByUser("user-1")
	require.True(t, ok)
	assert.Equal(t, second, sess.ID)
}

func TestGetRefreshesLastActivity(t *testing.T) {
	s := newTestStore()
	id := s.Create("user-1")

	before, ok := s.Get(id)
	require.True(t, ok)

	time.Sleep(10 * time.Millisecond)

	after, ok := s.Get(id)
	require.True(t, ok)
	assert.True(t, after.LastActivity.After(before.LastActivity))
}

func TestAppendTurnTruncatesHistory(t *testing.T) {
	s := newTestStore()
	id := s.Create("user-1")

	// The append that pushes the history past maxTurns cuts it down to
	// the keepTurns most recent entries.
	for i := 0; i < maxTurns+1; i++ {
		require.True(t, s.AppendTurn(id, fmt.Sprintf("message %d", i), "ok", nil))
	}

	sess, ok := s.Get(id)
	require.True(t, ok)
	require.Len(t, sess.Turns, keepTurns)
	assert.Equal(t, fmt.Sprintf("message %d", maxTurns-keepTurns+1), sess.Turns[0].UserMessage)
	assert.Equal(t, fmt.Sprintf("message %d", maxTurns), sess.Turns[keepTurns-1].UserMessage)

	// Later appends grow the tail again until the next overflow; the
	// cut happens per append, not retroactively.
	for i := maxTurns + 1; i < maxTurns+20; i++ {
		require.True(t, s.AppendTurn(id, fmt.Sprintf("message %d", i), "ok", nil))
	}

	sess, ok = s.Get(id)
	require.True(t, ok)
	require.Len(t, sess.Turns, keepTurns+19)
	assert.Equal(t, fmt.Sprintf("message %d", maxTurns-keepTurns+1), sess.Turns[0].UserMessage)
	assert.Equal(t, fmt.Sprintf("message %d", maxTurns+19), sess.Turns[len(sess.Turns)-1].UserMessage)
}

func TestAppendTurnUnknownSession(t *testing.T) {
	s := newTestStore()

	assert.False(t, s.AppendTurn("missing", "hello", "hi", nil))
}

func TestPreferencesMergePatch(t *testing.T) {
	s := newTestStore()
	id := s.Create("user-1")

	require.True(t, s.SetPreferences(id, map[string]any{"style": "cinematic", "mood": "calm"}))
	require.True(t, s.SetPreferences(id, map[string]any{"style": "artistic"}))

	prefs := s.Preferences(id)
	assert.Equal(t, "artistic", prefs["style"])
	assert.Equal(t, "calm", prefs["mood"])
}

func TestPreferencesReturnsCopy(t *testing.T) {
	s := newTestStore()
	id := s.Create("user-1")

	require.True(t, s.SetPreferences(id, map[string]any{"style": "cinematic"}))

	prefs := s.Preferences(id)
	prefs["style"] = "mutated"

	assert.Equal(t, "cinematic", s.Preferences(id)["style"])
}

func TestWorkflowContextMergePatch(t *testing.T) {
	s := newTestStore()
	id := s.Create("user-1")

	require.True(t, s.SetWorkflowContext(id, "wf-1", map[string]any{"status": "running"}))
	require.True(t, s.SetWorkflowContext(id, "wf-1", map[string]any{"images": 3}))
	require.True(t, s.SetWorkflowContext(id, "wf-2", map[string]any{"status": "pending"}))

	ctx := s.WorkflowContext(id, "wf-1")
	assert.Equal(t, "running", ctx["status"])
	assert.Equal(t, 3, ctx["images"])

	assert.Equal(t, "pending", s.WorkflowContext(id, "wf-2")["status"])
	assert.Empty(t, s.WorkflowContext(id, "wf-3"))
}

func TestSummarizeRecent(t *testing.T) {
	s := newTestStore()
	id := s.Create("user-1")

	for i := 1; i <= 7; i++ {
		require.True(t, s.AppendTurn(id, fmt.Sprintf("prompt %d", i), fmt.Sprintf("response %d", i), nil))
	}

	summary := s.SummarizeRecent(id, 2)
	assert.Equal(t, "User: prompt 6\nAssistant: response 6\nUser: prompt 7\nAssistant: response 7", summary)

	assert.Empty(t, s.SummarizeRecent("missing", 2))
}

func TestRelevantContext(t *testing.T) {
	s := newTestStore()
	id := s.Create("user-1")

	require.True(t, s.SetPreferences(id, map[string]any{"style": "cinematic", "avoid": "text"}))
	require.True(t, s.AppendTurn(id, "a cat", "done", nil))

	context := s.RelevantContext(id, 0)
	assert.Contains(t, context, "User Preferences:")
	assert.Contains(t, context, "avoid: text")
	assert.Contains(t, context, "style: cinematic")
	assert.Contains(t, context, "Recent Conversation:")
	assert.Contains(t, context, "User: a cat")

	truncated := s.RelevantContext(id, 20)
	assert.Len(t, truncated, 23)
	assert.True(t, len(truncated) < len(context))
}

func TestCloseSession(t *testing.T) {
	s := newTestStore()
	id := s.Create("user-1")

	assert.True(t, s.Close(id))
	assert.False(t, s.Close(id))

	_, ok := s.Get(id)
	assert.False(t, ok)
	_, ok = s.GetByUser("user-1")
	assert.False(t, ok)

	// Writes against a closed session fail softly.
	assert.False(t, s.AppendTurn(id, "hello", "hi", nil))
	assert.False(t, s.SetPreferences(id, map[string]any{"a": 1}))
}

func TestSweepExpired(t *testing.T) {
	s := newTestStore()

	idle := s.Create("user-1")
	fresh := s.Create("user-2")

	// Backdate the idle session past the cutoff.
	e, ok := s.lookup(idle)
	require.True(t, ok)
	e.mu.Lock()
	e.session.LastActivity = time.Now().Add(-time.Hour)
	e.mu.Unlock()

	closed := s.SweepExpired(30 * time.Minute)
	assert.Equal(t, 1, closed)

	_, ok = s.Get(idle)
	assert.False(t, ok)
	_, ok = s.Get(fresh)
	assert.True(t, ok)

	// Nothing left to sweep.
	assert.Equal(t, 0, s.SweepExpired(30*time.Minute))
}

func TestStats(t *testing.T) {
	s := newTestStore()

	first := s.Create("user-1")
	s.Create("user-2")

	require.True(t, s.AppendTurn(first, "hello", "hi", nil))
	require.True(t, s.Close(first))

	stats := s.Stats()
	assert.Equal(t, 1, stats.ActiveSessions)
	assert.Equal(t, 2, stats.TotalSessions)
	assert.Equal(t, 1, stats.TotalTurns)
}
