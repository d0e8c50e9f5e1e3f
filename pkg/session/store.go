// Package session owns session lifecycle: creation, conversation turns,
// preference and workflow context updates, and idle expiry.
package session

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pixora/pixora/pkg/models"
)

// Turn history is truncated to the most recent keepTurns entries once it
// grows past maxTurns, to bound per-session memory.
const (
	maxTurns  = 100
	keepTurns = 50
)

type entry struct {
	mu      sync.Mutex
	session *models.Session
}

// Store is the process-wide session registry. The store lock guards only
// the index maps; every session mutation happens under that session's own
// lock, so traffic for unrelated users never serializes.
//
// Reads refresh last_activity: a read is a liveness signal.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	byUser   map[string]string // user id -> active session id
	logger   *slog.Logger
}

func NewStore(logger *slog.Logger) *Store {
	return &Store{
		sessions: make(map[string]*entry),
		byUser:   make(map[string]string),
		logger:   logger.With("module", "session_store"),
	}
}

// Create opens a new session for the user. A user holds at most one active
// session; any existing one is closed first.
func (s *Store) Create(userID string) string {
	if existing, ok := s.activeSessionID(userID); ok {
		s.Close(existing)
	}

	now := time.Now()
	sess := &models.Session{
		ID:              uuid.New().String(),
		UserID:          userID,
		CreatedAt:       now,
		LastActivity:    now,
		Preferences:     map[string]any{},
		WorkflowContext: map[string]map[string]any{},
		Active:          true,
	}

	s.mu.Lock()
	s.sessions[sess.ID] = &entry{session: sess}
	s.byUser[userID] = sess.ID
	s.mu.Unlock()

	s.logger.Info("Created session", "session_id", sess.ID, "user_id", userID)

	return sess.ID
}

// Get returns a snapshot of an active session and refreshes its
// last_activity. Unknown or inactive sessions yield (nil, false).
func (s *Store) Get(sessionID string) (*models.Session, bool) {
	e, ok := s.lookup(sessionID)
	if !ok {
		return nil, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.session.Active {
		return nil, false
	}

	e.session.LastActivity = time.Now()

	return snapshot(e.session), true
}

// GetByUser returns a snapshot of the user's active session, refreshing
// its last_activity.
func (s *Store) GetByUser(userID string) (*models.Session, bool) {
	sessionID, ok := s.activeSessionID(userID)
	if !ok {
		return nil, false
	}

	return s.Get(sessionID)
}

// AppendTurn records one user/system exchange. It fails softly (false)
// for unknown or inactive sessions.
func (s *Store) AppendTurn(sessionID, userMessage, systemResponse string, metadata map[string]any) bool {
	e, ok := s.lookup(sessionID)
	if !ok {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.session.Active {
		return false
	}

	e.session.Turns = append(e.session.Turns, models.ConversationTurn{
		ID:             uuid.New().String(),
		Timestamp:      time.Now(),
		UserMessage:    userMessage,
		SystemResponse: systemResponse,
		Metadata:       metadata,
	})
	e.session.LastActivity = time.Now()

	if len(e.session.Turns) > maxTurns {
		kept := make([]models.ConversationTurn, keepTurns)
		copy(kept, e.session.Turns[len(e.session.Turns)-keepTurns:])
		e.session.Turns = kept
	}

	return true
}

// SetPreferences merges the patch into the session preferences. Patch keys
// overwrite, other keys are preserved.
func (s *Store) SetPreferences(sessionID string, patch map[string]any) bool {
	e, ok := s.lookup(sessionID)
	if !ok {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.session.Active {
		return false
	}

	for k, v := range patch {
		e.session.Preferences[k] = v
	}

	e.session.LastActivity = time.Now()

	return true
}

// Preferences returns a copy of the session preferences, empty for
// unknown or inactive sessions.
func (s *Store) Preferences(sessionID string) map[string]any {
	e, ok := s.lookup(sessionID)
	if !ok {
		return map[string]any{}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.session.Active {
		return map[string]any{}
	}

	return copyMap(e.session.Preferences)
}

// SetWorkflowContext merges the patch into the context blob kept for one
// workflow within the session.
func (s *Store) SetWorkflowContext(sessionID, workflowID string, patch map[string]any) bool {
	e, ok := s.lookup(sessionID)
	if !ok {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.session.Active {
		return false
	}

	ctx, ok := e.session.WorkflowContext[workflowID]
	if !ok {
		ctx = map[string]any{}
		e.session.WorkflowContext[workflowID] = ctx
	}

	for k, v := range patch {
		ctx[k] = v
	}

	e.session.LastActivity = time.Now()

	return true
}

// WorkflowContext returns a copy of the context blob for one workflow.
func (s *Store) WorkflowContext(sessionID, workflowID string) map[string]any {
	e, ok := s.lookup(sessionID)
	if !ok {
		return map[string]any{}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.session.Active {
		return map[string]any{}
	}

	return copyMap(e.session.WorkflowContext[workflowID])
}

// SummarizeRecent joins the last maxRecent turns, oldest first, into a
// deterministic textual summary.
func (s *Store) SummarizeRecent(sessionID string, maxRecent int) string {
	e, ok := s.lookup(sessionID)
	if !ok {
		return ""
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.session.Active || len(e.session.Turns) == 0 {
		return ""
	}

	turns := e.session.Turns
	if len(turns) > maxRecent {
		turns = turns[len(turns)-maxRecent:]
	}

	parts := make([]string, 0, len(turns)*2)
	for _, turn := range turns {
		parts = append(parts, "User: "+turn.UserMessage, "Assistant: "+turn.SystemResponse)
	}

	return strings.Join(parts, "\n")
}

// RelevantContext builds a prompt-ready digest of the session: stored
// preferences followed by the recent conversation, truncated to maxLen.
func (s *Store) RelevantContext(sessionID string, maxLen int) string {
	prefs := s.Preferences(sessionID)
	summary := s.SummarizeRecent(sessionID, 5)

	var b strings.Builder

	if len(prefs) > 0 {
		b.WriteString("User Preferences:\n")

		for _, k := range sortedKeys(prefs) {
			b.WriteString(k)
			b.WriteString(": ")
			b.WriteString(toString(prefs[k]))
			b.WriteString("\n")
		}

		b.WriteString("\n")
	}

	if summary != "" {
		b.WriteString("Recent Conversation:\n")
		b.WriteString(summary)
	}

	context := strings.TrimRight(b.String(), "\n")
	if maxLen > 0 && len(context) > maxLen {
		context = context[:maxLen] + "..."
	}

	return context
}

// Close marks the session inactive. Further reads and writes against it
// fail softly.
func (s *Store) Close(sessionID string) bool {
	e, ok := s.lookup(sessionID)
	if !ok {
		return false
	}

	e.mu.Lock()
	wasActive := e.session.Active
	e.session.Active = false
	e.session.LastActivity = time.Now()
	userID := e.session.UserID
	e.mu.Unlock()

	s.mu.Lock()
	if s.byUser[userID] == sessionID {
		delete(s.byUser, userID)
	}
	s.mu.Unlock()

	if wasActive {
		s.logger.Info("Closed session", "session_id", sessionID, "user_id", userID)
	}

	return wasActive
}

// SweepExpired closes every active session idle for longer than
// idleTimeout and returns how many it closed. Safe to run concurrently
// with request traffic.
func (s *Store) SweepExpired(idleTimeout time.Duration) int {
	cutoff := time.Now().Add(-idleTimeout)

	s.mu.RLock()
	candidates := make([]string, 0)

	for id, e := range s.sessions {
		e.mu.Lock()
		expired := e.session.Active && e.session.LastActivity.Before(cutoff)
		e.mu.Unlock()

		if expired {
			candidates = append(candidates, id)
		}
	}
	s.mu.RUnlock()

	closed := 0

	for _, id := range candidates {
		if s.Close(id) {
			closed++
		}
	}

	if closed > 0 {
		s.logger.Info("Swept expired sessions", "count", closed)
	}

	return closed
}

// Stats summarizes the store for health reporting.
type Stats struct {
	ActiveSessions int `json:"active_sessions"`
	TotalSessions  int `json:"total_sessions"`
	TotalTurns     int `json:"total_turns"`
}

func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{TotalSessions: len(s.sessions)}

	for _, e := range s.sessions {
		e.mu.Lock()
		if e.session.Active {
			stats.ActiveSessions++
		}

		stats.TotalTurns += len(e.session.Turns)
		e.mu.Unlock()
	}

	return stats
}

func (s *Store) lookup(sessionID string) (*entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.sessions[sessionID]

	return e, ok
}

func (s *Store) activeSessionID(userID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byUser[userID]

	return id, ok
}

func snapshot(sess *models.Session) *models.Session {
	out := *sess
	out.Turns = make([]models.ConversationTurn, len(sess.Turns))
	copy(out.Turns, sess.Turns)
	out.Preferences = copyMap(sess.Preferences)
	out.WorkflowContext = make(map[string]map[string]any, len(sess.WorkflowContext))

	for id, ctx := range sess.WorkflowContext {
		out.WorkflowContext[id] = copyMap(ctx)
	}

	return &out
}

func copyMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}

	return out
}

func sortedKeys(in map[string]any) []string {
	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}

	return fmt.Sprintf("%v", v)
}
