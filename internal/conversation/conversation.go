// Package conversation provides in-memory session storage for multi-turn
// chat: an ordered message log per session, seeded lazily with a system
// prompt, and a context-window trimmer that always keeps that system
// message.
package conversation

import (
	"sync"

	"github.com/scholarrag/zoterag/internal/llm"
)

// DefaultSystemPrompt seeds every new session.
const DefaultSystemPrompt = "You are an expert research assistant helping an academic researcher " +
	"understand their Zotero library. You have access to their academic papers " +
	"and can answer questions about their research. Always cite sources using " +
	"the provided citation numbers [1], [2], etc. Be precise and scholarly in " +
	"your responses."

const (
	// DefaultMaxMessages is the default message-count cap passed to Trim.
	DefaultMaxMessages = 20
	// DefaultMaxChars is the default total-character cap passed to Trim.
	DefaultMaxChars = 12000
)

// Info summarizes a session for status/debugging surfaces.
type Info struct {
	SessionID         string
	TotalMessages     int
	UserMessages      int
	AssistantMessages int
	TotalChars        int
	HasSystemPrompt   bool
}

type session struct {
	messages []llm.Message
}

// Store is an in-memory, concurrency-safe mapping from session id to
// message history. Sessions are created lazily and never evicted for the
// life of the process.
type Store struct {
	mu            sync.RWMutex
	sessions      map[string]*session
	systemPrompt  string
}

// New constructs an empty Store using DefaultSystemPrompt for new
// sessions.
func New() *Store {
	return &Store{sessions: make(map[string]*session), systemPrompt: DefaultSystemPrompt}
}

// NewWithSystemPrompt constructs a Store using a custom system prompt for
// new sessions.
func NewWithSystemPrompt(systemPrompt string) *Store {
	return &Store{sessions: make(map[string]*session), systemPrompt: systemPrompt}
}

// Messages returns a copy of sessionID's message history, creating the
// session (seeded with the system prompt) if it doesn't exist yet.
func (s *Store) Messages(sessionID string) []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.getOrCreateLocked(sessionID)
	out := make([]llm.Message, len(sess.messages))
	copy(out, sess.messages)
	return out
}

func (s *Store) getOrCreateLocked(sessionID string) *session {
	sess, ok := s.sessions[sessionID]
	if !ok {
		sess = &session{messages: []llm.Message{{Role: "system", Content: s.systemPrompt}}}
		s.sessions[sessionID] = sess
	}
	return sess
}

// Append adds a message with the given role/content to sessionID,
// creating the session first if needed.
func (s *Store) Append(sessionID, role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.getOrCreateLocked(sessionID)
	sess.messages = append(sess.messages, llm.Message{Role: role, Content: content})
}

// Clear removes a session entirely.
func (s *Store) Clear(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

// Exists reports whether sessionID has been created and has at least one
// message.
func (s *Store) Exists(sessionID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	return ok && len(sess.messages) > 0
}

// SessionCount returns the number of active sessions.
func (s *Store) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Info returns session metadata, or nil if the session doesn't exist.
func (s *Store) Info(sessionID string) *Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}

	info := &Info{SessionID: sessionID, TotalMessages: len(sess.messages)}
	for _, m := range sess.messages {
		info.TotalChars += len(m.Content)
		switch m.Role {
		case "user":
			info.UserMessages++
		case "assistant":
			info.AssistantMessages++
		case "system":
			info.HasSystemPrompt = true
		}
	}
	return info
}

// Trim fits messages within maxMessages/maxChars, always preserving the
// first message if it's a system prompt, then keeping as many of the most
// recent remaining messages as fit both caps. If messages is already
// within both limits it is returned unchanged.
func Trim(messages []llm.Message, maxMessages, maxChars int) []llm.Message {
	if len(messages) == 0 {
		return nil
	}

	var systemMessage *llm.Message
	rest := messages
	if messages[0].Role == "system" {
		systemMessage = &messages[0]
		rest = messages[1:]
	}

	totalChars := 0
	for _, m := range messages {
		totalChars += len(m.Content)
	}
	if len(rest) <= maxMessages && totalChars <= maxChars {
		return messages
	}

	charCount := 0
	if systemMessage != nil {
		charCount = len(systemMessage.Content)
	}

	var kept []llm.Message
	for i := len(rest) - 1; i >= 0; i-- {
		msg := rest[i]
		if len(kept) < maxMessages && charCount+len(msg.Content) <= maxChars {
			kept = append([]llm.Message{msg}, kept...)
			charCount += len(msg.Content)
		} else {
			break
		}
	}

	result := make([]llm.Message, 0, len(kept)+1)
	if systemMessage != nil {
		result = append(result, *systemMessage)
	}
	result = append(result, kept...)
	return result
}
