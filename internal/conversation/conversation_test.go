package conversation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholarrag/zoterag/internal/llm"
)

func TestMessagesSeedsSystemPromptOnFirstUse(t *testing.T) {
	s := New()
	msgs := s.Messages("session-1")
	require.Len(t, msgs, 1)
	assert.Equal(t, "system", msgs[0].Role)
	assert.Equal(t, DefaultSystemPrompt, msgs[0].Content)
}

func TestAppendAddsMessageAfterSystemPrompt(t *testing.T) {
	s := New()
	s.Append("session-1", "user", "hello")
	msgs := s.Messages("session-1")
	require.Len(t, msgs, 2)
	assert.Equal(t, "user", msgs[1].Role)
	assert.Equal(t, "hello", msgs[1].Content)
}

func TestMessagesReturnsACopy(t *testing.T) {
	s := New()
	msgs := s.Messages("session-1")
	msgs[0].Content = "mutated"
	fresh := s.Messages("session-1")
	assert.Equal(t, DefaultSystemPrompt, fresh[0].Content)
}

func TestClearRemovesSession(t *testing.T) {
	s := New()
	s.Append("session-1", "user", "hi")
	assert.True(t, s.Exists("session-1"))
	s.Clear("session-1")
	assert.False(t, s.Exists("session-1"))
}

func TestSessionCount(t *testing.T) {
	s := New()
	s.Append("a", "user", "hi")
	s.Append("b", "user", "hi")
	assert.Equal(t, 2, s.SessionCount())
}

func TestInfoReturnsNilForUnknownSession(t *testing.T) {
	s := New()
	assert.Nil(t, s.Info("missing"))
}

func TestInfoCountsRoles(t *testing.T) {
	s := New()
	s.Append("session-1", "user", "hi")
	s.Append("session-1", "assistant", "hello")
	info := s.Info("session-1")
	require.NotNil(t, info)
	assert.Equal(t, 3, info.TotalMessages)
	assert.Equal(t, 1, info.UserMessages)
	assert.Equal(t, 1, info.AssistantMessages)
	assert.True(t, info.HasSystemPrompt)
}

func TestTrimReturnsUnchangedWhenWithinLimits(t *testing.T) {
	messages := []llm.Message{
		{Role: "system", Content: "sys"},
		{Role: "user", Content: "hi"},
	}
	trimmed := Trim(messages, 20, 12000)
	assert.Equal(t, messages, trimmed)
}

func TestTrimAlwaysKeepsSystemMessage(t *testing.T) {
	messages := []llm.Message{{Role: "system", Content: "sys"}}
	for i := 0; i < 30; i++ {
		messages = append(messages, llm.Message{Role: "user", Content: "turn"})
	}
	trimmed := Trim(messages, 20, 12000)
	require.NotEmpty(t, trimmed)
	assert.Equal(t, "system", trimmed[0].Role)
	assert.LessOrEqual(t, len(trimmed)-1, 20)
}

func TestTrimDropsOldestMessagesFirst(t *testing.T) {
	messages := []llm.Message{{Role: "system", Content: "sys"}}
	for i := 0; i < 25; i++ {
		messages = append(messages, llm.Message{Role: "user", Content: "turn-" + string(rune('a'+i%26))})
	}
	trimmed := Trim(messages, 10, 12000)
	require.Len(t, trimmed, 11)
	assert.Equal(t, messages[len(messages)-10:], trimmed[1:])
}

func TestTrimRespectsCharBudget(t *testing.T) {
	big := strings.Repeat("x", 5000)
	messages := []llm.Message{
		{Role: "system", Content: "sys"},
		{Role: "user", Content: big},
		{Role: "assistant", Content: big},
		{Role: "user", Content: big},
	}
	trimmed := Trim(messages, 20, 11000)
	totalChars := 0
	for _, m := range trimmed {
		totalChars += len(m.Content)
	}
	assert.LessOrEqual(t, totalChars, 11000)
	assert.Equal(t, "system", trimmed[0].Role)
}
