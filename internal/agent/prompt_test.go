package agent

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/sonnik/internal/domain"
)

func TestSystemPromptAge(t *testing.T) {
	user := &domain.User{Name: "Vera", BirthDate: "2000-06-15"}

	before := SystemPrompt(domain.LocaleEN, user, time.Date(2024, 6, 14, 12, 0, 0, 0, time.UTC))
	assert.Contains(t, before, "- Name: Vera")
	assert.Contains(t, before, "- Age: 23")

	on := SystemPrompt(domain.LocaleEN, user, time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC))
	assert.Contains(t, on, "- Age: 24")
}

func TestSystemPromptUnknownAge(t *testing.T) {
	user := &domain.User{Name: "Vera", BirthDate: "15.06.2000"}
	assert.Contains(t, SystemPrompt(domain.LocaleEN, user, time.Now()), "- Age: unknown")
	assert.Contains(t, SystemPrompt(domain.LocaleRU, user, time.Now()), "- Возраст: неизвестно\n")
}

func TestSystemPromptDefaultsToRussian(t *testing.T) {
	user := &domain.User{Name: "Вера", BirthDate: "2000-06-15"}
	now := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)

	prompt := SystemPrompt("", user, now)
	assert.True(t, strings.HasPrefix(prompt, "Ты - опытный психолог-толкователь снов."))
	assert.Contains(t, prompt, "- Имя: Вера")
	assert.Contains(t, prompt, "- Возраст: 24 лет")
	assert.Equal(t, prompt, SystemPrompt(domain.LocaleRU, user, now))
}

func TestBuildPromptOrder(t *testing.T) {
	history := []domain.Message{
		{Role: domain.RoleUser, Content: "q1"},
		{Role: domain.RoleAssistant, Content: "a1"},
	}
	turns := BuildPrompt(domain.LocaleEN, &domain.User{Name: "A", BirthDate: "1990-01-01"}, history, "q2", time.Now())

	require.Len(t, turns, 4)
	assert.Equal(t, RoleSystem, turns[0].Role)
	assert.True(t, strings.HasPrefix(turns[0].Content, "You are an experienced psychologist"))
	assert.Equal(t, []Turn{
		{Role: RoleUser, Content: "q1"},
		{Role: RoleAssistant, Content: "a1"},
		{Role: RoleUser, Content: "q2"},
	}, turns[1:])
}

func TestBuildPromptEmptyHistory(t *testing.T) {
	turns := BuildPrompt(domain.LocaleRU, nil, nil, "hello", time.Now())
	require.Len(t, turns, 2)
	assert.Equal(t, Turn{Role: RoleUser, Content: "hello"}, turns[1])
}
