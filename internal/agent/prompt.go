package agent

import (
	"fmt"
	"strconv"
	"time"

	"github.com/ashureev/sonnik/internal/domain"
)

// promptText is the per-locale wording of the persona preamble.
type promptText struct {
	template   string
	unknownAge string
	age        func(years int) string
}

var prompts = map[domain.Locale]promptText{
	domain.LocaleRU: {
		template: `Ты - опытный психолог-толкователь снов. Твоя задача - анализировать сны, которые описывают пользователи, и давать им психологическую интерпретацию.

Информация о пользователе:
- Имя: %s
- Возраст: %s

Твои особенности:
1. Давай развернутые, но понятные объяснения (3-5 предложений)
2. Будь внимательным к деталям снов
3. Делай акцент на психологической интерпретации, а не эзотерике
4. Будь эмпатичным и поддерживающим
5. Учитывай контекст предыдущих бесед с пользователем
6. Помогай пользователю понять, что его подсознание пытается сообщить

Помни: сны - это способ подсознания общаться с нами. Твоя цель - помочь пользователю лучше понять себя через анализ сновидений.`,
		unknownAge: "неизвестно",
		age:        func(years int) string { return strconv.Itoa(years) + " лет" },
	},
	domain.LocaleEN: {
		template: `You are an experienced psychologist who interprets dreams. Your task is to analyse the dreams users describe and offer a psychological interpretation.

About the user:
- Name: %s
- Age: %s

How you answer:
1. Give a thorough but clear explanation, three to five sentences, in one or a few paragraphs.
2. Pay attention to the details of the dream.
3. Focus on psychological interpretation rather than esoterics.
4. Be empathetic and supportive.
5. Take earlier conversations with the user into account.
6. Help the user understand what their subconscious is trying to tell them.

Remember: dreams are the subconscious talking to us. Your goal is to help the user understand themselves better through their dreams.`,
		unknownAge: "unknown",
		age:        strconv.Itoa,
	},
}

// ageLabel renders the user's age, or the locale's "unknown" when the birth date cannot be parsed.
func (p promptText) ageLabel(birthDate string, now time.Time) string {
	age, ok := domain.AgeAt(birthDate, now)
	if !ok {
		return p.unknownAge
	}
	return p.age(age)
}

// SystemPrompt returns the persona preamble for the user.
func SystemPrompt(locale domain.Locale, user *domain.User, now time.Time) string {
	p := prompts[locale.OrDefault()]
	name, birth := "", ""
	if user != nil {
		name, birth = user.Name, user.BirthDate
	}
	return fmt.Sprintf(p.template, name, p.ageLabel(birth, now))
}

// BuildPrompt assembles the transcript: system preamble, history tail, then the new message.
func BuildPrompt(locale domain.Locale, user *domain.User, history []domain.Message, message string, now time.Time) []Turn {
	turns := make([]Turn, 0, len(history)+2)
	turns = append(turns, Turn{Role: RoleSystem, Content: SystemPrompt(locale, user, now)})
	for _, msg := range history {
		role := RoleAssistant
		if msg.Role == domain.RoleUser {
			role = RoleUser
		}
		turns = append(turns, Turn{Role: role, Content: msg.Content})
	}
	return append(turns, Turn{Role: RoleUser, Content: message})
}
