// Package bot serves the Telegram channel over a webhook. Linked accounts
// share the user's profile with the web client but keep their own conversation.
package bot

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/ashureev/sonnik/internal/api"
	"github.com/ashureev/sonnik/internal/dialogue"
	"github.com/ashureev/sonnik/internal/domain"
	"github.com/ashureev/sonnik/internal/identity"
	"github.com/ashureev/sonnik/internal/metrics"
)

const (
	kindCommand  = "command"
	kindLink     = "link"
	kindMessage  = "message"
	kindUnlinked = "unlinked"
	kindIgnored  = "ignored"
)

// texts is the bot's wording in one locale.
type texts struct {
	welcome        string
	help           string
	about          string
	askPhone       string
	askPassword    string
	linked         string
	alreadyLinked  string
	authFailed     string
	taken          string
	otherAccount   string
	cancelled      string
	notLinked      string
	unknownCommand string
	failure        string
}

var textsByLocale = map[domain.Locale]texts{
	domain.LocaleRU: {
		welcome: `👋 Привет! Я ИИ-сонник, помогу разобраться в значении ваших снов.

Просто опишите свой сон, и я дам вам:
• Анализ основных символов
• Психологическую интерпретацию
• Связь с реальной жизнью
• Практические рекомендации

Сначала подключите профиль Сонника командой /link.
Расскажите, что вам приснилось? 💭`,
		help: `🤖 Как пользоваться ботом:

1. Подключите профиль командой /link (телефон и пароль с сайта)
2. Опишите свой сон как можно подробнее
3. Получите толкование и задавайте уточняющие вопросы

/cancel прерывает незаконченный /link.`,
		about: `ℹ️ О боте:

Я - ИИ-помощник для толкования снов, основанный на современных психологических подходах (Фрейд, Юнг, современная психология).

Переписка в Telegram хранится отдельно от чата на сайте.`,
		askPhone:       "Отправьте номер телефона, с которым вы регистрировались.",
		askPassword:    "Теперь отправьте пароль.",
		linked:         "Готово, профиль подключен. Расскажите, что вам приснилось.",
		alreadyLinked:  "Этот аккаунт Telegram уже подключен к профилю %s.",
		authFailed:     "Неверный телефон или пароль. Отправьте /link, чтобы попробовать снова.",
		taken:          "Этот аккаунт Telegram подключен к другому профилю.",
		otherAccount:   "Ваш профиль уже подключен к другому аккаунту Telegram.",
		cancelled:      "Отменено.",
		notLinked:      "Сначала подключите профиль Сонника командой /link.",
		unknownCommand: "Неизвестная команда. Отправьте /help, чтобы увидеть список команд.",
		failure:        "Извините, произошла ошибка. Пожалуйста, попробуйте еще раз.",
	},
	domain.LocaleEN: {
		welcome: `Hi! I am a dream interpretation assistant.

Describe a dream and I will offer:
- an analysis of its main symbols
- a psychological interpretation
- links to what is happening in your life
- practical suggestions

First connect your Sonnik profile with /link.`,
		help: `How to use the bot:

1. Connect your profile with /link (phone and password from the website)
2. Write down your dream in as much detail as you remember
3. Read the interpretation and ask follow-up questions

/cancel stops an unfinished /link.`,
		about: `I interpret dreams using modern psychological approaches, from Freud and Jung to current research.

Your Telegram conversation is stored separately from the website chat.`,
		askPhone:       "Send the phone number you registered with.",
		askPassword:    "Now send your password.",
		linked:         "Done, your profile is linked. Tell me about your dream.",
		alreadyLinked:  "This Telegram account is already linked to %s.",
		authFailed:     "Wrong phone or password. Send /link to try again.",
		taken:          "This Telegram account is linked to another profile.",
		otherAccount:   "Your profile is already linked to a different Telegram account.",
		cancelled:      "Cancelled.",
		notLinked:      "Send /link to connect your Sonnik profile first.",
		unknownCommand: "Unknown command. Send /help for the list of commands.",
		failure:        "Sorry, something went wrong. Please try again.",
	},
}

// Bot turns updates into replies.
type Bot struct {
	identity *identity.Service
	dialogue *dialogue.Service
	sessions SessionStore
	text     texts
}

// New creates a bot speaking locale. Unsupported locales fall back to Russian.
func New(ids *identity.Service, dlg *dialogue.Service, sessions SessionStore, locale domain.Locale) *Bot {
	return &Bot{identity: ids, dialogue: dlg, sessions: sessions, text: textsByLocale[locale.OrDefault()]}
}

// HandleUpdate processes one update. It returns nil when there is nothing to say.
func (b *Bot) HandleUpdate(ctx context.Context, upd *Update) (*SendMessage, error) {
	msg := upd.Message
	if msg == nil || msg.From == nil || strings.TrimSpace(msg.Text) == "" {
		metrics.BotUpdatesTotal.WithLabelValues(kindIgnored).Inc()
		return nil, nil
	}
	text := strings.TrimSpace(msg.Text)
	key := msg.From.secondaryID()

	if strings.HasPrefix(text, "/") {
		metrics.BotUpdatesTotal.WithLabelValues(kindCommand).Inc()
		reply, err := b.command(ctx, msg, key, commandName(text))
		if err != nil {
			return nil, err
		}
		return newSendMessage(msg, reply), nil
	}

	session, err := b.sessions.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if session != nil {
		metrics.BotUpdatesTotal.WithLabelValues(kindLink).Inc()
		reply, err := b.continueLink(ctx, msg, key, session, text)
		if err != nil {
			return nil, err
		}
		return newSendMessage(msg, reply), nil
	}

	user, err := b.identity.FindBySecondaryIdentity(ctx, key)
	if err != nil {
		return nil, err
	}
	if user == nil {
		metrics.BotUpdatesTotal.WithLabelValues(kindUnlinked).Inc()
		return newSendMessage(msg, b.text.notLinked), nil
	}

	metrics.BotUpdatesTotal.WithLabelValues(kindMessage).Inc()
	reply, err := b.dialogue.Send(ctx, dialogue.SendInput{
		User:           user,
		Channel:        domain.ChannelTelegram,
		NativeThreadID: strconv.FormatInt(msg.Chat.ID, 10),
		Message:        text,
		RequestID:      "tg-" + strconv.FormatInt(upd.UpdateID, 10),
	})
	if err != nil {
		slog.Error("Bot message failed", "user_id", user.ID, "chat_id", msg.Chat.ID, "error", err)
		return newSendMessage(msg, b.text.failure), nil
	}
	return newSendMessage(msg, reply.Text), nil
}

// commandName strips arguments and a trailing @botname.
func commandName(text string) string {
	name := strings.Fields(text)[0]
	if i := strings.IndexByte(name, '@'); i > 0 {
		name = name[:i]
	}
	return strings.ToLower(name)
}

func (b *Bot) command(ctx context.Context, msg *Message, key, name string) (string, error) {
	switch name {
	case "/start":
		return b.text.welcome, nil
	case "/help":
		return b.text.help, nil
	case "/about":
		return b.text.about, nil
	case "/cancel":
		if err := b.sessions.Delete(ctx, key); err != nil {
			return "", err
		}
		return b.text.cancelled, nil
	case "/link":
		user, err := b.identity.FindBySecondaryIdentity(ctx, key)
		if err != nil {
			return "", err
		}
		if user != nil {
			return fmt.Sprintf(b.text.alreadyLinked, user.Name), nil
		}
		if err := b.sessions.Put(ctx, key, &Session{Step: StepAwaitPhone}); err != nil {
			return "", err
		}
		slog.Info("Bot link started", "secondary_id", key, "chat_id", msg.Chat.ID)
		return b.text.askPhone, nil
	default:
		return b.text.unknownCommand, nil
	}
}

func (b *Bot) continueLink(ctx context.Context, msg *Message, key string, session *Session, text string) (string, error) {
	switch session.Step {
	case StepAwaitPhone:
		next := &Session{Step: StepAwaitPassword, Phone: text}
		if err := b.sessions.Put(ctx, key, next); err != nil {
			return "", err
		}
		return b.text.askPassword, nil

	case StepAwaitPassword:
		// Any outcome ends this attempt.
		if err := b.sessions.Delete(ctx, key); err != nil {
			return "", err
		}

		user, err := b.identity.Authenticate(ctx, session.Phone, text)
		if errors.Is(err, domain.ErrAuthFailure) || errors.Is(err, domain.ErrValidation) {
			slog.Info("Bot link rejected", "secondary_id", key)
			return b.text.authFailed, nil
		}
		if err != nil {
			return "", err
		}

		ok, err := b.identity.LinkSecondaryIdentity(ctx, user.ID, key, msg.From.handle())
		if errors.Is(err, domain.ErrDuplicateIdentity) {
			return b.text.taken, nil
		}
		if err != nil {
			return "", err
		}
		if !ok {
			return b.text.otherAccount, nil
		}

		slog.Info("Bot account linked", "user_id", user.ID, "secondary_id", key)
		return b.text.linked, nil

	default:
		slog.Warn("Bot session in unknown step, resetting", "secondary_id", key, "step", session.Step)
		if err := b.sessions.Delete(ctx, key); err != nil {
			return "", err
		}
		return b.text.notLinked, nil
	}
}

// Handler serves the webhook endpoint.
type Handler struct {
	bot    *Bot
	secret string
}

// NewHandler creates the webhook handler. A non-empty secret must match the
// X-Telegram-Bot-Api-Secret-Token header.
func NewHandler(b *Bot, secret string) *Handler {
	return &Handler{bot: b, secret: secret}
}

const secretHeader = "X-Telegram-Bot-Api-Secret-Token"

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.secret != "" {
		got := r.Header.Get(secretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
			api.Error(w, http.StatusUnauthorized, "Invalid webhook secret")
			return
		}
	}

	var upd Update
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&upd); err != nil {
		api.Error(w, http.StatusBadRequest, "Invalid update")
		return
	}

	reply, err := h.bot.HandleUpdate(r.Context(), &upd)
	if err != nil {
		// Telegram retries non-2xx responses, so failures are reported in-chat.
		slog.Error("Bot update failed", "update_id", upd.UpdateID, "error", err)
		if upd.Message != nil {
			api.JSON(w, http.StatusOK, newSendMessage(upd.Message, h.bot.text.failure))
			return
		}
		api.JSON(w, http.StatusOK, map[string]bool{"ok": true})
		return
	}
	if reply == nil {
		api.JSON(w, http.StatusOK, map[string]bool{"ok": true})
		return
	}
	api.JSON(w, http.StatusOK, reply)
}
