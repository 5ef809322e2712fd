package api

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers the JSON API. Each endpoint answers on both the
// dash and the underscore spelling used by older clients. Extra registers
// additional endpoints under /api, such as the bot webhook.
func (h *Handler) RegisterRoutes(r chi.Router, extra ...func(chi.Router)) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.Post("/logout", h.Logout)

		for _, path := range []string{"/user-info", "/user_info"} {
			r.Get(path, h.UserInfo)
			r.Post(path, h.UserInfo)
		}
		for _, path := range []string{"/send-message", "/send_message"} {
			r.Post(path, h.SendMessage)
		}
		for _, path := range []string{"/chat-history", "/chat_history"} {
			r.Get(path, h.ChatHistory)
			r.Post(path, h.ChatHistory)
		}
		for _, path := range []string{"/create-payment", "/create_payment"} {
			r.Post(path, h.CreatePayment)
		}
		for _, path := range []string{"/text-to-speech", "/text_to_speech"} {
			r.Post(path, h.TextToSpeech)
		}
		for _, path := range []string{"/speech-to-text", "/speech_to_text"} {
			r.Post(path, h.SpeechToText)
		}
		for _, register := range extra {
			register(r)
		}
	})
}
