package api

import (
	"errors"
	"net/http"
	"path/filepath"
	"strings"
)

// maxAudioSize bounds speech uploads.
const maxAudioSize = 10 << 20

var audioExtensions = map[string]bool{".wav": true, ".mp3": true, ".ogg": true}

type speechRequest struct {
	Text string `json:"text"`
}

// TextToSpeech defers speech synthesis to the client.
func (h *Handler) TextToSpeech(w http.ResponseWriter, r *http.Request) {
	var req speechRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		Error(w, http.StatusBadRequest, "Text is required")
		return
	}

	JSON(w, http.StatusOK, map[string]any{
		"success": false,
		"message": "Speech is only available through the browser Web Speech API",
	})
}

// SpeechToText checks the uploaded recording and defers recognition to the client.
func (h *Handler) SpeechToText(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxAudioSize)
	file, header, err := r.FormFile("audio")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			Error(w, http.StatusRequestEntityTooLarge, "Audio file too large")
			return
		}
		Error(w, http.StatusBadRequest, "Audio file is required")
		return
	}
	defer func() { _ = file.Close() }()

	if header.Filename == "" {
		Error(w, http.StatusBadRequest, "No file selected")
		return
	}
	if !audioExtensions[strings.ToLower(filepath.Ext(header.Filename))] {
		Error(w, http.StatusBadRequest, "Only WAV, MP3 and OGG files are supported")
		return
	}

	JSON(w, http.StatusOK, map[string]any{
		"success": false,
		"message": "Speech recognition is only available through the browser Web Speech API",
	})
}
