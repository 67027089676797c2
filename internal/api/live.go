package api

import (
	"context"
	"net/http"

	"github.com/dmhud/dmhud/internal/campaign"
	"github.com/dmhud/dmhud/internal/live"
	"github.com/dmhud/dmhud/internal/observe"
	"github.com/dmhud/dmhud/internal/utterance"
	"github.com/dmhud/dmhud/pkg/provider/stt"
)

// handleLiveStart opens a streaming transcription session. Audio then
// arrives chunk by chunk on /api/live/audio and completed utterances flow
// into the ingestion pipeline until /api/live/stop.
func (s *Server) handleLiveStart(w http.ResponseWriter, r *http.Request) {
	if s.stt == nil {
		writeError(w, http.StatusServiceUnavailable, "no speech provider configured")
		return
	}
	var body struct {
		SampleRate int    `json:"sampleRate"`
		Channels   int    `json:"channels"`
		Language   string `json:"language"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.SampleRate == 0 {
		body.SampleRate = 16000
	}
	if body.Channels == 0 {
		body.Channels = 1
	}

	s.captureMu.Lock()
	defer s.captureMu.Unlock()
	if s.capture != nil {
		writeError(w, http.StatusConflict, "capture already running")
		return
	}

	// The capture outlives this request; it ends on /api/live/stop.
	bg := context.WithoutCancel(r.Context())
	capt, err := live.Start(bg, s.stt, stt.StreamConfig{
		SampleRate: body.SampleRate,
		Channels:   body.Channels,
		Language:   body.Language,
		Keywords:   s.boostKeywords(),
	}, func(speaker, text string) {
		s.pipe.ProcessUtterance(bg, speaker, text)
	}, s.bufOpts...)
	if err != nil {
		observe.Logger(r.Context()).Error("api: live capture start failed", "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.capture = capt
	w.WriteHeader(http.StatusNoContent)
}

// handleLiveAudio forwards one raw audio chunk to the running capture.
func (s *Server) handleLiveAudio(w http.ResponseWriter, r *http.Request) {
	audio, err := readAudio(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.captureMu.Lock()
	capt := s.capture
	s.captureMu.Unlock()
	if capt == nil {
		writeError(w, http.StatusConflict, "no capture running")
		return
	}

	if err := capt.SendAudio(audio); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleLiveStop closes the capture, flushing any buffered speech into the
// pipeline as a final utterance.
func (s *Server) handleLiveStop(w http.ResponseWriter, r *http.Request) {
	s.captureMu.Lock()
	capt := s.capture
	s.capture = nil
	s.captureMu.Unlock()
	if capt == nil {
		writeError(w, http.StatusConflict, "no capture running")
		return
	}

	if err := capt.Close(); err != nil {
		observe.Logger(r.Context()).Warn("api: live capture close", "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleTranscribe runs a prerecorded audio file through the provider's
// batch endpoint and ingests every transcribed segment, attributing
// speakers by channel.
func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if s.stt == nil {
		writeError(w, http.StatusServiceUnavailable, "no speech provider configured")
		return
	}
	ft, ok := s.stt.(stt.FileTranscriber)
	if !ok {
		writeError(w, http.StatusNotImplemented, "speech provider does not transcribe files")
		return
	}

	audio, err := readAudio(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(audio) == 0 {
		writeError(w, http.StatusBadRequest, "empty audio body")
		return
	}

	results, err := ft.TranscribeFile(r.Context(), audio, r.Header.Get("Content-Type"), stt.StreamConfig{
		Keywords: s.boostKeywords(),
	})
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	entries := make([]campaign.TranscriptEntry, 0, len(results))
	for _, res := range results {
		speaker := utterance.SpeakerForChannel(res.Channel)
		entry, _ := s.pipe.ProcessUtterance(r.Context(), speaker, res.Text)
		entries = append(entries, entry)
	}
	writeJSON(w, http.StatusAccepted, entries)
}

// boostKeywords collects the names recognition should be biased toward:
// every character on the roster with their aliases, plus active card names.
func (s *Server) boostKeywords() []stt.KeywordBoost {
	var names []string
	for _, e := range s.state.Roster() {
		names = append(names, e.CharacterName)
		names = append(names, e.Aliases...)
	}
	for _, c := range s.state.ActiveCards() {
		names = append(names, c.Name)
	}
	return live.KeywordsFromNames(names)
}
