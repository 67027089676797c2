package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/dmhud/dmhud/internal/campaign"
	"github.com/dmhud/dmhud/internal/generate"
)

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.state.Sessions())
}

// handleStartSession opens a new session and makes it active. The previously
// active session, if any, is closed with an end time; both records mirror to
// the store.
func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	prev, hadPrev := s.state.CurrentSession()
	sess := s.state.StartSession(body.Name)

	s.mirror(r.Context(), "session create", func(ctx context.Context) error {
		return s.store.CreateSession(ctx, sess)
	})
	if hadPrev {
		// Re-read the previous session so the mirrored record carries the
		// deactivation and end time StartSession just stamped.
		for _, old := range s.state.Sessions() {
			if old.ID == prev.ID {
				s.mirror(r.Context(), "session close", func(ctx context.Context) error {
					return s.store.UpdateSession(ctx, old)
				})
				break
			}
		}
	}
	writeJSON(w, http.StatusCreated, sess)
}

// handleActivateSession switches which session transcript and diffs apply
// to. Activation flags are untouched, so nothing mirrors.
func (s *Server) handleActivateSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.state.SwitchSession(id); err != nil {
		writeDomainError(w, err)
		return
	}
	sess, _ := s.state.CurrentSession()
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleSessionTranscript(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.state.TranscriptFor(r.PathValue("id")))
}

func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.state.EventsFor(r.PathValue("id")))
}

// handleSessionReport generates the end-of-session chronicle from the
// session's transcript and milestone events.
func (s *Server) handleSessionReport(w http.ResponseWriter, r *http.Request) {
	if s.gen == nil {
		writeDomainError(w, generate.ErrNotConfigured)
		return
	}
	id := r.PathValue("id")

	transcript := s.state.TranscriptFor(id)
	if len(transcript) == 0 {
		writeError(w, http.StatusUnprocessableEntity, "session has no transcript")
		return
	}

	report, err := s.gen.SessionReport(r.Context(), generate.ReportRequest{
		PCNames:    s.pcNames(),
		Transcript: formatTranscript(transcript),
		Events:     formatEvents(s.state.EventsFor(id)),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// pcNames lists the player characters' card names, for MVP attribution.
func (s *Server) pcNames() []string {
	var names []string
	for _, c := range s.state.ActiveCards() {
		if c.IsPC {
			names = append(names, c.Name)
		}
	}
	return names
}

func formatTranscript(entries []campaign.TranscriptEntry) string {
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "%s: %s\n", e.Speaker, e.Text)
	}
	return b.String()
}

func formatEvents(events []campaign.Event) string {
	var b strings.Builder
	for _, e := range events {
		if e.Outcome != "" {
			fmt.Fprintf(&b, "%s (%s): %s [%s]\n", e.Character, e.Type, e.Detail, e.Outcome)
		} else {
			fmt.Fprintf(&b, "%s (%s): %s\n", e.Character, e.Type, e.Detail)
		}
	}
	return b.String()
}
