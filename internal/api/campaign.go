package api

import (
	"context"
	"net/http"

	"github.com/dmhud/dmhud/internal/campaign"
	"github.com/dmhud/dmhud/internal/generate"
)

// stateSnapshot is the dashboard's one-shot bootstrap payload.
type stateSnapshot struct {
	Campaign       campaign.Campaign      `json:"campaign"`
	Mode           campaign.Mode          `json:"mode"`
	CurrentSession *campaign.Session      `json:"currentSession,omitempty"`
	Sessions       []campaign.Session     `json:"sessions"`
	Cards          []campaign.Card        `json:"cards"`
	VoidedCards    []campaign.Card        `json:"voidedCards"`
	Roster         []campaign.RosterEntry `json:"roster"`
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	snap := stateSnapshot{
		Campaign:    s.state.Campaign(),
		Mode:        s.state.Mode(),
		Sessions:    s.state.Sessions(),
		Cards:       s.state.ActiveCards(),
		VoidedCards: s.state.VoidedCards(),
		Roster:      s.state.Roster(),
	}
	if cur, ok := s.state.CurrentSession(); ok {
		snap.CurrentSession = &cur
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleIngest feeds one utterance into the pipeline. The transcript entry
// is appended synchronously; extraction happens later in a batch, so the
// response is 202 and the queued flag says whether the text will be mined
// for entities.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Speaker string `json:"speaker"`
		Text    string `json:"text"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	var (
		entry  campaign.TranscriptEntry
		queued bool
	)
	if body.Speaker == "" {
		entry, queued = s.pipe.Process(r.Context(), body.Text)
	} else {
		entry, queued = s.pipe.ProcessUtterance(r.Context(), body.Speaker, body.Text)
	}

	writeJSON(w, http.StatusAccepted, struct {
		Entry  campaign.TranscriptEntry `json:"entry"`
		Queued bool                     `json:"queued"`
	}{entry, queued})
}

// ─────────────────────────────────────────────────────────────────────────────
// Roster, DM context, mode
// ─────────────────────────────────────────────────────────────────────────────

func (s *Server) handleListRoster(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.state.Roster())
}

func (s *Server) handleUpsertRoster(w http.ResponseWriter, r *http.Request) {
	var e campaign.RosterEntry
	if err := decodeJSON(w, r, &e); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if e.PlayerName == "" || e.CharacterName == "" {
		writeError(w, http.StatusBadRequest, "playerName and characterName are required")
		return
	}

	saved := s.state.UpsertRosterEntry(e)
	s.mirror(r.Context(), "roster upsert", func(ctx context.Context) error {
		return s.store.UpsertRosterEntry(ctx, saved)
	})
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleDeleteRoster(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.state.DeleteRosterEntry(id)
	s.mirror(r.Context(), "roster delete", func(ctx context.Context) error {
		return s.store.DeleteRosterEntry(ctx, id)
	})
	w.WriteHeader(http.StatusNoContent)
}

// handleDMContext replaces the campaign's secret DM notes. The text feeds
// every extraction prompt but is never shown to players.
func (s *Server) handleDMContext(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DMContext string `json:"dmContext"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	camp := s.state.SetDMContext(body.DMContext)
	s.mirror(r.Context(), "campaign update", func(ctx context.Context) error {
		return s.store.UpdateCampaign(ctx, camp)
	})
	writeJSON(w, http.StatusOK, camp)
}

// handleMode switches between exploration and combat by DM decree,
// overriding whatever the last extraction diff decided.
func (s *Server) handleMode(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Mode campaign.Mode `json:"mode"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !body.Mode.IsValid() {
		writeError(w, http.StatusBadRequest, "unknown mode "+string(body.Mode))
		return
	}

	s.state.SetMode(body.Mode)
	writeJSON(w, http.StatusOK, struct {
		Mode campaign.Mode `json:"mode"`
	}{body.Mode})
}

// handlePolish runs the transcript cleanup pass over one session or, with
// campaignWide, every session. The polished text is returned, never written
// back; the raw transcript stays the record of what was actually said.
func (s *Server) handlePolish(w http.ResponseWriter, r *http.Request) {
	if s.gen == nil {
		writeDomainError(w, generate.ErrNotConfigured)
		return
	}
	var body struct {
		SessionID    string `json:"sessionId"`
		CampaignWide bool   `json:"campaignWide"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var lines []generate.PolishLine
	if body.CampaignWide {
		for _, sess := range s.state.Sessions() {
			lines = append(lines, polishLines(sess.Name, s.state.TranscriptFor(sess.ID))...)
		}
	} else {
		id := body.SessionID
		if id == "" {
			cur, ok := s.state.CurrentSession()
			if !ok {
				writeError(w, http.StatusUnprocessableEntity, "no session to polish")
				return
			}
			id = cur.ID
		}
		sessName := ""
		for _, sess := range s.state.Sessions() {
			if sess.ID == id {
				sessName = sess.Name
				break
			}
		}
		lines = polishLines(sessName, s.state.TranscriptFor(id))
	}
	if len(lines) == 0 {
		writeError(w, http.StatusUnprocessableEntity, "no transcript to polish")
		return
	}

	text, err := s.gen.Polish(r.Context(), lines, body.CampaignWide)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Text string `json:"text"`
	}{text})
}

func polishLines(sessionName string, entries []campaign.TranscriptEntry) []generate.PolishLine {
	lines := make([]generate.PolishLine, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, generate.PolishLine{
			SessionName: sessionName,
			Speaker:     e.Speaker,
			Text:        e.Text,
		})
	}
	return lines
}
