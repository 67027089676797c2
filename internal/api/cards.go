package api

import (
	"errors"
	"net/http"

	"github.com/dmhud/dmhud/internal/campaign"
	"github.com/dmhud/dmhud/internal/generate"
)

// handleListCards returns the card list. ?voided=true selects soft-deleted
// cards; ?session=<id> filters to cards visible as of that session.
func (s *Server) handleListCards(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var cards []campaign.Card
	switch {
	case q.Get("voided") == "true":
		cards = s.state.VoidedCards()
	case q.Get("session") != "":
		cards = s.state.VisibleCards(q.Get("session"))
	default:
		cards = s.state.ActiveCards()
	}
	writeJSON(w, http.StatusOK, cards)
}

// handleCreateCard inserts a manually authored card. Manual cards carry no
// genesis snippet and count as canon unless the body says otherwise.
func (s *Server) handleCreateCard(w http.ResponseWriter, r *http.Request) {
	var c campaign.Card
	if err := decodeJSON(w, r, &c); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if c.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if !c.Type.IsValid() {
		writeError(w, http.StatusBadRequest, "unknown card type "+string(c.Type))
		return
	}

	created, err := s.state.AddCard(c)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.metrics.RecordCardMutation(r.Context(), "create")
	s.mirror(r.Context(), "card create", s.storeCreate(created))
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetCard(w http.ResponseWriter, r *http.Request) {
	c, ok := s.state.CardByID(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "card not found")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// handlePatchCard applies a partial update; absent fields keep their value.
func (s *Server) handlePatchCard(w http.ResponseWriter, r *http.Request) {
	var patch campaign.CardPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := s.state.UpdateCard(r.PathValue("id"), patch)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.metrics.RecordCardMutation(r.Context(), "update")
	s.mirror(r.Context(), "card update", s.storeUpdate(updated))
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleVoidCard(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.state.VoidCard(id); err != nil {
		writeDomainError(w, err)
		return
	}
	c, _ := s.state.CardByID(id)
	s.metrics.RecordCardMutation(r.Context(), "void")
	s.mirror(r.Context(), "card void", s.storeVoid(c))
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleRestoreCard(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.state.RestoreCard(id); err != nil {
		writeDomainError(w, err)
		return
	}
	c, _ := s.state.CardByID(id)
	s.metrics.RecordCardMutation(r.Context(), "restore")
	s.mirror(r.Context(), "card restore", s.storeRestore(id))
	writeJSON(w, http.StatusOK, c)
}

// handlePurgeCard removes a voided card permanently.
func (s *Server) handlePurgeCard(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.state.PurgeCard(id); err != nil {
		writeDomainError(w, err)
		return
	}
	s.metrics.RecordCardMutation(r.Context(), "purge")
	s.mirror(r.Context(), "card purge", s.storePurge(id))
	w.WriteHeader(http.StatusNoContent)
}

// handleCardEvents returns the milestone events recorded against the card's
// character name, across all sessions.
func (s *Server) handleCardEvents(w http.ResponseWriter, r *http.Request) {
	c, ok := s.state.CardByID(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "card not found")
		return
	}
	writeJSON(w, http.StatusOK, s.state.CharacterEvents(c.Name))
}

// ─────────────────────────────────────────────────────────────────────────────
// Riffs
// ─────────────────────────────────────────────────────────────────────────────

// handleGenerateRiff asks the model for speculative detail under the given
// template key and stores the result on the card. The text stays out of
// canon until the DM promotes it.
func (s *Server) handleGenerateRiff(w http.ResponseWriter, r *http.Request) {
	if s.gen == nil {
		writeDomainError(w, generate.ErrNotConfigured)
		return
	}
	id, key := r.PathValue("id"), r.PathValue("key")

	c, ok := s.state.CardByID(id)
	if !ok {
		writeError(w, http.StatusNotFound, "card not found")
		return
	}
	tmpl, ok := generate.TemplateFor(c.Type, key)
	if !ok {
		writeError(w, http.StatusBadRequest, "no riff template "+key+" for type "+string(c.Type))
		return
	}

	text, err := s.gen.Riff(r.Context(), generate.RiffRequest{
		Card:           c,
		DMContext:      s.state.Campaign().DMContext,
		TemplateKey:    tmpl.Key,
		TemplateLabel:  tmpl.Label,
		TemplatePrompt: tmpl.Prompt,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	updated, err := s.state.SetRiff(id, key, text)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.metrics.RecordCardMutation(r.Context(), "riff")
	s.mirror(r.Context(), "card riff", s.storeUpdate(updated))
	writeJSON(w, http.StatusOK, updated)
}

// handleSetRiff stores DM-edited riff text directly, bypassing generation.
func (s *Server) handleSetRiff(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text string `json:"text"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := s.state.SetRiff(r.PathValue("id"), r.PathValue("key"), body.Text)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.metrics.RecordCardMutation(r.Context(), "riff")
	s.mirror(r.Context(), "card riff", s.storeUpdate(updated))
	writeJSON(w, http.StatusOK, updated)
}

// handleCanonizeRiff promotes a riff into the card's canon facts and clears
// the riff key.
func (s *Server) handleCanonizeRiff(w http.ResponseWriter, r *http.Request) {
	updated, err := s.state.CanonizeRiff(r.PathValue("id"), r.PathValue("key"))
	if err != nil {
		if errors.Is(err, campaign.ErrNotFound) {
			writeDomainError(w, err)
		} else {
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}
	s.metrics.RecordCardMutation(r.Context(), "canonize")
	s.mirror(r.Context(), "card canonize", s.storeUpdate(updated))
	writeJSON(w, http.StatusOK, updated)
}
