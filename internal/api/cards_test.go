package api

import (
	"net/http"
	"testing"

	"github.com/dmhud/dmhud/internal/campaign"
)

func createCard(t *testing.T, f *fixture, body map[string]any) campaign.Card {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/cards", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create card: status = %d: %s", rec.Code, rec.Body.String())
	}
	var c campaign.Card
	decode(t, rec, &c)
	return c
}

func TestCreateAndGetCard(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	c := createCard(t, f, map[string]any{
		"type": "CHARACTER", "name": "Thorin", "notes": "Dwarf smith", "isPC": true,
	})
	if c.ID == "" || c.CampaignID != "camp-1" || !c.IsPC {
		t.Fatalf("created = %+v", c)
	}

	rec := f.do(t, http.MethodGet, "/api/cards/"+c.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	var got campaign.Card
	decode(t, rec, &got)
	if got.Name != "Thorin" {
		t.Errorf("name = %q", got.Name)
	}

	// Manual creation mirrors asynchronously.
	waitFor(t, func() bool {
		cards, err := f.mem.FetchCards(t.Context(), "camp-1")
		return err == nil && len(cards) == 1
	})
}

func TestCreateCardValidation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	cases := []struct {
		name string
		body map[string]any
		want int
	}{
		{"missing name", map[string]any{"type": "CHARACTER"}, http.StatusBadRequest},
		{"bad type", map[string]any{"type": "VEHICLE", "name": "Cart"}, http.StatusBadRequest},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if rec := f.do(t, http.MethodPost, "/api/cards", c.body); rec.Code != c.want {
				t.Errorf("status = %d, want %d", rec.Code, c.want)
			}
		})
	}
}

func TestCreateCardDuplicateName(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	createCard(t, f, map[string]any{"type": "CHARACTER", "name": "Thorin"})
	rec := f.do(t, http.MethodPost, "/api/cards", map[string]any{"type": "ENEMY", "name": "thorin"})
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

func TestPatchCard(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	c := createCard(t, f, map[string]any{"type": "LOCATION", "name": "The Rusty Anchor"})

	rec := f.do(t, http.MethodPatch, "/api/cards/"+c.ID, map[string]any{
		"notes": "Dockside tavern, smells of tar",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var got campaign.Card
	decode(t, rec, &got)
	if got.Notes != "Dockside tavern, smells of tar" {
		t.Errorf("notes = %q", got.Notes)
	}
	if got.Name != "The Rusty Anchor" {
		t.Errorf("patch clobbered name: %q", got.Name)
	}
}

func TestPatchCardRenameCollision(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	createCard(t, f, map[string]any{"type": "CHARACTER", "name": "Greta"})
	barmaid := createCard(t, f, map[string]any{"type": "CHARACTER", "name": "barmaid"})

	rec := f.do(t, http.MethodPatch, "/api/cards/"+barmaid.ID, map[string]any{
		"name": "greta",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409: %s", rec.Code, rec.Body.String())
	}
}

func TestPatchUnknownCard(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec := f.do(t, http.MethodPatch, "/api/cards/nope", map[string]any{"notes": "x"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestVoidRestorePurgeLifecycle(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	c := createCard(t, f, map[string]any{"type": "ENEMY", "name": "Gnarl"})

	if rec := f.do(t, http.MethodPost, "/api/cards/"+c.ID+"/void", nil); rec.Code != http.StatusOK {
		t.Fatalf("void status = %d: %s", rec.Code, rec.Body.String())
	}
	if got := f.state.ActiveCards(); len(got) != 0 {
		t.Fatalf("active after void = %+v", got)
	}

	var voided []campaign.Card
	decode(t, f.do(t, http.MethodGet, "/api/cards?voided=true", nil), &voided)
	if len(voided) != 1 {
		t.Fatalf("voided list = %+v", voided)
	}

	if rec := f.do(t, http.MethodPost, "/api/cards/"+c.ID+"/restore", nil); rec.Code != http.StatusOK {
		t.Fatalf("restore status = %d", rec.Code)
	}
	if got := f.state.ActiveCards(); len(got) != 1 {
		t.Fatalf("active after restore = %+v", got)
	}

	// Purging an active card is rejected; void first.
	if rec := f.do(t, http.MethodDelete, "/api/cards/"+c.ID, nil); rec.Code != http.StatusConflict {
		t.Errorf("purge active: status = %d, want 409", rec.Code)
	}
	f.do(t, http.MethodPost, "/api/cards/"+c.ID+"/void", nil)
	if rec := f.do(t, http.MethodDelete, "/api/cards/"+c.ID, nil); rec.Code != http.StatusNoContent {
		t.Errorf("purge voided: status = %d, want 204", rec.Code)
	}
	if _, ok := f.state.CardByID(c.ID); ok {
		t.Error("card still present after purge")
	}
}

func TestCardEvents(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	c := createCard(t, f, map[string]any{"type": "CHARACTER", "name": "Greta", "isPC": true})
	f.state.AppendEvents([]campaign.Event{
		{Character: "Greta", Type: campaign.EventCheck, Detail: "Perception at the door", Outcome: campaign.OutcomeSuccess},
		{Character: "Someone Else", Type: campaign.EventAttack, Detail: "misses"},
	})

	var events []campaign.Event
	rec := f.do(t, http.MethodGet, "/api/cards/"+c.ID+"/events", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	decode(t, rec, &events)
	if len(events) != 1 || events[0].Detail != "Perception at the door" {
		t.Errorf("events = %+v", events)
	}
}

func TestSetAndCanonizeRiff(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	c := createCard(t, f, map[string]any{"type": "CHARACTER", "name": "Marla"})

	rec := f.do(t, http.MethodPut, "/api/cards/"+c.ID+"/riffs/secret", map[string]string{
		"text": "She forged the baron's will.",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("set riff status = %d: %s", rec.Code, rec.Body.String())
	}
	var got campaign.Card
	decode(t, rec, &got)
	if got.Riffs["secret"] != "She forged the baron's will." {
		t.Fatalf("riffs = %+v", got.Riffs)
	}

	rec = f.do(t, http.MethodPost, "/api/cards/"+c.ID+"/riffs/secret/canonize", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("canonize status = %d: %s", rec.Code, rec.Body.String())
	}
	got = campaign.Card{}
	decode(t, rec, &got)
	if len(got.CanonFacts) != 1 || got.CanonFacts[0] != "She forged the baron's will." {
		t.Errorf("canon facts = %+v", got.CanonFacts)
	}
	if _, ok := got.Riffs["secret"]; ok {
		t.Error("riff key survived canonization")
	}
}

func TestCanonizeMissingRiff(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	c := createCard(t, f, map[string]any{"type": "ITEM", "name": "Blackblade"})
	rec := f.do(t, http.MethodPost, "/api/cards/"+c.ID+"/riffs/origin/canonize", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestGenerateRiff(t *testing.T) {
	t.Parallel()
	f := newFixture(t, withGenerator(t, "Forged from a fallen star."))

	c := createCard(t, f, map[string]any{"type": "ITEM", "name": "Blackblade"})

	rec := f.do(t, http.MethodPost, "/api/cards/"+c.ID+"/riffs/origin", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var got campaign.Card
	decode(t, rec, &got)
	if got.Riffs["origin"] != "Forged from a fallen star." {
		t.Errorf("riffs = %+v", got.Riffs)
	}
}

func TestGenerateRiffUnknownTemplate(t *testing.T) {
	t.Parallel()
	f := newFixture(t, withGenerator(t, "whatever"))

	// Items have no "tactics" template; that belongs to enemies.
	c := createCard(t, f, map[string]any{"type": "ITEM", "name": "Lantern"})
	rec := f.do(t, http.MethodPost, "/api/cards/"+c.ID+"/riffs/tactics", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestGenerateRiffWithoutGenerator(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	c := createCard(t, f, map[string]any{"type": "ITEM", "name": "Lantern"})
	rec := f.do(t, http.MethodPost, "/api/cards/"+c.ID+"/riffs/origin", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}
