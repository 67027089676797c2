package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dmhud/dmhud/internal/campaign"
)

func TestMemStoreCardRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemStore()

	cards := []campaign.Card{
		{ID: "c1", CampaignID: "camp", Type: campaign.CardCharacter, Name: "Greta"},
		{ID: "c2", CampaignID: "camp", Type: campaign.CardLocation, Name: "Prancing Pony"},
		{ID: "c3", CampaignID: "other", Type: campaign.CardItem, Name: "Lantern"},
	}
	if err := m.CreateCards(ctx, cards); err != nil {
		t.Fatalf("CreateCards: %v", err)
	}

	got, err := m.FetchCards(ctx, "camp")
	if err != nil {
		t.Fatalf("FetchCards: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("fetched %d cards, want 2", len(got))
	}
	if got[0].ID != "c1" || got[1].ID != "c2" {
		t.Errorf("insertion order not preserved: %q, %q", got[0].ID, got[1].ID)
	}

	upd := cards[0]
	upd.Notes = "barmaid"
	if err := m.UpdateCard(ctx, upd); err != nil {
		t.Fatalf("UpdateCard: %v", err)
	}
	got, _ = m.FetchCards(ctx, "camp")
	if got[0].Notes != "barmaid" {
		t.Errorf("update not persisted: %+v", got[0])
	}

	if err := m.UpdateCard(ctx, campaign.Card{ID: "missing"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemStoreVoidRestorePurge(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemStore()

	now := time.Now()
	c := campaign.Card{ID: "c1", CampaignID: "camp", Type: campaign.CardCharacter, Name: "Greta"}
	if err := m.CreateCards(ctx, []campaign.Card{c}); err != nil {
		t.Fatal(err)
	}

	c.VoidedAt = &now
	c.VoidedInSession = "s1"
	if err := m.VoidCard(ctx, c); err != nil {
		t.Fatalf("VoidCard: %v", err)
	}
	got, _ := m.FetchCards(ctx, "camp")
	if !got[0].IsVoided() {
		t.Fatal("expected voided card in fetch")
	}

	if err := m.RestoreCard(ctx, "c1"); err != nil {
		t.Fatalf("RestoreCard: %v", err)
	}
	got, _ = m.FetchCards(ctx, "camp")
	if got[0].IsVoided() || got[0].VoidedInSession != "" {
		t.Error("restore did not clear void markers")
	}

	if err := m.PurgeCard(ctx, "c1"); err != nil {
		t.Fatalf("PurgeCard: %v", err)
	}
	got, _ = m.FetchCards(ctx, "camp")
	if len(got) != 0 {
		t.Errorf("purged card still fetched: %+v", got)
	}
	if err := m.PurgeCard(ctx, "c1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemStoreSessionsTranscriptEvents(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemStore()

	s1 := campaign.Session{ID: "s1", CampaignID: "camp", Name: "One", IsActive: true}
	if err := m.CreateSession(ctx, s1); err != nil {
		t.Fatal(err)
	}
	end := time.Now()
	s1.IsActive = false
	s1.EndTime = &end
	if err := m.UpdateSession(ctx, s1); err != nil {
		t.Fatal(err)
	}
	sessions, _ := m.FetchSessions(ctx, "camp")
	if len(sessions) != 1 || sessions[0].IsActive {
		t.Errorf("sessions = %+v", sessions)
	}

	for _, text := range []string{"first", "second"} {
		if err := m.AppendTranscript(ctx, campaign.TranscriptEntry{SessionID: "s1", Speaker: "DM", Text: text}); err != nil {
			t.Fatal(err)
		}
	}
	entries, _ := m.FetchTranscript(ctx, "s1")
	if len(entries) != 2 || entries[0].Text != "first" {
		t.Errorf("transcript = %+v", entries)
	}

	if err := m.AppendEvents(ctx, []campaign.Event{
		{ID: "e1", SessionID: "s1", Character: "Greta", Type: campaign.EventCheck},
	}); err != nil {
		t.Fatal(err)
	}
	events, _ := m.FetchEvents(ctx, "s1")
	if len(events) != 1 {
		t.Errorf("events = %+v", events)
	}
}

func TestMemStoreRoster(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemStore()

	e := campaign.RosterEntry{ID: "r1", CampaignID: "camp", PlayerName: "Sam", CharacterName: "Borin"}
	if err := m.UpsertRosterEntry(ctx, e); err != nil {
		t.Fatal(err)
	}
	e.CharacterName = "Borin Ironfist"
	if err := m.UpsertRosterEntry(ctx, e); err != nil {
		t.Fatal(err)
	}
	roster, _ := m.FetchRoster(ctx, "camp")
	if len(roster) != 1 || roster[0].CharacterName != "Borin Ironfist" {
		t.Errorf("roster = %+v", roster)
	}

	if err := m.DeleteRosterEntry(ctx, "r1"); err != nil {
		t.Fatal(err)
	}
	roster, _ = m.FetchRoster(ctx, "camp")
	if len(roster) != 0 {
		t.Errorf("roster after delete = %+v", roster)
	}
}
