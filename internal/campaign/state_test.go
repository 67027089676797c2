package campaign

import (
	"errors"
	"strings"
	"testing"
)

func newTestState() *State {
	s := NewState(Campaign{ID: "camp-1", Name: "Test Campaign"})
	s.StartSession("Session 1")
	return s
}

func TestStartSessionDeactivatesPrevious(t *testing.T) {
	t.Parallel()
	s := newTestState()

	first, _ := s.CurrentSession()
	second := s.StartSession("Session 2")

	sessions := s.Sessions()
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	if sessions[0].IsActive {
		t.Error("first session should be deactivated")
	}
	if sessions[0].EndTime == nil {
		t.Error("first session should have EndTime stamped")
	}
	if !sessions[1].IsActive {
		t.Error("second session should be active")
	}

	cur, ok := s.CurrentSession()
	if !ok || cur.ID != second.ID {
		t.Errorf("current session = %q, want %q", cur.ID, second.ID)
	}
	if cur.ID == first.ID {
		t.Error("current session did not advance")
	}
}

func TestSwitchSession(t *testing.T) {
	t.Parallel()
	s := newTestState()
	first, _ := s.CurrentSession()
	s.StartSession("Session 2")

	if err := s.SwitchSession(first.ID); err != nil {
		t.Fatalf("SwitchSession: %v", err)
	}
	cur, _ := s.CurrentSession()
	if cur.ID != first.ID {
		t.Errorf("current = %q, want %q", cur.ID, first.ID)
	}

	if err := s.SwitchSession("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestAddCardDefaults(t *testing.T) {
	t.Parallel()
	s := newTestState()

	c, err := s.AddCard(Card{Type: CardCharacter, Name: "Greta"})
	if err != nil {
		t.Fatalf("AddCard: %v", err)
	}
	if c.ID == "" {
		t.Error("expected generated ID")
	}
	if c.SessionID == "" {
		t.Error("expected creation session stamped")
	}
	if c.Riffs == nil || c.Status == nil || c.CanonFacts == nil {
		t.Error("expected collections initialized")
	}
	if c.Stats != DefaultAbilityScores() {
		t.Errorf("expected default ability scores, got %+v", c.Stats)
	}
	if c.CreatedAt.IsZero() {
		t.Error("expected CreatedAt stamped")
	}
}

func TestAddCardDuplicateNameCaseInsensitive(t *testing.T) {
	t.Parallel()
	s := newTestState()

	if _, err := s.AddCard(Card{Type: CardCharacter, Name: "Greta"}); err != nil {
		t.Fatalf("AddCard: %v", err)
	}
	if _, err := s.AddCard(Card{Type: CardCharacter, Name: "GRETA"}); !errors.Is(err, ErrDuplicateName) {
		t.Errorf("expected ErrDuplicateName, got %v", err)
	}
}

func TestFindCardIgnoresVoided(t *testing.T) {
	t.Parallel()
	s := newTestState()

	c, _ := s.AddCard(Card{Type: CardCharacter, Name: "Greta"})
	if _, ok := s.FindCard("greta"); !ok {
		t.Fatal("expected case-insensitive match")
	}

	if err := s.VoidCard(c.ID); err != nil {
		t.Fatalf("VoidCard: %v", err)
	}
	if _, ok := s.FindCard("Greta"); ok {
		t.Error("voided card should not be found by name")
	}
}

func TestCardLifecycle(t *testing.T) {
	t.Parallel()
	s := newTestState()
	c, _ := s.AddCard(Card{Type: CardCharacter, Name: "Greta"})

	// Purge from active is rejected. Void first, then purge.
	if err := s.PurgeCard(c.ID); !errors.Is(err, ErrNotVoided) {
		t.Errorf("purge of active card: expected ErrNotVoided, got %v", err)
	}
	if err := s.VoidCard(c.ID); err != nil {
		t.Fatalf("VoidCard: %v", err)
	}
	got, _ := s.CardByID(c.ID)
	if !got.IsVoided() {
		t.Fatal("expected card voided")
	}
	if got.VoidedInSession == "" {
		t.Error("expected voiding session recorded")
	}

	if err := s.RestoreCard(c.ID); err != nil {
		t.Fatalf("RestoreCard: %v", err)
	}
	got, _ = s.CardByID(c.ID)
	if got.IsVoided() {
		t.Fatal("expected card restored")
	}

	if err := s.VoidCard(c.ID); err != nil {
		t.Fatalf("VoidCard: %v", err)
	}
	if err := s.PurgeCard(c.ID); err != nil {
		t.Fatalf("PurgeCard: %v", err)
	}
	if _, ok := s.CardByID(c.ID); ok {
		t.Error("purged card still present")
	}
}

func TestRestoreRejectsNameCollision(t *testing.T) {
	t.Parallel()
	s := newTestState()

	c, _ := s.AddCard(Card{Type: CardCharacter, Name: "Greta"})
	if err := s.VoidCard(c.ID); err != nil {
		t.Fatalf("VoidCard: %v", err)
	}
	if _, err := s.AddCard(Card{Type: CardCharacter, Name: "greta"}); err != nil {
		t.Fatalf("AddCard after void: %v", err)
	}
	if err := s.RestoreCard(c.ID); !errors.Is(err, ErrDuplicateName) {
		t.Errorf("expected ErrDuplicateName, got %v", err)
	}
}

func TestUpdateCardPatch(t *testing.T) {
	t.Parallel()
	s := newTestState()
	c, _ := s.AddCard(Card{Type: CardCharacter, Name: "Greta", InCombat: true})

	hostile := true
	inCombat := false
	notes := "barmaid at the inn"
	hp := HP{Current: 12, Max: 9}
	got, err := s.UpdateCard(c.ID, CardPatch{
		Notes:     &notes,
		IsHostile: &hostile,
		InCombat:  &inCombat,
		HP:        &hp,
	})
	if err != nil {
		t.Fatalf("UpdateCard: %v", err)
	}
	if got.Notes != notes || !got.IsHostile {
		t.Errorf("patch not applied: %+v", got)
	}
	if got.InCombat {
		t.Error("explicit inCombat=false should overwrite")
	}
	if got.HP == nil || got.HP.Current != 9 {
		t.Errorf("HP should clamp to max, got %+v", got.HP)
	}

	if _, err := s.UpdateCard("nope", CardPatch{Notes: &notes}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateCardRenameCollision(t *testing.T) {
	t.Parallel()
	s := newTestState()
	greta, _ := s.AddCard(Card{Type: CardCharacter, Name: "Greta"})
	barmaid, _ := s.AddCard(Card{Type: CardCharacter, Name: "barmaid"})

	// Renaming onto another live card's name must not yield two Gretas.
	name := "greta"
	if _, err := s.UpdateCard(barmaid.ID, CardPatch{Name: &name}); !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("expected ErrDuplicateName, got %v", err)
	}
	got, _ := s.CardByID(barmaid.ID)
	if got.Name != "barmaid" {
		t.Errorf("name = %q, want unchanged", got.Name)
	}

	// Re-asserting a card's own name (any case) is not a collision.
	self := "GRETA"
	if _, err := s.UpdateCard(greta.ID, CardPatch{Name: &self}); err != nil {
		t.Errorf("self-rename: %v", err)
	}

	// A voided card's name is free for the taking.
	s.VoidCard(greta.ID)
	taken := "Greta"
	if _, err := s.UpdateCard(barmaid.ID, CardPatch{Name: &taken}); err != nil {
		t.Errorf("rename onto voided name: %v", err)
	}
}

func TestVisibleCardsBySessionIndex(t *testing.T) {
	t.Parallel()
	s := newTestState()
	first, _ := s.CurrentSession()

	if _, err := s.AddCard(Card{Type: CardLocation, Name: "Prancing Pony"}); err != nil {
		t.Fatal(err)
	}
	s.StartSession("Session 2")
	second, _ := s.CurrentSession()
	if _, err := s.AddCard(Card{Type: CardCharacter, Name: "Greta"}); err != nil {
		t.Fatal(err)
	}

	got := s.VisibleCards(first.ID)
	if len(got) != 1 || got[0].Name != "Prancing Pony" {
		t.Errorf("session 1 view = %+v, want only Prancing Pony", got)
	}
	got = s.VisibleCards(second.ID)
	if len(got) != 2 {
		t.Errorf("session 2 view has %d cards, want 2", len(got))
	}
}

func TestTranscriptAndRecent(t *testing.T) {
	t.Parallel()
	s := newTestState()
	sess, _ := s.CurrentSession()

	for _, line := range []string{"one", "two", "three", "four", "five", "six", "seven"} {
		s.AppendTranscript("DM", line)
	}

	all := s.TranscriptFor(sess.ID)
	if len(all) != 7 {
		t.Fatalf("transcript length = %d, want 7", len(all))
	}
	recent := s.RecentTranscript(5)
	if len(recent) != 5 {
		t.Fatalf("recent length = %d, want 5", len(recent))
	}
	if recent[0].Text != "three" || recent[4].Text != "seven" {
		t.Errorf("recent window wrong: %q .. %q", recent[0].Text, recent[4].Text)
	}
}

func TestAppendEventsAndCharacterEvents(t *testing.T) {
	t.Parallel()
	s := newTestState()

	stored := s.AppendEvents([]Event{
		{Character: "Greta", Type: EventCheck, Detail: "persuasion", Outcome: OutcomeSuccess},
		{Character: "Borin", Type: EventAttack, Detail: "axe swing", Outcome: OutcomeCritical},
	})
	if len(stored) != 2 {
		t.Fatalf("stored %d events, want 2", len(stored))
	}
	for _, e := range stored {
		if e.ID == "" || e.SessionID == "" {
			t.Errorf("event missing IDs: %+v", e)
		}
	}

	got := s.CharacterEvents("greta")
	if len(got) != 1 || got[0].Detail != "persuasion" {
		t.Errorf("CharacterEvents = %+v", got)
	}
}

func TestRosterUpsertAndDelete(t *testing.T) {
	t.Parallel()
	s := newTestState()

	e := s.UpsertRosterEntry(RosterEntry{PlayerName: "Sam", CharacterName: "Borin"})
	if e.ID == "" {
		t.Fatal("expected generated roster ID")
	}
	e.CharacterName = "Borin Ironfist"
	s.UpsertRosterEntry(e)

	roster := s.Roster()
	if len(roster) != 1 || roster[0].CharacterName != "Borin Ironfist" {
		t.Errorf("roster = %+v", roster)
	}

	s.DeleteRosterEntry(e.ID)
	if len(s.Roster()) != 0 {
		t.Error("expected empty roster after delete")
	}
}

func TestSummaries(t *testing.T) {
	t.Parallel()
	s := newTestState()

	if got := s.CardSummary(); got != "None yet" {
		t.Errorf("empty card summary = %q", got)
	}
	if got := s.RosterSummary(); got != "No roster configured" {
		t.Errorf("empty roster summary = %q", got)
	}
	if got := s.RecentContext(5); got != "Session start" {
		t.Errorf("empty recent context = %q", got)
	}

	hp := HP{Current: 4, Max: 9}
	if _, err := s.AddCard(Card{
		Type: CardCharacter, Name: "Greta", Notes: "barmaid",
		CanonFacts: []string{"owns the inn", "hates goblins"},
		IsHostile:  true, InCombat: true, HP: &hp,
	}); err != nil {
		t.Fatal(err)
	}
	s.UpsertRosterEntry(RosterEntry{PlayerName: "Sam", CharacterName: "Borin", Aliases: []string{"B"}})
	s.AppendTranscript("DM", "You enter the tavern.")

	cards := s.CardSummary()
	for _, want := range []string{
		"Greta (CHARACTER)", "barmaid", "| owns the inn; hates goblins",
		"[hostile]", "[in combat]", "[HP 4/9]",
	} {
		if !strings.Contains(cards, want) {
			t.Errorf("card summary missing %q: %q", want, cards)
		}
	}
	if got := s.RosterSummary(); !strings.Contains(got, "- Player: Sam → Character: Borin (aliases: B)") {
		t.Errorf("roster summary = %q", got)
	}
	if got := s.RecentContext(5); got != "DM: You enter the tavern." {
		t.Errorf("recent context = %q", got)
	}
}

func TestSetRiffAndCanonize(t *testing.T) {
	t.Parallel()
	s := newTestState()
	c, _ := s.AddCard(Card{Type: CardCharacter, Name: "Greta"})

	got, err := s.SetRiff(c.ID, "secret", "She owes the thieves' guild a debt.")
	if err != nil {
		t.Fatalf("SetRiff: %v", err)
	}
	if got.Riffs["secret"] == "" {
		t.Fatalf("riff not stored: %+v", got.Riffs)
	}

	got, err = s.CanonizeRiff(c.ID, "secret")
	if err != nil {
		t.Fatalf("CanonizeRiff: %v", err)
	}
	if len(got.CanonFacts) != 1 || got.CanonFacts[0] != "She owes the thieves' guild a debt." {
		t.Errorf("canon facts = %v", got.CanonFacts)
	}
	if _, ok := got.Riffs["secret"]; ok {
		t.Error("riff key should be removed after canonize")
	}

	if _, err := s.CanonizeRiff(c.ID, "secret"); err == nil {
		t.Error("canonizing a missing riff should fail")
	}
	if _, err := s.SetRiff("nope", "secret", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateCardPatchCanonFactsAndRiffs(t *testing.T) {
	t.Parallel()
	s := newTestState()
	c, _ := s.AddCard(Card{Type: CardLocation, Name: "Rusty Gate"})

	facts := []string{"Built by dwarves", "Haunted at night"}
	riffs := map[string]string{"atmosphere": "Cold wind hums through the bars."}
	got, err := s.UpdateCard(c.ID, CardPatch{CanonFacts: &facts, Riffs: &riffs})
	if err != nil {
		t.Fatalf("UpdateCard: %v", err)
	}
	if len(got.CanonFacts) != 2 || got.CanonFacts[1] != "Haunted at night" {
		t.Errorf("canon facts = %v", got.CanonFacts)
	}
	if got.Riffs["atmosphere"] == "" {
		t.Errorf("riffs = %v", got.Riffs)
	}
}
