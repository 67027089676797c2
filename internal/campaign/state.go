package campaign

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a referenced card, session, or roster entry
// does not exist.
var ErrNotFound = errors.New("campaign: not found")

// ErrDuplicateName is returned by AddCard, UpdateCard, and RestoreCard when
// a non-voided card with the same case-insensitive name already exists.
var ErrDuplicateName = errors.New("campaign: card name already in use")

// ErrNotVoided is returned by PurgeCard for a card that is still active.
// Permanent deletion only proceeds from the voided state.
var ErrNotVoided = errors.New("campaign: card is not voided")

// State is the single logical owner of all mutable campaign state for a
// running session: cards, sessions, transcript, events, roster, and the
// current play mode.
//
// Every mutation is applied synchronously under one mutex, so a reader that
// follows a writer always observes the write (read-after-write consistency
// within the process). Durable persistence is handled outside this type by
// mirroring mutations to a store; a failed store write never appears here.
//
// All methods are safe for concurrent use. Accessors return copies — callers
// can never alias internal slices or maps.
type State struct {
	mu sync.RWMutex

	campaign    Campaign
	sessions    []Session
	cards       []Card
	roster      []RosterEntry
	transcripts map[string][]TranscriptEntry
	events      map[string][]Event

	mode      Mode
	currentID string // current session ID
}

// NewState creates a State for the given campaign with no sessions or cards.
// Call [State.StartSession] (or [State.Hydrate]) before ingesting transcript.
func NewState(c Campaign) *State {
	return &State{
		campaign:    c,
		transcripts: make(map[string][]TranscriptEntry),
		events:      make(map[string][]Event),
		mode:        ModeExploration,
	}
}

// Hydrate loads previously persisted children into the state. The session
// marked active (or the last session when none is) becomes current.
// Transcripts and events are grouped by their SessionID.
func (s *State) Hydrate(sessions []Session, cards []Card, roster []RosterEntry, transcript []TranscriptEntry, events []Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions = append([]Session(nil), sessions...)
	s.cards = append([]Card(nil), cards...)
	s.roster = append([]RosterEntry(nil), roster...)

	s.transcripts = make(map[string][]TranscriptEntry)
	for _, e := range transcript {
		s.transcripts[e.SessionID] = append(s.transcripts[e.SessionID], e)
	}
	s.events = make(map[string][]Event)
	for _, e := range events {
		s.events[e.SessionID] = append(s.events[e.SessionID], e)
	}

	s.currentID = ""
	for _, sess := range s.sessions {
		if sess.IsActive {
			s.currentID = sess.ID
			break
		}
	}
	if s.currentID == "" && len(s.sessions) > 0 {
		s.currentID = s.sessions[len(s.sessions)-1].ID
	}
}

// Campaign returns a copy of the campaign root.
func (s *State) Campaign() Campaign {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.campaign
}

// SetDMContext updates the DM's secret context string.
func (s *State) SetDMContext(ctx string) Campaign {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.campaign.DMContext = ctx
	s.campaign.UpdatedAt = time.Now()
	return s.campaign
}

// ─────────────────────────────────────────────────────────────────────────────
// Sessions
// ─────────────────────────────────────────────────────────────────────────────

// StartSession creates and activates a new session. Any previously active
// session is deactivated and its EndTime stamped — exactly one session per
// campaign is active at a time.
func (s *State) StartSession(name string) Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for i := range s.sessions {
		if s.sessions[i].IsActive {
			s.sessions[i].IsActive = false
			end := now
			s.sessions[i].EndTime = &end
		}
	}

	sess := Session{
		ID:         newID("session"),
		CampaignID: s.campaign.ID,
		Name:       name,
		StartTime:  now,
		IsActive:   true,
	}
	s.sessions = append(s.sessions, sess)
	s.currentID = sess.ID
	return sess
}

// SwitchSession changes the current session for viewing and ingestion without
// touching activation flags. Returns [ErrNotFound] for an unknown ID.
func (s *State) SwitchSession(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sess := range s.sessions {
		if sess.ID == id {
			s.currentID = id
			return nil
		}
	}
	return fmt.Errorf("%w: session %q", ErrNotFound, id)
}

// CurrentSession returns the session transcript and diffs are applied to.
// ok is false when no session exists yet.
func (s *State) CurrentSession() (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionByID(s.currentID)
}

// Sessions returns all sessions in creation order.
func (s *State) Sessions() []Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Session(nil), s.sessions...)
}

// sessionByID must be called with s.mu held.
func (s *State) sessionByID(id string) (Session, bool) {
	for _, sess := range s.sessions {
		if sess.ID == id {
			return sess, true
		}
	}
	return Session{}, false
}

// sessionIndex returns the position of id in creation order, or -1.
// Must be called with s.mu held.
func (s *State) sessionIndex(id string) int {
	for i, sess := range s.sessions {
		if sess.ID == id {
			return i
		}
	}
	return -1
}

// ─────────────────────────────────────────────────────────────────────────────
// Mode
// ─────────────────────────────────────────────────────────────────────────────

// Mode returns the current play mode.
func (s *State) Mode() Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

// SetMode transitions the play mode. Only the DM toggle and an extraction
// diff's modeSwitch go through here. Invalid values are ignored.
func (s *State) SetMode(m Mode) {
	if !m.IsValid() {
		return
	}
	s.mu.Lock()
	s.mode = m
	s.mu.Unlock()
}

// ─────────────────────────────────────────────────────────────────────────────
// Cards
// ─────────────────────────────────────────────────────────────────────────────

// ActiveCards returns all non-voided cards.
func (s *State) ActiveCards() []Card {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Card, 0, len(s.cards))
	for _, c := range s.cards {
		if !c.IsVoided() {
			out = append(out, c)
		}
	}
	return out
}

// VoidedCards returns all soft-deleted cards, recoverable until purged.
func (s *State) VoidedCards() []Card {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Card
	for _, c := range s.cards {
		if c.IsVoided() {
			out = append(out, c)
		}
	}
	return out
}

// VisibleCards returns the non-voided cards visible in the given session's
// view: a card is visible in session N iff its creation session's index is
// ≤ N's index. Cards without a creation session are always visible.
func (s *State) VisibleCards(sessionID string) []Card {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := s.sessionIndex(sessionID)
	if limit < 0 {
		return nil
	}

	var out []Card
	for _, c := range s.cards {
		if c.IsVoided() {
			continue
		}
		if c.SessionID != "" {
			idx := s.sessionIndex(c.SessionID)
			if idx > limit {
				continue
			}
		}
		out = append(out, c)
	}
	return out
}

// FindCard looks up a non-voided card by name, case-insensitively and
// exactly (no fuzzy matching). This is the lookup every diff target
// resolution goes through.
func (s *State) FindCard(name string) (Card, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findCard(name)
}

// findCard must be called with s.mu held.
func (s *State) findCard(name string) (Card, bool) {
	for _, c := range s.cards {
		if !c.IsVoided() && strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return Card{}, false
}

// CardByID returns the card with the given ID, voided or not.
func (s *State) CardByID(id string) (Card, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.cards {
		if c.ID == id {
			return c, true
		}
	}
	return Card{}, false
}

// AddCard inserts a new card. The card's name must not collide
// (case-insensitively) with any non-voided card; [ErrDuplicateName] is
// returned otherwise. Missing fields get defaults: a generated ID, the
// current session as creation session, CreatedAt, an empty riff map and
// status list, and the standard ability scores for creature types.
func (s *State) AddCard(c Card) (Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.Name == "" {
		return Card{}, fmt.Errorf("campaign: add card: name is required")
	}
	if _, exists := s.findCard(c.Name); exists {
		return Card{}, fmt.Errorf("%w: %q", ErrDuplicateName, c.Name)
	}

	if c.ID == "" {
		c.ID = newID("card")
	}
	c.CampaignID = s.campaign.ID
	if c.SessionID == "" {
		c.SessionID = s.currentID
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	if c.Riffs == nil {
		c.Riffs = map[string]string{}
	}
	if c.CanonFacts == nil {
		c.CanonFacts = []string{}
	}
	if c.Status == nil {
		c.Status = []string{}
	}
	if c.Type.IsCreature() && c.Stats == (AbilityScores{}) {
		c.Stats = DefaultAbilityScores()
	}
	if c.HP != nil {
		hp := c.HP.Clamp()
		c.HP = &hp
	}

	s.cards = append(s.cards, c)
	return c, nil
}

// UpdateCard applies a partial update to the card with the given ID and
// returns the updated card. HP, when patched, is clamped. A rename that
// would collide (case-insensitively) with another non-voided card fails
// with [ErrDuplicateName].
func (s *State) UpdateCard(id string, patch CardPatch) (Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.cards {
		if s.cards[i].ID != id {
			continue
		}
		if patch.Name != nil {
			if other, ok := s.findCard(*patch.Name); ok && other.ID != id {
				return Card{}, fmt.Errorf("%w: %q", ErrDuplicateName, *patch.Name)
			}
		}
		patch.applyTo(&s.cards[i])
		return s.cards[i], nil
	}
	return Card{}, fmt.Errorf("%w: card %q", ErrNotFound, id)
}

// SetRiff stores a speculative generated detail under the card's riff key,
// replacing any previous text for that key.
func (s *State) SetRiff(id, key, text string) (Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.cards {
		if s.cards[i].ID != id {
			continue
		}
		if s.cards[i].Riffs == nil {
			s.cards[i].Riffs = map[string]string{}
		}
		s.cards[i].Riffs[key] = text
		return s.cards[i], nil
	}
	return Card{}, fmt.Errorf("%w: card %q", ErrNotFound, id)
}

// CanonizeRiff promotes the riff under key into the card's canon facts and
// removes the riff entry. Promoting a missing or empty riff is an error.
func (s *State) CanonizeRiff(id, key string) (Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.cards {
		if s.cards[i].ID != id {
			continue
		}
		text := s.cards[i].Riffs[key]
		if text == "" {
			return Card{}, fmt.Errorf("campaign: canonize: card %q has no riff %q", id, key)
		}
		s.cards[i].CanonFacts = append(s.cards[i].CanonFacts, text)
		delete(s.cards[i].Riffs, key)
		return s.cards[i], nil
	}
	return Card{}, fmt.Errorf("%w: card %q", ErrNotFound, id)
}

// VoidCard soft-deletes a card (Active → Voided), recording the session the
// deletion happened in. Voiding an already-voided card is a no-op.
func (s *State) VoidCard(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.cards {
		if s.cards[i].ID != id {
			continue
		}
		if s.cards[i].IsVoided() {
			return nil
		}
		now := time.Now()
		s.cards[i].VoidedAt = &now
		s.cards[i].VoidedInSession = s.currentID
		return nil
	}
	return fmt.Errorf("%w: card %q", ErrNotFound, id)
}

// RestoreCard is the sole back-edge of the card lifecycle (Voided → Active).
// It fails with [ErrDuplicateName] when a non-voided card has since claimed
// the same name.
func (s *State) RestoreCard(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.cards {
		if s.cards[i].ID != id {
			continue
		}
		if !s.cards[i].IsVoided() {
			return nil
		}
		if _, exists := s.findCard(s.cards[i].Name); exists {
			return fmt.Errorf("%w: %q", ErrDuplicateName, s.cards[i].Name)
		}
		s.cards[i].VoidedAt = nil
		s.cards[i].VoidedInSession = ""
		return nil
	}
	return fmt.Errorf("%w: card %q", ErrNotFound, id)
}

// PurgeCard permanently removes a voided card (Voided → Purged). Purging an
// active card is rejected with [ErrNotVoided]; void it first.
func (s *State) PurgeCard(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.cards {
		if s.cards[i].ID != id {
			continue
		}
		if !s.cards[i].IsVoided() {
			return fmt.Errorf("%w: card %q", ErrNotVoided, id)
		}
		s.cards = append(s.cards[:i], s.cards[i+1:]...)
		return nil
	}
	return fmt.Errorf("%w: card %q", ErrNotFound, id)
}

// ─────────────────────────────────────────────────────────────────────────────
// Transcript and events
// ─────────────────────────────────────────────────────────────────────────────

// AppendTranscript appends one immutable transcript line to the current
// session and returns it.
func (s *State) AppendTranscript(speaker, text string) TranscriptEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := TranscriptEntry{
		ID:        newID("entry"),
		SessionID: s.currentID,
		Speaker:   speaker,
		Text:      text,
		Timestamp: time.Now(),
	}
	s.transcripts[s.currentID] = append(s.transcripts[s.currentID], entry)
	return entry
}

// TranscriptFor returns the full transcript of one session, oldest first.
func (s *State) TranscriptFor(sessionID string) []TranscriptEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]TranscriptEntry(nil), s.transcripts[sessionID]...)
}

// RecentTranscript returns up to n of the most recent transcript entries of
// the current session, oldest first.
func (s *State) RecentTranscript(n int) []TranscriptEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.transcripts[s.currentID]
	if len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return append([]TranscriptEntry(nil), entries...)
}

// AppendEvents appends milestone events to the current session, assigning IDs
// and timestamps, and returns the stored records.
func (s *State) AppendEvents(events []Event) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	out := make([]Event, 0, len(events))
	for _, e := range events {
		e.ID = newID("event")
		e.SessionID = s.currentID
		e.CreatedAt = now
		s.events[s.currentID] = append(s.events[s.currentID], e)
		out = append(out, e)
	}
	return out
}

// EventsFor returns all events of one session in append order.
func (s *State) EventsFor(sessionID string) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Event(nil), s.events[sessionID]...)
}

// CharacterEvents returns every event across all sessions whose character
// matches name case-insensitively, in append order.
func (s *State) CharacterEvents(name string) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Event
	for _, sess := range s.sessions {
		for _, e := range s.events[sess.ID] {
			if strings.EqualFold(e.Character, name) {
				out = append(out, e)
			}
		}
	}
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// Roster
// ─────────────────────────────────────────────────────────────────────────────

// Roster returns all player roster entries.
func (s *State) Roster() []RosterEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]RosterEntry(nil), s.roster...)
}

// UpsertRosterEntry inserts or replaces a roster entry by ID. An entry
// without an ID gets one generated.
func (s *State) UpsertRosterEntry(e RosterEntry) RosterEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	e.CampaignID = s.campaign.ID
	if e.ID == "" {
		e.ID = newID("roster")
		s.roster = append(s.roster, e)
		return e
	}
	for i := range s.roster {
		if s.roster[i].ID == e.ID {
			s.roster[i] = e
			return e
		}
	}
	s.roster = append(s.roster, e)
	return e
}

// DeleteRosterEntry removes a roster entry by ID. Unknown IDs are a no-op.
func (s *State) DeleteRosterEntry(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.roster {
		if s.roster[i].ID == id {
			s.roster = append(s.roster[:i], s.roster[i+1:]...)
			return
		}
	}
}

// newID produces a prefixed unique identifier.
func newID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}
