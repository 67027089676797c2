// Package campaign defines the dmhud data model and the in-memory campaign
// state owner.
//
// A Campaign is the root aggregate: it owns Sessions (bounded play periods,
// each with its own transcript and event log), Cards (the tracked game
// entities the DM sees on the dashboard), and a PlayerRoster (real-world
// player names mapped to their in-fiction characters).
//
// All mutation of campaign state during a running session goes through
// [State], a single-writer mutable owner with synchronous read-after-write
// consistency. Durable storage is catch-up replication handled elsewhere
// (internal/store); the State is authoritative for the running process.
package campaign

import (
	"time"
)

// CardType classifies a tracked game entity.
type CardType string

const (
	// CardCharacter represents any person or creature: party members, NPCs,
	// goblins, monsters, everyone sentient.
	CardCharacter CardType = "CHARACTER"

	// CardLocation represents a place (tavern, cave, city, dungeon).
	CardLocation CardType = "LOCATION"

	// CardItem represents an object (weapon, treasure, quest item, artifact).
	CardItem CardType = "ITEM"

	// CardPlot represents a story thread, mystery, or quest.
	CardPlot CardType = "PLOT"

	// CardEnemy is a legacy alias for hostile characters. New extractions
	// always produce CHARACTER with IsHostile set; ENEMY is accepted on input
	// for cards created before the type set was collapsed.
	CardEnemy CardType = "ENEMY"
)

// IsValid reports whether t is a recognised card type.
func (t CardType) IsValid() bool {
	switch t {
	case CardCharacter, CardLocation, CardItem, CardPlot, CardEnemy:
		return true
	}
	return false
}

// IsCreature reports whether cards of this type carry combat state
// (HP, AC, status conditions, combat membership).
func (t CardType) IsCreature() bool {
	return t == CardCharacter || t == CardEnemy
}

// Mode is the session's current play mode. It is toggled either explicitly by
// the DM or by an extraction diff's modeSwitch field; no other component may
// change it.
type Mode string

const (
	ModeExploration Mode = "exploration"
	ModeCombat      Mode = "combat"
)

// IsValid reports whether m is a recognised mode.
func (m Mode) IsValid() bool {
	return m == ModeExploration || m == ModeCombat
}

// HP is a character's hit point pool. Current is always clamped to [0, Max].
type HP struct {
	Current int `json:"current"`
	Max     int `json:"max"`
}

// Clamp returns a copy of h with Current forced into [0, Max].
func (h HP) Clamp() HP {
	if h.Current < 0 {
		h.Current = 0
	}
	if h.Current > h.Max {
		h.Current = h.Max
	}
	return h
}

// AbilityScores holds the six D&D ability scores. The zero value is not
// meaningful; use [DefaultAbilityScores] for a fresh creature.
type AbilityScores struct {
	STR int `json:"STR"`
	DEX int `json:"DEX"`
	CON int `json:"CON"`
	INT int `json:"INT"`
	WIS int `json:"WIS"`
	CHA int `json:"CHA"`
}

// DefaultAbilityScores returns the standard commoner stat line (10 across).
func DefaultAbilityScores() AbilityScores {
	return AbilityScores{STR: 10, DEX: 10, CON: 10, INT: 10, WIS: 10, CHA: 10}
}

// Conditions is the fixed vocabulary of status conditions a creature card may
// carry. Status deltas naming anything else are still applied verbatim — the
// vocabulary exists for the presentation layer, not as a validation gate.
var Conditions = []string{
	"Blinded", "Charmed", "Deafened", "Exhaustion", "Frightened", "Grappled",
	"Incapacitated", "Invisible", "Paralyzed", "Petrified", "Poisoned",
	"Prone", "Restrained", "Stunned", "Unconscious",
}

// Card is the central entity of the dashboard: one tracked character,
// location, item, plot thread, or enemy.
//
// A card's name is its de-duplication key: unique case-insensitively among
// non-voided cards in its campaign. [State] enforces this on insertion.
type Card struct {
	ID         string   `json:"id"`
	CampaignID string   `json:"campaignId"`
	Type       CardType `json:"type"`

	// Name is the display name and the case-insensitive dedup key.
	Name string `json:"name"`

	// Notes is free-text description, replaced wholesale on update.
	Notes string `json:"notes"`

	// Genesis is the literal transcript snippet that caused this card's
	// creation, or empty for manually created cards.
	Genesis string `json:"genesis,omitempty"`

	// IsCanon marks DM-confirmed fact; false marks an AI-speculative riff card
	// not yet confirmed by the DM.
	IsCanon bool `json:"isCanon"`

	// CanonFacts is the ordered list of confirmed short facts about the card.
	CanonFacts []string `json:"canonFacts"`

	// Riffs maps a riff template key to speculative generated text. Riffs are
	// independent of canon facts until the DM promotes one.
	Riffs map[string]string `json:"riffs"`

	// Party and hostility flags. Only meaningful for creature types.
	IsPC      bool `json:"isPC"`
	InParty   bool `json:"inParty"`
	IsHostile bool `json:"isHostile"`
	InCombat  bool `json:"inCombat"`

	// Combat stats. HP is nil for cards without a hit point pool; HP deltas
	// targeting such cards are no-ops.
	HP     *HP           `json:"hp,omitempty"`
	AC     int           `json:"ac,omitempty"`
	Level  int           `json:"level,omitempty"`
	Class  string        `json:"class,omitempty"`
	Stats  AbilityScores `json:"stats"`
	Status []string      `json:"status"`

	// SessionID references the session the card was created in, for
	// session-scoped visibility filtering.
	SessionID string    `json:"sessionId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`

	// Void lifecycle. A voided card is hidden from active views but
	// recoverable until permanently deleted.
	VoidedAt        *time.Time `json:"voidedAt,omitempty"`
	VoidedInSession string     `json:"voidedInSession,omitempty"`
}

// IsVoided reports whether the card is soft-deleted.
func (c *Card) IsVoided() bool {
	return c.VoidedAt != nil
}

// Session is a bounded play period within a campaign. Exactly one session per
// campaign is active at a time; starting a new session deactivates the prior
// one and stamps its EndTime.
type Session struct {
	ID         string     `json:"id"`
	CampaignID string     `json:"campaignId"`
	Name       string     `json:"name"`
	StartTime  time.Time  `json:"startTime"`
	EndTime    *time.Time `json:"endTime,omitempty"`
	IsActive   bool       `json:"isActive"`
}

// EventType classifies a character milestone.
type EventType string

const (
	EventCheck     EventType = "check"
	EventSave      EventType = "save"
	EventAttack    EventType = "attack"
	EventDiscovery EventType = "discovery"
	EventLevelUp   EventType = "levelup"
	EventStory     EventType = "story"
)

// IsValid reports whether t is a recognised event type.
func (t EventType) IsValid() bool {
	switch t {
	case EventCheck, EventSave, EventAttack, EventDiscovery, EventLevelUp, EventStory:
		return true
	}
	return false
}

// Outcome records how an event resolved. Empty means no outcome applies
// (e.g. a discovery or story beat).
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeFail     Outcome = "fail"
	OutcomeCritical Outcome = "critical"
	OutcomeFumble   Outcome = "fumble"
)

// Event is an immutable timestamped milestone record owned by a session.
type Event struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Character string    `json:"character"`
	Type      EventType `json:"type"`
	Detail    string    `json:"detail"`
	Outcome   Outcome   `json:"outcome,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// TranscriptEntry is one immutable line of session transcript, append-only.
type TranscriptEntry struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Speaker   string    `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// RosterEntry maps a real-world player name to their in-fiction character.
// It exists purely to bias entity extraction against turning player names
// into cards; CharacterID is a weak, lookup-only reference.
type RosterEntry struct {
	ID            string   `json:"id"`
	CampaignID    string   `json:"campaignId"`
	PlayerName    string   `json:"playerName"`
	CharacterName string   `json:"characterName"`
	CharacterID   string   `json:"characterId,omitempty"`
	Aliases       []string `json:"aliases,omitempty"`
}

// Campaign is the root aggregate.
type Campaign struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// DMContext is free text never shown to players, injected into every
	// extraction prompt as "DM SECRET CONTEXT".
	DMContext string `json:"dmContext"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
