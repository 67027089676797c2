// Package extract turns batches of transcript text into structured state
// diffs via a language model. The model's contract is a single JSON object;
// everything that can go wrong on the model side (markdown fences, invalid
// JSON, unknown fields) is absorbed here so the reconciliation engine only
// ever sees well-formed diffs.
package extract

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dmhud/dmhud/internal/campaign"
)

// NewCard is a card creation request inside a diff. Count above 1 expands
// into numbered copies during reconciliation.
type NewCard struct {
	Type      campaign.CardType `json:"type"`
	Name      string            `json:"name"`
	Notes     string            `json:"notes"`
	IsCanon   *bool             `json:"isCanon,omitempty"`
	IsPC      *bool             `json:"isPC,omitempty"`
	InParty   *bool             `json:"inParty,omitempty"`
	IsHostile *bool             `json:"isHostile,omitempty"`
	// InCombat carries explicit presence semantics: when set it wins over
	// the automatic combat flagging applied in combat mode.
	InCombat *bool                   `json:"inCombat,omitempty"`
	Count    int                     `json:"count,omitempty"`
	HP       *campaign.HP            `json:"hp,omitempty"`
	AC       int                     `json:"ac,omitempty"`
	Level    int                     `json:"level,omitempty"`
	Class    string                  `json:"class,omitempty"`
	Stats    *campaign.AbilityScores `json:"stats,omitempty"`
}

// CardUpdate targets an existing card by name.
type CardUpdate struct {
	Name    string             `json:"name"`
	Updates campaign.CardPatch `json:"updates"`
}

// HPChange adjusts a card's hit points. Damage and Healing may both be set;
// the net delta is Healing - Damage.
type HPChange struct {
	Name    string `json:"name"`
	Damage  int    `json:"damage,omitempty"`
	Healing int    `json:"healing,omitempty"`
}

// StatusChange adds and removes condition markers on a card.
type StatusChange struct {
	Name         string   `json:"name"`
	AddStatus    []string `json:"addStatus,omitempty"`
	RemoveStatus []string `json:"removeStatus,omitempty"`
}

// EventChange is a milestone noticed in the transcript.
type EventChange struct {
	Character string             `json:"character"`
	Type      campaign.EventType `json:"type"`
	Detail    string             `json:"detail"`
	Outcome   campaign.Outcome   `json:"outcome,omitempty"`
}

// Diff is the complete structured result of one extraction call. A zero
// Diff means "nothing to change" and is the safe fallback for unparseable
// model output.
type Diff struct {
	NewCards      []NewCard      `json:"newCards"`
	CardUpdates   []CardUpdate   `json:"cardUpdates"`
	HPChanges     []HPChange     `json:"hpChanges"`
	StatusChanges []StatusChange `json:"statusChanges"`
	Events        []EventChange  `json:"events"`
	Combatants    []string       `json:"combatants,omitempty"`
	ModeSwitch    campaign.Mode  `json:"modeSwitch,omitempty"`
}

// IsEmpty reports whether the diff carries no changes at all.
func (d Diff) IsEmpty() bool {
	return len(d.NewCards) == 0 && len(d.CardUpdates) == 0 &&
		len(d.HPChanges) == 0 && len(d.StatusChanges) == 0 &&
		len(d.Events) == 0 && len(d.Combatants) == 0 && d.ModeSwitch == ""
}

// ParseDiff decodes a raw model response into a Diff. Markdown code fences
// are stripped first since models wrap JSON in them despite instructions.
// Unknown top-level keys are ignored.
func ParseDiff(raw string) (Diff, error) {
	cleaned := StripFences(raw)
	if cleaned == "" {
		return Diff{}, fmt.Errorf("extract: empty response")
	}

	var d Diff
	if err := json.Unmarshal([]byte(cleaned), &d); err != nil {
		return Diff{}, fmt.Errorf("extract: parse diff: %w", err)
	}
	return d, nil
}

// StripFences removes markdown code fence markers from a model response,
// leaving the JSON payload.
func StripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
