package campaign

// CardPatch is a partial card update. Pointer fields distinguish "not
// mentioned" from "set to the zero value", which matters for booleans: a
// patch that explicitly carries inCombat wins over any automatic combat
// flagging done during reconciliation.
//
// Unknown keys arriving from a model response are dropped during decoding,
// so a patch can be applied without further field validation.
type CardPatch struct {
	Type      *CardType      `json:"type,omitempty"`
	Name      *string        `json:"name,omitempty"`
	Notes     *string        `json:"notes,omitempty"`
	IsCanon   *bool          `json:"isCanon,omitempty"`
	IsPC      *bool          `json:"isPC,omitempty"`
	InParty   *bool          `json:"inParty,omitempty"`
	IsHostile *bool          `json:"isHostile,omitempty"`
	InCombat  *bool          `json:"inCombat,omitempty"`
	HP        *HP            `json:"hp,omitempty"`
	AC        *int           `json:"ac,omitempty"`
	Level     *int           `json:"level,omitempty"`
	Class     *string        `json:"class,omitempty"`
	Stats     *AbilityScores `json:"stats,omitempty"`
	Status    *[]string      `json:"status,omitempty"`

	// CanonFacts and Riffs replace their card fields wholesale when set.
	// The dashboard edits both lists client-side and sends the full value.
	CanonFacts *[]string          `json:"canonFacts,omitempty"`
	Riffs      *map[string]string `json:"riffs,omitempty"`
}

// IsZero reports whether the patch carries no changes.
func (p CardPatch) IsZero() bool {
	return p == (CardPatch{})
}

// applyTo overwrites each field of c that the patch carries. HP is clamped.
func (p CardPatch) applyTo(c *Card) {
	if p.Type != nil && p.Type.IsValid() {
		c.Type = *p.Type
	}
	if p.Name != nil && *p.Name != "" {
		c.Name = *p.Name
	}
	if p.Notes != nil {
		c.Notes = *p.Notes
	}
	if p.IsCanon != nil {
		c.IsCanon = *p.IsCanon
	}
	if p.IsPC != nil {
		c.IsPC = *p.IsPC
	}
	if p.InParty != nil {
		c.InParty = *p.InParty
	}
	if p.IsHostile != nil {
		c.IsHostile = *p.IsHostile
	}
	if p.InCombat != nil {
		c.InCombat = *p.InCombat
	}
	if p.HP != nil {
		hp := p.HP.Clamp()
		c.HP = &hp
	}
	if p.AC != nil {
		c.AC = *p.AC
	}
	if p.Level != nil {
		c.Level = *p.Level
	}
	if p.Class != nil {
		c.Class = *p.Class
	}
	if p.Stats != nil {
		c.Stats = *p.Stats
	}
	if p.Status != nil {
		c.Status = append([]string(nil), (*p.Status)...)
	}
	if p.CanonFacts != nil {
		c.CanonFacts = append([]string(nil), (*p.CanonFacts)...)
	}
	if p.Riffs != nil {
		riffs := make(map[string]string, len(*p.Riffs))
		for k, v := range *p.Riffs {
			riffs[k] = v
		}
		c.Riffs = riffs
	}
}
