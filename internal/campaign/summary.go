package campaign

import (
	"fmt"
	"strings"
)

// Prompt context builders. Extraction prompts carry a compact view of the
// campaign so the model can tell known entities from new ones; these methods
// render that view. All of them take the read lock once and work on the
// consistent snapshot underneath it.

// CardSummary renders one line per non-voided card:
//
//   - Greta (CHARACTER): barmaid at the Prancing Pony | owns the inn; hates goblins [hostile] [in combat] [HP 4/9]
//
// Canon facts are joined with "; " after the notes. Cards without notes,
// facts, flags, or HP render just the name and type. An empty board renders
// "None yet".
func (s *State) CardSummary() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var b strings.Builder
	for _, c := range s.cards {
		if c.IsVoided() {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "- %s (%s)", c.Name, c.Type)
		if c.Notes != "" {
			b.WriteString(": ")
			b.WriteString(c.Notes)
		}
		if len(c.CanonFacts) > 0 {
			b.WriteString(" | ")
			b.WriteString(strings.Join(c.CanonFacts, "; "))
		}
		if c.IsHostile {
			b.WriteString(" [hostile]")
		}
		if c.InCombat {
			b.WriteString(" [in combat]")
		}
		if c.HP != nil {
			fmt.Fprintf(&b, " [HP %d/%d]", c.HP.Current, c.HP.Max)
		}
	}
	if b.Len() == 0 {
		return "None yet"
	}
	return b.String()
}

// RosterSummary renders the player roster as arrow lines:
//
//   - Player: Sam → Character: Eldrinax (aliases: Eldri)
//
// The extraction prompt tells the model to read player identities off the
// left side of the arrow and character names off the right, so the arrow
// form is load-bearing. Returns "No roster configured" when empty.
func (s *State) RosterSummary() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.roster) == 0 {
		return "No roster configured"
	}
	var b strings.Builder
	for _, e := range s.roster {
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "- Player: %s → Character: %s", e.PlayerName, e.CharacterName)
		if len(e.Aliases) > 0 {
			fmt.Fprintf(&b, " (aliases: %s)", strings.Join(e.Aliases, ", "))
		}
	}
	return b.String()
}

// RecentContext renders up to n of the most recent transcript lines of the
// current session as "Speaker: text" lines, oldest first. Returns
// "Session start" when the transcript is empty.
func (s *State) RecentContext(n int) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.transcripts[s.currentID]
	if len(entries) == 0 {
		return "Session start"
	}
	if len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s: %s", e.Speaker, e.Text)
	}
	return b.String()
}
