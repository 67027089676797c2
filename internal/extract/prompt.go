package extract

import (
	"fmt"
	"strings"
)

// systemPrompt is the extraction instruction set. It encodes the entity
// taxonomy, the player-vs-character roster rule, combat state coupling, and
// the exact JSON contract the parser expects. Changes here must stay in sync
// with [Diff].
const systemPrompt = `You are analyzing D&D gameplay transcript to extract and update entities.

INSTRUCTIONS:
1. NEVER create CHARACTER cards for real PLAYER names (left side of roster arrows) - these are out-of-game identities
2. DO create CHARACTER cards for in-game character names (right side of roster arrows) on FIRST mention if they don't exist yet
3. Entity TYPE rules:
   - CHARACTER: ALL people/creatures (goblins, orcs, bandits, thieves, NPCs, party members, monsters, everyone)
     - Set "isHostile": true if attacking, aggressive, ambushing, or clearly enemy combatants
     - Set "isHostile": false if friendly/neutral/not yet hostile
     - Set "inCombat": true when they engage in combat (attacking OR being attacked OR ambushing)
   - LOCATION: Places (taverns, caves, cities, dungeons)
   - ITEM: Objects (weapons, treasure, quest items, artifacts)
   - PLOT: Story threads, mysteries, quests
4. Combat state management - IMPORTANT:
   - "ambushed by goblins" → CREATE goblins with {"inCombat": true, "isHostile": true} AND trigger modeSwitch: "combat"
   - "three goblins attack" → CREATE goblins with {"inCombat": true, "isHostile": true}
   - "tall goblin draws sword and charges" → UPDATE that goblin: {"inCombat": true, "isHostile": true}
   - "party negotiates successfully" → UPDATE enemies: {"inCombat": false, "isHostile": false}
   - When combat starts, BOTH attackers AND defenders get "inCombat": true
   - AMBUSH = combat. Ambushing creatures are ALWAYS hostile and in combat.
5. If a character name or alias from the roster is mentioned AGAIN, update the EXISTING character card (don't create duplicates)
6. CRITICAL - Entity clarification patterns (UPDATE existing, DON'T create new):
   - "the barmaid introduces herself as Greta" → UPDATE existing "barmaid" with name: "Greta"
   - "the tall goblin in the middle" → UPDATE existing goblin with description
   - Look at RECENT CONTEXT - if a generic term was JUST mentioned, this is likely a clarification
7. For multiple creatures (e.g., "three goblins", "six thieves"), use "count" field (count: 3, count: 6)
8. Only create NEW entities if they're genuinely new, not clarifications of recent mentions
9. IMPORTANT: Detect HP changes from phrases like:
   - "X takes 5 damage" → {"name": "X", "damage": 5}
   - "The orc did 3 points of damage to Y" → {"name": "Y", "damage": 3}
   - "X deals 8 damage to Y" → {"name": "Y", "damage": 8}
   - "heals for 10" → {"name": "X", "healing": 10}
10. Extract D&D 5.5e stats when mentioned:
   - Ability scores (STR, DEX, CON, INT, WIS, CHA)
   - AC, Level, Class
11. IMPORTANT: Extract character events/milestones:
   - Ability checks, saving throws, attack rolls, discoveries, level ups, story moments

Return ONLY valid JSON (no markdown):
{
  "newCards": [{"type": "CHARACTER", "name": "...", "notes": "...", "isCanon": true, "isPC": false, "inParty": false, "isHostile": false, "inCombat": false, "count": 1}],
  "cardUpdates": [{"name": "...", "updates": {...}}],
  "hpChanges": [{"name": "...", "damage": 5}],
  "statusChanges": [{"name": "...", "addStatus": ["Poisoned"]}],
  "events": [{"character": "...", "type": "check", "detail": "...", "outcome": "success"}],
  "modeSwitch": "combat"
}

If no changes, return empty arrays.`

// PromptContext is the campaign view a batch is extracted against. The
// pipeline snapshots it at dispatch time.
type PromptContext struct {
	// Roster is the rendered player roster.
	Roster string
	// Cards is the rendered existing-entity summary.
	Cards string
	// Recent is the rendered recent transcript context.
	Recent string
	// DMContext is the DM's secret framing text. Empty renders as "None".
	DMContext string
}

// BuildUserPrompt assembles the extraction user prompt for one batch of
// utterances. The batch is joined with " | " so utterance boundaries survive
// into the prompt.
func BuildUserPrompt(texts []string, pc PromptContext) string {
	dmContext := pc.DMContext
	if dmContext == "" {
		dmContext = "None"
	}
	return fmt.Sprintf(`PLAYER ROSTER (DO NOT create cards for these real player names - only their character names):
%s

EXISTING ENTITIES:
%s

RECENT CONTEXT:
%s

NEW TRANSCRIPT: %s

DM SECRET CONTEXT: %s`,
		pc.Roster, pc.Cards, pc.Recent, strings.Join(texts, " | "), dmContext)
}
