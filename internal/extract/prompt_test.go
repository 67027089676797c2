package extract

import (
	"strings"
	"testing"
)

func TestBuildUserPrompt_Sections(t *testing.T) {
	t.Parallel()
	got := BuildUserPrompt([]string{"The party enters the tavern."}, PromptContext{
		Roster:    "- Player: Sam → Character: Borin",
		Cards:     "- Greta (CHARACTER): barmaid",
		Recent:    "DM: You see a tavern.",
		DMContext: "Greta is secretly a spy",
	})

	for _, want := range []string{
		"PLAYER ROSTER (DO NOT create cards for these real player names - only their character names):\n- Player: Sam → Character: Borin",
		"EXISTING ENTITIES:\n- Greta (CHARACTER): barmaid",
		"RECENT CONTEXT:\nDM: You see a tavern.",
		"NEW TRANSCRIPT: The party enters the tavern.",
		"DM SECRET CONTEXT: Greta is secretly a spy",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q:\n%s", want, got)
		}
	}
}

func TestBuildUserPrompt_BatchJoin(t *testing.T) {
	t.Parallel()
	got := BuildUserPrompt([]string{"first utterance", "second utterance", "third"}, PromptContext{})
	if !strings.Contains(got, "NEW TRANSCRIPT: first utterance | second utterance | third") {
		t.Errorf("batch not pipe-joined:\n%s", got)
	}
}

func TestBuildUserPrompt_EmptyDMContext(t *testing.T) {
	t.Parallel()
	got := BuildUserPrompt([]string{"hello"}, PromptContext{})
	if !strings.Contains(got, "DM SECRET CONTEXT: None") {
		t.Errorf("empty DM context should render as None:\n%s", got)
	}
}

func TestSystemPromptContract(t *testing.T) {
	t.Parallel()
	// The parser and the instruction set share one JSON contract; make sure
	// the prompt still names every key the parser reads.
	for _, key := range []string{"newCards", "cardUpdates", "hpChanges", "statusChanges", "events", "modeSwitch", "count"} {
		if !strings.Contains(systemPrompt, key) {
			t.Errorf("system prompt no longer mentions %q", key)
		}
	}
}
