package pipeline

import (
	"context"
	"strings"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/dmhud/dmhud/internal/audit"
	"github.com/dmhud/dmhud/internal/campaign"
	"github.com/dmhud/dmhud/internal/extract"
	"github.com/dmhud/dmhud/internal/observe"
	"github.com/dmhud/dmhud/internal/store"
	"github.com/dmhud/dmhud/pkg/provider/llm"
	llmmock "github.com/dmhud/dmhud/pkg/provider/llm/mock"
)

func newTestPipeline(t *testing.T, mock *llmmock.Provider) (*Pipeline, *campaign.State, *store.MemStore) {
	t.Helper()

	st := campaign.NewState(campaign.Campaign{ID: "camp-1", Name: "Test", DMContext: "The baron is a vampire"})
	sess := st.StartSession("Session 1")
	mem := store.NewMemStore()
	if err := mem.CreateSession(context.Background(), sess); err != nil {
		t.Fatalf("seed session: %v", err)
	}

	m, err := observe.NewMetrics(sdkmetric.NewMeterProvider())
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	client := extract.NewClient(mock, audit.NewMemLog(16), extract.WithMetrics(m))
	p := New(st, mem, client, WithMetrics(m), WithMinInterval(10*time.Millisecond))
	t.Cleanup(p.Close)
	return p, st, mem
}

func respond(json string) *llm.CompletionResponse {
	return &llm.CompletionResponse{Content: json}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestSplitSpeaker(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in, speaker, content string
	}{
		{"DM: The door opens.", "DM", "The door opens."},
		{"Player: I check for traps.", "Player", "I check for traps."},
		{"The torch gutters out.", "DM", "The torch gutters out."},
		{"  DM:   spaced  ", "DM", "spaced"},
		{"", "DM", ""},
	}
	for _, c := range cases {
		speaker, content := splitSpeaker(c.in)
		if speaker != c.speaker || content != c.content {
			t.Errorf("splitSpeaker(%q) = (%q, %q), want (%q, %q)",
				c.in, speaker, content, c.speaker, c.content)
		}
	}
}

func TestProcessAppendsTranscriptBeforeExtraction(t *testing.T) {
	t.Parallel()

	// A provider error must not keep the utterance out of the transcript.
	mock := &llmmock.Provider{CompleteErr: context.DeadlineExceeded}
	p, st, _ := newTestPipeline(t, mock)

	entry, ok := p.Process(context.Background(), "DM: A troll blocks the bridge.")
	if !ok {
		t.Fatal("process rejected valid line")
	}
	if entry.Speaker != "DM" || entry.Text != "A troll blocks the bridge." {
		t.Errorf("entry = %+v", entry)
	}

	sess, _ := st.CurrentSession()
	if got := st.TranscriptFor(sess.ID); len(got) != 1 {
		t.Fatalf("transcript has %d lines, want 1", len(got))
	}

	if _, ok := p.Process(context.Background(), "   "); ok {
		t.Error("blank line accepted")
	}
}

func TestPipelineEndToEnd(t *testing.T) {
	t.Parallel()

	mock := &llmmock.Provider{
		CompleteResponse: respond(`{
			"newCards": [{"type": "ENEMY", "name": "Troll", "notes": "Blocks the bridge", "isHostile": true, "hp": {"current": 84, "max": 84}}],
			"cardUpdates": [],
			"hpChanges": [],
			"statusChanges": [],
			"events": [],
			"modeSwitch": "combat"
		}`),
	}
	p, st, _ := newTestPipeline(t, mock)

	p.Process(context.Background(), "DM: A troll blocks the bridge. Roll initiative!")
	waitFor(t, func() bool {
		_, ok := st.FindCard("Troll")
		return ok
	})

	if st.Mode() != campaign.ModeCombat {
		t.Errorf("mode = %q, want combat", st.Mode())
	}
	troll, _ := st.FindCard("Troll")
	if !troll.IsHostile || troll.HP == nil || troll.HP.Max != 84 {
		t.Errorf("troll card = %+v", troll)
	}
	if troll.Genesis == "" || !strings.Contains(troll.Genesis, "troll blocks the bridge") {
		t.Errorf("genesis = %q", troll.Genesis)
	}
}

func TestPipelinePromptCarriesContext(t *testing.T) {
	t.Parallel()

	mock := &llmmock.Provider{CompleteResponse: respond(`{}`)}
	p, st, _ := newTestPipeline(t, mock)

	st.UpsertRosterEntry(campaign.RosterEntry{PlayerName: "Sam", CharacterName: "Lyra"})
	if _, err := st.AddCard(campaign.Card{Type: campaign.CardCharacter, Name: "Greta", Notes: "Barmaid"}); err != nil {
		t.Fatalf("add card: %v", err)
	}

	p.Process(context.Background(), "Player: I ask Greta about the baron.")
	waitFor(t, func() bool { return len(mock.Calls()) == 1 })

	prompt := mock.Calls()[0].Req.Messages[0].Content
	for _, want := range []string{
		"Player: Sam → Character: Lyra",
		"Greta (CHARACTER)",
		"Player: I ask Greta about the baron.",
		"DM SECRET CONTEXT: The baron is a vampire",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestPipelineRecentContextKeepsLastFive(t *testing.T) {
	t.Parallel()

	mock := &llmmock.Provider{CompleteResponse: respond(`{}`)}
	p, st, _ := newTestPipeline(t, mock)

	for _, line := range []string{
		"first clue", "second clue", "third clue",
		"fourth clue", "fifth clue", "sixth clue",
	} {
		st.AppendTranscript("DM", line)
	}

	p.Process(context.Background(), "DM: seventh clue")
	waitFor(t, func() bool { return len(mock.Calls()) == 1 })

	prompt := mock.Calls()[0].Req.Messages[0].Content
	for _, want := range []string{"third clue", "fourth clue", "fifth clue", "sixth clue", "seventh clue"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("recent context missing %q:\n%s", want, prompt)
		}
	}
	for _, stale := range []string{"first clue", "second clue"} {
		if strings.Contains(prompt, "DM: "+stale) {
			t.Errorf("recent context carries %q beyond the five-line window:\n%s", stale, prompt)
		}
	}
}

func TestPipelineBatchesUnderLoad(t *testing.T) {
	t.Parallel()

	mock := &llmmock.Provider{CompleteResponse: respond(`{}`)}
	p, _, _ := newTestPipeline(t, mock)

	lines := []string{
		"DM: The hallway stretches north.",
		"Player: I move up quietly.",
		"Player: Checking the left door.",
		"DM: It is locked.",
	}
	for _, l := range lines {
		p.Process(context.Background(), l)
	}

	// Count utterances across batches via the joined transcript line.
	waitFor(t, func() bool {
		total := 0
		for _, call := range mock.Calls() {
			seg := call.Req.Messages[0].Content
			idx := strings.Index(seg, "NEW TRANSCRIPT:")
			if idx < 0 {
				continue
			}
			total += strings.Count(seg[idx:], "DM:") + strings.Count(seg[idx:], "Player:")
		}
		return total >= len(lines)
	})

	if calls := len(mock.Calls()); calls >= len(lines) {
		t.Errorf("expected batching, got %d calls for %d lines", calls, len(lines))
	}
}

func TestPipelineMirrorsTranscript(t *testing.T) {
	t.Parallel()

	mock := &llmmock.Provider{CompleteResponse: respond(`{}`)}
	p, st, mem := newTestPipeline(t, mock)

	p.Process(context.Background(), "DM: Rain hammers the shutters.")
	sess, _ := st.CurrentSession()
	waitFor(t, func() bool {
		got, err := mem.FetchTranscript(context.Background(), sess.ID)
		return err == nil && len(got) == 1
	})
}
