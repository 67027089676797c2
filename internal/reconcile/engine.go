// Package reconcile applies extraction diffs to campaign state. The engine
// is the single writer of AI-driven mutations: it validates each entry,
// settles conflicts between explicit diff fields and automatic rules, and
// mirrors every accepted change to the persistence backend asynchronously.
package reconcile

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dmhud/dmhud/internal/campaign"
	"github.com/dmhud/dmhud/internal/extract"
	"github.com/dmhud/dmhud/internal/namefix"
	"github.com/dmhud/dmhud/internal/observe"
	"github.com/dmhud/dmhud/internal/resilience"
	"github.com/dmhud/dmhud/internal/store"
)

// storeRetry is the policy for persistence mirror writes.
var storeRetry = resilience.RetryConfig{
	Name:         "store",
	Attempts:     3,
	InitialDelay: 250 * time.Millisecond,
	Multiplier:   2,
}

// Engine applies diffs to a [campaign.State] and mirrors mutations through
// a [store.Store]. A nil store disables mirroring.
type Engine struct {
	state    *campaign.State
	store    store.Store
	metrics  *observe.Metrics
	resolver *namefix.Resolver

	wg sync.WaitGroup
}

// Option configures an [Engine].
type Option func(*Engine)

// WithMetrics sets the metrics instance. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithNameCorrection enables phonetic correction of diff targets that miss
// the exact lookup. Off by default: typed input is taken literally, and an
// unknown name stays unknown. Intended for live speech capture, where
// transcription routinely garbles fantasy names.
func WithNameCorrection(r *namefix.Resolver) Option {
	return func(e *Engine) { e.resolver = r }
}

// NewEngine creates an Engine over state, mirroring to st. st may be nil.
func NewEngine(state *campaign.State, st store.Store, opts ...Option) *Engine {
	e := &Engine{state: state, store: st}
	for _, o := range opts {
		o(e)
	}
	if e.metrics == nil {
		e.metrics = observe.DefaultMetrics()
	}
	return e
}

// resolveCard finds the card a diff entry targets. Lookup is
// case-insensitive and exact; a miss means the entry's handler skips or
// synthesizes, never lands on a near match. With [WithNameCorrection] a
// miss additionally tries phonetic resolution against active card names.
func (e *Engine) resolveCard(ctx context.Context, name string) (campaign.Card, bool) {
	if card, ok := e.state.FindCard(name); ok {
		return card, true
	}
	if e.resolver == nil {
		return campaign.Card{}, false
	}

	active := e.state.ActiveCards()
	names := make([]string, len(active))
	for i, c := range active {
		names[i] = c.Name
	}
	corrected, score, ok := e.resolver.Resolve(name, names)
	if !ok {
		return campaign.Card{}, false
	}
	observe.Logger(ctx).Info("reconcile: resolved name",
		"heard", name, "card", corrected, "score", score)
	return e.state.FindCard(corrected)
}

// Result summarizes what one diff application changed.
type Result struct {
	Created []campaign.Card
	Updated []campaign.Card
	Events  []campaign.Event
	Mode    campaign.Mode
}

// Apply applies d to the campaign state in a fixed order: HP deltas, status
// deltas, events, card updates, new cards, combatant flags, then the mode
// switch. The ordering means a diff that both damages and creates an entity
// resolves deltas against pre-diff state, and the mode in force while cards
// are created is still the pre-switch mode.
//
// Malformed or unresolvable entries are skipped with a log line, never
// failing the batch. genesis is the transcript text that produced the diff
// and is recorded on created cards.
func (e *Engine) Apply(ctx context.Context, d extract.Diff, genesis string) Result {
	start := time.Now()
	log := observe.Logger(ctx)
	var res Result

	for _, hc := range d.HPChanges {
		card, ok := e.applyHPChange(ctx, hc)
		if !ok {
			log.Warn("reconcile: hp change skipped", "name", hc.Name)
			continue
		}
		res.Updated = append(res.Updated, card)
	}

	for _, sc := range d.StatusChanges {
		card, ok := e.applyStatusChange(ctx, sc)
		if !ok {
			log.Warn("reconcile: status change skipped", "name", sc.Name)
			continue
		}
		res.Updated = append(res.Updated, card)
	}

	if events := e.applyEvents(ctx, d.Events); len(events) > 0 {
		res.Events = events
	}

	for _, cu := range d.CardUpdates {
		card, created, err := e.applyCardUpdate(ctx, cu, genesis)
		if err != nil {
			log.Warn("reconcile: card update skipped", "name", cu.Name, "error", err)
			continue
		}
		if created {
			res.Created = append(res.Created, card)
		} else {
			res.Updated = append(res.Updated, card)
		}
	}

	if created := e.applyNewCards(ctx, d.NewCards, genesis); len(created) > 0 {
		res.Created = append(res.Created, created...)
	}

	for _, name := range d.Combatants {
		card, ok := e.flagCombatant(ctx, name)
		if !ok {
			log.Warn("reconcile: unknown combatant", "name", name)
			continue
		}
		res.Updated = append(res.Updated, card)
	}

	if d.ModeSwitch != "" {
		if d.ModeSwitch.IsValid() {
			e.state.SetMode(d.ModeSwitch)
			log.Info("reconcile: mode switch", "mode", string(d.ModeSwitch))
		} else {
			log.Warn("reconcile: invalid mode switch", "mode", string(d.ModeSwitch))
		}
	}
	res.Mode = e.state.Mode()

	e.metrics.ReconcileDuration.Record(ctx, time.Since(start).Seconds())
	return res
}

// applyHPChange resolves one HP delta. Targets without a hit point pool and
// unknown names are skipped.
func (e *Engine) applyHPChange(ctx context.Context, hc extract.HPChange) (campaign.Card, bool) {
	card, ok := e.resolveCard(ctx, hc.Name)
	if !ok || card.HP == nil {
		return campaign.Card{}, false
	}

	hp := campaign.HP{
		Current: card.HP.Current - hc.Damage + hc.Healing,
		Max:     card.HP.Max,
	}
	updated, err := e.state.UpdateCard(card.ID, campaign.CardPatch{HP: &hp})
	if err != nil {
		return campaign.Card{}, false
	}
	e.metrics.RecordCardMutation(ctx, "hp")
	e.mirrorCard(ctx, updated)
	return updated, true
}

// applyStatusChange merges condition markers with set semantics: additions
// are deduplicated case-insensitively, removals match case-insensitively.
func (e *Engine) applyStatusChange(ctx context.Context, sc extract.StatusChange) (campaign.Card, bool) {
	card, ok := e.resolveCard(ctx, sc.Name)
	if !ok {
		return campaign.Card{}, false
	}

	status := mergeStatus(card.Status, sc.AddStatus, sc.RemoveStatus)
	updated, err := e.state.UpdateCard(card.ID, campaign.CardPatch{Status: &status})
	if err != nil {
		return campaign.Card{}, false
	}
	e.metrics.RecordCardMutation(ctx, "status")
	e.mirrorCard(ctx, updated)
	return updated, true
}

// mergeStatus returns existing plus add minus remove, preserving order of
// first appearance.
func mergeStatus(existing, add, remove []string) []string {
	removed := make(map[string]bool, len(remove))
	for _, r := range remove {
		removed[strings.ToLower(strings.TrimSpace(r))] = true
	}

	out := make([]string, 0, len(existing)+len(add))
	seen := make(map[string]bool, len(existing)+len(add))
	for _, s := range existing {
		key := strings.ToLower(s)
		if removed[key] || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	for _, s := range add {
		s = strings.TrimSpace(s)
		key := strings.ToLower(s)
		if s == "" || removed[key] || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}

// applyEvents records milestone events, dropping entries with no character
// or an unknown type.
func (e *Engine) applyEvents(ctx context.Context, changes []extract.EventChange) []campaign.Event {
	log := observe.Logger(ctx)
	events := make([]campaign.Event, 0, len(changes))
	for _, ec := range changes {
		if ec.Character == "" || ec.Detail == "" {
			log.Warn("reconcile: incomplete event skipped", "character", ec.Character)
			continue
		}
		typ := ec.Type
		if !typ.IsValid() {
			typ = campaign.EventStory
		}
		events = append(events, campaign.Event{
			Character: ec.Character,
			Type:      typ,
			Detail:    ec.Detail,
			Outcome:   ec.Outcome,
		})
	}
	if len(events) == 0 {
		return nil
	}

	appended := e.state.AppendEvents(events)
	e.mirror(ctx, "events", func(ctx context.Context) error {
		return e.store.AppendEvents(ctx, appended)
	})
	return appended
}

// applyCardUpdate patches the named card. When no card matches, a minimal
// CHARACTER card is synthesized and the patch applied to it, so a model
// that updates an entity it forgot to create still lands its facts.
func (e *Engine) applyCardUpdate(ctx context.Context, cu extract.CardUpdate, genesis string) (campaign.Card, bool, error) {
	if cu.Name == "" {
		return campaign.Card{}, false, fmt.Errorf("reconcile: update without a name")
	}
	if cu.Updates.IsZero() {
		return campaign.Card{}, false, fmt.Errorf("reconcile: empty update")
	}

	if card, ok := e.resolveCard(ctx, cu.Name); ok {
		updated, err := e.state.UpdateCard(card.ID, cu.Updates)
		if err != nil {
			return campaign.Card{}, false, err
		}
		e.metrics.RecordCardMutation(ctx, "updated")
		e.mirrorCard(ctx, updated)
		return updated, false, nil
	}

	stub := campaign.Card{
		Type:    campaign.CardCharacter,
		Name:    cu.Name,
		Genesis: genesis,
		IsCanon: true,
	}
	added, err := e.state.AddCard(stub)
	if err != nil {
		return campaign.Card{}, false, err
	}
	created, err := e.state.UpdateCard(added.ID, cu.Updates)
	if err != nil {
		return campaign.Card{}, false, err
	}
	e.metrics.RecordCardMutation(ctx, "synthesized")
	e.mirror(ctx, "card create", func(ctx context.Context) error {
		return e.store.CreateCards(ctx, []campaign.Card{created})
	})
	return created, true, nil
}

// applyNewCards creates the requested cards. A count above one expands into
// numbered copies ("Goblin 1" .. "Goblin N"); names already taken by a
// non-voided card are skipped rather than duplicated.
func (e *Engine) applyNewCards(ctx context.Context, reqs []extract.NewCard, genesis string) []campaign.Card {
	log := observe.Logger(ctx)
	inCombatMode := e.state.Mode() == campaign.ModeCombat

	var created []campaign.Card
	for _, req := range reqs {
		if req.Name == "" {
			log.Warn("reconcile: new card without a name skipped")
			continue
		}
		typ := req.Type
		if !typ.IsValid() {
			typ = campaign.CardCharacter
		}

		for _, name := range expandNames(req.Name, req.Count) {
			if _, exists := e.state.FindCard(name); exists {
				continue
			}
			card := campaign.Card{
				Type:      typ,
				Name:      name,
				Notes:     req.Notes,
				Genesis:   genesis,
				IsCanon:   boolOr(req.IsCanon, true),
				IsPC:      boolOr(req.IsPC, false),
				InParty:   boolOr(req.InParty, false),
				IsHostile: boolOr(req.IsHostile, false),
				AC:        req.AC,
				Level:     req.Level,
				Class:     req.Class,
			}
			// Cards entering during combat join it automatically, but an
			// explicit inCombat field always wins.
			if req.InCombat != nil {
				card.InCombat = *req.InCombat
			} else {
				card.InCombat = inCombatMode && typ.IsCreature()
			}
			if req.HP != nil {
				hp := *req.HP
				card.HP = &hp
			}
			if req.Stats != nil {
				card.Stats = *req.Stats
			}

			added, err := e.state.AddCard(card)
			if err != nil {
				log.Warn("reconcile: new card rejected", "name", name, "error", err)
				continue
			}
			e.metrics.RecordCardMutation(ctx, "created")
			created = append(created, added)
		}
	}

	if len(created) > 0 {
		e.mirror(ctx, "card create", func(ctx context.Context) error {
			return e.store.CreateCards(ctx, created)
		})
	}
	return created
}

// expandNames turns (name, count) into the concrete card names to create.
func expandNames(name string, count int) []string {
	if count <= 1 {
		return []string{name}
	}
	names := make([]string, count)
	for i := range names {
		names[i] = fmt.Sprintf("%s %d", name, i+1)
	}
	return names
}

// flagCombatant marks the named card as participating in combat. Only
// creature cards fight; a location or item the model lists as a combatant
// is ignored.
func (e *Engine) flagCombatant(ctx context.Context, name string) (campaign.Card, bool) {
	card, ok := e.resolveCard(ctx, name)
	if !ok || !card.Type.IsCreature() {
		return campaign.Card{}, false
	}
	if card.InCombat {
		return card, true
	}
	inCombat := true
	updated, err := e.state.UpdateCard(card.ID, campaign.CardPatch{InCombat: &inCombat})
	if err != nil {
		return campaign.Card{}, false
	}
	e.metrics.RecordCardMutation(ctx, "updated")
	e.mirrorCard(ctx, updated)
	return updated, true
}

func boolOr(p *bool, def bool) bool {
	if p != nil {
		return *p
	}
	return def
}

// mirrorCard persists one card update asynchronously.
func (e *Engine) mirrorCard(ctx context.Context, c campaign.Card) {
	e.mirror(ctx, "card update", func(ctx context.Context) error {
		return e.store.UpdateCard(ctx, c)
	})
}

// mirror runs a persistence write on its own goroutine with retries. The
// write outlives the request context on purpose; cancellation of ingestion
// must not lose accepted state.
func (e *Engine) mirror(ctx context.Context, op string, fn func(ctx context.Context) error) {
	if e.store == nil {
		return
	}
	bg := context.WithoutCancel(ctx)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		err := resilience.Retry(bg, storeRetry, fn)
		if err != nil {
			e.metrics.RecordStoreWrite(bg, "error")
			observe.Logger(bg).Error("reconcile: store mirror failed", "op", op, "error", err)
			return
		}
		e.metrics.RecordStoreWrite(bg, "ok")
	}()
}

// Wait blocks until all in-flight mirror writes finish. Call on shutdown.
func (e *Engine) Wait() {
	e.wg.Wait()
}
