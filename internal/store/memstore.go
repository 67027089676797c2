package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmhud/dmhud/internal/campaign"
)

var _ Store = (*MemStore)(nil)

// MemStore is an in-memory [Store] for tests and deployments without a
// database. Data does not survive a restart.
type MemStore struct {
	mu         sync.RWMutex
	campaigns  map[string]campaign.Campaign
	cards      map[string]campaign.Card
	cardOrder  []string
	sessions   map[string]campaign.Session
	sessOrder  []string
	transcript map[string][]campaign.TranscriptEntry
	events     map[string][]campaign.Event
	roster     map[string]campaign.RosterEntry
	rostOrder  []string
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		campaigns:  make(map[string]campaign.Campaign),
		cards:      make(map[string]campaign.Card),
		sessions:   make(map[string]campaign.Session),
		transcript: make(map[string][]campaign.TranscriptEntry),
		events:     make(map[string][]campaign.Event),
		roster:     make(map[string]campaign.RosterEntry),
	}
}

func (m *MemStore) UpdateCampaign(_ context.Context, c campaign.Campaign) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.campaigns[c.ID] = c
	return nil
}

func (m *MemStore) CreateCards(_ context.Context, cards []campaign.Card) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range cards {
		if _, ok := m.cards[c.ID]; !ok {
			m.cardOrder = append(m.cardOrder, c.ID)
		}
		m.cards[c.ID] = c
	}
	return nil
}

func (m *MemStore) UpdateCard(_ context.Context, c campaign.Card) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cards[c.ID]; !ok {
		return fmt.Errorf("%w: card %q", ErrNotFound, c.ID)
	}
	m.cards[c.ID] = c
	return nil
}

func (m *MemStore) VoidCard(_ context.Context, c campaign.Card) error {
	return m.UpdateCard(context.Background(), c)
}

func (m *MemStore) RestoreCard(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cards[id]
	if !ok {
		return fmt.Errorf("%w: card %q", ErrNotFound, id)
	}
	c.VoidedAt = nil
	c.VoidedInSession = ""
	m.cards[id] = c
	return nil
}

func (m *MemStore) PurgeCard(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cards[id]; !ok {
		return fmt.Errorf("%w: card %q", ErrNotFound, id)
	}
	delete(m.cards, id)
	for i, cid := range m.cardOrder {
		if cid == id {
			m.cardOrder = append(m.cardOrder[:i], m.cardOrder[i+1:]...)
			break
		}
	}
	return nil
}

func (m *MemStore) FetchCards(_ context.Context, campaignID string) ([]campaign.Card, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []campaign.Card
	for _, id := range m.cardOrder {
		c := m.cards[id]
		if c.CampaignID == campaignID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *MemStore) CreateSession(_ context.Context, s campaign.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; !ok {
		m.sessOrder = append(m.sessOrder, s.ID)
	}
	m.sessions[s.ID] = s
	return nil
}

func (m *MemStore) UpdateSession(_ context.Context, s campaign.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; !ok {
		return fmt.Errorf("%w: session %q", ErrNotFound, s.ID)
	}
	m.sessions[s.ID] = s
	return nil
}

func (m *MemStore) FetchSessions(_ context.Context, campaignID string) ([]campaign.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []campaign.Session
	for _, id := range m.sessOrder {
		s := m.sessions[id]
		if s.CampaignID == campaignID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *MemStore) AppendTranscript(_ context.Context, e campaign.TranscriptEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transcript[e.SessionID] = append(m.transcript[e.SessionID], e)
	return nil
}

func (m *MemStore) FetchTranscript(_ context.Context, sessionID string) ([]campaign.TranscriptEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]campaign.TranscriptEntry(nil), m.transcript[sessionID]...), nil
}

func (m *MemStore) AppendEvents(_ context.Context, events []campaign.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range events {
		m.events[e.SessionID] = append(m.events[e.SessionID], e)
	}
	return nil
}

func (m *MemStore) FetchEvents(_ context.Context, sessionID string) ([]campaign.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]campaign.Event(nil), m.events[sessionID]...), nil
}

func (m *MemStore) UpsertRosterEntry(_ context.Context, e campaign.RosterEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roster[e.ID]; !ok {
		m.rostOrder = append(m.rostOrder, e.ID)
	}
	m.roster[e.ID] = e
	return nil
}

func (m *MemStore) DeleteRosterEntry(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.roster, id)
	for i, rid := range m.rostOrder {
		if rid == id {
			m.rostOrder = append(m.rostOrder[:i], m.rostOrder[i+1:]...)
			break
		}
	}
	return nil
}

func (m *MemStore) FetchRoster(_ context.Context, campaignID string) ([]campaign.RosterEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []campaign.RosterEntry
	for _, id := range m.rostOrder {
		e := m.roster[id]
		if e.CampaignID == campaignID {
			out = append(out, e)
		}
	}
	return out, nil
}
