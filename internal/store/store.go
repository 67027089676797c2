// Package store defines the persistence boundary for campaign data.
//
// The pipeline treats in-process state as the source of truth during a
// session and mirrors every mutation through a [Store] asynchronously, so a
// slow or failing backend never stalls ingestion. Implementations live in
// subpackages; [MemStore] backs tests and storeless deployments.
package store

import (
	"context"
	"errors"

	"github.com/dmhud/dmhud/internal/campaign"
)

// ErrNotFound is returned when a record does not exist in the backend.
var ErrNotFound = errors.New("store: not found")

// Store persists campaign state. All methods take a context and return an
// error; callers decide the retry policy. Implementations must be safe for
// concurrent use.
type Store interface {
	// UpdateCampaign persists campaign root changes (name, DM context).
	UpdateCampaign(ctx context.Context, c campaign.Campaign) error

	// CreateCards inserts one or more cards in a single round trip.
	CreateCards(ctx context.Context, cards []campaign.Card) error
	// UpdateCard replaces a card's mutable fields by ID.
	UpdateCard(ctx context.Context, c campaign.Card) error
	// VoidCard marks a card soft-deleted, recording when and in which session.
	VoidCard(ctx context.Context, c campaign.Card) error
	// RestoreCard clears a card's void markers.
	RestoreCard(ctx context.Context, id string) error
	// PurgeCard removes a card permanently.
	PurgeCard(ctx context.Context, id string) error
	// FetchCards returns all cards of a campaign, voided included.
	FetchCards(ctx context.Context, campaignID string) ([]campaign.Card, error)

	// CreateSession inserts a new session record.
	CreateSession(ctx context.Context, s campaign.Session) error
	// UpdateSession persists activation and end-time changes.
	UpdateSession(ctx context.Context, s campaign.Session) error
	// FetchSessions returns all sessions of a campaign in start order.
	FetchSessions(ctx context.Context, campaignID string) ([]campaign.Session, error)

	// AppendTranscript appends one transcript line.
	AppendTranscript(ctx context.Context, e campaign.TranscriptEntry) error
	// FetchTranscript returns a session's transcript, oldest first.
	FetchTranscript(ctx context.Context, sessionID string) ([]campaign.TranscriptEntry, error)

	// AppendEvents appends milestone events.
	AppendEvents(ctx context.Context, events []campaign.Event) error
	// FetchEvents returns a session's events in append order.
	FetchEvents(ctx context.Context, sessionID string) ([]campaign.Event, error)

	// UpsertRosterEntry inserts or replaces a roster entry by ID.
	UpsertRosterEntry(ctx context.Context, e campaign.RosterEntry) error
	// DeleteRosterEntry removes a roster entry.
	DeleteRosterEntry(ctx context.Context, id string) error
	// FetchRoster returns a campaign's player roster.
	FetchRoster(ctx context.Context, campaignID string) ([]campaign.RosterEntry, error)
}
