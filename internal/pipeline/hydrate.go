package pipeline

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/dmhud/dmhud/internal/campaign"
	"github.com/dmhud/dmhud/internal/store"
)

// Hydrate loads the campaign's persisted children from s and installs them
// into st. Sessions, cards, and roster are fetched concurrently; once the
// current session is known, its transcript and events are fetched
// concurrently as well. Transcript history of past sessions is left in the
// store and loaded on demand.
func Hydrate(ctx context.Context, st *campaign.State, s store.Store) error {
	campaignID := st.Campaign().ID

	var (
		sessions []campaign.Session
		cards    []campaign.Card
		roster   []campaign.RosterEntry
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		sessions, err = s.FetchSessions(gctx, campaignID)
		return err
	})
	g.Go(func() error {
		var err error
		cards, err = s.FetchCards(gctx, campaignID)
		return err
	})
	g.Go(func() error {
		var err error
		roster, err = s.FetchRoster(gctx, campaignID)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("pipeline: hydrate campaign %s: %w", campaignID, err)
	}

	current := ""
	for _, sess := range sessions {
		if sess.IsActive {
			current = sess.ID
			break
		}
	}
	if current == "" && len(sessions) > 0 {
		current = sessions[len(sessions)-1].ID
	}

	var (
		transcript []campaign.TranscriptEntry
		events     []campaign.Event
	)
	if current != "" {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			transcript, err = s.FetchTranscript(gctx, current)
			return err
		})
		g.Go(func() error {
			var err error
			events, err = s.FetchEvents(gctx, current)
			return err
		})
		if err := g.Wait(); err != nil {
			return fmt.Errorf("pipeline: hydrate session %s: %w", current, err)
		}
	}

	st.Hydrate(sessions, cards, roster, transcript, events)
	return nil
}
