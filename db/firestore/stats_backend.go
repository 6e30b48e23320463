// Package firestore stores the totals of players in a google cloud firestore database.
package firestore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/jacobpatterson1549/deathroll/db"
	"github.com/jacobpatterson1549/deathroll/db/stats"
	"github.com/jacobpatterson1549/deathroll/game/player"
)

const (
	serviceCollectionName     = "services"
	serviceDocName            = "deathroll"
	outcomesCollectionName    = "outcomes"
	playerStatsCollectionName = "player_stats"
	winsField                 = "wins"
	lossesField               = "losses"
	abandonedField            = "abandoned"
)

type (
	// StatsBackend is a backend manager for the outcomes and player stats collections.
	StatsBackend struct {
		client *firestore.Client
		db.Config
	}

	// outcomeDocument is the stored form of an outcome.
	outcomeDocument struct {
		Participants []string `firestore:"participants"`
		Winners      []string `firestore:"winners"`
		Loser        string   `firestore:"loser"`
		FinalRoll    int      `firestore:"final_roll"`
		Abandoned    bool     `firestore:"abandoned"`
		FinishedAt   int64    `firestore:"finished_at"`
	}

	// playerStatsDocument is the stored form of the totals of a player.
	playerStatsDocument struct {
		Wins      int `firestore:"wins"`
		Losses    int `firestore:"losses"`
		Abandoned int `firestore:"abandoned"`
	}
)

// NewStatsBackend creates a backend manager for the stats of the project.
func NewStatsBackend(ctx context.Context, cfg db.Config, projectID string) (*StatsBackend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("creating firestore stats backend: validation: %w", err)
	}
	client, err := firestore.NewClient(ctx, projectID) // do not timeout context - the client is used by the backend
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}
	sb := StatsBackend{
		client: client,
		Config: cfg,
	}
	return &sb, nil
}

// Setup does nothing because firestore collections are created when documents are added to them.
func (sb *StatsBackend) Setup(ctx context.Context) error {
	return nil
}

// RecordOutcome stores the outcome and increments the totals of its participants in one batch.
// The batch fails if the outcome has already been stored.
func (sb *StatsBackend) RecordOutcome(ctx context.Context, o stats.Outcome) error {
	if err := sb.withTimeoutContext(ctx, func(ctx context.Context) error {
		b := sb.client.Batch()
		b.Create(sb.outcomesCollection().Doc(o.SessionID), newOutcomeDocument(o))
		playerStats := sb.playerStatsCollection()
		for pn, inc := range o.Increments() {
			b.Set(playerStats.Doc(string(pn)), incrementData(inc), firestore.MergeAll)
		}
		_, err := b.Commit(ctx)
		return err
	}); err != nil {
		return fmt.Errorf("recording outcome: %w", err)
	}
	return nil
}

// Read gets the totals of the player.  Players without any recorded games have zero totals.
func (sb *StatsBackend) Read(ctx context.Context, pn player.Name) (*stats.PlayerStats, error) {
	var doc playerStatsDocument
	if err := sb.withTimeoutContext(ctx, func(ctx context.Context) error {
		snapshot, err := sb.playerStatsCollection().Doc(string(pn)).Get(ctx)
		if err != nil {
			if snapshot != nil && !snapshot.Exists() {
				return nil
			}
			return err
		}
		return snapshot.DataTo(&doc)
	}); err != nil {
		return nil, fmt.Errorf("reading player stats: %w", err)
	}
	ps := stats.PlayerStats{
		Player:    pn,
		Wins:      doc.Wins,
		Losses:    doc.Losses,
		Abandoned: doc.Abandoned,
	}
	return &ps, nil
}

// withTimeoutContext configures the context to timeout when running the function.
func (sb *StatsBackend) withTimeoutContext(ctx context.Context, f func(ctx context.Context) error) error {
	ctx, cancelFunc := context.WithTimeout(ctx, sb.QueryPeriod)
	defer cancelFunc()
	return f(ctx)
}

func (sb *StatsBackend) outcomesCollection() *firestore.CollectionRef {
	return sb.client.Collection(serviceCollectionName).Doc(serviceDocName).Collection(outcomesCollectionName)
}

func (sb *StatsBackend) playerStatsCollection() *firestore.CollectionRef {
	return sb.client.Collection(serviceCollectionName).Doc(serviceDocName).Collection(playerStatsCollectionName)
}

// newOutcomeDocument creates the stored form of the outcome.
func newOutcomeDocument(o stats.Outcome) outcomeDocument {
	return outcomeDocument{
		Participants: o.Participants.Strings(),
		Winners:      o.Winners.Strings(),
		Loser:        string(o.Loser),
		FinalRoll:    o.FinalRoll,
		Abandoned:    o.Abandoned,
		FinishedAt:   o.FinishedAt,
	}
}

// incrementData creates the field transforms that add the increment to the totals of a player.
func incrementData(inc stats.Increment) map[string]interface{} {
	return map[string]interface{}{
		winsField:      firestore.FieldTransformIncrement(inc.Wins),
		lossesField:    firestore.FieldTransformIncrement(inc.Losses),
		abandonedField: firestore.FieldTransformIncrement(inc.Abandoned),
	}
}
