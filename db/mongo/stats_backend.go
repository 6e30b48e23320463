// Package mongo stores the totals of players in mongodb.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jacobpatterson1549/deathroll/db"
	"github.com/jacobpatterson1549/deathroll/db/stats"
	"github.com/jacobpatterson1549/deathroll/game/player"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	databaseName              = "deathroll-db"
	outcomesCollectionName    = "outcomes"
	playerStatsCollectionName = "player_stats"
	idField                   = "_id"
	participantsField         = "participants"
	winnersField              = "winners"
	loserField                = "loser"
	finalRollField            = "final_roll"
	abandonedField            = "abandoned"
	finishedAtField           = "finished_at"
	playerField               = "player"
	winsField                 = "wins"
	lossesField               = "losses"
)

type (
	// StatsBackend is a backend manager for the outcomes and player stats collections.
	StatsBackend struct {
		Outcomes    *mongo.Collection
		PlayerStats *mongo.Collection
		db.Config
	}

	// playerStatsDocument is the stored form of the totals of a player.
	playerStatsDocument struct {
		Player    string `bson:"player"`
		Wins      int    `bson:"wins"`
		Losses    int    `bson:"losses"`
		Abandoned int    `bson:"abandoned"`
	}
)

// NewStatsBackend connects to the database and creates a backend manager for the stats collections.
func NewStatsBackend(ctx context.Context, cfg db.Config, databaseURL string) (*StatsBackend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("creating mongo stats backend: validation: %w", err)
	}
	clientOptions := options.Client()
	clientOptions.ApplyURI(databaseURL)
	ctx, cancelFunc := context.WithTimeout(ctx, cfg.QueryPeriod)
	defer cancelFunc()
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("connecting to mongodb: %w", err)
	}
	database := client.Database(databaseName)
	sb := StatsBackend{
		Outcomes:    database.Collection(outcomesCollectionName),
		PlayerStats: database.Collection(playerStatsCollectionName),
		Config:      cfg,
	}
	return &sb, nil
}

// Setup creates a unique index on the names of the players.
func (sb *StatsBackend) Setup(ctx context.Context) error {
	indexOptions := options.Index()
	indexOptions.SetUnique(true)
	model := mongo.IndexModel{
		Keys:    d(e(playerField, 1)),
		Options: indexOptions,
	}
	ctx, cancelFunc := context.WithTimeout(ctx, sb.QueryPeriod)
	defer cancelFunc()
	if _, err := sb.PlayerStats.Indexes().CreateOne(ctx, model); err != nil {
		return fmt.Errorf("creating unique player index: %w", err)
	}
	return nil
}

// RecordOutcome stores the outcome and then increments the totals of its participants.
// The totals are not incremented again for an outcome that has already been stored.
func (sb *StatsBackend) RecordOutcome(ctx context.Context, o stats.Outcome) error {
	ctx, cancelFunc := context.WithTimeout(ctx, sb.QueryPeriod)
	defer cancelFunc()
	if _, err := sb.Outcomes.InsertOne(ctx, outcomeDocument(o)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		return fmt.Errorf("inserting outcome: %w", err)
	}
	if _, err := sb.PlayerStats.BulkWrite(ctx, incrementModels(o)); err != nil {
		return fmt.Errorf("incrementing player stats: %w", err)
	}
	return nil
}

// Read gets the totals of the player.  Players without any recorded games have zero totals.
func (sb *StatsBackend) Read(ctx context.Context, pn player.Name) (*stats.PlayerStats, error) {
	ctx, cancelFunc := context.WithTimeout(ctx, sb.QueryPeriod)
	defer cancelFunc()
	result := sb.PlayerStats.FindOne(ctx, d(e(playerField, string(pn))))
	var doc playerStatsDocument
	if err := result.Decode(&doc); err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
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

// outcomeDocument creates the document of the outcome, keyed by the id of its game.
func outcomeDocument(o stats.Outcome) bson.D {
	return d(
		e(idField, o.SessionID),
		e(participantsField, o.Participants.Strings()),
		e(winnersField, o.Winners.Strings()),
		e(loserField, string(o.Loser)),
		e(finalRollField, o.FinalRoll),
		e(abandonedField, o.Abandoned),
		e(finishedAtField, o.FinishedAt),
	)
}

// incrementModels creates upserts that increment the totals of each participant, in player name order.
func incrementModels(o stats.Outcome) []mongo.WriteModel {
	increments := o.Increments()
	names := make([]string, 0, len(increments))
	for pn := range increments {
		names = append(names, string(pn))
	}
	sort.Strings(names)
	models := make([]mongo.WriteModel, len(names))
	for i, name := range names {
		inc := increments[player.Name(name)]
		update := d(e("$inc", d(
			e(winsField, inc.Wins),
			e(lossesField, inc.Losses),
			e(abandonedField, inc.Abandoned),
		)))
		m := mongo.NewUpdateOneModel()
		m.SetFilter(d(e(playerField, name)))
		m.SetUpdate(update)
		m.SetUpsert(true)
		models[i] = m
	}
	return models
}

// d is a helper function to create bson.D elements.
func d(e ...bson.E) bson.D {
	return bson.D(e)
}

// e is a helper function to create bson.E elements.
func e(key string, value interface{}) bson.E {
	return bson.E{Key: key, Value: value}
}
