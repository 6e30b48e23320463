package firestore

import (
	"context"
	"reflect"
	"testing"

	"cloud.google.com/go/firestore"
	"github.com/jacobpatterson1549/deathroll/db"
	"github.com/jacobpatterson1549/deathroll/db/stats"
	"github.com/jacobpatterson1549/deathroll/game/player"
)

func TestNewStatsBackendValidation(t *testing.T) {
	if _, err := NewStatsBackend(context.Background(), db.Config{}, "deathroll-project"); err == nil {
		t.Error("wanted error creating backend without query period")
	}
}

func TestNewOutcomeDocument(t *testing.T) {
	newOutcomeDocumentTests := []struct {
		stats.Outcome
		want outcomeDocument
	}{
		{
			Outcome: stats.Outcome{
				SessionID:    "g1",
				Participants: player.Names{"selene", "fred"},
				Winners:      player.Names{"selene"},
				Loser:        "fred",
				FinalRoll:    1,
				FinishedAt:   1257894000,
			},
			want: outcomeDocument{
				Participants: []string{"selene", "fred"},
				Winners:      []string{"selene"},
				Loser:        "fred",
				FinalRoll:    1,
				FinishedAt:   1257894000,
			},
		},
		{
			Outcome: stats.Outcome{
				SessionID:    "g2",
				Participants: player.Names{"selene", "fred"},
				Abandoned:    true,
				FinishedAt:   1257894000,
			},
			want: outcomeDocument{
				Participants: []string{"selene", "fred"},
				Winners:      []string{},
				Abandoned:    true,
				FinishedAt:   1257894000,
			},
		},
	}
	for i, test := range newOutcomeDocumentTests {
		if got := newOutcomeDocument(test.Outcome); !reflect.DeepEqual(test.want, got) {
			t.Errorf("Test %v: documents not equal:\nwanted: %v\ngot:    %v", i, test.want, got)
		}
	}
}

func TestIncrementData(t *testing.T) {
	inc := stats.Increment{Losses: 1}
	want := map[string]interface{}{
		"wins":      firestore.FieldTransformIncrement(0),
		"losses":    firestore.FieldTransformIncrement(1),
		"abandoned": firestore.FieldTransformIncrement(0),
	}
	if got := incrementData(inc); !reflect.DeepEqual(want, got) {
		t.Errorf("data not equal:\nwanted: %v\ngot:    %v", want, got)
	}
}
