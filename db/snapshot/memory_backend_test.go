package snapshot

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

func TestMemoryBackend(t *testing.T) {
	ctx := context.Background()
	var b MemoryBackend
	if err := b.Setup(ctx); err != nil {
		t.Fatalf("unwanted setup error: %v", err)
	}
	if _, err := b.Load(ctx, "abc"); !errors.Is(err, ErrNotFound) {
		t.Errorf("wanted not found error before saving, got %v", err)
	}
	want := inProgressSnapshot
	older := inProgressSnapshot
	older.SequenceNumber--
	older.State.Ceiling = 1000
	for _, s := range []Snapshot{want, older} {
		if err := b.Save(ctx, s); err != nil {
			t.Fatalf("unwanted save error: %v", err)
		}
	}
	got, err := b.Load(ctx, "abc")
	switch {
	case err != nil:
		t.Fatalf("unwanted load error: %v", err)
	case !reflect.DeepEqual(want, *got):
		t.Errorf("wanted newest snapshot:\nwanted: %v\ngot:    %v", want, *got)
	}
	got.Members[0] = "barney"
	if got2, _ := b.Load(ctx, "abc"); got2.Members[0] != "selene" {
		t.Errorf("wanted loaded snapshot to share no memory with the stored one")
	}
	if err := b.Delete(ctx, "abc"); err != nil {
		t.Fatalf("unwanted delete error: %v", err)
	}
	if _, err := b.Load(ctx, "abc"); !errors.Is(err, ErrNotFound) {
		t.Errorf("wanted not found error after deleting, got %v", err)
	}
}
