package game

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jacobpatterson1549/deathroll/game"
	"github.com/jacobpatterson1549/deathroll/game/player"
	"github.com/jacobpatterson1549/deathroll/game/roll"
	"github.com/jacobpatterson1549/deathroll/server/log/logtest"
	"github.com/jacobpatterson1549/deathroll/server/runner"
)

func testRegistryConfig(p channelPublisher) RegistryConfig {
	cfg := RegistryConfig{
		Log:           logtest.DiscardLogger,
		MaxSessions:   4,
		SessionConfig: testSessionConfig(p, roll.NewSequence(5)),
		SweepPeriod:   time.Hour,
		LobbyIdle:     10 * time.Minute,
		FinishedIdle:  5 * time.Minute,
		AbandonIdle:   30 * time.Minute,
	}
	return cfg
}

func newTestRegistry(t *testing.T, cfg RegistryConfig) (*Registry, *mockRecorder) {
	t.Helper()
	r := new(mockRecorder)
	reg, err := cfg.NewRegistry(r)
	if err != nil {
		t.Fatalf("unwanted error creating registry: %v", err)
	}
	t.Cleanup(func() { reg.suspendAll("test done") })
	return reg, r
}

func TestNewRegistry(t *testing.T) {
	valid := testRegistryConfig(make(channelPublisher, 1))
	newRegistryTests := []struct {
		RegistryConfig
		Recorder
		wantOk bool
	}{
		{}, // no log
		{
			RegistryConfig: valid,
		},
		{
			RegistryConfig: func() RegistryConfig { cfg := valid; cfg.MaxSessions = 0; return cfg }(),
			Recorder:       new(mockRecorder),
		},
		{
			RegistryConfig: func() RegistryConfig { cfg := valid; cfg.SessionConfig.TimeFunc = nil; return cfg }(),
			Recorder:       new(mockRecorder),
		},
		{
			RegistryConfig: func() RegistryConfig { cfg := valid; cfg.SweepPeriod = 0; return cfg }(),
			Recorder:       new(mockRecorder),
		},
		{
			RegistryConfig: func() RegistryConfig { cfg := valid; cfg.FinishedIdle = 0; return cfg }(),
			Recorder:       new(mockRecorder),
		},
		{
			RegistryConfig: valid,
			Recorder:       new(mockRecorder),
			wantOk:         true,
		},
	}
	for i, test := range newRegistryTests {
		reg, err := test.NewRegistry(test.Recorder)
		switch {
		case !test.wantOk:
			if err == nil {
				t.Errorf("Test %v: wanted error", i)
			}
		case err != nil:
			t.Errorf("Test %v: unwanted error: %v", i, err)
		case reg.sessions == nil:
			t.Errorf("Test %v: wanted sessions map to be created", i)
		case reg.IDFunc == nil:
			t.Errorf("Test %v: wanted default id func", i)
		}
	}
}

func TestRegistryGetOrCreateConcurrent(t *testing.T) {
	reg, _ := newTestRegistry(t, testRegistryConfig(make(channelPublisher, 16)))
	n := 10
	sessions := make([]*Session, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			s, err := reg.GetOrCreate("abc", "host")
			if err != nil {
				t.Errorf("unwanted error: %v", err)
			}
			sessions[i] = s
		}()
	}
	wg.Wait()
	for i, s := range sessions {
		if s != sessions[0] {
			t.Errorf("session %v is a different instance than the first", i)
		}
	}
	if want, got := 1, reg.Len(); want != got {
		t.Errorf("wanted %v session, got %v", want, got)
	}
}

func TestRegistryCreate(t *testing.T) {
	cfg := testRegistryConfig(make(channelPublisher, 16))
	cfg.MaxSessions = 2
	var lastID int32
	cfg.IDFunc = func() string {
		return fmt.Sprint(atomic.AddInt32(&lastID, 1))
	}
	reg, _ := newTestRegistry(t, cfg)
	s1, err1 := reg.Create("selene")
	s2, err2 := reg.Create("fred")
	_, err3 := reg.Create("barney")
	switch {
	case err1 != nil, err2 != nil:
		t.Fatalf("unwanted errors: %v, %v", err1, err2)
	case s1.ID() != "1", s2.ID() != "2":
		t.Errorf("wanted ids from id func, got %v and %v", s1.ID(), s2.ID())
	case !errors.Is(err3, ErrTooManySessions):
		t.Errorf("wanted %v, got %v", ErrTooManySessions, err3)
	}
	got, err := reg.Get("2")
	switch {
	case err != nil:
		t.Errorf("unwanted error getting session: %v", err)
	case got != s2:
		t.Errorf("wanted to get the created session")
	}
	if _, err := reg.Get("3"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("wanted %v, got %v", ErrSessionNotFound, err)
	}
	atomic.StoreInt32(&lastID, 1)
	if _, err := reg.Create("wilma"); err == nil || errors.Is(err, ErrTooManySessions) {
		t.Errorf("wanted error creating session with duplicate id, got %v", err)
	}
}

func TestRegistryCreateUUID(t *testing.T) {
	reg, _ := newTestRegistry(t, testRegistryConfig(make(channelPublisher, 16)))
	s1, err1 := reg.Create("selene")
	s2, err2 := reg.Create("selene")
	switch {
	case err1 != nil, err2 != nil:
		t.Fatalf("unwanted errors: %v, %v", err1, err2)
	case len(s1.ID()) != 36:
		t.Errorf("wanted uuid id, got %q", s1.ID())
	case s1.ID() == s2.ID():
		t.Errorf("wanted unique ids, got %v twice", s1.ID())
	}
}

func TestRegistryIsMember(t *testing.T) {
	reg, _ := newTestRegistry(t, testRegistryConfig(make(channelPublisher, 16)))
	s, err := reg.GetOrCreate("abc", "host")
	if err != nil {
		t.Fatalf("unwanted error: %v", err)
	}
	submit(t, s, game.Action{Type: game.Join, Player: "other"})
	isMemberTests := []struct {
		id   string
		pn   player.Name
		want bool
	}{
		{"abc", "host", true},
		{"abc", "other", true},
		{"abc", "stranger", false},
		{"def", "host", false},
	}
	for i, test := range isMemberTests {
		if got := reg.IsMember(test.id, test.pn); test.want != got {
			t.Errorf("Test %v: wanted %v, got %v", i, test.want, got)
		}
	}
}

func TestRegistryRemove(t *testing.T) {
	events := make(channelPublisher, 16)
	log := logtest.NewLogger()
	cfg := testRegistryConfig(events)
	cfg.Log = log
	reg, _ := newTestRegistry(t, cfg)
	if _, err := reg.GetOrCreate("abc", "host"); err != nil {
		t.Fatalf("unwanted error: %v", err)
	}
	if !reg.Remove("abc", "host left") {
		t.Errorf("wanted session to be removed")
	}
	if reg.Remove("abc", "host left") {
		t.Errorf("wanted second remove to return false")
	}
	want := game.Event{Type: game.SessionClosed, Reason: "host left"}
	if got := receive(t, events, 1)[0]; want != got {
		t.Errorf("events not equal:\nwanted: %v\ngot:    %v", want, got)
	}
	switch {
	case reg.Len() != 0:
		t.Errorf("wanted no sessions after remove, got %v", reg.Len())
	case !log.Contains("removed session abc: host left"):
		t.Errorf("wanted removal to be logged: %q", log.String())
	}
}

func TestRegistrySweep(t *testing.T) {
	events := make(channelPublisher, 64)
	var now int64 = testTime
	var mu sync.Mutex
	cfg := testRegistryConfig(events)
	cfg.SessionConfig.TimeFunc = func() int64 {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		now += int64(d.Seconds())
	}
	reg, r := newTestRegistry(t, cfg)
	lobby, _ := reg.GetOrCreate("lobby", "a")
	playing, _ := reg.GetOrCreate("playing", "a")
	finished, _ := reg.GetOrCreate("finished", "a")
	for _, s := range []*Session{playing, finished} {
		submit(t, s, game.Action{Type: game.Join, Player: "b"})
		submit(t, s, game.Action{Type: game.Start, Player: "a"})
	}
	finished.expireTurn(2, "a")
	if _, state := lobby.Snapshot(); state.Status != game.Lobby {
		t.Fatalf("wanted lobby session to be in the lobby, got %v", state.Status)
	}
	if _, state := finished.Snapshot(); state.Status != game.Finished {
		t.Fatalf("wanted finished session to be finished, got %v", state.Status)
	}
	sweepTests := []struct {
		advance time.Duration
		want    []string
	}{
		{
			advance: 4 * time.Minute,
			want:    []string{"lobby", "playing", "finished"},
		},
		{
			advance: time.Minute, // 5 minutes
			want:    []string{"lobby", "playing"},
		},
		{
			advance: 5 * time.Minute, // 10 minutes
			want:    []string{"playing"},
		},
		{
			advance: 20 * time.Minute, // 30 minutes
		},
	}
	for i, test := range sweepTests {
		advance(test.advance)
		reg.Sweep()
		if want, got := len(test.want), reg.Len(); want != got {
			t.Errorf("Test %v: wanted %v sessions, got %v", i, want, got)
		}
		for _, id := range test.want {
			if _, err := reg.Get(id); err != nil {
				t.Errorf("Test %v: wanted session %v to remain: %v", i, id, err)
			}
		}
	}
	outcomes := r.Outcomes()
	switch {
	case len(outcomes) != 2:
		t.Errorf("wanted finished and abandoned outcomes, got %v", outcomes)
	case outcomes[0].SessionID != "finished", outcomes[0].Abandoned:
		t.Errorf("wanted first outcome to be the finished game, got %+v", outcomes[0])
	case outcomes[1].SessionID != "playing", !outcomes[1].Abandoned:
		t.Errorf("wanted second outcome to be the abandoned game, got %+v", outcomes[1])
	}
}

func TestRegistrySweepConcurrentRoll(t *testing.T) {
	for i := 0; i < 50; i++ {
		events := make(channelPublisher, 64)
		var now int64 = testTime
		var mu sync.Mutex
		cfg := testRegistryConfig(events)
		cfg.SessionConfig.TimeFunc = func() int64 {
			mu.Lock()
			defer mu.Unlock()
			return now
		}
		reg, r := newTestRegistry(t, cfg)
		s, _ := reg.GetOrCreate("playing", "a")
		submit(t, s, game.Action{Type: game.Join, Player: "b"})
		submit(t, s, game.Action{Type: game.Start, Player: "a"})
		mu.Lock()
		now += int64(cfg.AbandonIdle.Seconds())
		mu.Unlock()
		rolled := make(chan error, 1)
		go func() {
			rolled <- s.Submit(context.Background(), game.Action{Type: game.Roll, Player: "a"})
		}()
		reg.Sweep()
		err := <-rolled
		_, getErr := reg.Get("playing")
		switch {
		case err == nil && getErr != nil:
			t.Fatalf("Test %v: wanted session that accepted a roll during the sweep to remain", i)
		case err != nil && !errors.Is(err, game.GameClosed):
			t.Fatalf("Test %v: wanted roll to be accepted or the game to be closed, got %v", i, err)
		case err != nil && getErr == nil:
			t.Fatalf("Test %v: wanted closed session to be removed", i)
		case err != nil && len(r.Outcomes()) != 1:
			t.Fatalf("Test %v: wanted abandoned outcome, got %v", i, r.Outcomes())
		}
	}
}

func TestRegistryRestore(t *testing.T) {
	snapshots := new(memorySnapshots)
	newRegistry := func(rolls ...int) (*Registry, *mockRecorder, channelPublisher) {
		events := make(channelPublisher, 64)
		cfg := testRegistryConfig(events)
		cfg.SessionConfig.Roller = roll.NewSequence(rolls...)
		cfg.SessionConfig.Snapshots = snapshots
		reg, r := newTestRegistry(t, cfg)
		return reg, r, events
	}
	reg1, r1, _ := newRegistry(500)
	s1, err := reg1.GetOrCreate("abc", "a")
	if err != nil {
		t.Fatalf("unwanted error: %v", err)
	}
	submit(t, s1, game.Action{Type: game.Join, Player: "b"})
	submit(t, s1, game.Action{Type: game.Start, Player: "a"})
	submit(t, s1, game.Action{Type: game.Roll, Player: "a"})
	wantSequenceNumber, wantState := s1.Snapshot()
	reg1.suspendAll(reasonShutdown)
	if outcomes := r1.Outcomes(); len(outcomes) != 0 {
		t.Errorf("wanted suspended game to not be recorded as abandoned, got %v", outcomes)
	}

	reg2, _, events := newRegistry(1)
	s2, err := reg2.Get("abc")
	if err != nil {
		t.Fatalf("wanted session to be restored: %v", err)
	}
	gotSequenceNumber, gotState := s2.Snapshot()
	switch {
	case wantSequenceNumber != gotSequenceNumber:
		t.Errorf("wanted restored sequence number %v, got %v", wantSequenceNumber, gotSequenceNumber)
	case !reflect.DeepEqual(wantState, gotState):
		t.Errorf("restored states not equal:\nwanted: %v\ngot:    %v", wantState, gotState)
	case !reg2.IsMember("abc", "b"):
		t.Errorf("wanted members to be restored")
	}
	if s3, err := reg2.GetOrCreate("abc", "c"); err != nil || s3 != s2 {
		t.Errorf("wanted restored session to be kept, got %v, %v", s3, err)
	}
	submit(t, s2, game.Action{Type: game.Roll, Player: "b"})
	if got := receive(t, events, 1)[0]; got.Type != game.RollResult || got.SequenceNumber != wantSequenceNumber+1 {
		t.Errorf("wanted restored game to continue its sequence, got %v", got)
	}
	if snap, err := snapshots.Load(context.Background(), "abc"); err != nil || snap.SequenceNumber != wantSequenceNumber+1 {
		t.Errorf("wanted snapshot of the roll to be saved, got %v, %v", snap, err)
	}
	if !reg2.Remove("abc", "done") {
		t.Fatal("wanted restored session to be removed")
	}

	reg3, _, _ := newRegistry()
	for _, id := range []string{"abc", "missing"} {
		if _, err := reg3.Get(id); !errors.Is(err, ErrSessionNotFound) {
			t.Errorf("wanted %v for session %v, got %v", ErrSessionNotFound, id, err)
		}
	}
}

func TestRegistryRun(t *testing.T) {
	events := make(channelPublisher, 16)
	cfg := testRegistryConfig(events)
	cfg.SweepPeriod = time.Millisecond
	reg, _ := newTestRegistry(t, cfg)
	if _, err := reg.GetOrCreate("abc", "host"); err != nil {
		t.Fatalf("unwanted error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	errC := make(chan error, 1)
	go func() {
		errC <- reg.Run(ctx)
	}()
	cancel()
	if err := <-errC; err != nil {
		t.Errorf("unwanted error: %v", err)
	}
	if reg.Len() != 0 {
		t.Errorf("wanted all sessions to be removed when the registry stops, got %v", reg.Len())
	}
	if got := receive(t, events, 1)[0]; got.Type != game.SessionClosed {
		t.Errorf("wanted %v event, got %v", game.SessionClosed, got)
	}
	if err := reg.Run(context.Background()); !errors.Is(err, runner.ErrAlreadyRun) {
		t.Errorf("wanted error running registry again, got %v", err)
	}
}
