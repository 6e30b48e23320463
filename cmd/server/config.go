package main

import (
	"context"
	crypto_rand "crypto/rand"
	"database/sql"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/jacobpatterson1549/deathroll/db"
	"github.com/jacobpatterson1549/deathroll/db/firestore"
	"github.com/jacobpatterson1549/deathroll/db/mongo"
	"github.com/jacobpatterson1549/deathroll/db/snapshot"
	dbSQL "github.com/jacobpatterson1549/deathroll/db/sql"
	"github.com/jacobpatterson1549/deathroll/db/sql/postgres"
	"github.com/jacobpatterson1549/deathroll/db/stats"
	"github.com/jacobpatterson1549/deathroll/game"
	"github.com/jacobpatterson1549/deathroll/game/roll"
	"github.com/jacobpatterson1549/deathroll/server"
	"github.com/jacobpatterson1549/deathroll/server/auth"
	"github.com/jacobpatterson1549/deathroll/server/bus"
	"github.com/jacobpatterson1549/deathroll/server/bus/memory"
	postgresBus "github.com/jacobpatterson1549/deathroll/server/bus/postgres"
	gameController "github.com/jacobpatterson1549/deathroll/server/game"
	"github.com/jacobpatterson1549/deathroll/server/game/lobby"
	"github.com/jacobpatterson1549/deathroll/server/game/socket"
	"github.com/jacobpatterson1549/deathroll/server/game/socket/gorilla"
	"golang.org/x/time/rate"
)

const (
	postgresDriverName = "postgres"
	queryPeriod        = 5 * time.Second
	publishTimeout     = 10 * time.Second
	recordTimeout      = time.Minute
	snapshotTimeout    = time.Minute
	busBufferSize      = 64
	recorderQueueSize  = 256
	maxSockets         = 1024
)

type (
	// components are the parts of the server that run until it stops.
	components struct {
		server   *server.Server
		registry *gameController.Registry
		recorder *stats.Recorder
		// snapshots saves the state of games so they can be restored after the server restarts.
		snapshots *snapshot.Store
		// busRunner delivers events from other servers.  It is nil if events are not shared.
		busRunner interface {
			Run(ctx context.Context) error
		}
	}

	// socketUpgrader creates socket connections with gorilla websockets.
	socketUpgrader struct {
		*gorilla.Upgrader
	}
)

// timeFunc supplies the current time since the unix epoch, in seconds.
func timeFunc() int64 {
	return time.Now().UTC().Unix()
}

// newComponents creates the parts of the server from the flags.
func (m mainFlags) newComponents(ctx context.Context, log *log.Logger) (*components, error) {
	tokenizer, err := m.tokenizer(crypto_rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("creating authentication tokenizer: %w", err)
	}
	backend, err := m.statsBackend(ctx, log)
	if err != nil {
		return nil, fmt.Errorf("creating stats backend: %w", err)
	}
	dao, err := stats.NewDao(backend)
	if err != nil {
		return nil, err
	}
	if err := dao.Setup(ctx); err != nil {
		return nil, err
	}
	recorder, err := recorderConfig(log).NewRecorder(dao)
	if err != nil {
		return nil, err
	}
	snapshots, err := m.snapshotStore(ctx, log)
	if err != nil {
		return nil, fmt.Errorf("creating snapshot store: %w", err)
	}
	b, busRunner, err := m.eventBus(log)
	if err != nil {
		return nil, fmt.Errorf("creating event bus: %w", err)
	}
	seed, err := roll.NewSeed()
	if err != nil {
		return nil, err
	}
	registryCfg := m.registryConfig(log, b, roll.NewRandom(seed))
	registryCfg.SessionConfig.Snapshots = snapshots
	registry, err := registryCfg.NewRegistry(recorder)
	if err != nil {
		return nil, err
	}
	lobbyCfg := m.lobbyConfig(log)
	l, err := lobbyCfg.NewLobby(tokenizer, registry, b, socketUpgrader{gorilla.NewUpgrader(nil)})
	if err != nil {
		return nil, err
	}
	p := server.Parameters{
		Logger:      log,
		Tokenizer:   tokenizer,
		Registry:    registry,
		Lobby:       l,
		StatsReader: dao,
		Rules:       registryCfg.SessionConfig.Rules.Rules(m.turnTimeout),
	}
	s, err := m.serverConfig().NewServer(p)
	if err != nil {
		return nil, err
	}
	c := components{
		server:   s,
		registry:  registry,
		recorder:  recorder,
		snapshots: snapshots,
	}
	if busRunner != nil {
		c.busRunner = busRunner
	}
	return &c, nil
}

// tokenizer creates the tokenizer that verifies players.  A random key is read if no secret is configured.
func (m mainFlags) tokenizer(keyReader io.Reader) (*auth.Tokenizer, error) {
	var tokenValidDurationSec int64 = int64((24 * time.Hour).Seconds()) // 1 day
	cfg := auth.TokenizerConfig{
		Key:       []byte(m.authSecret),
		KeyReader: keyReader,
		TimeFunc:  timeFunc,
		ValidSec:  tokenValidDurationSec,
	}
	return cfg.NewTokenizer()
}

// statsBackend creates the backend for the scheme of the data source.
func (m mainFlags) statsBackend(ctx context.Context, log *log.Logger) (stats.Backend, error) {
	cfg := db.Config{
		QueryPeriod: queryPeriod,
	}
	switch url := m.databaseURL; {
	case len(url) == 0:
		return stats.NoDatabaseBackend{Log: log}, nil
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		sqlCfg := dbSQL.DatabaseConfig{
			DriverName:  postgresDriverName,
			DatabaseURL: url,
			Config:      cfg,
		}
		d, err := sqlCfg.NewDatabase()
		if err != nil {
			return nil, err
		}
		return postgres.NewStatsBackend(d)
	case strings.HasPrefix(url, "mongodb://"), strings.HasPrefix(url, "mongodb+srv://"):
		return mongo.NewStatsBackend(ctx, cfg, url)
	case strings.HasPrefix(url, "firestore://"):
		projectID := strings.TrimPrefix(url, "firestore://")
		return firestore.NewStatsBackend(ctx, cfg, projectID)
	}
	return nil, fmt.Errorf("unknown data source scheme, wanted postgres://, mongodb://, or firestore://")
}

// snapshotStore creates the store that saves the state of games in the background.
func (m mainFlags) snapshotStore(ctx context.Context, log *log.Logger) (*snapshot.Store, error) {
	backend, err := m.snapshotBackend(log)
	if err != nil {
		return nil, err
	}
	cfg := snapshot.StoreConfig{
		Debug:        m.debugGame,
		Log:          log,
		RetryTimeout: snapshotTimeout,
	}
	store, err := cfg.NewStore(backend)
	if err != nil {
		return nil, err
	}
	if err := store.Setup(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// snapshotBackend creates the backend for the scheme of the data source.
// Snapshots are kept in memory unless the data source is a Postgres database.
func (m mainFlags) snapshotBackend(log *log.Logger) (snapshot.Backend, error) {
	switch url := m.databaseURL; {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		sqlCfg := dbSQL.DatabaseConfig{
			DriverName:  postgresDriverName,
			DatabaseURL: url,
			Config: db.Config{
				QueryPeriod: queryPeriod,
			},
		}
		d, err := sqlCfg.NewDatabase()
		if err != nil {
			return nil, err
		}
		return postgres.NewSnapshotBackend(d)
	case len(url) != 0:
		log.Printf("keeping snapshots of games in memory: only postgres data sources store them")
	}
	return new(snapshot.MemoryBackend), nil
}

// recorderConfig creates the configuration to record outcomes in the background.
func recorderConfig(log *log.Logger) stats.RecorderConfig {
	cfg := stats.RecorderConfig{
		Log:          log,
		QueueSize:    recorderQueueSize,
		RetryTimeout: recordTimeout,
	}
	return cfg
}

// eventBus creates the bus that delivers the events of games.
// If a bus url is configured, the returned runner must be run to receive the events of other servers.
func (m mainFlags) eventBus(log *log.Logger) (bus.Bus, *postgresBus.Bus, error) {
	localCfg := memory.Config{
		Debug:      m.debugGame,
		Log:        log,
		BufferSize: busBufferSize,
	}
	if len(m.busURL) == 0 {
		b, err := localCfg.NewBus()
		if err != nil {
			return nil, nil, err
		}
		return b, nil, nil
	}
	sqlDB, err := sql.Open(postgresDriverName, m.busURL)
	if err != nil {
		return nil, nil, fmt.Errorf("opening bus database: %w", err)
	}
	cfg := postgresBus.Config{
		Debug:          m.debugGame,
		Log:            log,
		PublishTimeout: publishTimeout,
		Local:          localCfg,
	}
	listener := postgresBus.NewListener(m.busURL, log)
	b, err := cfg.NewBus(sqlDB, listener)
	if err != nil {
		return nil, nil, err
	}
	return b, b, nil
}

// registryConfig creates the configuration of the games on the server.
func (m mainFlags) registryConfig(log *log.Logger, p bus.Publisher, r roll.Roller) gameController.RegistryConfig {
	sessionCfg := gameController.Config{
		Debug:    m.debugGame,
		Log:      log,
		TimeFunc: timeFunc,
		Rules: game.Config{
			MaxPlayers:   m.maxPlayers,
			StartCeiling: m.startCeiling,
		},
		Roller:         r,
		Publisher:      p,
		PublishTimeout: publishTimeout,
		TurnTimeout:    m.turnTimeout,
	}
	cfg := gameController.RegistryConfig{
		Debug:         m.debugGame,
		Log:           log,
		MaxSessions:   m.maxSessions,
		SessionConfig: sessionCfg,
		SweepPeriod:   time.Minute,
		LobbyIdle:     m.lobbyIdle,
		FinishedIdle:  m.finishedIdle,
		AbandonIdle:   m.abandonIdle,
	}
	return cfg
}

// lobbyConfig creates the configuration to connect players to games.
func (m mainFlags) lobbyConfig(log *log.Logger) lobby.Config {
	cfg := lobby.Config{
		Debug:        m.debugGame,
		Log:          log,
		MaxSockets:   maxSockets,
		SocketConfig: m.socketConfig(log),
	}
	return cfg
}

// socketConfig creates the configuration of the connections of players.
func (m mainFlags) socketConfig(log *log.Logger) socket.Config {
	cfg := socket.Config{
		Debug:        m.debugGame,
		Log:          log,
		TimeFunc:     time.Now,
		ReadWait:     60 * time.Second,
		WriteWait:    10 * time.Second,
		PingPeriod:   54 * time.Second, // 90% of ReadWait
		IdlePeriod:   15 * time.Minute,
		MessageRate:  rate.Limit(10),
		MessageBurst: 20,
	}
	return cfg
}

// serverConfig creates the configuration of the http server.
func (m mainFlags) serverConfig() server.Config {
	cfg := server.Config{
		Port:        m.port,
		StopDur:     5 * time.Second,
		TLSCertFile: m.tlsCertFile,
		TLSKeyFile:  m.tlsKeyFile,
	}
	return cfg
}

// Upgrade creates a socket connection from the http request.
func (u socketUpgrader) Upgrade(w http.ResponseWriter, r *http.Request) (socket.Conn, error) {
	c, err := u.Upgrader.Upgrade(w, r)
	if err != nil {
		return nil, err
	}
	return c, nil
}
