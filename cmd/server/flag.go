package main

import (
	"flag"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	environmentVariablePort         = "PORT"
	environmentVariableDatabaseURL  = "DATABASE_URL"
	environmentVariableBusURL       = "BUS_URL"
	environmentVariableAuthSecret   = "AUTH_SECRET"
	environmentVariableMaxSessions  = "MAX_SESSIONS"
	environmentVariableMaxPlayers   = "MAX_PLAYERS"
	environmentVariableStartCeiling = "START_CEILING"
	environmentVariableLobbyIdle    = "LOBBY_IDLE"
	environmentVariableFinishedIdle = "FINISHED_IDLE"
	environmentVariableAbandonIdle  = "ABANDON_IDLE"
	environmentVariableTurnTimeout  = "TURN_TIMEOUT"
	environmentVariableDebugGame    = "DEBUG_MESSAGES"
	environmentVariableTLSCertFile  = "TLS_CERT_FILE"
	environmentVariableTLSKeyFile   = "TLS_KEY_FILE"
)

// mainFlags are the configuration options which can be easly configured at run startup for different environments.
type mainFlags struct {
	port         int
	databaseURL  string
	busURL       string
	authSecret   string
	maxSessions  int
	maxPlayers   int
	startCeiling int
	lobbyIdle    time.Duration
	finishedIdle time.Duration
	abandonIdle  time.Duration
	turnTimeout  time.Duration
	debugGame    bool
	tlsCertFile  string
	tlsKeyFile   string
}

const (
	defaultPort         = 8000
	defaultMaxSessions  = 64
	defaultMaxPlayers   = 8
	defaultStartCeiling = 1000
	defaultLobbyIdle    = 10 * time.Minute
	defaultFinishedIdle = 5 * time.Minute
	defaultAbandonIdle  = 30 * time.Minute
)

// usage prints how to run the server to the flagset's output.
func usage(fs *flag.FlagSet) {
	envVars := []string{
		environmentVariablePort,
		environmentVariableDatabaseURL,
		environmentVariableBusURL,
		environmentVariableAuthSecret,
		environmentVariableMaxSessions,
		environmentVariableMaxPlayers,
		environmentVariableStartCeiling,
		environmentVariableLobbyIdle,
		environmentVariableFinishedIdle,
		environmentVariableAbandonIdle,
		environmentVariableTurnTimeout,
		environmentVariableDebugGame,
		environmentVariableTLSCertFile,
		environmentVariableTLSKeyFile,
	}
	fmt.Fprintf(fs.Output(), "Runs the server\n")
	fmt.Fprintf(fs.Output(), "Reads environment variables when possible: [%s]\n", strings.Join(envVars, ","))
	fmt.Fprintf(fs.Output(), "Usage of %s:\n", fs.Name())
	fs.PrintDefaults()
}

// newFlagSet creates a flagSet that populates the specified mainFlags.
func (m *mainFlags) newFlagSet(osLookupEnvFunc func(string) (string, bool)) *flag.FlagSet {
	fs := flag.NewFlagSet("main", flag.ExitOnError)
	fs.Usage = func() {
		usage(fs) // [lazy evaluation]
	}
	envValue := func(key string) string {
		if envValue, ok := osLookupEnvFunc(key); ok {
			return envValue
		}
		return ""
	}
	envValueInt := func(key string, defaultValue int) int {
		v1 := envValue(key)
		v2, err := strconv.Atoi(v1)
		if err != nil {
			return defaultValue
		}
		return v2
	}
	envValueDuration := func(key string, defaultValue time.Duration) time.Duration {
		v1 := envValue(key)
		v2, err := time.ParseDuration(v1)
		if err != nil {
			return defaultValue
		}
		return v2
	}
	envPresent := func(key string) bool {
		_, ok := osLookupEnvFunc(key)
		return ok
	}
	fs.IntVar(&m.port, "port", envValueInt(environmentVariablePort, defaultPort), "The TCP port for server http requests.")
	fs.StringVar(&m.databaseURL, "data-source", envValue(environmentVariableDatabaseURL), "The data source of the database that stores the totals of players (postgres://, mongodb://, or firestore://project).  Outcomes are only logged if empty.")
	fs.StringVar(&m.busURL, "bus-url", envValue(environmentVariableBusURL), "The PostgreSQL connection URI used to share game events between servers.  Events are only shared on this server if empty.")
	fs.StringVar(&m.authSecret, "auth-secret", envValue(environmentVariableAuthSecret), "The secret used to verify the tokens of players.  A random secret is used if empty, which only works with a single server.")
	fs.IntVar(&m.maxSessions, "max-sessions", envValueInt(environmentVariableMaxSessions, defaultMaxSessions), "The maximum number of games on the server.")
	fs.IntVar(&m.maxPlayers, "max-players", envValueInt(environmentVariableMaxPlayers, defaultMaxPlayers), "The maximum number of players in a game.")
	fs.IntVar(&m.startCeiling, "start-ceiling", envValueInt(environmentVariableStartCeiling, defaultStartCeiling), "The largest number the first player can roll.")
	fs.DurationVar(&m.lobbyIdle, "lobby-idle", envValueDuration(environmentVariableLobbyIdle, defaultLobbyIdle), "The time a game that has not started is kept without any players joining.")
	fs.DurationVar(&m.finishedIdle, "finished-idle", envValueDuration(environmentVariableFinishedIdle, defaultFinishedIdle), "The time a finished game is kept.")
	fs.DurationVar(&m.abandonIdle, "abandon-idle", envValueDuration(environmentVariableAbandonIdle, defaultAbandonIdle), "The time a game in progress is kept without any players rolling.")
	fs.DurationVar(&m.turnTimeout, "turn-timeout", envValueDuration(environmentVariableTurnTimeout, 0), "The time a player has to roll before forfeiting.  Zero disables the timeout.")
	fs.BoolVar(&m.debugGame, "debug-game", envPresent(environmentVariableDebugGame), "Logs actions and connections when present.")
	fs.StringVar(&m.tlsCertFile, "tls-cert-file", envValue(environmentVariableTLSCertFile), "The absolute path of the certificate file to use for TLS.")
	fs.StringVar(&m.tlsKeyFile, "tls-key-file", envValue(environmentVariableTLSKeyFile), "The absolute path of the key file to use for TLS.")
	return fs
}

// newMainFlags creates a new, populated mainFlags structure.
// Fields are populated from command line arguments.
// If fields are not specified on the command line, environment variable values are used before defaulting to other defaults.
func newMainFlags(osArgs []string, osLookupEnvFunc func(string) (string, bool)) mainFlags {
	if len(osArgs) == 0 {
		osArgs = []string{""}
	}
	programArgs := osArgs[1:]
	var m mainFlags
	fs := m.newFlagSet(osLookupEnvFunc)
	fs.Parse(programArgs)
	return m
}
