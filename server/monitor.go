package server

import (
	"fmt"
	"io"
	"net/http"
	"runtime"
	"runtime/pprof"
)

type (
	// gameCounter counts the games on the server.
	gameCounter interface {
		Len() int
	}

	// socketCounter counts the connections to games.
	socketCounter interface {
		NumSockets() int
	}
)

// monitorHandler writes runtime information to the response.
func monitorHandler(games gameCounter, sockets socketCounter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m := new(runtime.MemStats)
		runtime.ReadMemStats(m)
		p := pprof.Lookup("goroutine")
		w.Header().Set(HeaderContentType, "text/plain; charset=utf-8")
		writeGameStats(w, games.Len(), sockets.NumSockets())
		fmt.Fprintln(w)
		writeMemoryStats(w, m)
		fmt.Fprintln(w)
		writeGoroutineExpectations(w)
		fmt.Fprintln(w)
		writeGoroutineStackTraces(w, p)
	}
}

// writeGameStats writes the number of games and connections on the server.
func writeGameStats(w io.Writer, numGames, numSockets int) {
	fmt.Fprintln(w, "--- Game Stats ---")
	fmt.Fprintln(w, "Games", numGames)
	fmt.Fprintln(w, "Connections", numSockets)
}

// writeMemoryStats writes the memory runtime statistics of the server.
func writeMemoryStats(w io.Writer, m *runtime.MemStats) {
	fmt.Fprintln(w, "--- Memory Stats ---")
	fmt.Fprintln(w, "Alloc (bytes on heap)", m.Alloc)
	fmt.Fprintln(w, "TotalAlloc (total heap size)", m.TotalAlloc)
	fmt.Fprintln(w, "Sys (bytes used to run server)", m.Sys)
	fmt.Fprintln(w, "Live object count (Mallocs - Frees)", m.Mallocs-m.Frees)
}

// writeGoroutineExpectations writes a message about the expected goroutines.
func writeGoroutineExpectations(w io.Writer) {
	fmt.Fprintln(w, "--- Goroutine Expectations ---")
	fmt.Fprintln(w, "On an idling server, goroutines are expected for:")
	fmt.Fprintln(w, "* listening for interrupt/termination signals so the server can stop gracefully")
	fmt.Fprintln(w, "* running the http server")
	fmt.Fprintln(w, "* sweeping idle games")
	fmt.Fprintln(w, "* recording the outcomes of games")
	fmt.Fprintln(w, "* listening for events from other servers, if the postgres bus is used")
	fmt.Fprintln(w, "* opening and resetting sql database connections, if a sql database is used")
	fmt.Fprintln(w, "Each game has one (1) goroutine to publish its events.")
	fmt.Fprintln(w, "Each connection has three (3) goroutines: one serving the http request, one reading messages, and one writing events.")
}

// writeGoroutineStackTraces writes the goroutine runitme profile's stack traces.
func writeGoroutineStackTraces(w io.Writer, p *pprof.Profile) {
	fmt.Fprintln(w, "--- Goroutine Stack Traces ---")
	p.WriteTo(w, 1)
}
