// Package server runs the http server which allows players to create, join, and play games.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/jacobpatterson1549/deathroll/db/stats"
	"github.com/jacobpatterson1549/deathroll/game/player"
	gameController "github.com/jacobpatterson1549/deathroll/server/game"
	"github.com/jacobpatterson1549/deathroll/server/log"
)

type (
	// Server runs the site.
	Server struct {
		log        log.Logger
		HTTPServer *http.Server
		Config
	}

	// Config contains fields which describe the server.
	Config struct {
		// Port is the TCP port for server http requests.
		Port int
		// StopDur is the maximum duration the server can take to stop.
		StopDur time.Duration
		// TLSCertFile is the public HTTPS TLS certificate file.  Requests are served without TLS if it is empty.
		TLSCertFile string
		// TLSKeyFile is the private HTTPS TLS key file.
		TLSKeyFile string
	}

	// Parameters contains the interfaces needed to create a new server.
	Parameters struct {
		log.Logger
		Tokenizer
		Registry
		Lobby
		StatsReader
		// Rules describe how games are played.
		Rules []string
	}

	// Tokenizer reads the player name from tokens.
	Tokenizer interface {
		Verify(token string) (player.Name, error)
	}

	// Registry creates and gets games.
	Registry interface {
		Create(host player.Name) (*gameController.Session, error)
		Get(id string) (*gameController.Session, error)
		Len() int
	}

	// Lobby connects players to games.
	Lobby interface {
		Connect(ctx context.Context, w http.ResponseWriter, r *http.Request, id, token string) error
		NumSockets() int
	}

	// StatsReader reads the totals of players.
	StatsReader interface {
		Read(ctx context.Context, pn player.Name) (*stats.PlayerStats, error)
	}
)

// NewServer creates a Server from the Config.
func (cfg Config) NewServer(p Parameters) (*Server, error) {
	if err := cfg.validate(p); err != nil {
		return nil, fmt.Errorf("creating server: validation: %w", err)
	}
	addr := fmt.Sprintf(":%d", cfg.Port)
	s := Server{
		log: p.Logger,
		HTTPServer: &http.Server{
			Addr:        addr,
			Handler:     p.handler(),
			ReadTimeout: 60 * time.Second,
		},
		Config: cfg,
	}
	return &s, nil
}

// validate ensures the configuration and parameters have no errors.
func (cfg Config) validate(p Parameters) error {
	if err := p.validate(); err != nil {
		return err
	}
	switch {
	case cfg.Port <= 0:
		return fmt.Errorf("positive port required")
	case cfg.StopDur <= 0:
		return fmt.Errorf("stop timeout duration required")
	case len(cfg.TLSCertFile) == 0 && len(cfg.TLSKeyFile) != 0,
		len(cfg.TLSCertFile) != 0 && len(cfg.TLSKeyFile) == 0:
		return fmt.Errorf("both tls cert and key files are required to serve https")
	}
	return nil
}

// validate ensures that all of the parameters are present.
func (p Parameters) validate() error {
	switch {
	case p.Logger == nil:
		return fmt.Errorf("log required")
	case p.Tokenizer == nil:
		return fmt.Errorf("tokenizer required")
	case p.Registry == nil:
		return fmt.Errorf("registry required")
	case p.Lobby == nil:
		return fmt.Errorf("lobby required")
	case p.StatsReader == nil:
		return fmt.Errorf("stats reader required")
	case len(p.Rules) == 0:
		return fmt.Errorf("rules required")
	}
	return nil
}

// Run runs the server until it is stopped.  Requests are handled with contexts derived from ctx.
func (s *Server) Run(ctx context.Context) error {
	s.HTTPServer.BaseContext = func(net.Listener) context.Context {
		return ctx
	}
	var err error
	switch {
	case s.hasTLS():
		s.log.Printf("starting server at https://127.0.0.1%v", s.HTTPServer.Addr)
		err = s.HTTPServer.ListenAndServeTLS(s.TLSCertFile, s.TLSKeyFile)
	default:
		s.log.Printf("starting server at http://127.0.0.1%v", s.HTTPServer.Addr)
		err = s.HTTPServer.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return fmt.Errorf("running server: %w", err)
}

// Stop asks the server to shutdown and waits for the shutdown to complete.
// An error is returned if the server if the context times out.
func (s *Server) Stop(ctx context.Context) error {
	ctx, cancelFunc := context.WithTimeout(ctx, s.StopDur)
	defer cancelFunc()
	if err := s.HTTPServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("stopping server: %w", err)
	}
	return nil
}

// hasTLS determines if the server should serve https requests.
func (cfg Config) hasTLS() bool {
	return len(cfg.TLSCertFile) != 0
}
