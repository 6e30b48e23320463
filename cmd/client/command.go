package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/jacobpatterson1549/deathroll/game/player"
	"github.com/jacobpatterson1549/deathroll/server/auth"
	"github.com/urfave/cli/v3"
)

const (
	serverFlag    = "server"
	tokenFlag     = "token"
	secretFlag    = "secret"
	playerFlag    = "player"
	rollDelayFlag = "roll-delay"
	timeoutFlag   = "timeout"
)

// tokenValidSec is how long tokens signed by the client are valid.
var tokenValidSec int64 = int64((24 * time.Hour).Seconds())

// newCommand creates the command line interface that writes to the writer.
func newCommand(out io.Writer, timeFunc func() int64) *cli.Command {
	gameCommand := func(name, usage string, f func(c client, ctx context.Context, id string) error) *cli.Command {
		return &cli.Command{
			Name:      name,
			Usage:     usage,
			ArgsUsage: "GAME_ID",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				id := cmd.Args().First()
				if len(id) == 0 {
					return fmt.Errorf("%v: game id required", name)
				}
				c, err := newClient(cmd, out, timeFunc)
				if err != nil {
					return err
				}
				return f(c, ctx, id)
			},
		}
	}
	cmd := &cli.Command{
		Name:      "deathroll-client",
		Usage:     "create, join, and play deathroll games from the command line",
		Writer:    out,
		ErrWriter: out,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    serverFlag,
				Usage:   "the base url of the server",
				Value:   "http://127.0.0.1:8000",
				Sources: cli.EnvVars("DEATHROLL_SERVER"),
			},
			&cli.StringFlag{
				Name:    tokenFlag,
				Usage:   "the token of the player, signed by the server",
				Sources: cli.EnvVars("DEATHROLL_TOKEN"),
			},
			&cli.StringFlag{
				Name:    secretFlag,
				Usage:   "the secret shared with the server, used to sign a token for the player if no token is given",
				Sources: cli.EnvVars("AUTH_SECRET"),
			},
			&cli.StringFlag{
				Name:    playerFlag,
				Usage:   "the name of the player; read from the token if not given",
				Sources: cli.EnvVars("DEATHROLL_PLAYER"),
			},
			&cli.DurationFlag{
				Name:  rollDelayFlag,
				Usage: "how long to wait before rolling when playing",
				Value: 500 * time.Millisecond,
			},
			&cli.DurationFlag{
				Name:  timeoutFlag,
				Usage: "the maximum duration of http requests",
				Value: 10 * time.Second,
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "create",
				Usage: "create a game hosted by the player",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					c, err := newClient(cmd, out, timeFunc)
					if err != nil {
						return err
					}
					return c.create(ctx)
				},
			},
			{
				Name:  "rules",
				Usage: "print how games are played on the server",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					c, err := newClient(cmd, out, timeFunc)
					if err != nil {
						return err
					}
					return c.rules(ctx)
				},
			},
			gameCommand("join", "join a game that has not started", client.join),
			gameCommand("start", "start a game hosted by the player", client.start),
			gameCommand("state", "print the state of a game", client.state),
			gameCommand("play", "watch a game, rolling whenever it is the player's turn", client.play),
		},
	}
	return cmd
}

// newClient creates a client from the flags of the command.
func newClient(cmd *cli.Command, out io.Writer, timeFunc func() int64) (client, error) {
	baseURL, err := url.Parse(cmd.String(serverFlag))
	if err != nil {
		return client{}, fmt.Errorf("parsing server url: %w", err)
	}
	pn := player.Name(cmd.String(playerFlag))
	token := cmd.String(tokenFlag)
	switch {
	case len(token) != 0 && len(pn) == 0:
		pn, err = tokenSubject(token)
		if err != nil {
			return client{}, err
		}
	case len(token) == 0:
		token, err = signToken(cmd.String(secretFlag), pn, timeFunc)
		if err != nil {
			return client{}, err
		}
	}
	c := client{
		httpClient: &http.Client{
			Timeout: cmd.Duration(timeoutFlag),
		},
		baseURL:   baseURL,
		token:     token,
		player:    pn,
		out:       out,
		rollDelay: cmd.Duration(rollDelayFlag),
	}
	return c, nil
}

// signToken creates a token for the player with the secret the server uses to verify tokens.
func signToken(secret string, pn player.Name, timeFunc func() int64) (string, error) {
	switch {
	case len(secret) == 0:
		return "", fmt.Errorf("token or secret required")
	case len(pn) == 0:
		return "", fmt.Errorf("player required to sign token")
	}
	cfg := auth.TokenizerConfig{
		Key:      []byte(secret),
		TimeFunc: timeFunc,
		ValidSec: tokenValidSec,
	}
	tokenizer, err := cfg.NewTokenizer()
	if err != nil {
		return "", err
	}
	token, err := tokenizer.Create(pn)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return token, nil
}

// tokenSubject reads the player name from the token without verifying it.  Only the server can verify tokens.
func tokenSubject(token string) (player.Name, error) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return "", fmt.Errorf("reading player from token: %w", err)
	}
	if len(claims.Subject) == 0 {
		return "", fmt.Errorf("reading player from token: no subject")
	}
	return player.Name(claims.Subject), nil
}
