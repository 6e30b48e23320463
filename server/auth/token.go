// Package auth verifies that players are who they claim to be.
package auth

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/jacobpatterson1549/deathroll/game/player"
)

// ErrUnauthorized is wrapped by errors for tokens that do not identify a player.
var ErrUnauthorized = errors.New("unauthorized")

type (
	// Tokenizer creates and verifies signed tokens that identify players.
	Tokenizer struct {
		method   jwt.SigningMethod
		key      []byte
		timeFunc func() int64
		validSec int64
	}

	// TokenizerConfig contains fields which describe a Tokenizer.
	TokenizerConfig struct {
		// Key is the secret used to sign tokens.  Servers that share a key accept each other's tokens.
		// If empty, a random key is read from the KeyReader.
		Key []byte
		// KeyReader is used to generate a key when none is configured.
		KeyReader io.Reader
		// TimeFunc is a function which should supply the current time since the unix epoch.
		// Used to set the the length of time the token is valid.
		TimeFunc func() int64
		// ValidSec is the length of time the token is valid from the issuing time, in seconds.
		ValidSec int64
	}
)

// keyLength is the number of random bytes generated for a key.
const keyLength = 64

// NewTokenizer creates a Tokenizer that signs tokens with HMAC-SHA256.
func (cfg TokenizerConfig) NewTokenizer() (*Tokenizer, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("creating tokenizer: validation: %w", err)
	}
	key := cfg.Key
	if len(key) == 0 {
		key = make([]byte, keyLength)
		if _, err := io.ReadFull(cfg.KeyReader, key); err != nil {
			return nil, fmt.Errorf("generating tokenizer key: %w", err)
		}
	}
	t := Tokenizer{
		method:   jwt.SigningMethodHS256,
		key:      key,
		timeFunc: cfg.TimeFunc,
		validSec: cfg.ValidSec,
	}
	return &t, nil
}

// validate ensures the configuration has no errors.
func (cfg TokenizerConfig) validate() error {
	switch {
	case len(cfg.Key) == 0 && cfg.KeyReader == nil:
		return fmt.Errorf("key or key reader required")
	case cfg.TimeFunc == nil:
		return fmt.Errorf("time func required")
	case cfg.ValidSec <= 0:
		return fmt.Errorf("positive valid seconds required")
	}
	return nil
}

// Create signs a token for the player.
func (t Tokenizer) Create(pn player.Name) (string, error) {
	if err := pn.Validate(); err != nil {
		return "", err
	}
	now := t.timeFunc()
	claims := jwt.RegisteredClaims{
		Subject:   string(pn),
		NotBefore: jwt.NewNumericDate(time.Unix(now, 0)),
		ExpiresAt: jwt.NewNumericDate(time.Unix(now+t.validSec, 0)),
	}
	token := jwt.NewWithClaims(t.method, claims)
	return token.SignedString(t.key)
}

// Verify extracts the player from a signed token.  The token must be valid at the time of the time func.
func (t Tokenizer) Verify(tokenString string) (player.Name, error) {
	var claims jwt.RegisteredClaims
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	if _, err := parser.ParseWithClaims(tokenString, &claims, t.keyFunc); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	now := time.Unix(t.timeFunc(), 0)
	switch {
	case !claims.VerifyExpiresAt(now, true):
		return "", fmt.Errorf("%w: token is expired", ErrUnauthorized)
	case !claims.VerifyNotBefore(now, false):
		return "", fmt.Errorf("%w: token is not valid yet", ErrUnauthorized)
	}
	pn := player.Name(claims.Subject)
	if err := pn.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	return pn, nil
}

// keyFunc ensures the key type (method) of the token is correct before returning the key.
func (t Tokenizer) keyFunc(token *jwt.Token) (interface{}, error) {
	if token.Method != t.method {
		return nil, fmt.Errorf("incorrect authorization signing method")
	}
	return t.key, nil
}
