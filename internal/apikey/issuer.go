// Package apikey issues plant-scoped API keys for FloraLink devices.
package apikey

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// ErrNoPlant is returned when no plant is selected. No request is made.
var ErrNoPlant = errors.New("select a plant before generating a key")

// Stage names the issuance step that failed.
type Stage string

const (
	StageToken    Stage = "token"
	StageGenerate Stage = "generate"
	StageActivate Stage = "activate"
	StageRevoke   Stage = "revoke"
)

// KeyIssuanceError reports a failed issuance step.
type KeyIssuanceError struct {
	Stage Stage
	Err   error
}

func (e *KeyIssuanceError) Error() string {
	return fmt.Sprintf("api key %s failed: %v", e.Stage, e.Err)
}

func (e *KeyIssuanceError) Unwrap() error { return e.Err }

// API is the subset of the backend client used for keys.
type API interface {
	GenerateKey(ctx context.Context, csrfToken, plantID string) (string, error)
	ConnectAPI(ctx context.Context, csrfToken, apiKey string) error
	RevokeKey(ctx context.Context, csrfToken, apiKey string) error
}

// TokenSource supplies the anti-forgery token.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Issuer generates, activates and revokes keys.
type Issuer struct {
	api    API
	tokens TokenSource
	log    logrus.FieldLogger
}

// New creates an Issuer.
func New(api API, tokens TokenSource, log logrus.FieldLogger) *Issuer {
	return &Issuer{api: api, tokens: tokens, log: log}
}

// IssueKey generates a key for plantID and activates it. The key is only
// returned once both steps succeed.
func (i *Issuer) IssueKey(ctx context.Context, plantID string) (string, error) {
	key, err := i.GenerateKey(ctx, plantID)
	if err != nil {
		return "", err
	}

	tok, err := i.tokens.Token(ctx)
	if err != nil {
		return "", &KeyIssuanceError{Stage: StageToken, Err: err}
	}
	if err := i.api.ConnectAPI(ctx, tok, key); err != nil {
		i.log.WithError(err).WithField("plant_id", plantID).Warn("api key activation failed")
		return "", &KeyIssuanceError{Stage: StageActivate, Err: err}
	}
	i.log.WithField("plant_id", plantID).Info("api key issued")
	return key, nil
}

// GenerateKey creates a key for plantID without activating it.
func (i *Issuer) GenerateKey(ctx context.Context, plantID string) (string, error) {
	if plantID == "" {
		return "", ErrNoPlant
	}
	tok, err := i.tokens.Token(ctx)
	if err != nil {
		return "", &KeyIssuanceError{Stage: StageToken, Err: err}
	}
	key, err := i.api.GenerateKey(ctx, tok, plantID)
	if err != nil {
		i.log.WithError(err).WithField("plant_id", plantID).Warn("api key generation failed")
		return "", &KeyIssuanceError{Stage: StageGenerate, Err: err}
	}
	return key, nil
}

// Revoke invalidates key on the backend.
func (i *Issuer) Revoke(ctx context.Context, key string) error {
	tok, err := i.tokens.Token(ctx)
	if err != nil {
		return &KeyIssuanceError{Stage: StageToken, Err: err}
	}
	if err := i.api.RevokeKey(ctx, tok, key); err != nil {
		return &KeyIssuanceError{Stage: StageRevoke, Err: err}
	}
	i.log.Info("api key revoked")
	return nil
}
