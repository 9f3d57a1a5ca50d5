// Package provision runs the provisioning handshake: issue a plant-scoped
// key, then hand it to the device together with the WiFi credentials.
package provision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"github.com/dayfit/florae/pkg/domain"
)

const revokeTimeout = 10 * time.Second

// Kind identifies the failed phase of a provisioning attempt.
type Kind int

const (
	KindKeyIssuance Kind = iota + 1
	KindTransmission
)

func (k Kind) String() string {
	switch k {
	case KindKeyIssuance:
		return "key issuance"
	case KindTransmission:
		return "transmission"
	default:
		return "unknown"
	}
}

// Error is returned when a phase after validation fails.
type Error struct {
	Kind      Kind
	AttemptID string
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provisioning failed during %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err is a provisioning Error of kind k.
func IsKind(err error, k Kind) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == k
}

// Request is one provisioning attempt's input.
type Request struct {
	SSID     string
	Password string
	PlantID  string
}

// KeyIssuer issues and revokes plant-scoped keys.
type KeyIssuer interface {
	IssueKey(ctx context.Context, plantID string) (string, error)
	Revoke(ctx context.Context, key string) error
}

// Transmitter delivers credentials to a device.
type Transmitter interface {
	SendCredentials(ctx context.Context, creds domain.Credentials) error
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRevokeOnFailure controls whether a key whose transmission failed is
// revoked. It is on by default.
func WithRevokeOnFailure(on bool) Option {
	return func(o *Orchestrator) { o.revokeOnFailure = on }
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *Orchestrator) { o.log = l }
}

// Orchestrator sequences key issuance and transmission. It never retries;
// every retry is a fresh attempt with a fresh key.
type Orchestrator struct {
	keys            KeyIssuer
	device          Transmitter
	revokeOnFailure bool
	log             logrus.FieldLogger
}

// New creates an Orchestrator.
func New(keys KeyIssuer, device Transmitter, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		keys:            keys,
		device:          device,
		revokeOnFailure: true,
		log:             logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ProvisionDevice validates req, issues a key and transmits it. Validation
// failures come back as domain.FieldErrors with nothing sent.
func (o *Orchestrator) ProvisionDevice(ctx context.Context, req Request) error {
	if errs := Validate(req); errs != nil {
		return errs
	}

	attempt := ulid.Make().String()
	log := o.log.WithFields(logrus.Fields{"attempt": attempt, "plant_id": req.PlantID})
	log.Info("provisioning started")

	key, err := o.keys.IssueKey(ctx, req.PlantID)
	if err != nil {
		log.WithError(err).Warn("key issuance failed")
		return &Error{Kind: KindKeyIssuance, AttemptID: attempt, Err: err}
	}

	rb := newRollback(log)
	if o.revokeOnFailure {
		rb.add("revoke api key", func(ctx context.Context) error {
			return o.keys.Revoke(ctx, key)
		}, false)
	}

	// The serialized payload is cleared by the transmitter after writing.
	creds := domain.Credentials{WiFiSSID: req.SSID, WiFiPassword: req.Password, APIKey: key}

	if err := o.device.SendCredentials(ctx, creds); err != nil {
		log.WithError(err).Warn("credential transmission failed")
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), revokeTimeout)
		defer cancel()
		if rerr := rb.execute(rctx); rerr != nil {
			log.WithError(rerr).Warn("issued key could not be revoked")
		}
		return &Error{Kind: KindTransmission, AttemptID: attempt, Err: err}
	}

	rb.discard()
	log.Info("provisioning complete")
	return nil
}
