// Package ble pushes provisioning credentials to a FloraLink over Bluetooth
// Low Energy.
package ble

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dayfit/florae/pkg/domain"
)

// FloraLink GATT identifiers.
const (
	NamePrefix         = "FloraLink"
	ServiceUUID        = "53020f00-319c-4d97-a2b1-9e706baba77a"
	CharacteristicUUID = "f87709b3-63a7-4605-9bb5-73c383462296"
)

const (
	DefaultScanTimeout    = 30 * time.Second
	DefaultConnectTimeout = 20 * time.Second
)

// Errors, in the order the provisioning steps can produce them.
var (
	ErrDeviceNotFound     = errors.New("no FloraLink device found")
	ErrConnection         = errors.New("could not connect to the FloraLink")
	ErrServiceUnavailable = errors.New("FloraLink provisioning service unavailable")
	ErrWrite              = errors.New("writing credentials to the FloraLink failed")
)

// Filter selects which advertisements Scan accepts.
type Filter struct {
	NamePrefix string
}

// Peripheral is a discovered device.
type Peripheral struct {
	Name    string
	Address string

	// handle is the radio's own device reference.
	handle any
}

// Radio is the BLE central role. Scan blocks until a matching device is
// seen or ctx ends.
type Radio interface {
	Scan(ctx context.Context, f Filter) (Peripheral, error)
	Connect(ctx context.Context, p Peripheral) (Link, error)
}

// Link is an open connection to a peripheral.
type Link interface {
	Characteristic(serviceUUID, characteristicUUID string) (Characteristic, error)
	Disconnect() error
}

// Characteristic is a writable GATT characteristic.
type Characteristic interface {
	Write(p []byte) (int, error)
}

// Option configures a Provisioner.
type Option func(*Provisioner)

// WithScanTimeout bounds device discovery.
func WithScanTimeout(d time.Duration) Option {
	return func(p *Provisioner) { p.scanTimeout = d }
}

// WithConnectTimeout bounds connection setup.
func WithConnectTimeout(d time.Duration) Option {
	return func(p *Provisioner) { p.connectTimeout = d }
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(p *Provisioner) { p.log = l }
}

// Provisioner sends credentials to the first FloraLink it finds.
type Provisioner struct {
	radio          Radio
	scanTimeout    time.Duration
	connectTimeout time.Duration
	log            logrus.FieldLogger
}

// NewProvisioner creates a Provisioner on radio.
func NewProvisioner(radio Radio, opts ...Option) *Provisioner {
	p := &Provisioner{
		radio:          radio,
		scanTimeout:    DefaultScanTimeout,
		connectTimeout: DefaultConnectTimeout,
		log:            logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SendCredentials discovers a device, connects, and writes creds in one
// write. Success means the write was accepted by the transport; the device
// sends no acknowledgement.
func (p *Provisioner) SendCredentials(ctx context.Context, creds domain.Credentials) error {
	scanCtx, cancel := context.WithTimeout(ctx, p.scanTimeout)
	dev, err := p.radio.Scan(scanCtx, Filter{NamePrefix: NamePrefix})
	cancel()
	if err != nil {
		return fmt.Errorf("ble.SendCredentials: %w: %w", ErrDeviceNotFound, err)
	}
	log := p.log.WithFields(logrus.Fields{"device": dev.Name, "address": dev.Address})
	log.Info("floralink found")

	connCtx, cancel := context.WithTimeout(ctx, p.connectTimeout)
	link, err := p.radio.Connect(connCtx, dev)
	cancel()
	if err != nil {
		return fmt.Errorf("ble.SendCredentials: %w: %w", ErrConnection, err)
	}
	defer func() {
		if err := link.Disconnect(); err != nil {
			log.WithError(err).Debug("disconnect failed")
		}
	}()

	char, err := link.Characteristic(ServiceUUID, CharacteristicUUID)
	if err != nil {
		return fmt.Errorf("ble.SendCredentials: %w: %w", ErrServiceUnavailable, err)
	}

	payload, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("ble.SendCredentials: %w: %w", ErrWrite, err)
	}
	defer clear(payload)

	n, err := char.Write(payload)
	if err != nil {
		return fmt.Errorf("ble.SendCredentials: %w: %w", ErrWrite, err)
	}
	if n != len(payload) {
		return fmt.Errorf("ble.SendCredentials: %w: short write %d of %d bytes", ErrWrite, n, len(payload))
	}
	log.Info("credentials written")
	return nil
}
