package ble

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"tinygo.org/x/bluetooth"
)

const (
	stopScanAttempts = 3
	stopScanWait     = 500 * time.Millisecond
)

// scanner is the scanning half of *bluetooth.Adapter.
type scanner interface {
	Enable() error
	Scan(callback func(*bluetooth.Adapter, bluetooth.ScanResult)) error
	StopScan() error
}

// HostRadio drives the host's Bluetooth adapter.
type HostRadio struct {
	adapter *bluetooth.Adapter
	scanner scanner
	log     logrus.FieldLogger

	enableOnce sync.Once
	enableErr  error
}

// NewHostRadio wraps the default adapter. The adapter is enabled on first use.
func NewHostRadio(log logrus.FieldLogger) *HostRadio {
	return &HostRadio{
		adapter: bluetooth.DefaultAdapter,
		scanner: bluetooth.DefaultAdapter,
		log:     log,
	}
}

func (r *HostRadio) enable() error {
	r.enableOnce.Do(func() {
		r.enableErr = r.scanner.Enable()
	})
	return r.enableErr
}

// Scan reports the first advertisement whose local name has f.NamePrefix.
func (r *HostRadio) Scan(ctx context.Context, f Filter) (Peripheral, error) {
	if err := r.enable(); err != nil {
		return Peripheral{}, fmt.Errorf("enable adapter: %w", err)
	}

	found := make(chan bluetooth.ScanResult, 1)
	done := make(chan error, 1)
	go func() {
		done <- r.scanner.Scan(func(_ *bluetooth.Adapter, res bluetooth.ScanResult) {
			if !strings.HasPrefix(res.LocalName(), f.NamePrefix) {
				return
			}
			select {
			case found <- res:
			default:
			}
		})
	}()

	select {
	case res := <-found:
		r.stopScan(done)
		return Peripheral{
			Name:    res.LocalName(),
			Address: res.Address.String(),
			handle:  res.Address,
		}, nil
	case err := <-done:
		if err == nil {
			err = errors.New("scan stopped")
		}
		return Peripheral{}, err
	case <-ctx.Done():
		r.stopScan(done)
		return Peripheral{}, ctx.Err()
	}
}

// stopScan asks the adapter to stop and waits a bounded time for the scan
// to return. StopScan fails when the scan has not started yet, so it is
// retried before the scan is abandoned.
func (r *HostRadio) stopScan(done <-chan error) {
	for i := 0; i < stopScanAttempts; i++ {
		if err := r.scanner.StopScan(); err != nil {
			r.log.WithError(err).Debug("stop scan")
		}
		select {
		case <-done:
			return
		case <-time.After(stopScanWait):
		}
	}
	r.log.Warn("bluetooth scan did not stop, abandoning it")
}

// Connect opens a GATT connection to p.
func (r *HostRadio) Connect(ctx context.Context, p Peripheral) (Link, error) {
	addr, ok := p.handle.(bluetooth.Address)
	if !ok {
		return nil, fmt.Errorf("peripheral %q was not discovered by this radio", p.Name)
	}

	type result struct {
		dev bluetooth.Device
		err error
	}
	ch := make(chan result, 1)
	go func() {
		dev, err := r.adapter.Connect(addr, bluetooth.ConnectionParams{})
		ch <- result{dev: dev, err: err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, res.err
		}
		return &hostLink{dev: res.dev}, nil
	case <-ctx.Done():
		// The adapter call cannot be cancelled; drop the link if it lands late.
		go func() {
			if res := <-ch; res.err == nil {
				res.dev.Disconnect() //nolint:errcheck
			}
		}()
		return nil, ctx.Err()
	}
}

type hostLink struct {
	dev bluetooth.Device
}

func (l *hostLink) Characteristic(serviceUUID, characteristicUUID string) (Characteristic, error) {
	svcID, err := bluetooth.ParseUUID(serviceUUID)
	if err != nil {
		return nil, fmt.Errorf("parse service uuid: %w", err)
	}
	charID, err := bluetooth.ParseUUID(characteristicUUID)
	if err != nil {
		return nil, fmt.Errorf("parse characteristic uuid: %w", err)
	}

	services, err := l.dev.DiscoverServices([]bluetooth.UUID{svcID})
	if err != nil {
		return nil, fmt.Errorf("discover services: %w", err)
	}
	if len(services) == 0 {
		return nil, fmt.Errorf("service %s not found", serviceUUID)
	}
	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{charID})
	if err != nil {
		return nil, fmt.Errorf("discover characteristics: %w", err)
	}
	if len(chars) == 0 {
		return nil, fmt.Errorf("characteristic %s not found", characteristicUUID)
	}
	return &hostCharacteristic{char: chars[0]}, nil
}

func (l *hostLink) Disconnect() error {
	return l.dev.Disconnect()
}

type hostCharacteristic struct {
	char bluetooth.DeviceCharacteristic
}

func (c *hostCharacteristic) Write(p []byte) (int, error) {
	return c.char.Write(p)
}
