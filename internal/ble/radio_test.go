package ble

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"tinygo.org/x/bluetooth"

	"github.com/dayfit/florae/internal/logger"
)

// stuckScanner never delivers a result. Its Scan returns only once StopScan
// has been called stopAfter times; stopAfter < 0 means never.
type stuckScanner struct {
	stopAfter int32
	stops     atomic.Int32
	stopped   chan struct{}
}

func newStuckScanner(stopAfter int32) *stuckScanner {
	return &stuckScanner{stopAfter: stopAfter, stopped: make(chan struct{})}
}

func (s *stuckScanner) Enable() error { return nil }

func (s *stuckScanner) Scan(func(*bluetooth.Adapter, bluetooth.ScanResult)) error {
	<-s.stopped
	return nil
}

func (s *stuckScanner) StopScan() error {
	n := s.stops.Add(1)
	if s.stopAfter >= 0 && n == s.stopAfter {
		close(s.stopped)
		return nil
	}
	return errors.New("not scanning")
}

func scanWithTimeout(t *testing.T, r *HostRadio) (time.Duration, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := r.Scan(ctx, Filter{NamePrefix: NamePrefix})
	return time.Since(start), err
}

func TestHostRadioScanTimeoutRetriesStop(t *testing.T) {
	s := newStuckScanner(2)
	r := &HostRadio{scanner: s, log: logger.Discard()}

	_, err := scanWithTimeout(t, r)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Scan() error = %v, want deadline exceeded", err)
	}
	if got := s.stops.Load(); got != 2 {
		t.Errorf("StopScan calls = %d, want 2", got)
	}
}

func TestHostRadioScanTimeoutNeverHangs(t *testing.T) {
	s := newStuckScanner(-1)
	t.Cleanup(func() { close(s.stopped) })
	r := &HostRadio{scanner: s, log: logger.Discard()}

	took, err := scanWithTimeout(t, r)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Scan() error = %v, want deadline exceeded", err)
	}
	if limit := stopScanAttempts*stopScanWait + time.Second; took > limit {
		t.Errorf("Scan() took %v, want under %v", took, limit)
	}
	if got := s.stops.Load(); got != stopScanAttempts {
		t.Errorf("StopScan calls = %d, want %d", got, stopScanAttempts)
	}
}
