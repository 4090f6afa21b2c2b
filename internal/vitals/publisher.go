// Package vitals is the externally observable surface of the pipeline: the
// last decoded readings plus the currently connected device identity.
package vitals

import (
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/vitalink/internal/decode"
)

// Device identifies the connected peripheral as published to observers.
type Device struct {
	ID   string
	Name string
	RSSI int
}

// Snapshot is the published state. A nil field means "no value decoded since
// the last reset", never zero. Snapshots are delivered to observers by
// value, so a read is never torn.
type Snapshot struct {
	ActiveDevice *Device
	Systolic     *uint16
	Diastolic    *uint16
	HeartRate    *uint8
}

// clone deep-copies the snapshot so observers never share pointers with the
// publisher's owned state.
func (s Snapshot) clone() Snapshot {
	out := Snapshot{}
	if s.ActiveDevice != nil {
		d := *s.ActiveDevice
		out.ActiveDevice = &d
	}
	if s.Systolic != nil {
		v := *s.Systolic
		out.Systolic = &v
	}
	if s.Diastolic != nil {
		v := *s.Diastolic
		out.Diastolic = &v
	}
	if s.HeartRate != nil {
		v := *s.HeartRate
		out.HeartRate = &v
	}
	return out
}

// Publisher owns the snapshot. Only the supervisor pipeline writes to it;
// observers read copies via Snapshot() or the Observe() stream. Readings
// survive disconnects and are cleared only by an explicit Reset.
type Publisher struct {
	mu      sync.RWMutex
	snap    Snapshot
	updates *ringChannel[Snapshot]
	logger  *logrus.Logger
	closed  bool
}

// NewPublisher creates a publisher with an observer buffer of the given
// capacity (stale snapshots are dropped when observers lag).
func NewPublisher(capacity int, logger *logrus.Logger) *Publisher {
	if logger == nil {
		logger = logrus.New()
	}
	return &Publisher{
		updates: newRingChannel[Snapshot](capacity),
		logger:  logger,
	}
}

// SetActiveDevice publishes the connected peripheral identity.
func (p *Publisher) SetActiveDevice(d Device) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snap.ActiveDevice = &d
	p.publishLocked()
}

// ClearActiveDevice publishes "no active device". Readings are left intact:
// a disconnect must not erase values an observer has already seen.
func (p *Publisher) ClearActiveDevice() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.snap.ActiveDevice == nil {
		return
	}
	p.snap.ActiveDevice = nil
	p.publishLocked()
}

// Apply merges one decoded update into the snapshot.
func (p *Publisher) Apply(u decode.Update) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch u.Kind {
	case decode.KindBloodPressure:
		sys, dia := u.Systolic, u.Diastolic
		p.snap.Systolic = &sys
		p.snap.Diastolic = &dia
	case decode.KindHeartRate:
		hr := u.HeartRate
		p.snap.HeartRate = &hr
	default:
		return
	}
	p.logger.WithFields(logrus.Fields{
		"kind": u.Kind.String(),
	}).Debug("Published vitals update")
	p.publishLocked()
}

// Reset clears all readings. This is the only path that erases values; it is
// driven by the host application, never by connection state.
func (p *Publisher) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snap.Systolic = nil
	p.snap.Diastolic = nil
	p.snap.HeartRate = nil
	p.publishLocked()
}

// Snapshot returns a copy of the current published state.
func (p *Publisher) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snap.clone()
}

// Observe returns the snapshot stream. Each mutation delivers a complete
// copy; observers that fall behind lose intermediate snapshots, never parts
// of one.
func (p *Publisher) Observe() <-chan Snapshot {
	return p.updates.C()
}

// Close ends the observer stream. Further mutations are dropped.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.updates.close()
}

func (p *Publisher) publishLocked() {
	if p.closed {
		return
	}
	if p.updates.send(p.snap.clone()) {
		p.logger.Debug("Observer lagging, dropped oldest snapshot")
	}
}
