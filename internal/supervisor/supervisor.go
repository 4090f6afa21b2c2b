// Package supervisor owns the lifecycle of the single active peripheral
// connection: connect, service and characteristic discovery, subscription,
// and the backoff-and-rescan recovery path. All radio events funnel through
// one run-loop goroutine, so state transitions never race.
package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/srg/vitalink/internal/decode"
	"github.com/srg/vitalink/internal/profile"
	"github.com/srg/vitalink/internal/radio"
	"github.com/srg/vitalink/internal/scan"
	"github.com/srg/vitalink/internal/vitals"
)

// State is the single source of truth for what the supervisor is doing.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateDiscoveringServices
	StateDiscoveringCharacteristics
	StateSubscribed
	// StateDisconnected is the backoff wait between a failure and the
	// return to StateIdle with scanning re-armed.
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateDiscoveringServices:
		return "discovering_services"
	case StateDiscoveringCharacteristics:
		return "discovering_characteristics"
	case StateSubscribed:
		return "subscribed"
	case StateDisconnected:
		return "disconnected"
	default:
		return "invalid"
	}
}

// DefaultRetryBackoff is the fixed wait before re-arming the scan after a
// connect failure or disconnect. Short and constant: the peripheral is
// assumed nearby and retries continue indefinitely.
const DefaultRetryBackoff = 500 * time.Millisecond

// Supervisor reacts to radio events and drives the connection state machine.
type Supervisor struct {
	adapter   radio.Adapter
	scanner   *scan.Scanner
	publisher *vitals.Publisher
	desc      profile.Descriptor
	logger    *logrus.Logger
	backoff   time.Duration

	mu         sync.Mutex
	state      State
	active     string
	activeName string
	activeRSSI int
	attempt    string
	pending    map[string]struct{}
	subscribed int

	retryC <-chan time.Time
}

// New creates a supervisor. A zero backoff falls back to DefaultRetryBackoff.
func New(adapter radio.Adapter, scanner *scan.Scanner, publisher *vitals.Publisher,
	desc profile.Descriptor, backoff time.Duration, logger *logrus.Logger) *Supervisor {
	if logger == nil {
		logger = logrus.New()
	}
	if backoff <= 0 {
		backoff = DefaultRetryBackoff
	}
	return &Supervisor{
		adapter:   adapter,
		scanner:   scanner,
		publisher: publisher,
		desc:      desc,
		logger:    logger,
		backoff:   backoff,
		state:     StateIdle,
	}
}

// State returns the current connection state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ActiveDevice returns the device currently pursued or held, or "".
func (s *Supervisor) ActiveDevice() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Run latches the scan request and processes radio events until the context
// is cancelled or the adapter's event stream closes. It is the only
// goroutine that mutates supervisor state.
func (s *Supervisor) Run(ctx context.Context) error {
	s.scanner.RequestScan()

	for {
		s.mu.Lock()
		retryC := s.retryC
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			s.teardown()
			return ctx.Err()
		case ev, ok := <-s.adapter.Events():
			if !ok {
				s.teardown()
				return nil
			}
			s.handleEvent(ev)
		case <-retryC:
			s.rearm()
		}
	}
}

func (s *Supervisor) handleEvent(ev radio.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch e := ev.(type) {
	case radio.PowerStateChanged:
		s.scanner.HandleRadioState(e.State)
	case radio.Advertisement:
		s.onAdvertisement(e)
	case radio.Connected:
		s.onConnected(e)
	case radio.ConnectFailed:
		s.onConnectFailed(e)
	case radio.Disconnected:
		s.onDisconnected(e)
	case radio.ServicesDiscovered:
		s.onServicesDiscovered(e)
	case radio.CharacteristicsDiscovered:
		s.onCharacteristicsDiscovered(e)
	case radio.CharacteristicValue:
		s.onCharacteristicValue(e)
	}
}

func (s *Supervisor) onAdvertisement(e radio.Advertisement) {
	// Defensive: the scanner stops scanning before the hand-off, but a
	// stray advertisement while any handle is pursued must be ignored.
	if s.state != StateIdle {
		return
	}

	matched, accepted := s.scanner.HandleAdvertisement(e)
	if !accepted {
		return
	}

	s.state = StateConnecting
	s.active = e.DeviceID
	s.activeName = e.LocalName
	s.activeRSSI = e.RSSI
	s.attempt = uuid.NewString()
	s.pending = nil
	s.subscribed = 0

	s.log().WithField("services", matched).Info("Connecting to peripheral")

	if err := s.adapter.Connect(e.DeviceID); err != nil {
		s.log().WithError(err).Warn("Connect request could not be issued")
		s.enterDisconnectedLocked()
	}
}

func (s *Supervisor) onConnected(e radio.Connected) {
	if s.state != StateConnecting || e.DeviceID != s.active {
		return
	}

	s.publisher.SetActiveDevice(vitals.Device{
		ID:   s.active,
		Name: s.activeName,
		RSSI: s.activeRSSI,
	})

	s.state = StateDiscoveringServices
	s.log().Info("Connected, discovering services")

	if err := s.adapter.DiscoverServices(s.active, s.desc.Services()); err != nil {
		s.log().WithError(err).Warn("Service discovery could not be issued")
		s.disconnectAndRetryLocked()
	}
}

func (s *Supervisor) onConnectFailed(e radio.ConnectFailed) {
	if s.state != StateConnecting || e.DeviceID != s.active {
		return
	}
	s.log().WithError(e.Err).Warn("Connect failed, backing off")
	s.enterDisconnectedLocked()
}

func (s *Supervisor) onServicesDiscovered(e radio.ServicesDiscovered) {
	// Stale results for a handle we no longer hold are dropped.
	if s.state != StateDiscoveringServices || e.DeviceID != s.active {
		return
	}

	matched := s.desc.Match(e.Services)
	if e.Err != nil || len(matched) == 0 {
		s.log().WithError(e.Err).Warn("Service discovery failed or empty")
		s.disconnectAndRetryLocked()
		return
	}

	s.state = StateDiscoveringCharacteristics
	s.pending = make(map[string]struct{}, len(matched))
	s.log().WithField("services", matched).Info("Services matched, discovering characteristics")

	for _, svc := range matched {
		char, ok := s.desc.Characteristic(svc)
		if !ok {
			continue
		}
		s.pending[svc] = struct{}{}
		if err := s.adapter.DiscoverCharacteristics(s.active, svc, []string{char}); err != nil {
			// Not fatal for the whole connection; this service is skipped.
			s.log().WithError(err).WithField("service", svc).
				Warn("Characteristic discovery could not be issued")
			delete(s.pending, svc)
		}
	}

	if len(s.pending) == 0 {
		s.disconnectAndRetryLocked()
	}
}

func (s *Supervisor) onCharacteristicsDiscovered(e radio.CharacteristicsDiscovered) {
	if s.state != StateDiscoveringCharacteristics || e.DeviceID != s.active {
		return
	}
	svc := profile.NormalizeUUID(e.Service)
	if _, waiting := s.pending[svc]; !waiting {
		return
	}
	delete(s.pending, svc)

	// A characteristic that fails to resolve is skipped, not fatal: a
	// device exposing only heart rate is still usable.
	if e.Err != nil || len(e.Characteristics) == 0 {
		s.log().WithError(e.Err).WithField("service", svc).
			Debug("No measurement characteristic resolved, skipping service")
	} else {
		for _, char := range e.Characteristics {
			if err := s.adapter.SetNotify(s.active, char, true); err != nil {
				s.log().WithError(err).WithField("characteristic", char).
					Warn("Subscribe failed, skipping characteristic")
				continue
			}
			s.subscribed++
			s.log().WithField("characteristic", char).Info("Subscribed to measurements")
		}
	}

	if len(s.pending) > 0 {
		return
	}
	if s.subscribed == 0 {
		s.log().Warn("No characteristic subscribed, treating as discovery failure")
		s.disconnectAndRetryLocked()
		return
	}
	s.state = StateSubscribed
	s.log().WithField("subscriptions", s.subscribed).Info("Receiving vitals")
}

func (s *Supervisor) onCharacteristicValue(e radio.CharacteristicValue) {
	// Values are only consumed while subscribed; anything else is stale.
	if s.state != StateSubscribed || e.DeviceID != s.active {
		return
	}
	if e.Err != nil {
		s.log().WithError(e.Err).Debug("Dropping errored characteristic value")
		return
	}

	update, ok := decode.Decode(e.Characteristic, e.Data)
	if !ok {
		// Malformed frames are expected on real radio links.
		s.log().WithFields(logrus.Fields{
			"characteristic": e.Characteristic,
			"len":            len(e.Data),
		}).Debug("Dropping undecodable payload")
		return
	}
	s.publisher.Apply(update)
}

func (s *Supervisor) onDisconnected(e radio.Disconnected) {
	if s.active == "" || e.DeviceID != s.active {
		return
	}
	s.log().WithError(e.Err).Info("Peripheral disconnected")
	s.enterDisconnectedLocked()
}

// disconnectAndRetryLocked tears the link down and enters the backoff path.
func (s *Supervisor) disconnectAndRetryLocked() {
	if err := s.adapter.Disconnect(s.active); err != nil {
		s.log().WithError(err).Debug("Disconnect request failed")
	}
	s.enterDisconnectedLocked()
}

// enterDisconnectedLocked publishes "no active device", releases the handle
// and schedules the return to idle. Readings are deliberately left in place:
// only an explicit publisher reset clears them.
func (s *Supervisor) enterDisconnectedLocked() {
	s.publisher.ClearActiveDevice()
	s.active = ""
	s.activeName = ""
	s.activeRSSI = 0
	s.pending = nil
	s.subscribed = 0
	s.state = StateDisconnected
	s.retryC = time.After(s.backoff)
}

// rearm completes the backoff: back to idle, scanning again.
func (s *Supervisor) rearm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retryC = nil
	if s.state != StateDisconnected {
		return
	}
	s.state = StateIdle
	s.logger.Debug("Backoff expired, re-arming scan")
	s.scanner.Rearm()
}

// teardown honors cancellation from any state.
func (s *Supervisor) teardown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != "" {
		if err := s.adapter.Disconnect(s.active); err != nil {
			s.log().WithError(err).Debug("Disconnect on teardown failed")
		}
	}
	s.publisher.ClearActiveDevice()
	s.active = ""
	s.pending = nil
	s.subscribed = 0
	s.retryC = nil
	s.state = StateIdle
	s.logger.Info("Supervisor stopped")
}

func (s *Supervisor) log() *logrus.Entry {
	return s.logger.WithFields(logrus.Fields{
		"device":  s.active,
		"attempt": s.attempt,
		"state":   s.state.String(),
	})
}
