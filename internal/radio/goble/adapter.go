// Package goble implements radio.Adapter over the go-ble stack. Every
// outbound call returns once the request is issued; results and notifications
// come back as radio events, so the pipeline never blocks on the BLE stack.
package goble

import (
	"context"
	"fmt"
	"sync"
	"time"

	ble "github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/vitalink/internal/profile"
	"github.com/srg/vitalink/internal/radio"
)

// DefaultConnectTimeout bounds a single dial attempt.
const DefaultConnectTimeout = 30 * time.Second

// eventBuffer sizes the inbound event channel. Bursty notification traffic
// must never block go-ble's callback goroutines, so overflow drops oldest.
const eventBuffer = 256

// DeviceFactory creates ble.Device instances (can be overridden in tests)
var DeviceFactory = newDefaultDevice

// Adapter is the production radio.Adapter.
type Adapter struct {
	logger         *logrus.Logger
	connectTimeout time.Duration
	events         chan radio.Event

	mu         sync.Mutex
	dev        ble.Device
	client     ble.Client
	clientAddr string
	scanCancel context.CancelFunc
	services   map[string]*ble.Service
	chars      map[string]*ble.Characteristic
	closed     bool
}

var _ radio.Adapter = (*Adapter)(nil)

// New initializes the BLE stack and reports the initial power state on the
// event stream. go-ble exposes no power transitions after init, so a
// successful device creation is reported as powered-on.
func New(connectTimeout time.Duration, logger *logrus.Logger) (*Adapter, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}

	dev, err := DeviceFactory()
	if err != nil {
		return nil, fmt.Errorf("failed to create BLE device: %w", err)
	}
	ble.SetDefaultDevice(dev)

	a := &Adapter{
		logger:         logger,
		connectTimeout: connectTimeout,
		events:         make(chan radio.Event, eventBuffer),
		dev:            dev,
		services:       make(map[string]*ble.Service),
		chars:          make(map[string]*ble.Characteristic),
	}
	a.emit(radio.PowerStateChanged{State: radio.PowerOn})
	return a, nil
}

// Events returns the inbound event stream.
func (a *Adapter) Events() <-chan radio.Event {
	return a.events
}

// Close stops scanning, drops any live connection and closes the event
// stream.
func (a *Adapter) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	if a.scanCancel != nil {
		a.scanCancel()
		a.scanCancel = nil
	}
	client := a.client
	a.client = nil
	a.mu.Unlock()

	if client != nil {
		if err := client.CancelConnection(); err != nil {
			a.logger.WithError(err).Debug("Cancel connection on close failed")
		}
	}

	a.mu.Lock()
	close(a.events)
	a.mu.Unlock()
}

// emit delivers an event without ever blocking a go-ble callback. When the
// consumer lags, the oldest buffered event is dropped. The mutex serializes
// emission against Close, so no send can hit a closed channel.
func (a *Adapter) emit(ev radio.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	select {
	case a.events <- ev:
		return
	default:
	}
	select {
	case <-a.events:
		a.logger.Warn("Event consumer lagging, dropped oldest radio event")
	default:
	}
	a.events <- ev
}

// StartScan begins advertising discovery. Advertisements are pre-filtered to
// the given service set when one is provided.
func (a *Adapter) StartScan(services []string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.dev == nil {
		return radio.ErrRadioUnavailable
	}
	if a.scanCancel != nil {
		return nil // already scanning
	}

	filter := make(map[string]struct{}, len(services))
	for _, svc := range services {
		filter[profile.NormalizeUUID(svc)] = struct{}{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.scanCancel = cancel

	go func() {
		err := a.dev.Scan(ctx, false, func(adv ble.Advertisement) {
			a.handleAdvertisement(adv, filter)
		})
		if err != nil && ctx.Err() == nil {
			a.logger.WithError(err).Warn("Scan terminated unexpectedly")
		}
	}()

	a.logger.WithField("services", services).Debug("Scan started")
	return nil
}

// StopScan cancels an active scan. Calling it while not scanning is a no-op.
func (a *Adapter) StopScan() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.scanCancel != nil {
		a.scanCancel()
		a.scanCancel = nil
	}
	return nil
}

func (a *Adapter) handleAdvertisement(adv ble.Advertisement, filter map[string]struct{}) {
	services := make([]string, 0, len(adv.Services()))
	matched := len(filter) == 0
	for _, u := range adv.Services() {
		n := profile.NormalizeUUID(u.String())
		services = append(services, n)
		if _, ok := filter[n]; ok {
			matched = true
		}
	}
	if !matched {
		return
	}
	a.emit(radio.Advertisement{
		DeviceID:  adv.Addr().String(),
		LocalName: adv.LocalName(),
		Services:  services,
		RSSI:      adv.RSSI(),
	})
}

// Connect dials the peripheral asynchronously. The outcome arrives as a
// Connected or ConnectFailed event; an established link is watched for
// unsolicited disconnects.
func (a *Adapter) Connect(deviceID string) error {
	a.mu.Lock()
	if a.dev == nil {
		a.mu.Unlock()
		return radio.ErrRadioUnavailable
	}
	if a.client != nil {
		a.mu.Unlock()
		return fmt.Errorf("already connected to %s", a.clientAddr)
	}
	a.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.connectTimeout)
		defer cancel()

		client, err := ble.Dial(ctx, ble.NewAddr(deviceID))
		if err != nil {
			a.emit(radio.ConnectFailed{DeviceID: deviceID, Err: err})
			return
		}

		a.mu.Lock()
		a.client = client
		a.clientAddr = deviceID
		a.services = make(map[string]*ble.Service)
		a.chars = make(map[string]*ble.Characteristic)
		a.mu.Unlock()

		a.emit(radio.Connected{DeviceID: deviceID})

		// Not every go-ble platform client exposes the disconnect channel.
		dc, ok := client.(interface{ Disconnected() <-chan struct{} })
		if !ok {
			a.logger.Debug("Client does not report disconnects, link monitoring disabled")
			return
		}
		<-dc.Disconnected()
		a.mu.Lock()
		if a.client == client {
			a.client = nil
			a.clientAddr = ""
		}
		a.mu.Unlock()
		a.emit(radio.Disconnected{DeviceID: deviceID})
	}()
	return nil
}

// Disconnect drops the link to the given peripheral. The Disconnected event
// is delivered by the link monitor started in Connect.
func (a *Adapter) Disconnect(deviceID string) error {
	a.mu.Lock()
	client := a.client
	addr := a.clientAddr
	a.mu.Unlock()

	if client == nil || addr != deviceID {
		return nil
	}
	err := client.CancelConnection()

	// Without a disconnect channel there is no monitor to observe the drop,
	// so report it here.
	if _, ok := client.(interface{ Disconnected() <-chan struct{} }); !ok {
		a.mu.Lock()
		if a.client == client {
			a.client = nil
			a.clientAddr = ""
		}
		a.mu.Unlock()
		a.emit(radio.Disconnected{DeviceID: deviceID})
	}
	return err
}

// DiscoverServices requests discovery of the filtered service set.
func (a *Adapter) DiscoverServices(deviceID string, services []string) error {
	client, err := a.clientFor(deviceID)
	if err != nil {
		return err
	}

	filter, err := parseUUIDs(services)
	if err != nil {
		return err
	}

	go func() {
		svcs, err := client.DiscoverServices(filter)
		if err != nil {
			a.emit(radio.ServicesDiscovered{DeviceID: deviceID, Err: err})
			return
		}
		found := make([]string, 0, len(svcs))
		a.mu.Lock()
		for _, svc := range svcs {
			n := profile.NormalizeUUID(svc.UUID.String())
			a.services[n] = svc
			found = append(found, n)
		}
		a.mu.Unlock()
		a.emit(radio.ServicesDiscovered{DeviceID: deviceID, Services: found})
	}()
	return nil
}

// DiscoverCharacteristics requests discovery of the filtered characteristics
// within one previously discovered service.
func (a *Adapter) DiscoverCharacteristics(deviceID, service string, characteristics []string) error {
	client, err := a.clientFor(deviceID)
	if err != nil {
		return err
	}

	svcUUID := profile.NormalizeUUID(service)
	a.mu.Lock()
	svc, ok := a.services[svcUUID]
	a.mu.Unlock()
	if !ok {
		return fmt.Errorf("service %q not discovered", service)
	}

	filter, err := parseUUIDs(characteristics)
	if err != nil {
		return err
	}

	go func() {
		chars, err := client.DiscoverCharacteristics(filter, svc)
		if err != nil {
			a.emit(radio.CharacteristicsDiscovered{DeviceID: deviceID, Service: svcUUID, Err: err})
			return
		}
		found := make([]string, 0, len(chars))
		a.mu.Lock()
		for _, char := range chars {
			n := profile.NormalizeUUID(char.UUID.String())
			a.chars[n] = char
			found = append(found, n)
		}
		a.mu.Unlock()
		a.emit(radio.CharacteristicsDiscovered{
			DeviceID:        deviceID,
			Service:         svcUUID,
			Characteristics: found,
		})
	}()
	return nil
}

// SetNotify enables or disables notifications for a discovered
// characteristic. Payloads are copied before emission: go-ble may reuse the
// notification buffer.
func (a *Adapter) SetNotify(deviceID, characteristic string, enabled bool) error {
	client, err := a.clientFor(deviceID)
	if err != nil {
		return err
	}

	charUUID := profile.NormalizeUUID(characteristic)
	a.mu.Lock()
	char, ok := a.chars[charUUID]
	a.mu.Unlock()
	if !ok {
		return fmt.Errorf("characteristic %q not discovered", characteristic)
	}

	if !enabled {
		return client.Unsubscribe(char, false)
	}
	return client.Subscribe(char, false, func(data []byte) {
		buf := make([]byte, len(data))
		copy(buf, data)
		a.emit(radio.CharacteristicValue{
			DeviceID:       deviceID,
			Characteristic: charUUID,
			Data:           buf,
			ReceivedAt:     time.Now(),
		})
	})
}

func (a *Adapter) clientFor(deviceID string) (ble.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.client == nil || a.clientAddr != deviceID {
		return nil, fmt.Errorf("not connected to %q", deviceID)
	}
	return a.client, nil
}

func parseUUIDs(uuids []string) ([]ble.UUID, error) {
	out := make([]ble.UUID, 0, len(uuids))
	for _, u := range uuids {
		parsed, err := ble.Parse(u)
		if err != nil {
			return nil, fmt.Errorf("invalid UUID %q: %w", u, err)
		}
		out = append(out, parsed)
	}
	return out, nil
}
