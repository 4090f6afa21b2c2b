// Package radio defines the capability the vitals pipeline consumes to talk
// to the platform BLE stack. The production implementation lives in
// internal/radio/goble; tests inject a fake that synthesizes events.
package radio

import (
	"errors"
	"time"
)

// PowerState reports the host radio's availability.
type PowerState int

const (
	PowerUnknown PowerState = iota
	PowerOff
	PowerOn
)

func (s PowerState) String() string {
	switch s {
	case PowerOff:
		return "off"
	case PowerOn:
		return "on"
	default:
		return "unknown"
	}
}

// ErrRadioUnavailable is returned by outbound calls when the underlying
// radio is powered off or was never initialized.
var ErrRadioUnavailable = errors.New("radio unavailable")

// Adapter is the outbound surface of the radio stack. All calls are
// asynchronous: results arrive as Events, never as return values. An error
// return means the request could not even be issued.
type Adapter interface {
	// Events returns the inbound event stream. The channel is closed when
	// the adapter shuts down.
	Events() <-chan Event

	StartScan(services []string) error
	StopScan() error
	Connect(deviceID string) error
	Disconnect(deviceID string) error
	DiscoverServices(deviceID string, services []string) error
	DiscoverCharacteristics(deviceID, service string, characteristics []string) error
	SetNotify(deviceID, characteristic string, enabled bool) error
}

// Event is the tagged union of everything the radio stack reports back.
// Consumers switch exhaustively over the concrete types.
type Event interface {
	radioEvent()
}

// PowerStateChanged reports a host radio power transition.
type PowerStateChanged struct {
	State PowerState
}

// Advertisement reports a peripheral broadcast seen while scanning.
type Advertisement struct {
	DeviceID  string
	LocalName string
	Services  []string
	RSSI      int
}

// Connected reports a successful connect request.
type Connected struct {
	DeviceID string
}

// ConnectFailed reports a failed connect request.
type ConnectFailed struct {
	DeviceID string
	Err      error
}

// Disconnected reports a connection loss, solicited or not. Err is nil for
// a clean local disconnect.
type Disconnected struct {
	DeviceID string
	Err      error
}

// ServicesDiscovered reports the result of a DiscoverServices request.
// Services contains only the matched subset of the requested filter.
type ServicesDiscovered struct {
	DeviceID string
	Services []string
	Err      error
}

// CharacteristicsDiscovered reports the result of a DiscoverCharacteristics
// request for one service.
type CharacteristicsDiscovered struct {
	DeviceID        string
	Service         string
	Characteristics []string
	Err             error
}

// CharacteristicValue carries one notification payload from a subscribed
// characteristic. Data is owned by the receiver and must be consumed before
// the next event.
type CharacteristicValue struct {
	DeviceID       string
	Characteristic string
	Data           []byte
	ReceivedAt     time.Time
	Err            error
}

func (PowerStateChanged) radioEvent()         {}
func (Advertisement) radioEvent()             {}
func (Connected) radioEvent()                 {}
func (ConnectFailed) radioEvent()             {}
func (Disconnected) radioEvent()              {}
func (ServicesDiscovered) radioEvent()        {}
func (CharacteristicsDiscovered) radioEvent() {}
func (CharacteristicValue) radioEvent()       {}
