// Package radiotest provides a fake radio.Adapter that records outbound
// commands and synthesizes inbound events for deterministic tests.
package radiotest

import (
	"sync"

	"github.com/srg/vitalink/internal/radio"
)

// Command records one outbound adapter call.
type Command struct {
	Op              string
	DeviceID        string
	Service         string
	Characteristic  string
	Services        []string
	Characteristics []string
	Enabled         bool
}

// FakeAdapter implements radio.Adapter for tests.
type FakeAdapter struct {
	mu       sync.Mutex
	events   chan radio.Event
	commands []Command

	// Injectable failures, applied to the next matching call.
	StartScanErr error
	ConnectErr   error
}

var _ radio.Adapter = (*FakeAdapter)(nil)

// New creates a fake adapter with a generous event buffer so tests never
// block on emission.
func New() *FakeAdapter {
	return &FakeAdapter{events: make(chan radio.Event, 128)}
}

// Emit synthesizes an inbound radio event.
func (f *FakeAdapter) Emit(ev radio.Event) {
	f.events <- ev
}

// Close ends the event stream, terminating a supervisor run-loop.
func (f *FakeAdapter) Close() {
	close(f.events)
}

// Commands returns a copy of all recorded outbound calls.
func (f *FakeAdapter) Commands() []Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Command, len(f.commands))
	copy(out, f.commands)
	return out
}

// Ops returns just the operation names, in call order.
func (f *FakeAdapter) Ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.commands))
	for i, c := range f.commands {
		out[i] = c.Op
	}
	return out
}

// CountOp returns how many times an operation was issued.
func (f *FakeAdapter) CountOp(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.commands {
		if c.Op == op {
			n++
		}
	}
	return n
}

func (f *FakeAdapter) record(c Command) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, c)
}

func (f *FakeAdapter) Events() <-chan radio.Event {
	return f.events
}

func (f *FakeAdapter) StartScan(services []string) error {
	if err := f.StartScanErr; err != nil {
		return err
	}
	f.record(Command{Op: "StartScan", Services: services})
	return nil
}

func (f *FakeAdapter) StopScan() error {
	f.record(Command{Op: "StopScan"})
	return nil
}

func (f *FakeAdapter) Connect(deviceID string) error {
	if err := f.ConnectErr; err != nil {
		return err
	}
	f.record(Command{Op: "Connect", DeviceID: deviceID})
	return nil
}

func (f *FakeAdapter) Disconnect(deviceID string) error {
	f.record(Command{Op: "Disconnect", DeviceID: deviceID})
	return nil
}

func (f *FakeAdapter) DiscoverServices(deviceID string, services []string) error {
	f.record(Command{Op: "DiscoverServices", DeviceID: deviceID, Services: services})
	return nil
}

func (f *FakeAdapter) DiscoverCharacteristics(deviceID, service string, characteristics []string) error {
	f.record(Command{
		Op:              "DiscoverCharacteristics",
		DeviceID:        deviceID,
		Service:         service,
		Characteristics: characteristics,
	})
	return nil
}

func (f *FakeAdapter) SetNotify(deviceID, characteristic string, enabled bool) error {
	f.record(Command{
		Op:             "SetNotify",
		DeviceID:       deviceID,
		Characteristic: characteristic,
		Enabled:        enabled,
	})
	return nil
}
