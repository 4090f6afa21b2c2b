// Package scan drives BLE discovery for the vitals pipeline: it starts
// scanning once the radio is ready and a scan has been requested, and admits
// the first advertisement whose service set intersects the known vitals
// services.
package scan

import (
	"sync"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"github.com/srg/vitalink/internal/profile"
	"github.com/srg/vitalink/internal/radio"
)

// DefaultSettleDelay guards against immediate-post-power-on instability on
// real radios before issuing the first scan request.
const DefaultSettleDelay = 300 * time.Millisecond

// Scanner owns scan start/stop. It never blocks: scan starts are scheduled,
// and everything else reacts to events delivered by the supervisor loop.
type Scanner struct {
	adapter radio.Adapter
	desc    profile.Descriptor
	logger  *logrus.Logger
	settle  time.Duration

	// rejected remembers non-matching devices so repeat advertisements
	// don't spam the log.
	rejected *hashmap.Map[string, struct{}]

	mu         sync.Mutex
	requested  bool
	radioReady bool
	scanning   bool
	pursuing   bool
	settleGen  uint64
}

// New creates a scanner over the given adapter. A zero settle duration
// falls back to DefaultSettleDelay.
func New(adapter radio.Adapter, desc profile.Descriptor, settle time.Duration, logger *logrus.Logger) *Scanner {
	if logger == nil {
		logger = logrus.New()
	}
	if settle <= 0 {
		settle = DefaultSettleDelay
	}
	return &Scanner{
		adapter:  adapter,
		desc:     desc,
		logger:   logger,
		settle:   settle,
		rejected: hashmap.New[string, struct{}](),
	}
}

// RequestScan latches the intent to scan. Scanning begins as soon as the
// radio is ready; calling it again is a no-op.
func (s *Scanner) RequestScan() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.requested {
		return
	}
	s.requested = true
	s.logger.Debug("Scan requested")
	s.scheduleStartLocked()
}

// HandleRadioState reacts to host radio power transitions. Power-on arms a
// pending scan request; power-off invalidates any scheduled start and waits
// silently for the next power-on.
func (s *Scanner) HandleRadioState(state radio.PowerState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch state {
	case radio.PowerOn:
		s.radioReady = true
		s.scheduleStartLocked()
	default:
		s.radioReady = false
		s.scanning = false
		s.settleGen++
		s.logger.WithField("state", state.String()).Debug("Radio not ready, scan paused")
	}
}

// HandleAdvertisement is the admission-control decision point. The first
// advertisement intersecting the known vitals services wins: scanning stops
// immediately and the matched services are returned for the connect attempt.
// Everything else is ignored.
func (s *Scanner) HandleAdvertisement(adv radio.Advertisement) ([]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.scanning || s.pursuing {
		return nil, false
	}

	matched := s.desc.Match(adv.Services)
	if len(matched) == 0 {
		if _, seen := s.rejected.GetOrInsert(adv.DeviceID, struct{}{}); !seen {
			s.logger.WithFields(logrus.Fields{
				"device": adv.DeviceID,
				"name":   adv.LocalName,
			}).Debug("Ignoring advertisement without vitals services")
		}
		return nil, false
	}

	// One candidate at a time: stop scanning before the hand-off.
	if err := s.adapter.StopScan(); err != nil {
		s.logger.WithError(err).Warn("Failed to stop scan on candidate acceptance")
	}
	s.scanning = false
	s.pursuing = true
	s.settleGen++

	s.logger.WithFields(logrus.Fields{
		"device":   adv.DeviceID,
		"name":     adv.LocalName,
		"rssi":     adv.RSSI,
		"services": matched,
	}).Info("Accepted vitals peripheral candidate")

	return matched, true
}

// Rearm releases the current candidate and resumes scanning. Called by the
// supervisor after a connect failure or disconnect, once its backoff expired.
func (s *Scanner) Rearm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pursuing = false
	s.scheduleStartLocked()
}

// scheduleStartLocked arms a settle-delayed scan start when all conditions
// hold. The generation counter invalidates timers made stale by a power-off
// or an accepted candidate in the meantime.
func (s *Scanner) scheduleStartLocked() {
	if !s.requested || !s.radioReady || s.scanning || s.pursuing {
		return
	}
	gen := s.settleGen
	time.AfterFunc(s.settle, func() {
		s.startScan(gen)
	})
}

func (s *Scanner) startScan(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.settleGen || !s.requested || !s.radioReady || s.scanning || s.pursuing {
		return
	}

	services := s.desc.Services()
	if err := s.adapter.StartScan(services); err != nil {
		// Radio went away between the check and the call; the next
		// power-on event re-arms us.
		s.logger.WithError(err).Warn("Scan start failed, waiting for radio")
		return
	}
	s.scanning = true
	s.logger.WithField("services", services).Info("Scanning for vitals peripherals")
}

// Scanning reports whether a scan is currently active.
func (s *Scanner) Scanning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scanning
}
