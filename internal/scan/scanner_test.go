package scan

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/vitalink/internal/profile"
	"github.com/srg/vitalink/internal/radio"
	"github.com/srg/vitalink/internal/radio/radiotest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSettle  = 2 * time.Millisecond
	waitTimeout = 2 * time.Second
	waitTick    = time.Millisecond
)

func newTestScanner(t *testing.T) (*Scanner, *radiotest.FakeAdapter) {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	fake := radiotest.New()
	return New(fake, profile.Known(), testSettle, logger), fake
}

func waitForScan(t *testing.T, s *Scanner) {
	t.Helper()
	require.Eventually(t, s.Scanning, waitTimeout, waitTick, "scan did not start")
}

func TestScannerWaitsForRadio(t *testing.T) {
	s, fake := newTestScanner(t)

	s.RequestScan()
	time.Sleep(5 * testSettle)

	// Radio off: scanning silently does nothing, no error raised.
	assert.Zero(t, fake.CountOp("StartScan"))
	assert.False(t, s.Scanning())

	s.HandleRadioState(radio.PowerOn)
	waitForScan(t, s)
	assert.Equal(t, 1, fake.CountOp("StartScan"))
}

func TestScannerRequestScanIsIdempotent(t *testing.T) {
	s, fake := newTestScanner(t)

	s.RequestScan()
	s.RequestScan()
	s.RequestScan()
	s.HandleRadioState(radio.PowerOn)

	waitForScan(t, s)
	time.Sleep(5 * testSettle)
	assert.Equal(t, 1, fake.CountOp("StartScan"), "exactly one scan start per radio-ready")
}

func TestScannerFiltersByServiceFilter(t *testing.T) {
	s, fake := newTestScanner(t)

	s.RequestScan()
	s.HandleRadioState(radio.PowerOn)
	waitForScan(t, s)

	cmds := fake.Commands()
	require.NotEmpty(t, cmds)
	assert.Equal(t, []string{"180d", "1810"}, cmds[0].Services)
}

func TestScannerAdmissionControl(t *testing.T) {
	s, fake := newTestScanner(t)

	s.RequestScan()
	s.HandleRadioState(radio.PowerOn)
	waitForScan(t, s)

	t.Run("rejects non-matching advertisement", func(t *testing.T) {
		_, ok := s.HandleAdvertisement(radio.Advertisement{
			DeviceID: "11:22:33:44:55:66",
			Services: []string{"180f", "180a"},
		})
		assert.False(t, ok)
		assert.True(t, s.Scanning())
	})

	t.Run("accepts first matching advertisement and stops scan", func(t *testing.T) {
		matched, ok := s.HandleAdvertisement(radio.Advertisement{
			DeviceID: "AA:BB:CC:DD:EE:FF",
			Services: []string{"1810", "180f"},
		})
		require.True(t, ok)
		assert.Equal(t, []string{"1810"}, matched)
		assert.False(t, s.Scanning())
		assert.Equal(t, 1, fake.CountOp("StopScan"))
	})

	t.Run("ignores further advertisements while pursuing", func(t *testing.T) {
		_, ok := s.HandleAdvertisement(radio.Advertisement{
			DeviceID: "22:22:22:22:22:22",
			Services: []string{"180d"},
		})
		assert.False(t, ok)
	})
}

func TestScannerIgnoresAdvertisementWhenNotScanning(t *testing.T) {
	s, _ := newTestScanner(t)

	_, ok := s.HandleAdvertisement(radio.Advertisement{
		DeviceID: "AA:BB:CC:DD:EE:FF",
		Services: []string{"1810"},
	})
	assert.False(t, ok)
}

func TestScannerRearmResumesScanning(t *testing.T) {
	s, fake := newTestScanner(t)

	s.RequestScan()
	s.HandleRadioState(radio.PowerOn)
	waitForScan(t, s)

	_, ok := s.HandleAdvertisement(radio.Advertisement{
		DeviceID: "AA:BB:CC:DD:EE:FF",
		Services: []string{"180d"},
	})
	require.True(t, ok)
	require.False(t, s.Scanning())

	s.Rearm()
	waitForScan(t, s)
	assert.Equal(t, 2, fake.CountOp("StartScan"))
}

func TestScannerPowerOffCancelsPendingStart(t *testing.T) {
	s, fake := newTestScanner(t)

	s.RequestScan()
	s.HandleRadioState(radio.PowerOn)
	s.HandleRadioState(radio.PowerOff)

	time.Sleep(5 * testSettle)
	assert.Zero(t, fake.CountOp("StartScan"))

	// Next power-on arms it again.
	s.HandleRadioState(radio.PowerOn)
	waitForScan(t, s)
	assert.Equal(t, 1, fake.CountOp("StartScan"))
}

func TestScannerStartFailureWaitsForRadio(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	fake := radiotest.New()
	fake.StartScanErr = radio.ErrRadioUnavailable
	s := New(fake, profile.Known(), testSettle, logger)

	s.RequestScan()
	s.HandleRadioState(radio.PowerOn)

	time.Sleep(5 * testSettle)
	assert.False(t, s.Scanning())

	// Radio recovers: the next power-on event starts the scan.
	fake.StartScanErr = nil
	s.HandleRadioState(radio.PowerOn)
	waitForScan(t, s)
}
